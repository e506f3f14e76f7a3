// 包 config 负责加载与校验应用配置（settings.yaml），
// 对外提供结构体 Config 及默认值/合法性校验。
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"oura-sync/internal/errors"
)

// DateLayout 为接口查询参数与配置中的日期格式。
const DateLayout = "2006-01-02"

// Oura API v2 默认地址。
const (
	DefaultAuthorizationURL = "https://cloud.ouraring.com/oauth/authorize"
	DefaultTokenURL         = "https://api.ouraring.com/oauth/token"
	apiBase                 = "https://api.ouraring.com/v2/usercollection/"
)

// DefaultEndpoints 为数据类型（表名）到接口地址的默认映射。
func DefaultEndpoints() map[string]string {
	return map[string]string{
		"daily_activity":           apiBase + "daily_activity",
		"daily_cardiovascular_age": apiBase + "daily_cardiovascular_age",
		"daily_readiness":          apiBase + "daily_readiness",
		"daily_resilience":         apiBase + "daily_resilience",
		"daily_sleep":              apiBase + "daily_sleep",
		"daily_spo2":               apiBase + "daily_spo2",
		"daily_stress":             apiBase + "daily_stress",
		"enhanced_tag":             apiBase + "enhanced_tag",
		"restmode_period":          apiBase + "rest_mode_period",
		"ring_configuration":       apiBase + "ring_configuration",
		"sessions":                 apiBase + "session",
		"sleep":                    apiBase + "sleep",
		"sleep_time":               apiBase + "sleep_time",
		"vo2max":                   apiBase + "vO2_max",
		"workout":                  apiBase + "workout",
	}
}

// Config 为一次运行的不可变配置；加载后以值的形式传入各组件。
type Config struct {
	Paths       Paths             `yaml:"paths"`
	Secrets     Secrets           `yaml:"secrets"`
	OAuth       OAuth             `yaml:"oauth"`
	Range       Range             `yaml:"range"`
	Endpoints   map[string]string `yaml:"endpoints"`
	HTTP        HTTP              `yaml:"http"`
	Concurrency Concurrency       `yaml:"concurrency"`
	Log         Log               `yaml:"log"`
}

type Paths struct {
	DBFile    string `yaml:"db_file"`
	TokenFile string `yaml:"token_file"`
}

type Secrets struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type OAuth struct {
	AuthorizationURL string   `yaml:"authorization_url"`
	TokenURL         string   `yaml:"token_url"`
	CallbackURL      string   `yaml:"callback_url"`
	Scopes           []string `yaml:"scopes"`
}

// Range 为同步时间窗口；EndDate 为空时取当天。
type Range struct {
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`

	Start time.Time `yaml:"-"`
	End   time.Time `yaml:"-"`
}

type HTTP struct {
	Timeout    time.Duration `yaml:"timeout"`
	ProxyHTTP  string        `yaml:"proxy_http"`
	ProxyHTTPS string        `yaml:"proxy_https"`
}

type Concurrency struct {
	Fetch int `yaml:"fetch"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json|pretty
	Locale string `yaml:"locale"` // zh-CN|en
	Color  string `yaml:"color"`  // auto|always|never
}

// 环境变量优先于配置文件中的密钥。
const (
	envClientID     = "OURA_CLIENT_ID"
	envClientSecret = "OURA_CLIENT_SECRET"
)

// Load 从文件读取 YAML 并反序列化为 Config，同时进行基础校验与默认值填充。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, &errors.ErrConfigNotFound{Path: path}
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	c, err := Parse(b)
	if err != nil {
		var pe *errors.ErrConfigParse
		if stderrors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return c, nil
}

// Parse 解析 YAML 内容并校验。
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, &errors.ErrConfigParse{Err: err}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(envClientID)); v != "" {
		c.Secrets.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv(envClientSecret)); v != "" {
		c.Secrets.ClientSecret = v
	}
}

// Validate 负责合法性检查与默认值设置，避免在业务层分散判空逻辑。
func (c *Config) Validate() error {
	if c.Paths.DBFile == "" {
		c.Paths.DBFile = "./oura.db"
	}
	if c.Paths.TokenFile == "" {
		c.Paths.TokenFile = "./token.json"
	}
	if c.OAuth.AuthorizationURL == "" {
		c.OAuth.AuthorizationURL = DefaultAuthorizationURL
	}
	if c.OAuth.TokenURL == "" {
		c.OAuth.TokenURL = DefaultTokenURL
	}
	if len(c.Endpoints) == 0 {
		c.Endpoints = DefaultEndpoints()
	}
	for name, u := range c.Endpoints {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(u) == "" {
			return &errors.ErrConfigValidation{Field: "endpoints", Err: fmt.Errorf("empty name or url for %q", name)}
		}
	}

	if c.Range.StartDate == "" {
		return &errors.ErrConfigValidation{Field: "range.start_date", Err: stderrors.New("required")}
	}
	start, err := time.Parse(DateLayout, c.Range.StartDate)
	if err != nil {
		return &errors.ErrConfigValidation{Field: "range.start_date", Err: err}
	}
	end := today()
	if c.Range.EndDate != "" {
		if end, err = time.Parse(DateLayout, c.Range.EndDate); err != nil {
			return &errors.ErrConfigValidation{Field: "range.end_date", Err: err}
		}
	}
	if end.Before(start) {
		return &errors.ErrConfigValidation{Field: "range", Err: fmt.Errorf("end %s before start %s", end.Format(DateLayout), start.Format(DateLayout))}
	}
	c.Range.Start, c.Range.End = start, end

	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
	if c.Concurrency.Fetch <= 0 {
		c.Concurrency.Fetch = 1
	}
	if c.Log.Format == "" {
		c.Log.Format = "pretty"
	}
	if c.Log.Locale == "" {
		c.Log.Locale = "zh-CN"
	}
	if c.Log.Color == "" {
		c.Log.Color = "auto"
	}
	return nil
}

// RequireCredentials 在需要联网授权时检查客户端凭据。
// status 等只读命令不需要凭据，因此不放在 Validate 中。
func (c *Config) RequireCredentials() error {
	if c.Secrets.ClientID == "" {
		return &errors.ErrConfigValidation{Field: "secrets.client_id", Err: stderrors.New("required")}
	}
	if c.Secrets.ClientSecret == "" {
		return &errors.ErrConfigValidation{Field: "secrets.client_secret", Err: stderrors.New("required")}
	}
	if c.OAuth.CallbackURL == "" {
		return &errors.ErrConfigValidation{Field: "oauth.callback_url", Err: stderrors.New("required")}
	}
	return nil
}

// EndpointNames 返回按名称排序的端点列表，保证运行顺序稳定。
func (c *Config) EndpointNames() []string {
	out := make([]string, 0, len(c.Endpoints))
	for n := range c.Endpoints {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func today() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
