package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"oura-sync/internal/errors"
	"oura-sync/internal/logx"
)

// State 为令牌状态机的状态。
type State int

const (
	Absent State = iota
	Valid
	Expired
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

// Options 为 Manager 构造参数。
type Options struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string

	// HTTPClient 用于令牌端点请求；为空时使用 http.DefaultClient。
	HTTPClient *http.Client
	// Prompter 用于首次交互式授权；为空时首次授权直接失败。
	Prompter Prompter
	// Now 仅用于测试注入时钟。
	Now func() time.Time
}

// Manager 产出当前有效的访问令牌。GetToken 串行执行，同一进程内不会并发刷新。
type Manager struct {
	store    CredentialStore
	oauth    *oauth2.Config
	client   *http.Client
	prompter Prompter
	now      func() time.Time

	mu sync.Mutex
}

func NewManager(store CredentialStore, opts Options) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store: store,
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  opts.AuthURL,
				TokenURL: opts.TokenURL,
				// 凭据放在表单中，避免自动探测时的第二次请求
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client:   opts.HTTPClient,
		prompter: opts.Prompter,
		now:      now,
	}
}

// State 返回已存储令牌的状态，不触发任何网络请求。
func (m *Manager) State() (State, *Token, error) {
	tok, err := m.store.Load()
	if err != nil {
		return Absent, nil, err
	}
	return m.stateOf(tok), tok, nil
}

func (m *Manager) stateOf(tok *Token) State {
	switch {
	case tok == nil:
		return Absent
	case tok.ValidAt(m.now()):
		return Valid
	default:
		return Expired
	}
}

// GetToken 返回有效令牌：
// - Absent：交互式授权并交换授权码
// - Valid：直接返回，无网络请求
// - Expired：使用 refresh_token 刷新；无 refresh_token 时回退到交互式授权
// 新令牌总是先写入文件再返回。
func (m *Manager) GetToken(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	switch m.stateOf(tok) {
	case Valid:
		return tok, nil
	case Expired:
		if tok.RefreshToken != "" {
			return m.refresh(ctx, tok)
		}
		logx.Warnf("令牌已过期且没有 refresh_token，重新授权")
		return m.authorize(ctx)
	default:
		return m.authorize(ctx)
	}
}

func (m *Manager) refresh(ctx context.Context, old *Token) (*Token, error) {
	logx.Infof("访问令牌已于 %s 过期，正在刷新", old.Expiry().Format(time.RFC3339))
	// 只带 refresh_token，保证 TokenSource 必定发起一次刷新请求
	src := m.oauth.TokenSource(m.withClient(ctx), &oauth2.Token{RefreshToken: old.RefreshToken})
	ot, err := src.Token()
	if err != nil {
		return nil, exchangeError(grantRefreshToken, err)
	}
	return m.persist(grantRefreshToken, ot)
}

func (m *Manager) authorize(ctx context.Context) (*Token, error) {
	if m.prompter == nil {
		return nil, &errors.ErrAuthentication{Reason: "no stored token and no interactive prompt available"}
	}
	state, err := newState()
	if err != nil {
		return nil, &errors.ErrAuthentication{Reason: "generate state", Err: err}
	}
	authURL := m.oauth.AuthCodeURL(state)
	resp, err := m.prompter.Prompt(ctx, authURL)
	if err != nil {
		var ae *errors.ErrAuthentication
		if stderrors.As(err, &ae) {
			return nil, err
		}
		return nil, &errors.ErrAuthentication{Reason: "authorization aborted", Err: err}
	}
	code, err := parseRedirect(resp, state)
	if err != nil {
		return nil, err
	}
	ot, err := m.oauth.Exchange(m.withClient(ctx), code)
	if err != nil {
		return nil, exchangeError(grantAuthorizationCode, err)
	}
	return m.persist(grantAuthorizationCode, ot)
}

// persist 校验新令牌带有未来的过期时间，写盘后返回。
func (m *Manager) persist(grant string, ot *oauth2.Token) (*Token, error) {
	if ot.Expiry.IsZero() {
		return nil, &errors.ErrTokenExchange{Grant: grant, Err: stderrors.New("token response carries no expiry")}
	}
	tok := fromOAuth2(ot)
	if !tok.ValidAt(m.now()) {
		return nil, &errors.ErrTokenExchange{Grant: grant, Err: fmt.Errorf("token already expired at %s", tok.Expiry().Format(time.RFC3339))}
	}
	if err := m.store.Save(tok); err != nil {
		return nil, err
	}
	logx.Infof("已保存新令牌，有效期至 %s", tok.Expiry().Format(time.RFC3339))
	return tok, nil
}

func (m *Manager) withClient(ctx context.Context) context.Context {
	if m.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.client)
}

func exchangeError(grant string, err error) error {
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) && re.Response != nil {
		return &errors.ErrTokenExchange{Grant: grant, StatusCode: re.Response.StatusCode, Err: err}
	}
	return &errors.ErrTokenExchange{Grant: grant, Err: err}
}

// parseRedirect 从粘贴的回调地址中取出授权码并校验 state；
// 也接受直接粘贴的授权码。
func parseRedirect(raw, state string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &errors.ErrAuthentication{Reason: "empty authorization response"}
	}
	if !strings.Contains(raw, "?") && !strings.Contains(raw, "://") && !strings.ContainsAny(raw, " =&") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &errors.ErrAuthentication{Reason: "malformed authorization response", Err: err}
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		reason := "provider denied authorization: " + e
		if d := q.Get("error_description"); d != "" {
			reason += " (" + d + ")"
		}
		return "", &errors.ErrAuthentication{Reason: reason}
	}
	if got := q.Get("state"); got != state {
		return "", &errors.ErrAuthentication{Reason: "state mismatch in authorization response"}
	}
	code := q.Get("code")
	if code == "" {
		return "", &errors.ErrAuthentication{Reason: "authorization response has no code"}
	}
	return code, nil
}

// newState 生成随机 state，防止 CSRF。
func newState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes for state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
