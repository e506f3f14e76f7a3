// 包 cli 提供命令行入口（cobra）：
// - sync：同步全部或指定端点（根命令默认行为）
// - auth：获取/刷新令牌并打印有效期
// - status：列出数据库中的表及行数
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"oura-sync/internal/config"
	"oura-sync/internal/logx"
)

// GlobalFlags 为所有子命令共享的参数。
type GlobalFlags struct {
	Config    string
	DBPath    string
	TokenPath string
	LogLevel  string
	NoColor   bool
}

// app 持有一次命令执行的共享状态，由 PersistentPreRunE 填充。
type app struct {
	flags GlobalFlags
	cfg   *config.Config
	in    io.Reader
}

// NewRootCmd 构建命令树；in 用于交互式授权时读取回调地址。
func NewRootCmd(in io.Reader) *cobra.Command {
	a := &app{in: in}

	configPath := os.Getenv("OURA_SYNC_CONFIG")
	if configPath == "" {
		configPath = "settings.yaml"
	}

	syncCmd := newSyncCmd(a)
	root := &cobra.Command{
		Use:   "oura-sync",
		Short: "Sync Oura ring data into a local SQLite database",
		Long: `oura-sync pulls every configured Oura API v2 collection for a date range,
flattens each record and upserts it into one SQLite table per data type.

Running without a subcommand is the same as "oura-sync sync".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		RunE: syncCmd.RunE,
	}
	root.Flags().AddFlagSet(syncCmd.Flags())

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.Config, "config", configPath, "Path to settings.yaml")
	pf.StringVar(&a.flags.DBPath, "db", os.Getenv("OURA_SYNC_DB_PATH"), "Path to SQLite database (overrides paths.db_file)")
	pf.StringVar(&a.flags.TokenPath, "token", "", "Path to token file (overrides paths.token_file)")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "Log level: debug|info|warn|error|silent")
	pf.BoolVar(&a.flags.NoColor, "no-color", false, "Disable colored log output")

	root.AddCommand(syncCmd, newAuthCmd(a), newStatusCmd(a))
	return root
}

// load 读取配置，应用命令行覆盖，并初始化日志。
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.Config)
	if err != nil {
		return err
	}
	if a.flags.DBPath != "" {
		cfg.Paths.DBFile = a.flags.DBPath
	}
	if a.flags.TokenPath != "" {
		cfg.Paths.TokenFile = a.flags.TokenPath
	}
	if a.flags.LogLevel != "" {
		cfg.Log.Level = a.flags.LogLevel
	}
	if a.flags.NoColor {
		cfg.Log.Color = "never"
	}
	logx.InitWriter(cmd.ErrOrStderr(), logx.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Locale: cfg.Log.Locale,
		Color:  cfg.Log.Color,
	})
	a.cfg = cfg
	return nil
}

// Execute 运行命令并返回进程退出码。
func Execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	root := NewRootCmd(in)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
