package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"oura-sync/internal/auth"
	"oura-sync/internal/config"
	"oura-sync/internal/export"
	"oura-sync/internal/fetch"
	"oura-sync/internal/logx"
	"oura-sync/internal/model"
	"oura-sync/internal/store"
	"oura-sync/internal/syncer"
)

type syncFlags struct {
	only   string
	dryRun bool
	report string
}

func newSyncCmd(a *app) *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch configured endpoints and upsert them into SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.only, "only", "", "Comma separated endpoint names (default: all configured)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Flatten into memory instead of writing the database")
	cmd.Flags().StringVar(&f.report, "report", "", "Write the per-endpoint outcome report as JSON to this path")
	return cmd
}

func (a *app) runSync(cmd *cobra.Command, f syncFlags) error {
	cfg := a.cfg
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	ctx := cmd.Context()

	var (
		sink  syncer.Store
		stats func() ([]model.TableStats, error)
	)
	if f.dryRun {
		mem := store.NewMemory()
		sink = mem
		stats = func() ([]model.TableStats, error) { return mem.Stats(ctx) }
		logx.Infof("演练模式：跳过数据库打开")
	} else {
		db, err := store.OpenSQLite(cfg.Paths.DBFile)
		if err != nil {
			return err
		}
		defer db.Close()
		sink = db
	}

	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.HTTP.ProxyHTTP,
		ProxyHTTPS: cfg.HTTP.ProxyHTTPS,
		Timeout:    cfg.HTTP.Timeout,
	})
	if err != nil {
		return fmt.Errorf("http client: %w", err)
	}
	mgr := newManager(cfg, cl, a.in, cmd.OutOrStdout())

	run := syncer.New(syncer.Options{
		Endpoints:   cfg.Endpoints,
		Start:       cfg.Range.Start,
		End:         cfg.Range.End,
		Concurrency: cfg.Concurrency.Fetch,
		DryRun:      f.dryRun,
	}, mgr, cl, sink)

	rep, fatal := run.Run(ctx, splitList(f.only))
	printReport(cmd.OutOrStdout(), rep)

	if f.report != "" {
		if err := export.ReportToJSON(rep, f.report); err != nil {
			logx.Warnf("写入报告失败：%v", err)
		} else {
			logx.Infof("已导出报告 %s", f.report)
		}
	}
	if stats != nil {
		if st, err := stats(); err == nil {
			printTables(cmd.OutOrStdout(), st)
		}
	}
	if fatal != nil {
		return fatal
	}
	if n := rep.Failed(); n > 0 {
		return fmt.Errorf("%d of %d endpoints failed", n, len(rep.Outcomes))
	}
	return nil
}

// newManager 组装令牌管理器；令牌请求复用数据客户端的代理与超时。
func newManager(cfg *config.Config, cl *fetch.Client, in io.Reader, out io.Writer) *auth.Manager {
	return auth.NewManager(auth.NewFileStore(cfg.Paths.TokenFile), auth.Options{
		ClientID:     cfg.Secrets.ClientID,
		ClientSecret: cfg.Secrets.ClientSecret,
		AuthURL:      cfg.OAuth.AuthorizationURL,
		TokenURL:     cfg.OAuth.TokenURL,
		RedirectURL:  cfg.OAuth.CallbackURL,
		Scopes:       cfg.OAuth.Scopes,
		HTTPClient:   cl.HTTPClient(),
		Prompter:     auth.ConsolePrompter{In: in, Out: out},
	})
}

func printReport(w io.Writer, rep model.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tSTATUS\tFETCHED\tSTORED\tREJECTED\tDURATION")
	for _, o := range rep.Outcomes {
		status := "ok"
		if !o.Success {
			status = "failed: " + o.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", o.Endpoint, status, o.Fetched, o.Stored, o.Rejected, o.Duration.Round(time.Millisecond))
	}
	tw.Flush()
}

func printTables(w io.Writer, tables []model.TableStats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tCOLUMNS\tROWS\tKEYED")
	for _, t := range tables {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%v\n", t.Name, t.Columns, t.Rows, t.Keyed)
	}
	tw.Flush()
}
