package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"oura-sync/internal/auth"
	"oura-sync/internal/export"
	"oura-sync/internal/store"
)

func newStatusCmd(a *app) *cobra.Command {
	var jsonPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show token state and per-table column/row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			out := cmd.OutOrStdout()

			// 只读取令牌文件，不触发刷新，也不需要客户端凭据
			st, tok, err := auth.NewManager(auth.NewFileStore(cfg.Paths.TokenFile), auth.Options{}).State()
			if err != nil {
				return err
			}
			if tok != nil {
				fmt.Fprintf(out, "token: %s (expires %s)\n", st, tok.Expiry().Local().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintf(out, "token: %s\n", st)
			}

			db, err := store.OpenSQLite(cfg.Paths.DBFile)
			if err != nil {
				return err
			}
			defer db.Close()
			tables, err := db.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "database: %s\n", cfg.Paths.DBFile)
			printTables(out, tables)
			if jsonPath != "" {
				return export.StatusToJSON(cfg.Paths.DBFile, tables, jsonPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jsonPath, "json", "", "Also write the table summary as JSON to this path")
	return cmd
}
