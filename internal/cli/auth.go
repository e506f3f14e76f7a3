package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"oura-sync/internal/fetch"
)

func newAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Obtain or refresh the access token and print its expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if err := cfg.RequireCredentials(); err != nil {
				return err
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
			before, _, err := mgr.State()
			if err != nil {
				return err
			}
			tok, err := mgr.GetToken(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token %s -> valid, expires %s (in %s)\n",
				before, tok.Expiry().Local().Format(time.RFC3339), time.Until(tok.Expiry()).Round(time.Second))
			return nil
		},
	}
}
