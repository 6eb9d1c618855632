package command

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/concord-chat/refnav/internal/httpapi"
)

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the preview API over the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = ctx.Config.Address()
			}

			opts := []httpapi.Option{httpapi.WithLogger(ctx.Logger)}
			remote, err := ctx.APIClient()
			if err != nil {
				return err
			}
			if remote != nil {
				opts = append(opts, httpapi.WithFetcher(remote))
			} else {
				opts = append(opts, httpapi.WithFetcher(ctx.Store))
			}

			srv := httpapi.New(httpapi.Config{
				Addr:            addr,
				UserID:          ctx.Config.Session.UserID,
				LinkHosts:       ctx.Config.Links.Hosts,
				Shortcodes:      ctx.Config.Shortcodes,
				FetchTimeout:    ctx.Config.FetchTimeout(),
				ShutdownTimeout: ctx.Config.ShutdownTimeout(),
			}, ctx.Store, opts...)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(runCtx)
		},
	}

	cmd.Flags().String("addr", "", "listen address (defaults to http.host:http.port)")
	return cmd
}
