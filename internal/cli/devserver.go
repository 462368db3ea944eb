package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"anymusic/internal/server"
)

func newDevServerCmd(a *app) *cobra.Command {
	var opts server.Options
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a scripted task service for offline use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := server.NewBackend(opts)
			return server.Serve(cmd.Context(), a.cfg.DevServerAddr, b.Handler(), func(addr string) {
				fmt.Fprintf(a.out, "dev backend listening on http://%s\n", addr)
			})
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:5000", "listen address")
	cmd.Flags().IntVar(&opts.FailFirst, "fail-first", 0, "answer the first N progress queries of each task with HTTP 500")
	cmd.Flags().IntVar(&opts.RateLimit, "rate-limit", 0, "requests per minute per client IP (0 disables)")
	return cmd
}
