package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrouter/internal/server"
)

func serveCmd(a *app) *cobra.Command {
	var opts server.Options
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC PipeService with the batch queue and run ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.GRPCAddr = addr
			}
			return server.Run(cmd.Context(), a.cfg, opts, a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $GRPC_ADDR or :8080)")
	cmd.Flags().StringSliceVar(&opts.WatchRoots, "watch", nil, "directories to watch for new documents")
	cmd.Flags().StringVar(&opts.WatchMode, "watch-mode", "auto", "pipe mode for watched documents: auto|txt|ocr")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 500*time.Millisecond, "coalesce file events within this window")
	return cmd
}
