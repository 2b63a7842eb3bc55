package main

import (
	"copbot/internal/chat"
	"copbot/internal/indexer"
	"copbot/internal/server"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web chat UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(a.chat, chat.NewSessions(cfg.Server.MaxSessions, cfg.Server.SessionTTL), cfg.Server.Addr)
			if err != nil {
				return err
			}

			if watch {
				go func() {
					if err := indexer.Watch(ctx, cfg.Data.Folder, cfg.Data.Extensions, a.rebuild); err != nil {
						log.Error().Err(err).Msg("Document watcher stopped")
					}
				}()
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Rebuild the index when documents in the data folder change")
	return cmd
}
