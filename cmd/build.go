package main

import (
	"fmt"
	"time"

	"copbot/internal/embedding"
	"copbot/internal/indexer"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newBuildCmd(opts *rootOptions) *cobra.Command {
	var (
		export string
		reset  bool
	)

	cmd := &cobra.Command{
		Use:   "build-index",
		Short: "Build the vector index from the data folder",
		Long: `Load every supported document (.pdf, .docx, .pptx, .xlsx, .ods, .txt)
in the data folder, split it into chunks, embed the chunks and replace the
index. --reset first drops the existing index (chromem folder or pgvector
table), e.g. after switching embedding models.

Examples:
  copbot build-index
  copbot build-index --reset
  copbot build-index --export dist/index.gob.enc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			ctx := cmd.Context()

			embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
			if err != nil {
				return err
			}
			if reset {
				if err := indexer.ResetIndex(ctx, cfg); err != nil {
					return err
				}
			}
			store, err := indexer.NewWritableStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := indexer.Build(ctx, cfg, embedder, store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks from %d files (%d pages, %d skipped) in %s\n",
				stats.Chunks, stats.Files, stats.Pages, stats.Skipped, stats.Duration.Round(time.Millisecond))

			if export != "" {
				if err := indexer.Export(store, export); err != nil {
					return err
				}
				log.Info().Str("file", export).Msg("Exported index snapshot")
				fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", export)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Drop the existing index before building")
	cmd.Flags().StringVar(&export, "export", "", "Also write an encrypted snapshot of the index to this file")
	return cmd
}
