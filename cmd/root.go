package main

import (
	"copbot/internal/config"
	"copbot/internal/helper"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./configs/config.yaml"

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "copbot",
		Short: "Police assistance chatbot answering from indexed documents",
		Long: `copbot answers questions about police procedures, stations and IPC
sections using only the documents in its data folder.

Build the index once with 'copbot build-index', then start the web UI
with 'copbot serve' or chat in the terminal with 'copbot chat'.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if err := helper.SetupLogger(cfg.Log.Level, cfg.Log.Pretty); err != nil {
				return err
			}
			log.Debug().Interface("config", cfg.Index).Str("strategy", cfg.RAG.Strategy).Msg("Loaded config")
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newBuildCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newAskCmd(opts))
	cmd.AddCommand(newChatCmd(opts))
	return cmd
}
