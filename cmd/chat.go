package main

import (
	"copbot/internal/chat"
	"copbot/internal/helper"
	"copbot/internal/translate"
	"copbot/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tag, err := translate.Parse(lang)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// Log lines would draw over the UI.
			log.Logger = zerolog.Nop()

			id, err := helper.GenerateUUID()
			if err != nil {
				return err
			}
			m := tui.New(ctx, a.chat, chat.NewSession(id, tag))
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "en", "Initial language: en or ta")
	return cmd
}
