package main

import (
	"fmt"
	"strings"

	"copbot/internal/chat"
	"copbot/internal/helper"
	"copbot/internal/translate"

	"github.com/spf13/cobra"
)

type askResult struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Language string `json:"language"`
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var lang string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question",
		Long: `Answer one question from the indexed documents and exit.

Examples:
  copbot ask "What is an FIR?"
  copbot ask "FIR என்றால் என்ன?" --lang ta --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := translate.Parse(lang)
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			reply := a.chat.Ask(cmd.Context(), chat.NewSession("cli", tag), question)
			if asJSON {
				return helper.PrettyPrint(cmd.OutOrStdout(), askResult{Question: question, Answer: reply.Content, Language: tag.String()})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
			return err
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "en", "Conversation language: en or ta")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")
	return cmd
}
