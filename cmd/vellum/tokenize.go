package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vellumtext/vellum/lexer"
)

var tokenColors = map[lexer.TokenType]*color.Color{
	lexer.TokenText:    color.New(color.Faint),
	lexer.TokenVar:     color.New(color.FgGreen),
	lexer.TokenBlock:   color.New(color.FgCyan),
	lexer.TokenComment: color.New(color.FgYellow),
}

func newTokenizeCmd() *cobra.Command {
	var offsets bool
	cmd := &cobra.Command{
		Use:   "tokenize <template>",
		Short: "Print the token stream of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "reading %s", args[0])
			}
			var tokens []lexer.Token
			if offsets {
				tokens = lexer.NewDebug(string(src)).Tokenize()
			} else {
				tokens = lexer.Tokenize(string(src))
			}
			for _, t := range tokens {
				line := fmt.Sprintf("%4d %-7s %q", t.Lineno, t.Type, t.Contents)
				if t.Position != nil {
					line += fmt.Sprintf(" [%d:%d]", t.Position.Start, t.Position.End)
				}
				if _, err := tokenColors[t.Type].Fprintln(cmd.OutOrStdout(), line); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offsets, "offsets", false, "include byte offsets for each token")
	return cmd
}
