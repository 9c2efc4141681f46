// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/pipeline"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var shellDisplay displayOptions

// sampleQuestions are offered when the shell starts.
var sampleQuestions = []string{
	"How many total sales in the last month?",
	"Show me all products with Bhujia",
	"Sales of Delhi in last 3 months",
	"Takatak sales in last two months",
	"How many distributors sold more than 5 distinct products?",
	"What are the top selling products?",
}

// shellCmd asks questions in a loop over one session.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Ask questions interactively",
	Long: `The shell command starts an interactive loop. Type a question and press Enter;
type a number to ask one of the sample questions, or 'exit' to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, r, err := newAssistant()
		if err != nil {
			return err
		}
		sess := pipeline.NewSession(a, sessionOptions()...)

		pterm.DefaultBox.
			WithTitle(headingStyle.Sprint("querypilot")).
			WithPadding(1).
			Println("Ask questions about your data in plain English.\nDatabase: " + logging.Mask(r.DSN))
		pterm.Println(headingStyle.Sprint("Sample questions"))
		for i, q := range sampleQuestions {
			pterm.Printf("  %d. %s\n", i+1, q)
		}
		pterm.Println()

		for {
			pterm.Print(pterm.NewStyle(pterm.FgGreen, pterm.Bold).Sprint("❯ "))
			line, err := stdin.ReadString('\n')
			if err != nil && line == "" {
				if errors.Is(err, io.EOF) {
					pterm.Println()
					return nil
				}
				return err
			}
			question := pickSample(strings.TrimSpace(line))
			switch strings.ToLower(question) {
			case "":
				continue
			case "exit", "quit", `\q`:
				return nil
			}

			err = askLocal(cmd.Context(), sess, question, shellDisplay)
			switch {
			case errors.Is(err, errReported):
			case err != nil && cmd.Context().Err() != nil:
				return nil
			case err != nil:
				pterm.Error.Println(present(err))
			}
		}
	},
}

// pickSample expands a sample question number into its text.
func pickSample(input string) string {
	for i, q := range sampleQuestions {
		if input == strconv.Itoa(i+1) {
			return q
		}
	}
	return input
}

func init() {
	rootCmd.AddCommand(shellCmd)
	addDisplayFlags(shellCmd, &shellDisplay)
}
