// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"querypilot/cli/internal/bridge"
	"querypilot/cli/internal/bridge/model"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/pipeline"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	askDisplay      displayOptions
	remoteAddr      string
	remotePlaintext bool
)

// askCmd answers one question, asking the user to disambiguate entities
// when needed.
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question about your data",
	Long: `The ask command turns a natural-language question into a read-only SQL query,
runs it and summarizes the result. When a name in the question matches several
database values, you are asked to pick the one you meant.

With --remote the question is sent to a running 'querypilot serve' instead.`,
	Example: `  querypilot ask "Sales of Delhi in last 3 months" --show-sql --details
  querypilot ask "Top selling products" --sqlite ./sales.db --rows`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		ctx := cmd.Context()
		if remoteAddr != "" {
			return askRemote(ctx, remoteAddr, remotePlaintext, question, askDisplay)
		}

		a, r, err := newAssistant()
		if err != nil {
			return err
		}
		pterm.Println(labelStyle.Sprint("→ Database: ") + valueStyle.Sprint(logging.Mask(r.DSN)))
		sess := pipeline.NewSession(a, sessionOptions()...)
		return askLocal(ctx, sess, question, askDisplay)
	},
}

// askLocal runs question in sess, serving clarification requests from the
// terminal, and prints the outcome.
func askLocal(ctx context.Context, sess *pipeline.Session, question string, opts displayOptions) error {
	if _, err := sess.Start(ctx, question); err != nil {
		return err
	}
	done := sess.Done()
	stop := startSpinner("Thinking...")
	defer func() { stop() }()

	for {
		select {
		case req := <-sess.Clarifications().Notify():
			stop()
			answer, err := chooseOption(req.Prompt, req.Options)
			if err != nil {
				sess.Cancel()
				<-done
				return err
			}
			if err := sess.Submit(answer); err != nil {
				pterm.Warning.Println(err.Error())
			}
			stop = startSpinner("Thinking...")
		case <-done:
			stop()
			st, err := sess.Result()
			renderOutcome(bridge.OutcomeOf(st, err), opts)
			if err != nil {
				logger.Debug("run failed", "error", err)
				return errReported
			}
			return nil
		case <-ctx.Done():
			stop()
			sess.Cancel()
			<-done
			return ctx.Err()
		}
	}
}

// askRemote sends question to a querypilot server and follows the session
// until it produces an outcome.
func askRemote(ctx context.Context, addr string, plaintext bool, question string, opts displayOptions) error {
	b := bridge.New()
	if err := b.Connect(ctx, addr, plaintext); err != nil {
		return remoteError(err)
	}
	defer func() { _ = b.Close(ctx) }()

	if _, err := b.Ask(ctx, question); err != nil {
		return remoteError(err)
	}
	events, err := b.Follow(ctx)
	if err != nil {
		return remoteError(err)
	}

	stop := startSpinner("Thinking...")
	defer func() { stop() }()
	for ev := range events {
		switch ev.Type {
		case model.EventClarification:
			if ev.Clarification == nil {
				continue
			}
			stop()
			answer, err := chooseOption(ev.Clarification.Prompt, ev.Clarification.Options)
			if err != nil {
				return err
			}
			reply, err := b.Answer(ctx, answer)
			if err != nil {
				return remoteError(err)
			}
			if !reply.Accepted {
				pterm.Warning.Println(reply.Message)
			}
			stop = startSpinner("Thinking...")
		case model.EventResult:
			stop()
			if ev.Outcome == nil {
				continue
			}
			if ev.Outcome.FinalOutput == "" && ev.Outcome.Error != "" {
				return remoteError(errors.New(ev.Outcome.Error))
			}
			renderOutcome(*ev.Outcome, opts)
			if ev.Outcome.Error != "" {
				return errReported
			}
			return nil
		}
	}

	stop()
	o, err := b.Result(ctx, true)
	if err != nil {
		return remoteError(err)
	}
	renderOutcome(o, opts)
	return nil
}

func remoteError(err error) error {
	fmt.Println()
	fmt.Println(logging.FormatStreamError(err.Error()))
	fmt.Println()
	return errReported
}

func addDisplayFlags(cmd *cobra.Command, opts *displayOptions) {
	cmd.Flags().BoolVar(&opts.showSQL, "show-sql", false, "Print the SQL that was run")
	cmd.Flags().BoolVar(&opts.details, "details", false, "Print processing details")
	cmd.Flags().BoolVar(&opts.rows, "rows", false, "Print the result rows as a table")
}

func init() {
	rootCmd.AddCommand(askCmd)
	addDisplayFlags(askCmd, &askDisplay)
	askCmd.Flags().StringVar(&remoteAddr, "remote", "", "Address of a querypilot server to ask instead of the local database")
	askCmd.Flags().BoolVar(&remotePlaintext, "plaintext", false, "Connect to --remote without TLS")
}
