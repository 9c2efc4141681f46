// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for querypilot.
// It implements the subcommands for asking questions, inspecting the
// catalog, storing credentials and serving sessions to remote clients,
// using the Cobra CLI framework and a pterm terminal UI.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"querypilot/cli/internal/config"
	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	showVersion bool
	verbose     bool

	cfg    config.Config
	logger = slog.New(slog.DiscardHandler)
)

// errReported marks a failure whose message was already shown to the user.
var errReported = errors.New("reported")

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "querypilot",
	Short:         "Ask questions about your database in plain English",
	Long:          `querypilot turns natural-language questions into validated, read-only SQL, runs them and summarizes the result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		logger = logging.New(os.Stderr, cfg.LogLevel, verbose)
		slog.SetDefault(logger)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("querypilot %s (commit %s, built %s)\n", Version, Commit, Date)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application. Every error leaves as a user message.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, present(err))
		}
		os.Exit(1)
	}
}

// present converts err into the line shown to the user.
func present(err error) string {
	if qerrors.IsKind(err, qerrors.InvalidConfig) {
		msg := strings.TrimPrefix(err.Error(), string(qerrors.InvalidConfig)+": ")
		return "Configuration problem: " + logging.Mask(msg)
	}
	return pipeline.UserMessage(err)
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
