// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"strings"

	"querypilot/cli/internal/dsn"
	"querypilot/cli/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// dbinfoCmd displays the effective database connection string with the
// password masked, and where it came from.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show current database connection string",
	Long: `The dbinfo command displays the database connection string (DSN) querypilot
would use, with credentials masked, and whether it came from a flag, the
environment (QUERYPILOT_DSN, DATABASE_URL) or the OS keychain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resolveDSN()
		if err != nil {
			pterm.Println("⚠️  No database connection configured")
			pterm.Println("   Please run: querypilot connect")
			return nil
		}

		pterm.Println("Using DSN from " + sourceLabel(r.Source))
		pterm.Println()
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithPadding(1).
			Println(logging.Mask(r.DSN))
		pterm.Println()
		pterm.Println(labelStyle.Sprint("→ Kind:   ") + valueStyle.Sprint(string(r.Kind)))
		if name := dsn.DatabaseName(r.DSN); name != "" {
			pterm.Println(labelStyle.Sprint("→ Name:   ") + valueStyle.Sprint(name))
		}
		pterm.Println(labelStyle.Sprint("→ Tables: ") + valueStyle.Sprint(strings.Join(tables(), ", ")))
		pterm.Println()
		pterm.Println("To update this connection, run: querypilot connect")
		return nil
	},
}

func sourceLabel(s dsn.Source) string {
	switch s {
	case dsn.SourceFlag:
		return "command-line flag"
	case dsn.SourceEnv:
		return "environment variable"
	case dsn.SourceKeychain:
		return "OS keychain"
	}
	return string(s)
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
}
