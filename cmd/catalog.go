// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"querypilot/cli/internal/catalog"
	"querypilot/cli/internal/database"
	"querypilot/cli/internal/logging"

	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const catalogExamples = 3

// catalogCmd shows what the assistant knows about the database.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the tables, columns and sampled values the assistant uses",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resolveDSN()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		stop := startInlineSpinner(os.Stdout, "reading catalog", spinnerFrames, 100*time.Millisecond)
		conn, err := database.Open(ctx, r, dbOptions())
		if err != nil {
			stop()
			return err
		}
		defer conn.Close()
		b := &catalog.Builder{Conn: conn, SampleLimit: cfg.DB.SampleLimit, Workers: cfg.DB.Workers, Logger: logger}
		cat, err := b.Build(ctx, tables())
		stop()
		if err != nil {
			return err
		}

		pterm.Println(labelStyle.Sprint("→ Database: ") + valueStyle.Sprint(logging.Mask(r.DSN)))
		pterm.Println(labelStyle.Sprint("→ Dialect:  ") + valueStyle.Sprint(conn.Dialect()))
		for _, t := range cat.Tables() {
			pterm.Println()
			pterm.Println(headingStyle.Sprintf("%s (%d sampled values)", t, cat.ValueCount(t)))
			renderCatalogTable(cat, t)
		}
		return nil
	},
}

func renderCatalogTable(cat *catalog.Catalog, t string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Column", "Sampled", "Examples"})
	for _, c := range cat.Columns(t) {
		vals := cat.Values(t, c)
		examples := vals
		if len(examples) > catalogExamples {
			examples = examples[:catalogExamples]
		}
		ex := strings.Join(examples, ", ")
		if len(vals) > catalogExamples {
			ex += fmt.Sprintf(", ... (+%d)", len(vals)-catalogExamples)
		}
		table.Append([]string{c, strconv.Itoa(len(vals)), ex})
	}
	table.Render()
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
