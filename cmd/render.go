// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"querypilot/cli/internal/bridge/model"
	"querypilot/cli/internal/summarize"
	"querypilot/cli/internal/terminal"

	"atomicgo.dev/cursor"
	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"
)

// stdin is shared so the shell loop and fallback prompts see the same
// buffered input.
var stdin = bufio.NewReader(os.Stdin)

// displayOptions select the optional blocks printed under an answer.
type displayOptions struct {
	showSQL bool
	details bool
	rows    bool
}

var (
	headingStyle = pterm.NewStyle(pterm.FgLightCyan, pterm.Bold)
	labelStyle   = pterm.NewStyle(pterm.FgLightCyan)
	valueStyle   = pterm.NewStyle(pterm.FgCyan, pterm.Bold)
)

// renderOutcome prints the answer and whichever extras opts ask for.
func renderOutcome(o model.Outcome, opts displayOptions) {
	pterm.Println()
	answer := o.FinalOutput
	if answer == "" {
		answer = "No answer was produced."
	}
	pterm.DefaultBox.
		WithTitle(headingStyle.Sprint("Answer")).
		WithPadding(1).
		Println(answer)

	if opts.showSQL && o.ValidatedSQL != "" {
		pterm.Println()
		pterm.Println(headingStyle.Sprint("SQL"))
		pterm.Println(pterm.NewStyle(pterm.FgLightBlue).Sprint(o.ValidatedSQL))
	}

	if opts.details && o.Details != "" {
		pterm.Println()
		pterm.Println(headingStyle.Sprint("Processing details"))
		var items []pterm.BulletListItem
		for _, line := range strings.Split(o.Details, "\n") {
			items = append(items, pterm.BulletListItem{Level: 0, Text: line})
		}
		_ = pterm.DefaultBulletList.WithItems(items).Render()
	}

	if opts.rows && len(o.Columns) > 0 {
		pterm.Println()
		renderTable(os.Stdout, o.Columns, o.Rows)
	}
	pterm.Println()
}

// renderTable writes a result set as a bordered table.
func renderTable(w io.Writer, columns []string, rows [][]any) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetBorder(true)
	table.SetHeader(columns)
	for _, r := range rows {
		cells := make([]string, len(columns))
		for i := range cells {
			if i < len(r) {
				cells[i] = summarize.FormatValue(r[i])
			}
		}
		table.Append(cells)
	}
	table.SetCaption(true, fmt.Sprintf("%d row(s)", len(rows)))
	table.Render()
}

// chooseOption asks the user to pick one of options and returns the option
// number. Without a terminal it reads a line instead, which may be a number
// or the option text.
func chooseOption(prompt string, options []string) (string, error) {
	if len(options) == 0 {
		pterm.Println(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint(prompt))
		pterm.Print("Your answer: ")
		return readLine()
	}

	if terminal.Interactive() {
		picked, err := pterm.DefaultInteractiveSelect.
			WithOptions(options).
			WithDefaultText(prompt).
			WithMaxHeight(len(options)).
			Show()
		if err != nil {
			return "", err
		}
		for i, o := range options {
			if o == picked {
				return strconv.Itoa(i + 1), nil
			}
		}
		return picked, nil
	}

	pterm.Println(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint(prompt))
	for _, o := range options {
		pterm.Println("  " + o)
	}
	pterm.Print("Your choice: ")
	return readLine()
}

func readLine() (string, error) {
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// startSpinner shows a spinner with the cursor hidden. Outside a terminal
// it does nothing. The returned stop function is idempotent.
func startSpinner(text string) func() {
	if !terminal.Interactive() {
		return func() {}
	}
	cursor.Hide()
	sp, err := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start(text)
	if err != nil {
		cursor.Show()
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = sp.Stop()
			cursor.Show()
		})
	}
}
