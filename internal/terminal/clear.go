// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal holds the few raw terminal operations the CLI needs:
// detecting an interactive session, measuring the width and wiping a
// prompt the user just answered.
package terminal

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

const defaultWidth = 80

// Interactive reports whether both stdin and stdout are terminals. Choice
// menus fall back to line input when this is false.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Width returns the terminal width, or 80 when stdout is not a terminal.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

// ClearPreviousLines erases textLength characters of prompt and input that
// were echoed above the cursor, including the line Enter moved to.
func ClearPreviousLines(textLength int) {
	n := linesUsed(textLength, Width()) + 1
	for i := 0; i < n; i++ {
		fmt.Print("\r\x1b[2K")
		if i < n-1 {
			fmt.Print("\x1b[1A")
		}
	}
}

// linesUsed is how many rows textLength characters wrap onto.
func linesUsed(textLength, width int) int {
	if width <= 0 {
		width = defaultWidth
	}
	n := (textLength + width - 1) / width
	if n < 1 {
		return 1
	}
	return n
}
