// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"strings"

	"github.com/pterm/pterm"
)

// GRPCErrorType represents the category of a bridge error.
type GRPCErrorType int

const (
	GRPCErrorUnknown GRPCErrorType = iota
	GRPCErrorNetwork
	GRPCErrorTimeout
	GRPCErrorUnavailable
	GRPCErrorSessionGone
	GRPCErrorBusy
)

// ParseGRPCError categorizes a bridge error message of the form
// "Code: message".
func ParseGRPCError(errMsg string) GRPCErrorType {
	lower := strings.ToLower(errMsg)

	switch {
	case strings.Contains(lower, "rst_stream"), strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "connection refused"):
		return GRPCErrorNetwork
	case strings.HasPrefix(lower, "notfound"):
		return GRPCErrorSessionGone
	case strings.HasPrefix(lower, "failedprecondition"):
		return GRPCErrorBusy
	case strings.HasPrefix(lower, "unavailable"):
		return GRPCErrorUnavailable
	case strings.Contains(lower, "deadline"), strings.Contains(lower, "timeout"):
		return GRPCErrorTimeout
	}
	return GRPCErrorUnknown
}

// FormatStreamError formats a bridge error for the terminal.
func FormatStreamError(errMsg string) string {
	var b strings.Builder

	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Remote assistant error"))
	b.WriteString("\n\n")

	switch ParseGRPCError(errMsg) {
	case GRPCErrorNetwork:
		b.WriteString("The connection to the querypilot server was interrupted.\n")
		b.WriteString("Check that `querypilot serve` is running and reachable.\n")
	case GRPCErrorTimeout:
		b.WriteString("The querypilot server took too long to respond.\n")
	case GRPCErrorUnavailable:
		b.WriteString("The querypilot server is not accepting connections right now.\n")
	case GRPCErrorSessionGone:
		b.WriteString("The session expired on the server. Ask the question again.\n")
	case GRPCErrorBusy:
		b.WriteString("This session is still answering a previous question.\n")
	default:
		b.WriteString("The remote session ended unexpectedly.\n")
	}

	if strings.TrimSpace(errMsg) != "" {
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(errMsg)))
	}
	return b.String()
}
