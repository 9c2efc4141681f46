// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"fmt"
	"strings"

	"querypilot/cli/internal/sqlcheck"
	"querypilot/cli/internal/sqlexec"
)

// Details renders the processing summary shown under an answer.
func Details(st *State) string {
	var lines []string

	switch st.ValidationStatus {
	case sqlcheck.StatusValid:
		lines = append(lines, "Validation: SQL query validated successfully")
	case sqlcheck.StatusCorrected:
		lines = append(lines, "Validation: SQL query was corrected automatically")
		for _, c := range st.Corrections {
			lines = append(lines, "Correction: "+c.String())
		}
	case sqlcheck.StatusInvalid:
		lines = append(lines, "Validation: invalid ("+st.ValidationError+")")
	default:
		lines = append(lines, "Validation: not run")
	}

	switch {
	case st.ExecutionStatus == sqlexec.StatusSuccess:
		lines = append(lines, fmt.Sprintf("Execution: Successfully retrieved %d records", len(st.Rows())))
	case st.ExecutionError != "":
		lines = append(lines, "Execution: "+st.ExecutionError)
	default:
		lines = append(lines, "Execution: not run")
	}

	route := string(st.RouteDecision)
	if route == "" {
		route = "unknown"
	}
	lines = append(lines, "Route: "+route)

	if st.Resolved.Intent != "" || len(st.Resolved.Entities) > 0 {
		intent := st.Resolved.Intent
		if intent == "" {
			intent = "Not identified"
		}
		lines = append(lines, "Intent: "+intent)
		if len(st.Resolved.Entities) > 0 {
			lines = append(lines, "Entities: "+strings.Join(st.Resolved.Entities, ", "))
		}
	}
	return strings.Join(lines, "\n")
}
