package logging

import (
	"strings"
	"testing"
)

func TestParseGRPCError(t *testing.T) {
	tests := []struct {
		msg  string
		want GRPCErrorType
	}{
		{"Unavailable: connection refused", GRPCErrorNetwork},
		{"Unavailable: server shutting down", GRPCErrorUnavailable},
		{"NotFound: unknown session \"abc\"", GRPCErrorSessionGone},
		{"FailedPrecondition: a question is already being answered", GRPCErrorBusy},
		{"DeadlineExceeded: context deadline exceeded", GRPCErrorTimeout},
		{"Internal: boom", GRPCErrorUnknown},
	}
	for _, tt := range tests {
		if got := ParseGRPCError(tt.msg); got != tt.want {
			t.Errorf("ParseGRPCError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestFormatStreamErrorMasksDetails(t *testing.T) {
	out := FormatStreamError("Internal: dial postgres://u:secret@h/db")
	if strings.Contains(out, "secret") {
		t.Fatalf("FormatStreamError leaked a password: %q", out)
	}
	if !strings.Contains(out, "remote session ended") {
		t.Fatalf("FormatStreamError() = %q", out)
	}
}
