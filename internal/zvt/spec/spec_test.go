package spec

import (
	"strings"
	"testing"
)

func TestResultMessage(t *testing.T) {
	tests := []struct {
		code byte
		want string
	}{
		{0x00, "success"},
		{0x6C, "abort via timeout or abort key"},
		{0x05, "network or authorization error (code 0x05)"},
		{0x63, "network or authorization error (code 0x63)"},
		{0xFE, "unknown error (code 0xFE)"},
	}

	for _, tt := range tests {
		if got := ResultMessage(tt.code); got != tt.want {
			t.Errorf("ResultMessage(0x%02X) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestIntermediateMessage(t *testing.T) {
	if got := IntermediateMessage(StatusInsertCard); got != "please insert card" {
		t.Errorf("IntermediateMessage(insert card) = %q", got)
	}
	if got := IntermediateMessage(0xE9); !strings.Contains(got, "0xE9") {
		t.Errorf("unknown status should echo the code, got %q", got)
	}
}

func TestCommandName(t *testing.T) {
	if got := CommandName(CmdAuthorization); got != "Authorization" {
		t.Errorf("CommandName(06 01) = %q", got)
	}
	if got := CommandName(0x0699); !strings.Contains(got, "06 99") {
		t.Errorf("unknown command should echo the code, got %q", got)
	}
}
