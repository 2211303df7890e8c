package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestConnectionErrorUnwrap(t *testing.T) {
	err := Connection("read", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Connection() does not wrap the underlying error")
	}

	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("errors.As failed for ConnectionError")
	}
	if ce.Op != "read" {
		t.Errorf("Op = %q, want %q", ce.Op, "read")
	}
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain timeout", Timeout("await ACK", nil), true},
		{"wrapped timeout", fmt.Errorf("authorize: %w", Timeout("await ACK", nil)), true},
		{"connection error", Connection("dial", io.EOF), false},
		{"nil-ish validation", Validation("amount", "must be positive"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationMessage(t *testing.T) {
	err := Validation("hour", "value %d out of range", 25)
	want := "invalid hour: value 25 out of range"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !IsValidation(err) {
		t.Errorf("IsValidation() = false, want true")
	}
}
