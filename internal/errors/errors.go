package errors

// Typed error kinds for the ZVT engine

import (
	"errors"
	"fmt"
)

// ConnectionError covers socket creation and I/O failures, unexpected
// end-of-stream and writes on a torn-down connection.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("connection error during %s", e.Op)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError is raised when the connect deadline is exceeded or the
// mandatory initial ACK does not arrive in time. An in-loop read timeout
// is not an error and never produces this type.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("timeout during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("timeout during %s", e.Op)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ProtocolError is raised when the terminal rejects a command with NACK.
type ProtocolError struct {
	Command string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("protocol error for %s: %s", e.Command, e.Message)
	}
	return fmt.Sprintf("protocol error: %s", e.Message)
}

// ValidationError is raised before any encoding occurs: non-positive
// amounts, out-of-range BCD inputs, counters outside their encodable range.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Connection wraps err into a ConnectionError.
func Connection(op string, err error) error {
	return &ConnectionError{Op: op, Err: err}
}

// Timeout wraps err into a TimeoutError.
func Timeout(op string, err error) error {
	return &TimeoutError{Op: op, Err: err}
}

// Protocol builds a ProtocolError.
func Protocol(command, message string) error {
	return &ProtocolError{Command: command, Message: message}
}

// Validation builds a ValidationError.
func Validation(field, format string, v ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, v...)}
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
