package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransientError marks a transport failure worth retrying: timeout,
// rate-limit response, connection error. Anything else is permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient inference error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// MalformedOutputError means the provider answered but not in the shape the
// prompt demanded. Never retried: a well-formed-but-wrong response will not
// fix itself, retrying it only spends budget.
type MalformedOutputError struct {
	Response string
	Err      error
}

func (e *MalformedOutputError) Error() string {
	resp := e.Response
	if len(resp) > 256 {
		resp = resp[:256] + fmt.Sprintf("... [truncated, total_length=%d]", len(e.Response))
	}
	return fmt.Sprintf("malformed inference output: %v (response: %s)", e.Err, resp)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// Malformed wraps a parse failure with the offending response text.
func Malformed(response string, err error) error {
	return &MalformedOutputError{Response: response, Err: err}
}

// IsMalformed reports whether err is a malformed-output failure.
func IsMalformed(err error) bool {
	var me *MalformedOutputError
	return errors.As(err, &me)
}
