package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotConfigured is returned by provider constructors when required
// credentials are absent. Callers hit it at startup, never mid-scenario.
var ErrNotConfigured = errors.New("llm: provider not configured")

// InvocationError wraps a failed model call with the provider name so
// multi-provider runs can attribute failures.
type InvocationError struct {
	Provider string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("llm: %s: %v", e.Provider, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err stems from a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
