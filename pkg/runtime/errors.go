package runtime

import (
	"fmt"
	"strings"
)

// ConnectionError is a transient transport failure (timeout, reset,
// temporarily unreachable host). The engine may retry operations that fail
// with it.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error on host %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Transient marks ConnectionError as retryable.
func (e *ConnectionError) Transient() bool { return true }

// AuthError is a fatal authentication failure. It is never retried.
type AuthError struct {
	Host string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for host %s: %v", e.Host, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// classifyDialError wraps an SSH dial failure as AuthError or
// ConnectionError based on the failure mode.
func classifyDialError(host string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "ssh: handshake failed") ||
		strings.Contains(msg, "ssh: unable to authenticate") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "no supported methods remain") {
		return &AuthError{Host: host, Err: err}
	}
	return &ConnectionError{Host: host, Err: err}
}
