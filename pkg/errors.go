package pkg

import (
	"errors"
	"fmt"
)

// UnresolvedVariableError is returned by the plan builder when a task
// references a variable that is absent from the bindings and has no default.
// It is a build-time error: no remote operation has been issued yet.
type UnresolvedVariableError struct {
	Variable string
	Task     string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("task %q references undefined variable %q", e.Task, e.Variable)
}

// InvalidLoopError is returned by the plan builder when a task declares loop
// items that are not iterable.
type InvalidLoopError struct {
	Task  string
	Value interface{}
}

func (e *InvalidLoopError) Error() string {
	return fmt.Sprintf("task %q has a non-iterable loop value of type %T", e.Task, e.Value)
}

// UnknownTaskTypeError is returned when no handler is registered for a task
// type.
type UnknownTaskTypeError struct {
	Type string
}

func (e *UnknownTaskTypeError) Error() string {
	return fmt.Sprintf("no handler registered for task type %q", e.Type)
}

// ProbeError wraps a failure from a handler's read-only probe.
type ProbeError struct {
	Step string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe failed for step %q: %v", e.Step, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ApplyError wraps a handler-reported mutation failure. Handler-internal
// errors that do not match a known kind are wrapped as ApplyError with the
// original message preserved.
type ApplyError struct {
	Step string
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply failed for step %q: %v", e.Step, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// IsTransient reports whether an error anywhere in the chain marks itself as
// transient (connection timeouts, temporary locks). Transient failures are
// retried with backoff; everything else fails the step immediately.
func IsTransient(err error) bool {
	var t interface{ Transient() bool }
	return errors.As(err, &t) && t.Transient()
}

// TransientError marks an arbitrary error as transient so handlers can
// request a retry for conditions like a held dpkg lock.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string   { return e.Err.Error() }
func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Transient() bool { return true }
