package engine

import "fmt"

// RunError is the one error type Run ever returns: every failure a guest
// program can trigger — an unsupported opcode, a divide by zero, a null
// dereference, an mmap failure — surfaces as one of these, so cmd/rv64ir
// has exactly one shape to format. File-load errors come from pkg/loader
// before an Engine exists and are not wrapped. See SPEC_FULL.md §7.
type RunError struct {
	msg   string
	cause error
}

// Error returns the human-readable message cmd/rv64ir prints verbatim
// after "Error: ". When RunError wraps a cause, the cause's own message
// already carries the detail (pkg/errors-wrapped), so it's returned as-is
// rather than double-prefixed.
func (e *RunError) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return e.msg
}

// Unwrap exposes the cause for errors.Is/errors.As.
func (e *RunError) Unwrap() error { return e.cause }

func runErrorf(format string, args ...interface{}) error {
	return &RunError{msg: fmt.Sprintf(format, args...)}
}

func wrapRunError(cause error) error {
	if cause == nil {
		return nil
	}
	if re, ok := cause.(*RunError); ok {
		return re
	}
	return &RunError{cause: cause}
}
