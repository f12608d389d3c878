package taskcoord

import "errors"

// Cancelled is resolved through a Handle when a node is invalidated, or when
// the host task observes cancellation before returning. The library never
// logs Cancelled as an error.
var Cancelled = errors.New("taskcoord: cancelled")

// OperationError wraps an error raised by a submitted operation and
// forwards it verbatim through the handle. Unwrap returns the original
// error so that errors.Is/As see through the wrapper.
type OperationError struct {
	Err error
}

func (e *OperationError) Error() string {
	if e.Err == nil {
		return "taskcoord: operation error"
	}
	return e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// ProgrammingError indicates misuse of the library's contracts, such as
// calling TaskNode.AddNext on a node whose next pointer is already set.
// It is never surfaced through a Handle; callers that hit one should treat
// it as a bug to fix, not a runtime condition to recover from. Detecting
// one is handled by panicking with this type, not by returning it.
type ProgrammingError struct {
	Msg string
}

func (e *ProgrammingError) Error() string {
	return "taskcoord: programming error: " + e.Msg
}

// failProgramming panics with a ProgrammingError after logging it, matching
// the library's fail-loudly policy for misuse.
func failProgramming(logger Logger, msg string) {
	if logger != nil {
		logger.Error(msg)
	}
	panic(&ProgrammingError{Msg: msg})
}
