package toolkit

import (
	"fmt"
	"time"
)

// SpawnError reports that an external tool could not be started at all:
// the binary is missing, not executable, or the process never forked.
// A nonzero exit from a started tool is never a SpawnError.
type SpawnError struct {
	Tool string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("toolkit: spawn %s: %v", e.Tool, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutExceededError reports that an invocation outlived its time bound
// and the runner terminated its process group. The partial Invocation
// record is still returned alongside this error.
type TimeoutExceededError struct {
	Tool    string
	Timeout time.Duration
}

func (e *TimeoutExceededError) Error() string {
	return fmt.Sprintf("toolkit: %s exceeded %s timeout", e.Tool, e.Timeout)
}
