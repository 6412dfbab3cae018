// Package parse converts raw tool output into typed records. Parsers
// are defensive: external tools produce truncated, malformed, or
// version-skewed output under normal operation, so every parser
// tolerates garbage rows, salvages what it can, and reports an
// IncompleteError instead of failing when nothing is recognizable.
//
// Each parser targets one tool and one output mode; the module that ran
// the invocation chooses the parser, there is no content sniffing.
package parse

import "fmt"

// IncompleteError signals that tool output matched no known shape. The
// caller treats it as a warning: whatever partial records the parser
// salvaged are still returned alongside it.
type IncompleteError struct {
	Tool   string
	Reason string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("parse: %s output incomplete: %s", e.Tool, e.Reason)
}

func incomplete(tool, format string, args ...any) *IncompleteError {
	return &IncompleteError{Tool: tool, Reason: fmt.Sprintf(format, args...)}
}
