// Package consent gates legally sensitive operations. Modules call the
// gate synchronously before any traffic-injecting invocation; a denial
// maps to the terminal cancelled state, never to failed.
package consent

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Operation identifies what the caller wants to do. The set is closed:
// a module that needs a new sensitive operation adds it here so every
// policy decides about it explicitly.
type Operation string

const (
	// OpDeauth is the 802.11 deauthentication burst during capture.
	OpDeauth Operation = "deauth"

	// OpVulnScan is the active vulnerability stage (nikto, enum4linux),
	// which probes services rather than just observing them.
	OpVulnScan Operation = "vuln_scan"
)

// DeniedError reports that the gate refused an operation. Modules treat
// it as cancellation, not failure.
type DeniedError struct {
	Operation Operation
	Reason    string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("consent: %s denied: %s", e.Operation, e.Reason)
}

// Gate decides whether a sensitive operation may proceed. Authorize is
// a pure decision: it performs no side effects beyond prompting, and
// the target string exists only so prompts can tell the operator what
// exactly they are approving.
type Gate interface {
	Authorize(op Operation, target string) error
}

// Static is a fixed-policy gate. With Lab set every operation is
// pre-authorized, matching the --lab flag for isolated test networks;
// otherwise everything is denied.
type Static struct {
	Lab bool
}

// Compile-time check that Static implements Gate.
var _ Gate = (*Static)(nil)

// Authorize implements Gate.
func (s *Static) Authorize(op Operation, target string) error {
	if s.Lab {
		return nil
	}
	return &DeniedError{Operation: op, Reason: "lab authorization not set and no interactive confirmation available"}
}

// Prompt asks the operator for an explicit yes per operation. Anything
// other than a literal "yes" denies; there is no default-accept.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

var _ Gate = (*Prompt)(nil)

// Authorize implements Gate.
func (p *Prompt) Authorize(op Operation, target string) error {
	fmt.Fprintf(p.Out, "About to run %s against %s.\n", describe(op), target)
	fmt.Fprint(p.Out, "Confirm you are authorized to test this target. Type 'yes' to proceed: ")

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && line == "" {
		return &DeniedError{Operation: op, Reason: "no confirmation given"}
	}
	if strings.TrimSpace(strings.ToLower(line)) != "yes" {
		return &DeniedError{Operation: op, Reason: "operator declined"}
	}
	return nil
}

func describe(op Operation) string {
	switch op {
	case OpDeauth:
		return "a deauthentication attack"
	case OpVulnScan:
		return "an active vulnerability scan"
	default:
		return string(op)
	}
}
