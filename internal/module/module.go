// Package module defines the contract every scan module implements:
// the explicit state machine a workflow steps through, the target and
// option inputs, and the terminal result with enough context to
// reconstruct a run without re-reading raw logs.
package module

import (
	"context"
	"fmt"
	"time"

	"github.com/darcy0x/nethawk/internal/finding"
)

// Module names, used for CLI routing and result labelling.
const (
	NamePassive = "passive"
	NameActive  = "active"
	NameCapture = "capture"
	NameCrack   = "crack"
)

// Module is one reconnaissance workflow. Run drives the module's state
// machine to a terminal state; the returned Result is non-nil whenever
// the machine started, including failed and cancelled runs. The error
// return is reserved for defects in the request itself (bad target,
// unusable options) detected before any state is entered.
type Module interface {
	Name() string
	Run(ctx context.Context, target Target, opts Options) (*Result, error)
}

// Options carries per-run tuning. Each module reads the fields it
// understands; the engine fills defaults from configuration before the
// module sees them.
type Options struct {
	// Window is the wall-clock bound for capture stages. Capture tools
	// run until signalled, so this is enforced by the module, not by
	// the process timeout.
	Window time.Duration

	// Ports is the nmap port specification for the active module.
	Ports string

	// VulnScan enables the active module's vulnerability stage.
	VulnScan bool

	// Domain enables the active module's DNS stage for the given zone.
	Domain string

	// Deauth enables deauthentication bursts during capture.
	Deauth bool

	// DeauthCount is the frame count per burst.
	DeauthCount int

	// DeauthBursts is the number of bursts per verification round.
	DeauthBursts int

	// DeauthInterval paces bursts.
	DeauthInterval time.Duration

	// VerifyAttempts is how many capture/verify rounds run before the
	// capture module gives up.
	VerifyAttempts int

	// Wordlists are the candidate lists for the crack module, in
	// precedence order.
	Wordlists []string

	// WordlistDirs are scanned when Wordlists resolves to nothing.
	WordlistDirs []string

	// Strategy is first-match or exhaustive wordlist handling.
	Strategy string

	// CrackTool selects aircrack-ng or hashcat.
	CrackTool string

	// StageTimeout bounds a single non-capture tool invocation.
	StageTimeout time.Duration
}

// Result is the structured outcome of one module run.
type Result struct {
	Module      string            `json:"module"`
	State       State             `json:"state"`
	Reason      string            `json:"reason,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at"`
	Transitions []Transition      `json:"transitions"`
	Findings    []finding.Finding `json:"findings,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// Counts returns the number of findings per kind, for summaries.
func (r *Result) Counts() map[finding.Kind]int {
	counts := make(map[finding.Kind]int)
	for _, f := range r.Findings {
		counts[f.Kind]++
	}
	return counts
}

// ArtifactMissingError reports that a prior stage's output is absent:
// crack invoked with no capture file, verification with no artifact.
// The module fails immediately with the specific reason.
type ArtifactMissingError struct {
	Module   string
	Artifact string
	Reason   string
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("%s: missing %s: %s", e.Module, e.Artifact, e.Reason)
}
