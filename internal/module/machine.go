package module

import (
	"fmt"
	"time"
)

// State names one step of a module workflow. Every module shares the
// three terminal states; the working states belong to specific modules.
type State string

const (
	StateIdle State = "idle"

	// Wireless states.
	StateConsentCheck          State = "consent_check"
	StateMonitorModeEnabling   State = "monitor_mode_enabling"
	StateCapturing             State = "capturing"
	StateDeauthBurst           State = "deauth_burst"
	StateHandshakeVerification State = "handshake_verification"

	// Active scan states.
	StateHostDiscovery    State = "host_discovery"
	StatePortScan         State = "port_scan"
	StateServiceDetection State = "service_detection"
	StateVulnScan         State = "vuln_scan"
	StateDNSLookup        State = "dns_lookup"

	// Crack states.
	StateWordlistValidation State = "wordlist_validation"
	StateCracking           State = "cracking"

	StateParsing State = "parsing"

	// Terminal states.
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// Machine tracks a module's progress through its states. States are
// never re-entered once left and nothing moves after a terminal state;
// violating either is a bug in the module, so Machine panics rather
// than returning an error the module would have to invent handling for.
type Machine struct {
	module      string
	current     State
	reason      string
	visited     map[State]bool
	transitions []Transition
	startedAt   time.Time
}

// NewMachine creates a machine in the idle state.
func NewMachine(module string) *Machine {
	return &Machine{
		module:    module,
		current:   StateIdle,
		visited:   map[State]bool{StateIdle: true},
		startedAt: time.Now().UTC(),
	}
}

// To moves the machine into a working state.
func (m *Machine) To(s State) {
	if s.Terminal() {
		panic(fmt.Sprintf("module %s: terminal state %s requires Done/Fail/Cancel", m.module, s))
	}
	m.move(s, "")
}

// Done ends the run successfully. Reason may carry a short summary,
// e.g. "no live hosts" for an empty but successful active scan.
func (m *Machine) Done(reason string) {
	m.reason = reason
	m.move(StateDone, reason)
}

// Fail ends the run with the specific failure reason.
func (m *Machine) Fail(reason string) {
	m.reason = reason
	m.move(StateFailed, reason)
}

// Cancel ends the run as cancelled: consent denied or the caller's
// context ended. Cancelled is distinct from failed by design.
func (m *Machine) Cancel(reason string) {
	m.reason = reason
	m.move(StateCancelled, reason)
}

func (m *Machine) move(s State, note string) {
	if m.current.Terminal() {
		panic(fmt.Sprintf("module %s: transition %s -> %s after terminal state", m.module, m.current, s))
	}
	if m.visited[s] {
		panic(fmt.Sprintf("module %s: state %s re-entered", m.module, s))
	}
	m.transitions = append(m.transitions, Transition{
		From: m.current,
		To:   s,
		At:   time.Now().UTC(),
		Note: note,
	})
	m.visited[s] = true
	m.current = s
}

// Current returns the machine's current state.
func (m *Machine) Current() State { return m.current }

// Terminal reports whether the run has ended.
func (m *Machine) Terminal() bool { return m.current.Terminal() }

// Result assembles the run record. Calling it before a terminal state
// is a module bug.
func (m *Machine) Result() *Result {
	if !m.current.Terminal() {
		panic(fmt.Sprintf("module %s: Result in non-terminal state %s", m.module, m.current))
	}
	endedAt := m.startedAt
	if n := len(m.transitions); n > 0 {
		endedAt = m.transitions[n-1].At
	}
	return &Result{
		Module:      m.module,
		State:       m.current,
		Reason:      m.reason,
		StartedAt:   m.startedAt,
		EndedAt:     endedAt,
		Transitions: append([]Transition(nil), m.transitions...),
	}
}
