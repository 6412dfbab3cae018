package capture

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/darcy0x/nethawk/internal/consent"
	"github.com/darcy0x/nethawk/internal/finding"
	"github.com/darcy0x/nethawk/internal/module"
	"github.com/darcy0x/nethawk/internal/session"
	"github.com/darcy0x/nethawk/internal/toolkit"
	"github.com/darcy0x/nethawk/internal/wireless"
)

const targetBSSID = "aa:bb:cc:dd:ee:ff"

type fakeRunner struct {
	mu      sync.Mutex
	specs   []toolkit.RunSpec
	handler func(spec toolkit.RunSpec) (*toolkit.Invocation, error)
}

func (r *fakeRunner) Run(ctx context.Context, spec toolkit.RunSpec) (*toolkit.Invocation, error) {
	r.mu.Lock()
	r.specs = append(r.specs, spec)
	r.mu.Unlock()
	return r.handler(spec)
}

func (r *fakeRunner) ran(tool string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, spec := range r.specs {
		if spec.Tool == tool {
			n++
		}
	}
	return n
}

type fakeTools struct{ available map[string]bool }

func (f *fakeTools) Available(name string) bool { return f.available[name] }
func (f *fakeTools) Describe(name string) toolkit.Descriptor {
	return toolkit.Descriptor{Name: name, Path: "/usr/sbin/" + name, Available: f.available[name]}
}
func (f *fakeTools) Missing(names ...string) []string {
	var missing []string
	for _, name := range names {
		if !f.available[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

func allTools() *fakeTools {
	return &fakeTools{available: map[string]bool{
		toolkit.ToolAirodump: true,
		toolkit.ToolAireplay: true,
		toolkit.ToolIW:       true,
		toolkit.ToolIP:       true,
	}}
}

func testSession(t *testing.T) *session.Session {
	t.Helper()
	store, err := session.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	mgr, err := session.NewManager(t.TempDir(), store)
	if err != nil {
		t.Fatalf("creating manager: %v", err)
	}
	sess, err := mgr.Open(context.Background(), "", true)
	if err != nil {
		t.Fatalf("opening session: %v", err)
	}
	return sess
}

// captureHandler answers the monitor mode sequence and simulates
// airodump by writing the capture artifact.
func captureHandler() func(spec toolkit.RunSpec) (*toolkit.Invocation, error) {
	return func(spec toolkit.RunSpec) (*toolkit.Invocation, error) {
		switch spec.Tool {
		case toolkit.ToolAirodump:
			if prefix := flagValue(spec.Args, "--write"); prefix != "" {
				if err := os.WriteFile(prefix+"-01.cap", []byte("pcap"), 0o644); err != nil {
					return nil, err
				}
			}
			return &toolkit.Invocation{Tool: spec.Tool, Stop: toolkit.StopCancelled}, nil
		case toolkit.ToolIW:
			if len(spec.Args) >= 3 && spec.Args[2] == "info" {
				return &toolkit.Invocation{Tool: spec.Tool, Stdout: []byte("\ttype managed\n")}, nil
			}
			return &toolkit.Invocation{Tool: spec.Tool}, nil
		default:
			return &toolkit.Invocation{Tool: spec.Tool}, nil
		}
	}
}

func flagValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func completeObservation() []wireless.HandshakeObservation {
	return []wireless.HandshakeObservation{{
		BSSID:    targetBSSID,
		Station:  "de:ad:be:ef:00:01",
		Messages: []int{1, 2, 3, 4},
		Complete: true,
	}}
}

func newModule(t *testing.T, runner *fakeRunner, gate consent.Gate,
	verify func(string) ([]wireless.HandshakeObservation, error)) (*Module, *session.Session) {
	t.Helper()
	tools := allTools()
	sess := testSession(t)
	mod := New(Deps{
		Runner:   runner,
		Tools:    tools,
		Wireless: wireless.NewManager(runner, tools, nil),
		Locks:    wireless.NewLockTable(),
		Session:  sess,
		Gate:     gate,
		Verify:   verify,
	})
	return mod, sess
}

func fastOpts(deauth bool) module.Options {
	return module.Options{
		Window:         80 * time.Millisecond,
		VerifyAttempts: 2,
		Deauth:         deauth,
		DeauthBursts:   2,
		DeauthCount:    3,
		DeauthInterval: time.Millisecond,
	}
}

func TestRun_CapturesHandshake(t *testing.T) {
	runner := &fakeRunner{handler: captureHandler()}
	mod, sess := newModule(t, runner, &consent.Static{Lab: true},
		func(string) ([]wireless.HandshakeObservation, error) { return completeObservation(), nil })

	res, err := mod.Run(context.Background(),
		module.Target{Interface: "wlan0", BSSID: targetBSSID, ESSID: "LabNet", Channel: 6},
		fastOpts(true))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateDone {
		t.Fatalf("state = %s (%s), want done", res.State, res.Reason)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(res.Findings))
	}
	f := res.Findings[0]
	if f.Kind != finding.KindHandshake || f.Handshake == nil || !f.Handshake.Complete {
		t.Errorf("finding = %+v", f)
	}
	if f.Handshake.BSSID != targetBSSID {
		t.Errorf("handshake bssid = %q", f.Handshake.BSSID)
	}
	if runner.ran(toolkit.ToolAireplay) == 0 {
		t.Error("deauth bursts were requested but aireplay never ran")
	}

	var states []module.State
	for _, tr := range res.Transitions {
		states = append(states, tr.To)
	}
	want := []module.State{
		module.StateConsentCheck,
		module.StateMonitorModeEnabling,
		module.StateCapturing,
		module.StateDeauthBurst,
		module.StateHandshakeVerification,
		module.StateDone,
	}
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, states[i], want[i])
		}
	}

	stored, err := sess.Findings(context.Background())
	if err != nil {
		t.Fatalf("loading findings: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored findings = %d, want 1", len(stored))
	}
}

func TestRun_ConsentDeniedCancelsBeforeAnyInvocation(t *testing.T) {
	runner := &fakeRunner{handler: captureHandler()}
	mod, _ := newModule(t, runner, &consent.Static{Lab: false},
		func(string) ([]wireless.HandshakeObservation, error) { return completeObservation(), nil })

	res, err := mod.Run(context.Background(),
		module.Target{Interface: "wlan0", BSSID: targetBSSID}, fastOpts(true))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateCancelled {
		t.Fatalf("state = %s, want cancelled (consent denial is not a failure)", res.State)
	}
	if runner.ran(toolkit.ToolAireplay) != 0 {
		t.Error("aireplay must never run after consent denial")
	}
	if len(runner.specs) != 0 {
		t.Errorf("no tool may run after consent denial, got %d invocations", len(runner.specs))
	}
}

func TestRun_WithoutDeauthSkipsGateAndBursts(t *testing.T) {
	runner := &fakeRunner{handler: captureHandler()}
	// The denying gate is irrelevant when no traffic injection happens.
	mod, _ := newModule(t, runner, &consent.Static{Lab: false},
		func(string) ([]wireless.HandshakeObservation, error) { return completeObservation(), nil })

	res, err := mod.Run(context.Background(),
		module.Target{Interface: "wlan0", BSSID: targetBSSID}, fastOpts(false))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateDone {
		t.Fatalf("state = %s (%s), want done", res.State, res.Reason)
	}
	if runner.ran(toolkit.ToolAireplay) != 0 {
		t.Error("aireplay ran without deauth being requested")
	}
}

func TestRun_NoHandshakeIsSpecificFailure(t *testing.T) {
	runner := &fakeRunner{handler: captureHandler()}
	partial := []wireless.HandshakeObservation{{
		BSSID:    targetBSSID,
		Station:  "de:ad:be:ef:00:01",
		Messages: []int{1},
		Complete: false,
	}}
	mod, _ := newModule(t, runner, &consent.Static{Lab: true},
		func(string) ([]wireless.HandshakeObservation, error) { return partial, nil })

	res, err := mod.Run(context.Background(),
		module.Target{Interface: "wlan0", BSSID: targetBSSID}, fastOpts(false))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateFailed {
		t.Fatalf("state = %s, want failed", res.State)
	}
	if res.Reason != "no handshake captured" {
		t.Errorf("reason = %q, want the specific no-handshake reason", res.Reason)
	}
	if len(res.Findings) != 0 {
		t.Errorf("findings = %d, want 0", len(res.Findings))
	}
}

func TestRun_CancellationDuringCaptureIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{}
	runner.handler = func(spec toolkit.RunSpec) (*toolkit.Invocation, error) {
		if spec.Tool == toolkit.ToolAirodump {
			cancel()
		}
		return captureHandler()(spec)
	}
	mod, _ := newModule(t, runner, &consent.Static{Lab: true},
		func(string) ([]wireless.HandshakeObservation, error) { return nil, nil })

	res, err := mod.Run(ctx,
		module.Target{Interface: "wlan0", BSSID: targetBSSID}, fastOpts(false))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateCancelled {
		t.Fatalf("state = %s, want cancelled", res.State)
	}
}

func TestRun_InvalidTargetsAreRequestErrors(t *testing.T) {
	mod, _ := newModule(t, &fakeRunner{handler: captureHandler()}, &consent.Static{Lab: true}, nil)

	tests := []module.Target{
		{},                                      // no interface
		{Interface: "wlan0"},                    // no BSSID
		{Interface: "wlan0", BSSID: "invalid"},  // bad BSSID
		{Interface: "wlan0", BSSID: targetBSSID, Channel: 15}, // bad channel
	}
	for _, target := range tests {
		if _, err := mod.Run(context.Background(), target, module.Options{}); err == nil {
			t.Errorf("target %+v accepted", target)
		}
	}
}

func TestRun_MissingAireplayOnlyMattersWithDeauth(t *testing.T) {
	tools := allTools()
	tools.available[toolkit.ToolAireplay] = false
	runner := &fakeRunner{handler: captureHandler()}
	sess := testSession(t)
	mod := New(Deps{
		Runner:   runner,
		Tools:    tools,
		Wireless: wireless.NewManager(runner, tools, nil),
		Locks:    wireless.NewLockTable(),
		Session:  sess,
		Gate:     &consent.Static{Lab: true},
		Verify:   func(string) ([]wireless.HandshakeObservation, error) { return completeObservation(), nil },
	})

	res, err := mod.Run(context.Background(),
		module.Target{Interface: "wlan0", BSSID: targetBSSID}, fastOpts(true))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateFailed || !strings.Contains(res.Reason, "aireplay-ng") {
		t.Fatalf("state = %s (%s), want failed naming aireplay-ng", res.State, res.Reason)
	}

	res, err = mod.Run(context.Background(),
		module.Target{Interface: "wlan0", BSSID: targetBSSID}, fastOpts(false))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateDone {
		t.Errorf("state = %s (%s), want done without deauth", res.State, res.Reason)
	}
}
