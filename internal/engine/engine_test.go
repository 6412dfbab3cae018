package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/darcy0x/nethawk/internal/config"
	"github.com/darcy0x/nethawk/internal/module"
	"github.com/darcy0x/nethawk/internal/oui"
	"github.com/darcy0x/nethawk/internal/session"
	"github.com/darcy0x/nethawk/internal/toolkit"
)

const sampleCSV = `BSSID, First time seen, Last time seen, channel, Speed, Privacy, Cipher, Authentication, Power, # beacons, # IV, LAN IP, ID-length, ESSID, Key
AA:BB:CC:DD:EE:FF, 2024-01-15 10:00:00, 2024-01-15 10:05:00, 6, 54, WPA2, CCMP, PSK, -42, 120, 0, 0.0.0.0, 8, HomeNet5,

Station MAC, First time seen, Last time seen, Power, # packets, BSSID, Probed ESSIDs
DE:AD:BE:EF:00:01, 2024-01-15 10:01:00, 2024-01-15 10:04:00, -50, 310, AA:BB:CC:DD:EE:FF, HomeNet5
`

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

// airodumpHandler answers the monitor mode iw/ip sequence and simulates
// a capture by writing the CSV at the --write prefix.
func airodumpHandler(csv string) func(spec toolkit.RunSpec) (*toolkit.Invocation, error) {
	return func(spec toolkit.RunSpec) (*toolkit.Invocation, error) {
		switch spec.Tool {
		case toolkit.ToolIW:
			if len(spec.Args) >= 3 && spec.Args[2] == "info" {
				return &toolkit.Invocation{Tool: spec.Tool, Stdout: []byte("\ttype managed\n")}, nil
			}
			return &toolkit.Invocation{Tool: spec.Tool}, nil
		case toolkit.ToolAirodump:
			for i, arg := range spec.Args {
				if arg == "--write" && i+1 < len(spec.Args) {
					if err := os.WriteFile(spec.Args[i+1]+"-01.csv", []byte(csv), 0o644); err != nil {
						return nil, err
					}
				}
			}
			return &toolkit.Invocation{Tool: spec.Tool, Stop: toolkit.StopCancelled}, nil
		default:
			return &toolkit.Invocation{Tool: spec.Tool}, nil
		}
	}
}

func testManager(t *testing.T) *session.Manager {
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
	return mgr
}

func TestRun_RoutesPassiveToCompletion(t *testing.T) {
	runner := &fakeRunner{handler: airodumpHandler(sampleCSV)}
	tools := &fakeTools{available: map[string]bool{
		toolkit.ToolAirodump: true,
		toolkit.ToolIW:       true,
		toolkit.ToolIP:       true,
	}}
	eng := New(config.Default(), testManager(t),
		WithRunner(runner), WithTools(tools), WithVendors(oui.Disabled{}))

	res, sess, err := eng.Run(context.Background(), Request{
		Module:  module.NamePassive,
		Target:  module.Target{Interface: "wlan0"},
		Options: module.Options{Window: 50 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateDone {
		t.Fatalf("state = %s (%s), want done", res.State, res.Reason)
	}
	if sess == nil || sess.ID == "" {
		t.Fatal("engine must resolve a session")
	}
	if len(res.Findings) != 2 {
		t.Errorf("findings = %d, want 2", len(res.Findings))
	}

	// A second run against the same session accumulates in one store.
	res2, sess2, err := eng.Run(context.Background(), Request{
		Module:    module.NamePassive,
		Target:    module.Target{Interface: "wlan0"},
		Options:   module.Options{Window: 50 * time.Millisecond},
		SessionID: sess.ID,
	})
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if sess2.ID != sess.ID {
		t.Errorf("session = %s, want reuse of %s", sess2.ID, sess.ID)
	}
	if res2.State != module.StateDone {
		t.Fatalf("second run state = %s", res2.State)
	}
	stored, err := sess2.Findings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 4 {
		t.Errorf("stored findings = %d, want 4 (two runs of two)", len(stored))
	}
}

func TestRun_UnknownModuleIsAnError(t *testing.T) {
	eng := New(config.Default(), testManager(t),
		WithRunner(&fakeRunner{handler: airodumpHandler("")}),
		WithTools(&fakeTools{}))

	if _, _, err := eng.Run(context.Background(), Request{Module: "exfiltrate"}); err == nil {
		t.Fatal("expected error for unknown module")
	}
}

func TestWithDefaults_FillsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.Window = 90 * time.Second
	cfg.Active.Ports = "1-1024"
	cfg.Crack.Strategy = config.StrategyExhaustive
	eng := New(cfg, testManager(t), WithTools(&fakeTools{}),
		WithRunner(&fakeRunner{handler: airodumpHandler("")}))

	opts := eng.withDefaults(module.Options{})
	if opts.Window != 90*time.Second {
		t.Errorf("window = %s", opts.Window)
	}
	if opts.Ports != "1-1024" {
		t.Errorf("ports = %q", opts.Ports)
	}
	if opts.Strategy != config.StrategyExhaustive {
		t.Errorf("strategy = %q", opts.Strategy)
	}
	if opts.DeauthCount != cfg.Capture.DeauthCount || opts.VerifyAttempts != cfg.Capture.VerifyAttempts {
		t.Errorf("capture defaults not applied: %+v", opts)
	}

	// Explicit values survive.
	opts = eng.withDefaults(module.Options{Window: time.Second, Ports: "443"})
	if opts.Window != time.Second || opts.Ports != "443" {
		t.Errorf("explicit options overwritten: %+v", opts)
	}
}

func TestUsableSubset(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "rockyou.txt")
	if err := os.WriteFile(good, []byte("password\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got := usableSubset([]string{good, empty, filepath.Join(dir, "gone.txt"), dir})
	if len(got) != 1 || got[0] != good {
		t.Errorf("usableSubset = %v, want [%s]", got, good)
	}
}
