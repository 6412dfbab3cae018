package active

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/darcy0x/nethawk/internal/consent"
	"github.com/darcy0x/nethawk/internal/finding"
	"github.com/darcy0x/nethawk/internal/module"
	"github.com/darcy0x/nethawk/internal/session"
	"github.com/darcy0x/nethawk/internal/toolkit"
)

const discoveryXML = `<?xml version="1.0"?>
<nmaprun scanner="nmap" args="nmap -sn" start="1700000000" version="7.94">
<host><status state="up" reason="arp-response"/><address addr="192.168.1.10" addrtype="ipv4"/>
<hostnames><hostname name="alpha.lan" type="PTR"/></hostnames></host>
<host><status state="down" reason="no-response"/><address addr="192.168.1.11" addrtype="ipv4"/></host>
<runstats><finished time="1700000002" elapsed="2"/><hosts up="1" down="1" total="2"/></runstats>
</nmaprun>`

const emptyXML = `<?xml version="1.0"?>
<nmaprun scanner="nmap" args="nmap -sn" start="1700000000" version="7.94">
<runstats><finished time="1700000002" elapsed="2"/><hosts up="0" down="0" total="0"/></runstats>
</nmaprun>`

const portsXML = `<?xml version="1.0"?>
<nmaprun scanner="nmap" start="1700000010" version="7.94">
<host><status state="up" reason="syn-ack"/><address addr="192.168.1.10" addrtype="ipv4"/>
<ports>
<port protocol="tcp" portid="22"><state state="open" reason="syn-ack"/><service name="ssh" method="table"/></port>
<port protocol="tcp" portid="80"><state state="open" reason="syn-ack"/><service name="http" method="table"/></port>
<port protocol="tcp" portid="23"><state state="closed" reason="reset"/></port>
</ports></host>
<runstats><finished time="1700000012" elapsed="2"/><hosts up="1" down="0" total="1"/></runstats>
</nmaprun>`

const servicesXML = `<?xml version="1.0"?>
<nmaprun scanner="nmap" start="1700000020" version="7.94">
<host><status state="up" reason="syn-ack"/><address addr="192.168.1.10" addrtype="ipv4"/>
<ports>
<port protocol="tcp" portid="22"><state state="open" reason="syn-ack"/><service name="ssh" product="OpenSSH" version="9.6" method="probed"/></port>
<port protocol="tcp" portid="80"><state state="open" reason="syn-ack"/><service name="http" product="nginx" version="1.25.3" method="probed"/></port>
</ports></host>
<runstats><finished time="1700000022" elapsed="2"/><hosts up="1" down="0" total="1"/></runstats>
</nmaprun>`

const niktoJSON = `{"host":"192.168.1.10","ip":"192.168.1.10","port":"80","banner":"nginx",
"vulnerabilities":[{"id":"999990","OSVDB":"3092","method":"GET","url":"/admin/","msg":"/admin/: This might be interesting."}]}`

const digOutput = `example.com.		300	IN	A	93.184.216.34
example.com.		3600	IN	MX	10 mail.example.com.
`

// fakeRunner records invocations and routes each to a per-tool handler.
type fakeRunner struct {
	mu      sync.Mutex
	specs   []toolkit.RunSpec
	handler func(spec toolkit.RunSpec) (*toolkit.Invocation, error)
}

func (r *fakeRunner) Run(ctx context.Context, spec toolkit.RunSpec) (*toolkit.Invocation, error) {
	r.mu.Lock()
	r.specs = append(r.specs, spec)
	r.mu.Unlock()
	if ctx.Err() != nil {
		return &toolkit.Invocation{Tool: spec.Tool, Stop: toolkit.StopCancelled}, ctx.Err()
	}
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

// fakeTools reports a fixed set of tools as installed.
type fakeTools struct{ available map[string]bool }

func (f *fakeTools) Available(name string) bool { return f.available[name] }
func (f *fakeTools) Describe(name string) toolkit.Descriptor {
	return toolkit.Descriptor{Name: name, Path: "/usr/bin/" + name, Available: f.available[name]}
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
	sess, err := mgr.Open(context.Background(), "", false)
	if err != nil {
		t.Fatalf("opening session: %v", err)
	}
	return sess
}

// nmapHandler answers the three nmap stages by inspecting the args.
func nmapHandler(discovery, ports, services string) func(spec toolkit.RunSpec) (*toolkit.Invocation, error) {
	return func(spec toolkit.RunSpec) (*toolkit.Invocation, error) {
		switch {
		case spec.Tool != toolkit.ToolNmap:
			return &toolkit.Invocation{Tool: spec.Tool}, nil
		case hasArg(spec.Args, "-sn"):
			return &toolkit.Invocation{Tool: spec.Tool, Stdout: []byte(discovery)}, nil
		case hasArg(spec.Args, "-sV"):
			return &toolkit.Invocation{Tool: spec.Tool, Stdout: []byte(services)}, nil
		default:
			return &toolkit.Invocation{Tool: spec.Tool, Stdout: []byte(ports)}, nil
		}
	}
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func newModule(t *testing.T, runner *fakeRunner, tools *fakeTools, gate consent.Gate) (*Module, *session.Session) {
	t.Helper()
	sess := testSession(t)
	mod := New(Deps{
		Runner:  runner,
		Tools:   tools,
		Session: sess,
		Gate:    gate,
	})
	return mod, sess
}

func states(res *module.Result) []module.State {
	var out []module.State
	for _, tr := range res.Transitions {
		out = append(out, tr.To)
	}
	return out
}

func countKind(findings []finding.Finding, kind finding.Kind) int {
	n := 0
	for _, f := range findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

func TestRun_FullScanWithNmap(t *testing.T) {
	runner := &fakeRunner{handler: nmapHandler(discoveryXML, portsXML, servicesXML)}
	tools := &fakeTools{available: map[string]bool{toolkit.ToolNmap: true}}
	mod, sess := newModule(t, runner, tools, nil)

	res, err := mod.Run(context.Background(), module.Target{CIDR: "192.168.1.0/24"}, module.Options{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateDone {
		t.Fatalf("state = %s (%s), want done", res.State, res.Reason)
	}

	want := []module.State{
		module.StateHostDiscovery,
		module.StatePortScan,
		module.StateServiceDetection,
		module.StateParsing,
		module.StateDone,
	}
	got := states(res)
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, got[i], want[i])
		}
	}

	if n := countKind(res.Findings, finding.KindNetworkHost); n != 1 {
		t.Errorf("host findings = %d, want 1 (down hosts are excluded)", n)
	}
	if n := countKind(res.Findings, finding.KindOpenPort); n != 2 {
		t.Errorf("port findings = %d, want 2 (closed ports are excluded)", n)
	}
	if n := countKind(res.Findings, finding.KindService); n != 2 {
		t.Errorf("service findings = %d, want 2", n)
	}
	for _, f := range res.Findings {
		if f.Service != nil && f.Service.Port == 22 && f.Service.Product != "OpenSSH" {
			t.Errorf("service detection output not merged: %+v", f.Service)
		}
	}

	stored, err := sess.Findings(context.Background())
	if err != nil {
		t.Fatalf("loading findings: %v", err)
	}
	if len(stored) != len(res.Findings) {
		t.Errorf("stored = %d, want %d", len(stored), len(res.Findings))
	}
}

func TestRun_NoLiveHostsSkipsRemainingStages(t *testing.T) {
	runner := &fakeRunner{handler: nmapHandler(emptyXML, portsXML, servicesXML)}
	tools := &fakeTools{available: map[string]bool{toolkit.ToolNmap: true}}
	mod, _ := newModule(t, runner, tools, nil)

	res, err := mod.Run(context.Background(), module.Target{CIDR: "10.9.8.0/24"}, module.Options{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateDone {
		t.Fatalf("state = %s (%s), want done", res.State, res.Reason)
	}
	if len(res.Findings) != 0 {
		t.Errorf("findings = %d, want 0", len(res.Findings))
	}
	if runner.ran(toolkit.ToolNmap) != 1 {
		t.Errorf("nmap invocations = %d, want 1 (port scan must be skipped)", runner.ran(toolkit.ToolNmap))
	}

	got := states(res)
	for _, s := range got {
		if s == module.StatePortScan || s == module.StateServiceDetection {
			t.Errorf("stage %s must not run with zero live hosts", s)
		}
	}
}

func TestRun_VulnScanConsentDeniedCancels(t *testing.T) {
	runner := &fakeRunner{handler: nmapHandler(discoveryXML, portsXML, servicesXML)}
	tools := &fakeTools{available: map[string]bool{
		toolkit.ToolNmap:  true,
		toolkit.ToolNikto: true,
	}}
	mod, _ := newModule(t, runner, tools, &consent.Static{Lab: false})

	res, err := mod.Run(context.Background(), module.Target{CIDR: "192.168.1.0/24"},
		module.Options{VulnScan: true})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateCancelled {
		t.Fatalf("state = %s, want cancelled (consent denial is never a failure)", res.State)
	}
	if runner.ran(toolkit.ToolNikto) != 0 {
		t.Error("nikto must not run after consent denial")
	}
}

func TestRun_VulnScanProducesVulnerabilityFindings(t *testing.T) {
	base := nmapHandler(discoveryXML, portsXML, servicesXML)
	runner := &fakeRunner{handler: func(spec toolkit.RunSpec) (*toolkit.Invocation, error) {
		if spec.Tool == toolkit.ToolNikto {
			return &toolkit.Invocation{Tool: spec.Tool, Stdout: []byte(niktoJSON)}, nil
		}
		return base(spec)
	}}
	tools := &fakeTools{available: map[string]bool{
		toolkit.ToolNmap:  true,
		toolkit.ToolNikto: true,
	}}
	mod, _ := newModule(t, runner, tools, &consent.Static{Lab: true})

	res, err := mod.Run(context.Background(), module.Target{CIDR: "192.168.1.0/24"},
		module.Options{VulnScan: true})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateDone {
		t.Fatalf("state = %s (%s), want done", res.State, res.Reason)
	}
	if runner.ran(toolkit.ToolNikto) != 1 {
		t.Fatalf("nikto invocations = %d, want 1 (only the http port)", runner.ran(toolkit.ToolNikto))
	}
	if n := countKind(res.Findings, finding.KindVulnerability); n != 1 {
		t.Fatalf("vulnerability findings = %d, want 1", n)
	}
	for _, f := range res.Findings {
		if f.Vuln != nil {
			if f.Severity != finding.SeverityMedium {
				t.Errorf("OSVDB-backed item severity = %s, want MEDIUM", f.Severity)
			}
			if f.Origin == "" {
				t.Error("vulnerability finding must point at its report artifact")
			}
		}
	}
}

func TestRun_DomainLookupAddsDNSRecords(t *testing.T) {
	base := nmapHandler(discoveryXML, portsXML, servicesXML)
	runner := &fakeRunner{handler: func(spec toolkit.RunSpec) (*toolkit.Invocation, error) {
		if spec.Tool == toolkit.ToolDig {
			return &toolkit.Invocation{Tool: spec.Tool, Stdout: []byte(digOutput)}, nil
		}
		return base(spec)
	}}
	tools := &fakeTools{available: map[string]bool{
		toolkit.ToolNmap: true,
		toolkit.ToolDig:  true,
	}}
	mod, _ := newModule(t, runner, tools, nil)

	res, err := mod.Run(context.Background(), module.Target{CIDR: "192.168.1.0/24"},
		module.Options{Domain: "example.com"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateDone {
		t.Fatalf("state = %s (%s), want done", res.State, res.Reason)
	}
	if n := countKind(res.Findings, finding.KindDNSRecord); n != 2 {
		t.Fatalf("dns findings = %d, want 2", n)
	}
	if !hasState(res, module.StateDNSLookup) {
		t.Error("dns_lookup stage missing from transitions")
	}
}

func TestRun_FallbackSweepWithoutNmap(t *testing.T) {
	runner := &fakeRunner{handler: func(spec toolkit.RunSpec) (*toolkit.Invocation, error) {
		if spec.Tool == toolkit.ToolPing {
			return &toolkit.Invocation{Tool: spec.Tool, ExitCode: 0}, nil
		}
		return &toolkit.Invocation{Tool: spec.Tool}, nil
	}}
	tools := &fakeTools{available: map[string]bool{toolkit.ToolPing: true}}
	sess := testSession(t)
	mod := New(Deps{
		Runner:  runner,
		Tools:   tools,
		Session: sess,
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if strings.HasSuffix(addr, ":22") {
				server, client := net.Pipe()
				go func() {
					server.Write([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
					server.Close()
				}()
				return client, nil
			}
			return nil, &net.OpError{Op: "dial", Err: context.DeadlineExceeded}
		},
	})

	res, err := mod.Run(context.Background(), module.Target{CIDR: "10.0.0.5"}, module.Options{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateDone {
		t.Fatalf("state = %s (%s), want done", res.State, res.Reason)
	}
	if runner.ran(toolkit.ToolPing) != 1 {
		t.Errorf("ping invocations = %d, want 1", runner.ran(toolkit.ToolPing))
	}
	if n := countKind(res.Findings, finding.KindOpenPort); n != 1 {
		t.Fatalf("port findings = %d, want 1 (only 22 accepts)", n)
	}
	for _, f := range res.Findings {
		if f.Service != nil {
			if f.Service.Name != "ssh" {
				t.Errorf("service name = %q, want ssh", f.Service.Name)
			}
			if !strings.Contains(f.Service.Product, "OpenSSH") {
				t.Errorf("banner not captured: %q", f.Service.Product)
			}
		}
	}
}

func TestRun_CancellationDuringDiscoveryIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{}
	runner.handler = func(spec toolkit.RunSpec) (*toolkit.Invocation, error) {
		cancel()
		return &toolkit.Invocation{Tool: spec.Tool, Stop: toolkit.StopCancelled}, ctx.Err()
	}
	tools := &fakeTools{available: map[string]bool{toolkit.ToolNmap: true}}
	mod, _ := newModule(t, runner, tools, nil)

	res, err := mod.Run(ctx, module.Target{CIDR: "192.168.1.0/24"}, module.Options{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.State != module.StateCancelled {
		t.Fatalf("state = %s, want cancelled (never failed)", res.State)
	}
}

func TestRun_MissingCIDRIsARequestError(t *testing.T) {
	runner := &fakeRunner{handler: nmapHandler(discoveryXML, portsXML, servicesXML)}
	tools := &fakeTools{available: map[string]bool{toolkit.ToolNmap: true}}
	mod, _ := newModule(t, runner, tools, nil)

	if _, err := mod.Run(context.Background(), module.Target{}, module.Options{}); err == nil {
		t.Fatal("expected request validation error")
	}
}

func TestExpandCIDR(t *testing.T) {
	tests := []struct {
		cidr  string
		count int
		first string
		last  string
	}{
		{"192.168.1.0/30", 2, "192.168.1.1", "192.168.1.2"},
		{"192.168.1.0/31", 2, "192.168.1.0", "192.168.1.1"},
		{"10.0.0.7", 1, "10.0.0.7", "10.0.0.7"},
		{"172.16.0.0/28", 14, "172.16.0.1", "172.16.0.14"},
	}
	for _, tt := range tests {
		addrs, capped, err := expandCIDR(tt.cidr)
		if err != nil {
			t.Errorf("expandCIDR(%q) error: %v", tt.cidr, err)
			continue
		}
		if capped {
			t.Errorf("expandCIDR(%q) capped a small range", tt.cidr)
		}
		if len(addrs) != tt.count {
			t.Errorf("expandCIDR(%q) = %d addrs, want %d", tt.cidr, len(addrs), tt.count)
			continue
		}
		if addrs[0] != tt.first || addrs[len(addrs)-1] != tt.last {
			t.Errorf("expandCIDR(%q) = %s..%s, want %s..%s",
				tt.cidr, addrs[0], addrs[len(addrs)-1], tt.first, tt.last)
		}
	}

	if _, _, err := expandCIDR("not-a-network/24"); err == nil {
		t.Error("expected error for malformed CIDR")
	}
}

func hasState(res *module.Result, want module.State) bool {
	for _, tr := range res.Transitions {
		if tr.To == want {
			return true
		}
	}
	return false
}
