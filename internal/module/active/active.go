// Package active implements the host/port/service scan module. Each
// stage is one tool invocation: nmap drives all of them when present,
// with a ping-sweep and TCP-connect fallback for hosts without it. A
// discovery stage that finds nothing short-circuits the rest and ends
// done with an empty result, not failed.
package active

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/darcy0x/nethawk/internal/consent"
	"github.com/darcy0x/nethawk/internal/finding"
	"github.com/darcy0x/nethawk/internal/module"
	"github.com/darcy0x/nethawk/internal/parse"
	"github.com/darcy0x/nethawk/internal/session"
	"github.com/darcy0x/nethawk/internal/toolkit"
)

const defaultStageTimeout = 10 * time.Minute

// Deps wires the module to the engine's shared components.
type Deps struct {
	Runner  module.Runner
	Tools   module.Tools
	Session *session.Session
	Gate    consent.Gate
	Logger  *slog.Logger

	// PingWorkers sizes the fallback sweep pool.
	PingWorkers int

	// Dial overrides the dialer used by the native port scan and
	// banner grab, for tests.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	// LookupDNS overrides the native DNS fallback, for tests.
	LookupDNS func(ctx context.Context, domain string) ([]finding.DNSRecord, error)

	OnProgress func(string)
}

// Module is the active scan workflow.
type Module struct {
	deps Deps
}

var _ module.Module = (*Module)(nil)

// New creates the module.
func New(deps Deps) *Module {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Gate == nil {
		deps.Gate = &consent.Static{}
	}
	if deps.PingWorkers <= 0 {
		deps.PingWorkers = 32
	}
	if deps.Dial == nil {
		dialer := &net.Dialer{Timeout: 500 * time.Millisecond}
		deps.Dial = dialer.DialContext
	}
	if deps.LookupDNS == nil {
		deps.LookupDNS = nativeLookup
	}
	if deps.OnProgress == nil {
		deps.OnProgress = func(string) {}
	}
	return &Module{deps: deps}
}

// Name implements module.Module.
func (m *Module) Name() string { return module.NameActive }

// vulnRecord pairs a parsed vulnerability with its provenance until
// the parsing stage turns it into a finding.
type vulnRecord struct {
	vuln     finding.Vulnerability
	severity finding.Severity
	tool     string
	origin   string
}

// dnsRecordSet pairs DNS records with the tool that produced them.
type dnsRecordSet struct {
	records []finding.DNSRecord
	tool    string
}

// Run drives idle -> host_discovery -> port_scan -> service_detection
// -> vuln_scan? -> dns_lookup? -> parsing -> done.
func (m *Module) Run(ctx context.Context, target module.Target, opts module.Options) (*module.Result, error) {
	if err := target.RequireCIDR(); err != nil {
		return nil, err
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = defaultStageTimeout
	}

	mach := module.NewMachine(module.NameActive)
	var warnings []string
	useNmap := m.deps.Tools.Available(toolkit.ToolNmap)

	// ---- host_discovery ----
	mach.To(module.StateHostDiscovery)
	m.deps.OnProgress("discovering live hosts in " + target.CIDR)

	hosts, err := m.discoverHosts(ctx, target.CIDR, opts, useNmap, &warnings)
	if err != nil {
		return m.abort(mach, err, warnings), nil
	}

	if len(hosts) == 0 {
		// Nothing to scan is a result, not a failure; the remaining
		// stages are skipped outright.
		mach.To(module.StateParsing)
		mach.Done("no live hosts")
		return finish(mach, nil, warnings), nil
	}
	m.deps.OnProgress(fmt.Sprintf("%d live hosts", len(hosts)))

	// ---- port_scan ----
	mach.To(module.StatePortScan)
	hosts, err = m.scanPorts(ctx, hosts, opts, useNmap, &warnings)
	if err != nil {
		return m.abort(mach, err, warnings), nil
	}

	// ---- service_detection ----
	mach.To(module.StateServiceDetection)
	hosts, err = m.detectServices(ctx, hosts, opts, useNmap, &warnings)
	if err != nil {
		return m.abort(mach, err, warnings), nil
	}

	// ---- vuln_scan (optional) ----
	var vulns []vulnRecord
	if opts.VulnScan {
		mach.To(module.StateVulnScan)
		if err := m.deps.Gate.Authorize(consent.OpVulnScan, target.CIDR); err != nil {
			mach.Cancel(err.Error())
			return finish(mach, nil, warnings), nil
		}
		vulns, err = m.scanVulns(ctx, hosts, opts, &warnings)
		if err != nil {
			return m.abort(mach, err, warnings), nil
		}
	}

	// ---- dns_lookup (optional) ----
	var dnsSet dnsRecordSet
	if opts.Domain != "" {
		mach.To(module.StateDNSLookup)
		dnsSet = m.lookupDomain(ctx, opts.Domain, opts, &warnings)
	}

	// ---- parsing ----
	mach.To(module.StateParsing)
	findings := m.buildFindings(hosts, vulns, dnsSet, useNmap)
	for i := range findings {
		if err := m.deps.Session.SaveFinding(ctx, &findings[i]); err != nil {
			mach.Fail(fmt.Sprintf("persist findings: %v", err))
			return finish(mach, findings, warnings), nil
		}
	}

	openPorts := 0
	for _, h := range hosts {
		openPorts += len(parse.OpenPorts(h))
	}
	mach.Done(fmt.Sprintf("%d hosts, %d open ports", len(hosts), openPorts))
	return finish(mach, findings, warnings), nil
}

// abort maps a stage error to the right terminal state: caller
// cancellation becomes cancelled, anything else failed.
func (m *Module) abort(mach *module.Machine, err error, warnings []string) *module.Result {
	if errors.Is(err, context.Canceled) {
		mach.Cancel("cancelled during " + string(mach.Current()))
	} else {
		mach.Fail(err.Error())
	}
	return finish(mach, nil, warnings)
}

// discoverHosts runs the discovery stage and returns live hosts only.
func (m *Module) discoverHosts(ctx context.Context, cidr string, opts module.Options, useNmap bool, warnings *[]string) ([]parse.NmapHost, error) {
	if useNmap {
		hosts, err := m.nmap(ctx, opts, "discovery", "-sn", cidr)
		if err != nil {
			return nil, err
		}
		return parse.LiveHosts(hosts), nil
	}
	return m.pingSweep(ctx, cidr, warnings)
}

// scanPorts fills in the port table for every live host.
func (m *Module) scanPorts(ctx context.Context, hosts []parse.NmapHost, opts module.Options, useNmap bool, warnings *[]string) ([]parse.NmapHost, error) {
	if !useNmap {
		return m.connectScan(ctx, hosts)
	}

	args := []string{}
	if opts.Ports != "" {
		args = append(args, "-p", opts.Ports)
	}
	args = append(args, addresses(hosts)...)
	scanned, err := m.nmap(ctx, opts, "ports", args...)
	if err != nil {
		return nil, err
	}
	return mergePorts(hosts, scanned), nil
}

// detectServices identifies what listens behind the open ports.
func (m *Module) detectServices(ctx context.Context, hosts []parse.NmapHost, opts module.Options, useNmap bool, warnings *[]string) ([]parse.NmapHost, error) {
	portList := openPortList(hosts)
	if portList == "" {
		return hosts, nil
	}
	if !useNmap {
		return m.bannerGrab(ctx, hosts), nil
	}

	args := append([]string{"-sV", "-p", portList}, addresses(hosts)...)
	scanned, err := m.nmap(ctx, opts, "services", args...)
	if err != nil {
		return nil, err
	}
	return mergePorts(hosts, scanned), nil
}

// nmap runs one nmap invocation with XML export and archives the
// report in the session log directory.
func (m *Module) nmap(ctx context.Context, opts module.Options, stage string, args ...string) ([]parse.NmapHost, error) {
	full := append([]string{"-oX", "-"}, args...)
	inv, err := m.deps.Runner.Run(ctx, toolkit.RunSpec{
		Tool:    toolkit.ToolNmap,
		Path:    m.deps.Tools.Describe(toolkit.ToolNmap).Path,
		Args:    full,
		Timeout: opts.StageTimeout,
	})
	if err != nil && ctx.Err() != nil {
		return nil, context.Canceled
	}
	if err != nil {
		return nil, fmt.Errorf("nmap %s stage: %w", stage, err)
	}
	if inv.ExitCode != 0 {
		return nil, fmt.Errorf("nmap %s stage: exit %d: %s", stage, inv.ExitCode, firstLine(inv.Stderr))
	}

	if _, err := m.deps.Session.WriteArtifact(session.DirLogs,
		m.deps.Session.ArtifactName("nmap_"+stage, "xml"), inv.Stdout); err != nil {
		m.deps.Logger.Warn("archiving nmap report failed", "stage", stage, "error", err)
	}

	hosts, err := parse.NmapXML(inv.Stdout)
	var incompleteErr *parse.IncompleteError
	if errors.As(err, &incompleteErr) {
		return hosts, fmt.Errorf("nmap %s stage: %w", stage, incompleteErr)
	}
	return hosts, nil
}

// buildFindings turns the scan results into findings.
func (m *Module) buildFindings(hosts []parse.NmapHost, vulns []vulnRecord, dnsSet dnsRecordSet, useNmap bool) []finding.Finding {
	tool := toolkit.ToolNmap
	if !useNmap {
		tool = toolkit.ToolPing
	}

	var findings []finding.Finding
	for _, h := range hosts {
		f := finding.New(m.deps.Session.ID, finding.KindNetworkHost, tool)
		f.NaturalKey = finding.HostKey(h.Address)
		f.Host = &finding.NetworkHost{Address: h.Address, Hostname: h.Hostname, State: h.State}
		findings = append(findings, f)

		for _, p := range parse.OpenPorts(h) {
			pf := finding.New(m.deps.Session.ID, finding.KindOpenPort, tool)
			pf.NaturalKey = finding.PortKey(h.Address, p.Port, p.Protocol)
			pf.Severity = finding.SeverityLow
			pf.Port = &finding.OpenPort{Address: h.Address, Port: p.Port, Protocol: p.Protocol, State: p.State}
			findings = append(findings, pf)

			if p.Service == "" {
				continue
			}
			sf := finding.New(m.deps.Session.ID, finding.KindService, tool)
			sf.NaturalKey = finding.ServiceKey(h.Address, p.Port, p.Protocol)
			sf.Service = &finding.Service{
				Address:  h.Address,
				Port:     p.Port,
				Protocol: p.Protocol,
				Name:     p.Service,
				Product:  p.Product,
				Version:  p.Version,
				Tunnel:   p.Tunnel,
			}
			findings = append(findings, sf)
		}
	}

	for _, rec := range vulns {
		vuln := rec.vuln
		f := finding.New(m.deps.Session.ID, finding.KindVulnerability, rec.tool)
		f.NaturalKey = finding.VulnKey(vuln.Address, vuln.Port, vuln.Reference)
		f.Severity = rec.severity
		f.Origin = rec.origin
		f.Vuln = &vuln
		findings = append(findings, f)
	}

	for _, rec := range dnsSet.records {
		rec := rec
		f := finding.New(m.deps.Session.ID, finding.KindDNSRecord, dnsSet.tool)
		f.NaturalKey = finding.DNSKey(rec.Name, rec.Type, rec.Value)
		f.DNS = &rec
		findings = append(findings, f)
	}
	return findings
}

// mergePorts overlays freshly scanned port data onto the discovery
// host list, keeping hosts that the later stage dropped.
func mergePorts(hosts, scanned []parse.NmapHost) []parse.NmapHost {
	byAddr := make(map[string]parse.NmapHost, len(scanned))
	for _, h := range scanned {
		byAddr[h.Address] = h
	}
	merged := make([]parse.NmapHost, 0, len(hosts))
	for _, h := range hosts {
		if s, ok := byAddr[h.Address]; ok {
			if s.Hostname == "" {
				s.Hostname = h.Hostname
			}
			if s.State == "" {
				s.State = h.State
			}
			mergeServiceInfo(&s, h)
			merged = append(merged, s)
		} else {
			merged = append(merged, h)
		}
	}
	return merged
}

// mergeServiceInfo keeps earlier-stage port details the newer report
// lacks, so -sV output never erases a port the plain scan saw.
func mergeServiceInfo(dst *parse.NmapHost, prev parse.NmapHost) {
	seen := make(map[string]bool, len(dst.Ports))
	for _, p := range dst.Ports {
		seen[fmt.Sprintf("%d/%s", p.Port, p.Protocol)] = true
	}
	for _, p := range prev.Ports {
		if !seen[fmt.Sprintf("%d/%s", p.Port, p.Protocol)] {
			dst.Ports = append(dst.Ports, p)
		}
	}
}

func addresses(hosts []parse.NmapHost) []string {
	addrs := make([]string, 0, len(hosts))
	for _, h := range hosts {
		addrs = append(addrs, h.Address)
	}
	return addrs
}

// openPortList renders the union of open ports as an nmap -p argument.
func openPortList(hosts []parse.NmapHost) string {
	seen := make(map[int]bool)
	var ports []int
	for _, h := range hosts {
		for _, p := range parse.OpenPorts(h) {
			if !seen[p.Port] {
				seen[p.Port] = true
				ports = append(ports, p.Port)
			}
		}
	}
	if len(ports) == 0 {
		return ""
	}
	strs := make([]string, len(ports))
	for i, p := range ports {
		strs[i] = strconv.Itoa(p)
	}
	return strings.Join(strs, ",")
}

func finish(mach *module.Machine, findings []finding.Finding, warnings []string) *module.Result {
	res := mach.Result()
	res.Findings = findings
	res.Warnings = warnings
	return res
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
