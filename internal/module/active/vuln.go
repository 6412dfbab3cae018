package active

import (
	"context"
	"fmt"
	"strconv"

	"github.com/darcy0x/nethawk/internal/module"
	"github.com/darcy0x/nethawk/internal/parse"
	"github.com/darcy0x/nethawk/internal/session"
	"github.com/darcy0x/nethawk/internal/toolkit"
)

// httpPorts recognizes web services by port when the service name is
// missing (the connect-scan fallback has no version probe).
var httpPorts = map[int]bool{80: true, 443: true, 8000: true, 8080: true, 8443: true}

var smbPorts = map[int]bool{139: true, 445: true}

// scanVulns runs nikto against every web service and enum4linux against
// every SMB host. A missing scanner degrades that check to a warning;
// the stage errors only on cancellation.
func (m *Module) scanVulns(ctx context.Context, hosts []parse.NmapHost, opts module.Options, warnings *[]string) ([]vulnRecord, error) {
	var records []vulnRecord

	haveNikto := m.deps.Tools.Available(toolkit.ToolNikto)
	haveEnum := m.deps.Tools.Available(toolkit.ToolEnum4linux)
	if !haveNikto {
		*warnings = append(*warnings, "nikto not installed; web checks skipped")
	}
	if !haveEnum {
		*warnings = append(*warnings, "enum4linux not installed; SMB checks skipped")
	}

	for _, h := range hosts {
		enumHost := false
		for _, p := range parse.OpenPorts(h) {
			if smbPorts[p.Port] {
				enumHost = true
			}
			if !haveNikto || !isHTTP(p) {
				continue
			}
			recs, err := m.runNikto(ctx, h.Address, p.Port, opts)
			if err != nil {
				if ctx.Err() != nil {
					return nil, context.Canceled
				}
				*warnings = append(*warnings, err.Error())
				continue
			}
			records = append(records, recs...)
		}

		if haveEnum && enumHost {
			recs, err := m.runEnum4linux(ctx, h.Address, opts)
			if err != nil {
				if ctx.Err() != nil {
					return nil, context.Canceled
				}
				*warnings = append(*warnings, err.Error())
				continue
			}
			records = append(records, recs...)
		}
	}
	return records, nil
}

func isHTTP(p parse.NmapPort) bool {
	switch p.Service {
	case "http", "https", "http-alt", "https-alt", "http-proxy":
		return true
	}
	return p.Service == "" && httpPorts[p.Port]
}

func (m *Module) runNikto(ctx context.Context, addr string, port int, opts module.Options) ([]vulnRecord, error) {
	m.deps.OnProgress(fmt.Sprintf("nikto against %s:%d", addr, port))
	inv, err := m.deps.Runner.Run(ctx, toolkit.RunSpec{
		Tool:    toolkit.ToolNikto,
		Path:    m.deps.Tools.Describe(toolkit.ToolNikto).Path,
		Args:    []string{"-h", addr, "-p", strconv.Itoa(port), "-Format", "json", "-output", "-"},
		Timeout: opts.StageTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("nikto %s:%d: %w", addr, port, err)
	}

	origin := ""
	name := m.deps.Session.ArtifactName(fmt.Sprintf("nikto_%s_%d", addr, port), "json")
	if rel, err := m.deps.Session.WriteArtifact(session.DirVulnerabilities, name, inv.Stdout); err == nil {
		origin = rel
	}

	vulns, err := parse.Nikto(inv.Stdout)
	if err != nil {
		return nil, fmt.Errorf("nikto %s:%d: %w", addr, port, err)
	}

	records := make([]vulnRecord, 0, len(vulns))
	for _, v := range vulns {
		if v.Address == "" {
			v.Address = addr
		}
		if v.Port == 0 {
			v.Port = port
		}
		records = append(records, vulnRecord{
			vuln:     v,
			severity: parse.NiktoSeverity(v),
			tool:     toolkit.ToolNikto,
			origin:   origin,
		})
	}
	return records, nil
}

func (m *Module) runEnum4linux(ctx context.Context, addr string, opts module.Options) ([]vulnRecord, error) {
	m.deps.OnProgress("enum4linux against " + addr)
	inv, err := m.deps.Runner.Run(ctx, toolkit.RunSpec{
		Tool:    toolkit.ToolEnum4linux,
		Path:    m.deps.Tools.Describe(toolkit.ToolEnum4linux).Path,
		Args:    []string{"-a", addr},
		Timeout: opts.StageTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("enum4linux %s: %w", addr, err)
	}

	origin := ""
	name := m.deps.Session.ArtifactName("enum4linux_"+addr, "txt")
	if rel, err := m.deps.Session.WriteArtifact(session.DirVulnerabilities, name, inv.Stdout); err == nil {
		origin = rel
	}

	vulns, err := parse.Enum4linux(addr, inv.Stdout)
	if err != nil {
		return nil, fmt.Errorf("enum4linux %s: %w", addr, err)
	}

	records := make([]vulnRecord, 0, len(vulns))
	for _, v := range vulns {
		records = append(records, vulnRecord{
			vuln:     v,
			severity: parse.Enum4linuxSeverity(v),
			tool:     toolkit.ToolEnum4linux,
			origin:   origin,
		})
	}
	return records, nil
}
