package active

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/darcy0x/nethawk/internal/finding"
	"github.com/darcy0x/nethawk/internal/module"
	"github.com/darcy0x/nethawk/internal/parse"
	"github.com/darcy0x/nethawk/internal/session"
	"github.com/darcy0x/nethawk/internal/toolkit"
)

var queryTypes = []string{"A", "AAAA", "MX", "NS", "TXT"}

// lookupDomain resolves the target domain, preferring dig, then
// dnsrecon, then an in-process resolver. Lookup trouble never sinks the
// run; failures degrade to warnings and an empty record set.
func (m *Module) lookupDomain(ctx context.Context, domain string, opts module.Options, warnings *[]string) dnsRecordSet {
	m.deps.OnProgress("resolving " + domain)

	switch {
	case m.deps.Tools.Available(toolkit.ToolDig):
		records, err := m.digLookup(ctx, domain, opts)
		if err != nil {
			*warnings = append(*warnings, err.Error())
			return dnsRecordSet{}
		}
		return dnsRecordSet{records: records, tool: toolkit.ToolDig}

	case m.deps.Tools.Available(toolkit.ToolDNSRecon):
		records, err := m.dnsreconLookup(ctx, domain, opts)
		if err != nil {
			*warnings = append(*warnings, err.Error())
			return dnsRecordSet{}
		}
		return dnsRecordSet{records: records, tool: toolkit.ToolDNSRecon}

	default:
		records, err := m.deps.LookupDNS(ctx, domain)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("dns lookup for %s: %v", domain, err))
			return dnsRecordSet{}
		}
		return dnsRecordSet{records: records, tool: "resolver"}
	}
}

// digLookup batches all query types into one dig invocation; dig
// accepts repeated name/type pairs and answers them in order.
func (m *Module) digLookup(ctx context.Context, domain string, opts module.Options) ([]finding.DNSRecord, error) {
	args := []string{"+noall", "+answer"}
	for _, qtype := range queryTypes {
		args = append(args, domain, qtype)
	}
	inv, err := m.deps.Runner.Run(ctx, toolkit.RunSpec{
		Tool:    toolkit.ToolDig,
		Path:    m.deps.Tools.Describe(toolkit.ToolDig).Path,
		Args:    args,
		Timeout: opts.StageTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("dig %s: %w", domain, err)
	}

	name := m.deps.Session.ArtifactName("dig_"+domain, "txt")
	if _, err := m.deps.Session.WriteArtifact(session.DirLogs, name, inv.Stdout); err != nil {
		m.deps.Logger.Warn("archiving dig output failed", "error", err)
	}

	records, err := parse.Dig(inv.Stdout)
	if err != nil {
		return nil, fmt.Errorf("dig %s: %w", domain, err)
	}
	return records, nil
}

// dnsreconLookup runs a standard enumeration with JSON export into the
// session log directory, then reads the export back.
func (m *Module) dnsreconLookup(ctx context.Context, domain string, opts module.Options) ([]finding.DNSRecord, error) {
	name := m.deps.Session.ArtifactName("dnsrecon_"+domain, "json")
	exportPath := filepath.Join(m.deps.Session.Dir(session.DirLogs), name)

	inv, err := m.deps.Runner.Run(ctx, toolkit.RunSpec{
		Tool:    toolkit.ToolDNSRecon,
		Path:    m.deps.Tools.Describe(toolkit.ToolDNSRecon).Path,
		Args:    []string{"-d", domain, "-t", "std", "-j", exportPath},
		Timeout: opts.StageTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("dnsrecon %s: %w", domain, err)
	}
	if inv.ExitCode != 0 {
		return nil, fmt.Errorf("dnsrecon %s: exit %d: %s", domain, inv.ExitCode, firstLine(inv.Stderr))
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		return nil, fmt.Errorf("dnsrecon %s: export missing: %w", domain, err)
	}
	records, err := parse.DNSRecon(data)
	if err != nil {
		return records, fmt.Errorf("dnsrecon %s: %w", domain, err)
	}
	return records, nil
}

// nativeLookup queries the system resolver directly when no lookup
// tool is installed.
func nativeLookup(ctx context.Context, domain string) ([]finding.DNSRecord, error) {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return nil, fmt.Errorf("no usable resolver: %v", err)
	}
	server := net.JoinHostPort(conf.Servers[0], conf.Port)
	client := &dns.Client{Timeout: 5 * time.Second}

	types := map[string]uint16{
		"A": dns.TypeA, "AAAA": dns.TypeAAAA, "MX": dns.TypeMX,
		"NS": dns.TypeNS, "TXT": dns.TypeTXT,
	}

	var records []finding.DNSRecord
	var lastErr error
	for _, qtype := range queryTypes {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(domain), types[qtype])
		in, _, err := client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		for _, rr := range in.Answer {
			if rec, ok := recordFromRR(rr); ok {
				records = append(records, rec)
			}
		}
	}
	if len(records) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return records, nil
}

func recordFromRR(rr dns.RR) (finding.DNSRecord, bool) {
	hdr := rr.Header()
	rec := finding.DNSRecord{
		Name: strings.TrimSuffix(hdr.Name, "."),
		Type: dns.TypeToString[hdr.Rrtype],
		TTL:  int(hdr.Ttl),
	}
	switch v := rr.(type) {
	case *dns.A:
		rec.Value = v.A.String()
	case *dns.AAAA:
		rec.Value = v.AAAA.String()
	case *dns.MX:
		rec.Value = strings.TrimSuffix(v.Mx, ".")
	case *dns.NS:
		rec.Value = strings.TrimSuffix(v.Ns, ".")
	case *dns.CNAME:
		rec.Value = strings.TrimSuffix(v.Target, ".")
	case *dns.TXT:
		rec.Value = strings.Join(v.Txt, " ")
	default:
		return rec, false
	}
	return rec, true
}
