package parse

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/darcy0x/nethawk/internal/finding"
)

// Dig parses `dig +noall +answer` output: one record per line in zone
// file presentation format. Comment lines and anything that is not a
// five-field IN record are skipped.
func Dig(data []byte) ([]finding.DNSRecord, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, incomplete("dig", "empty answer section")
	}

	var records []finding.DNSRecord
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 || fields[2] != "IN" {
			continue
		}
		ttl, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		records = append(records, finding.DNSRecord{
			Name:  strings.TrimSuffix(fields[0], "."),
			TTL:   ttl,
			Type:  fields[3],
			Value: strings.TrimSuffix(strings.Join(fields[4:], " "), "."),
		})
	}

	if len(records) == 0 {
		return nil, incomplete("dig", "no answer records")
	}
	return records, nil
}

// dnsreconEntry covers the union of fields dnsrecon emits per record
// type in its -j export: A records carry address, NS/SRV carry target,
// MX carries exchange, TXT carries strings.
type dnsreconEntry struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Target   string `json:"target"`
	Exchange string `json:"exchange"`
	Strings  string `json:"strings"`
	Domain   string `json:"domain"`
}

// DNSRecon parses the JSON array dnsrecon writes with -j. The leading
// metadata entry (scan arguments) has no type and is skipped.
func DNSRecon(data []byte) ([]finding.DNSRecord, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, incomplete("dnsrecon", "empty export")
	}

	var entries []dnsreconEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, incomplete("dnsrecon", "malformed JSON: %v", err)
	}

	var records []finding.DNSRecord
	for _, e := range entries {
		if e.Type == "" {
			continue
		}
		name := e.Name
		if name == "" {
			name = e.Domain
		}
		value := e.value()
		if name == "" || value == "" {
			continue
		}
		records = append(records, finding.DNSRecord{
			Name:  strings.TrimSuffix(name, "."),
			Type:  strings.ToUpper(e.Type),
			Value: strings.TrimSuffix(value, "."),
		})
	}

	if len(records) == 0 {
		return records, incomplete("dnsrecon", "no typed records")
	}
	return records, nil
}

// value picks the record data field appropriate for the entry's type.
// dnsrecon resolves NS and MX names to addresses and exports both; the
// record value stays the name, not the resolved address.
func (e dnsreconEntry) value() string {
	switch strings.ToUpper(e.Type) {
	case "NS", "CNAME", "SRV":
		if e.Target != "" {
			return e.Target
		}
	case "MX":
		if e.Exchange != "" {
			return e.Exchange
		}
	case "TXT", "SPF":
		if e.Strings != "" {
			return e.Strings
		}
	}
	return firstNonEmpty(e.Address, e.Target, e.Exchange, e.Strings)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
