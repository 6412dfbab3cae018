// Package finding defines the normalized records every scan module
// emits. A Finding is immutable once written: it carries provenance
// (tool, session, artifact) and a natural key so the aggregator can
// deduplicate repeated observations of the same fact.
package finding

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a finding describes. The set is closed: parsers
// map tool output into one of these, never into ad-hoc shapes.
type Kind string

const (
	KindWirelessNetwork Kind = "wireless_network"
	KindWirelessClient  Kind = "wireless_client"
	KindNetworkHost     Kind = "network_host"
	KindOpenPort        Kind = "open_port"
	KindService         Kind = "service"
	KindVulnerability   Kind = "vulnerability"
	KindHandshake       Kind = "handshake"
	KindCrackResult     Kind = "crack_result"
	KindDNSRecord       Kind = "dns_record"
)

// KindOrder returns every kind in the fixed order reports render them.
func KindOrder() []Kind {
	return []Kind{
		KindWirelessNetwork,
		KindWirelessClient,
		KindNetworkHost,
		KindOpenPort,
		KindService,
		KindVulnerability,
		KindHandshake,
		KindCrackResult,
		KindDNSRecord,
	}
}

// Severity grades a finding for reporting.
type Severity int

const (
	SeverityCritical Severity = iota
	SeverityHigh
	SeverityMedium
	SeverityLow
	SeverityInfo
)

// String returns the severity name.
func (s Severity) String() string {
	names := [...]string{"CRITICAL", "HIGH", "MEDIUM", "LOW", "INFO"}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

// ParseSeverity maps a severity name back to its value. Unknown names
// report ok=false and SeverityInfo.
func ParseSeverity(name string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "CRITICAL":
		return SeverityCritical, true
	case "HIGH":
		return SeverityHigh, true
	case "MEDIUM":
		return SeverityMedium, true
	case "LOW":
		return SeverityLow, true
	case "INFO":
		return SeverityInfo, true
	default:
		return SeverityInfo, false
	}
}

// MarshalJSON encodes the severity as its name so serialized findings
// stay readable and stable across refactors of the numeric order.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts both the name form and the legacy numeric form.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, _ := ParseSeverity(name)
		*s = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("finding: severity must be a name or number: %w", err)
	}
	*s = Severity(n)
	return nil
}

// Finding is the envelope shared by every record kind. Exactly one of
// the payload pointers is set, matching Kind.
type Finding struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Kind         Kind      `json:"kind"`
	Tool         string    `json:"tool"`
	DiscoveredAt time.Time `json:"discovered_at"`
	NaturalKey   string    `json:"natural_key"`
	Severity     Severity  `json:"severity"`

	// Origin points at the session artifact the finding was parsed from,
	// relative to the session directory.
	Origin string `json:"origin,omitempty"`

	// Evidence preserves the raw line or fragment that produced the
	// finding, when one exists.
	Evidence string `json:"evidence,omitempty"`

	Network   *WirelessNetwork `json:"wireless_network,omitempty"`
	Client    *WirelessClient  `json:"wireless_client,omitempty"`
	Host      *NetworkHost     `json:"network_host,omitempty"`
	Port      *OpenPort        `json:"open_port,omitempty"`
	Service   *Service         `json:"service,omitempty"`
	Vuln      *Vulnerability   `json:"vulnerability,omitempty"`
	Handshake *Handshake       `json:"handshake,omitempty"`
	Crack     *CrackResult     `json:"crack_result,omitempty"`
	DNS       *DNSRecord       `json:"dns_record,omitempty"`
}

// New creates a finding envelope with a fresh ID and UTC timestamp.
// Callers attach the payload and natural key for their kind.
func New(sessionID string, kind Kind, tool string) Finding {
	return Finding{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Kind:         kind,
		Tool:         tool,
		DiscoveredAt: time.Now().UTC(),
		Severity:     SeverityInfo,
	}
}

// Title is the one-line description reports print for the finding.
func (f Finding) Title() string {
	switch {
	case f.Network != nil:
		essid := f.Network.ESSID
		if essid == "" {
			essid = "<hidden>"
		}
		return fmt.Sprintf("%s (%s) ch %d %s", essid, f.Network.BSSID, f.Network.Channel, f.Network.Privacy)
	case f.Client != nil:
		if f.Client.BSSID == "" {
			return fmt.Sprintf("%s (not associated)", f.Client.Station)
		}
		return fmt.Sprintf("%s -> %s", f.Client.Station, f.Client.BSSID)
	case f.Host != nil:
		if f.Host.Hostname != "" {
			return fmt.Sprintf("%s (%s) %s", f.Host.Address, f.Host.Hostname, f.Host.State)
		}
		return fmt.Sprintf("%s %s", f.Host.Address, f.Host.State)
	case f.Port != nil:
		return fmt.Sprintf("%s:%d/%s %s", f.Port.Address, f.Port.Port, f.Port.Protocol, f.Port.State)
	case f.Service != nil:
		name := f.Service.Name
		if f.Service.Product != "" {
			name += " (" + strings.TrimSpace(f.Service.Product+" "+f.Service.Version) + ")"
		}
		return fmt.Sprintf("%s:%d/%s %s", f.Service.Address, f.Service.Port, f.Service.Protocol, name)
	case f.Vuln != nil:
		return fmt.Sprintf("%s:%d %s", f.Vuln.Address, f.Vuln.Port, f.Vuln.Summary)
	case f.Handshake != nil:
		state := "partial"
		if f.Handshake.Complete {
			state = "complete"
		}
		return fmt.Sprintf("%s handshake %s (%s)", f.Handshake.BSSID, state, f.Handshake.CapturePath)
	case f.Crack != nil:
		if f.Crack.Cracked {
			return fmt.Sprintf("%s key recovered via %s", f.Crack.BSSID, f.Crack.Wordlist)
		}
		return fmt.Sprintf("%s key not recovered", f.Crack.BSSID)
	case f.DNS != nil:
		return fmt.Sprintf("%s %s %s", f.DNS.Name, f.DNS.Type, f.DNS.Value)
	default:
		return string(f.Kind) + " " + f.NaturalKey
	}
}

// --------------------------------------------------------------------------
// Payloads
// --------------------------------------------------------------------------

// WirelessNetwork is an access point observed during passive capture.
type WirelessNetwork struct {
	BSSID   string `json:"bssid"`
	ESSID   string `json:"essid,omitempty"`
	Channel int    `json:"channel,omitempty"`
	Privacy string `json:"privacy,omitempty"`
	Power   int    `json:"power,omitempty"`
	Vendor  string `json:"vendor,omitempty"`
}

// WirelessClient is a station observed during passive capture. BSSID is
// empty for unassociated stations.
type WirelessClient struct {
	Station string `json:"station"`
	BSSID   string `json:"bssid,omitempty"`
	Power   int    `json:"power,omitempty"`
	Vendor  string `json:"vendor,omitempty"`
}

// NetworkHost is a live host discovered during an active sweep.
type NetworkHost struct {
	Address  string `json:"address"`
	Hostname string `json:"hostname,omitempty"`
	State    string `json:"state"`
}

// OpenPort is a single open port on a host.
type OpenPort struct {
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	State    string `json:"state"`
}

// Service is the identified service behind an open port.
type Service struct {
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Name     string `json:"name,omitempty"`
	Product  string `json:"product,omitempty"`
	Version  string `json:"version,omitempty"`
	Tunnel   string `json:"tunnel,omitempty"`
}

// Vulnerability is a weakness reported by a vulnerability scanner.
type Vulnerability struct {
	Address   string `json:"address"`
	Port      int    `json:"port,omitempty"`
	Reference string `json:"reference,omitempty"`
	Method    string `json:"method,omitempty"`
	URL       string `json:"url,omitempty"`
	Summary   string `json:"summary"`
}

// Handshake is a captured WPA 4-way exchange, complete or partial.
type Handshake struct {
	BSSID       string `json:"bssid"`
	ESSID       string `json:"essid,omitempty"`
	Station     string `json:"station,omitempty"`
	CapturePath string `json:"capture_path"`
	Messages    []int  `json:"messages,omitempty"`
	Complete    bool   `json:"complete"`
}

// CrackResult is the outcome of an offline key recovery attempt.
type CrackResult struct {
	BSSID      string `json:"bssid"`
	ESSID      string `json:"essid,omitempty"`
	Wordlist   string `json:"wordlist,omitempty"`
	Password   string `json:"password,omitempty"`
	Cracked    bool   `json:"cracked"`
	KeysTested int64  `json:"keys_tested,omitempty"`
}

// DNSRecord is a resolved DNS record for a discovered host or domain.
type DNSRecord struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
	TTL   int    `json:"ttl,omitempty"`
}

// --------------------------------------------------------------------------
// Natural keys
// --------------------------------------------------------------------------

// NetworkKey is the dedup key for an access point.
func NetworkKey(bssid string) string { return strings.ToLower(bssid) }

// ClientKey is the dedup key for a station.
func ClientKey(station string) string { return strings.ToLower(station) }

// HostKey is the dedup key for a live host.
func HostKey(address string) string { return address }

// PortKey is the dedup key for an open port.
func PortKey(address string, port int, protocol string) string {
	return fmt.Sprintf("%s:%d/%s", address, port, protocol)
}

// ServiceKey is the dedup key for an identified service.
func ServiceKey(address string, port int, protocol string) string {
	return PortKey(address, port, protocol)
}

// VulnKey is the dedup key for a reported vulnerability.
func VulnKey(address string, port int, reference string) string {
	return fmt.Sprintf("%s:%d:%s", address, port, reference)
}

// HandshakeKey is the dedup key for a captured handshake.
func HandshakeKey(bssid string) string { return strings.ToLower(bssid) }

// CrackKey is the dedup key for a crack attempt.
func CrackKey(bssid string) string { return strings.ToLower(bssid) }

// DNSKey is the dedup key for a DNS record.
func DNSKey(name, rtype, value string) string {
	return fmt.Sprintf("%s/%s/%s", strings.ToLower(name), rtype, value)
}
