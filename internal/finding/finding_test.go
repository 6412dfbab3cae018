package finding

import (
	"encoding/json"
	"testing"
)

func TestNew_FillsEnvelope(t *testing.T) {
	f := New("session_1", KindOpenPort, "nmap")

	if f.ID == "" {
		t.Errorf("expected generated ID")
	}
	if f.SessionID != "session_1" {
		t.Errorf("session = %q, want session_1", f.SessionID)
	}
	if f.Kind != KindOpenPort {
		t.Errorf("kind = %q, want %q", f.Kind, KindOpenPort)
	}
	if f.DiscoveredAt.IsZero() {
		t.Errorf("expected DiscoveredAt to be set")
	}
	if f.DiscoveredAt.Location() != f.DiscoveredAt.UTC().Location() {
		t.Errorf("timestamps must be UTC")
	}
	if f.Severity != SeverityInfo {
		t.Errorf("default severity = %s, want INFO", f.Severity)
	}

	second := New("session_1", KindOpenPort, "nmap")
	if second.ID == f.ID {
		t.Errorf("IDs must be unique per finding")
	}
}

func TestSeverity_RoundTrip(t *testing.T) {
	tests := []struct {
		sev  Severity
		name string
	}{
		{SeverityCritical, "CRITICAL"},
		{SeverityHigh, "HIGH"},
		{SeverityMedium, "MEDIUM"},
		{SeverityLow, "LOW"},
		{SeverityInfo, "INFO"},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.sev)
		if err != nil {
			t.Fatalf("marshal %s: %v", tt.name, err)
		}
		if string(data) != `"`+tt.name+`"` {
			t.Errorf("marshal %s = %s", tt.name, data)
		}

		var back Severity
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.name, err)
		}
		if back != tt.sev {
			t.Errorf("round trip %s = %s", tt.name, back)
		}
	}
}

func TestSeverity_UnmarshalNumericForm(t *testing.T) {
	var s Severity
	if err := json.Unmarshal([]byte("1"), &s); err != nil {
		t.Fatalf("unmarshal numeric: %v", err)
	}
	if s != SeverityHigh {
		t.Errorf("numeric 1 = %s, want HIGH", s)
	}
}

func TestParseSeverity_UnknownName(t *testing.T) {
	sev, ok := ParseSeverity("catastrophic")
	if ok {
		t.Errorf("expected unknown severity name to report ok=false")
	}
	if sev != SeverityInfo {
		t.Errorf("unknown severity = %s, want INFO fallback", sev)
	}
}

func TestNaturalKeys(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"network lowercases", NetworkKey("AA:BB:CC:DD:EE:FF"), "aa:bb:cc:dd:ee:ff"},
		{"client lowercases", ClientKey("11:22:33:44:55:66"), "11:22:33:44:55:66"},
		{"host", HostKey("192.168.1.10"), "192.168.1.10"},
		{"port", PortKey("192.168.1.10", 443, "tcp"), "192.168.1.10:443/tcp"},
		{"service matches port", ServiceKey("192.168.1.10", 443, "tcp"), "192.168.1.10:443/tcp"},
		{"vuln", VulnKey("192.168.1.10", 80, "OSVDB-3233"), "192.168.1.10:80:OSVDB-3233"},
		{"dns", DNSKey("Example.COM", "A", "93.184.216.34"), "example.com/A/93.184.216.34"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestFinding_Title(t *testing.T) {
	tests := []struct {
		name string
		f    Finding
		want string
	}{
		{
			name: "network",
			f: Finding{Network: &WirelessNetwork{
				BSSID: "aa:bb:cc:dd:ee:ff", ESSID: "CoffeeShop", Channel: 6, Privacy: "WPA2",
			}},
			want: "CoffeeShop (aa:bb:cc:dd:ee:ff) ch 6 WPA2",
		},
		{
			name: "hidden network",
			f: Finding{Network: &WirelessNetwork{
				BSSID: "aa:bb:cc:dd:ee:ff", Channel: 11, Privacy: "WPA2",
			}},
			want: "<hidden> (aa:bb:cc:dd:ee:ff) ch 11 WPA2",
		},
		{
			name: "unassociated client",
			f:    Finding{Client: &WirelessClient{Station: "11:22:33:44:55:66"}},
			want: "11:22:33:44:55:66 (not associated)",
		},
		{
			name: "service with product",
			f: Finding{Service: &Service{
				Address: "10.0.0.5", Port: 22, Protocol: "tcp",
				Name: "ssh", Product: "OpenSSH", Version: "9.6",
			}},
			want: "10.0.0.5:22/tcp ssh (OpenSSH 9.6)",
		},
		{
			name: "complete handshake",
			f: Finding{Handshake: &Handshake{
				BSSID: "aa:bb:cc:dd:ee:ff", Complete: true, CapturePath: "captures/cap-01.cap",
			}},
			want: "aa:bb:cc:dd:ee:ff handshake complete (captures/cap-01.cap)",
		},
		{
			name: "uncracked key",
			f:    Finding{Crack: &CrackResult{BSSID: "aa:bb:cc:dd:ee:ff"}},
			want: "aa:bb:cc:dd:ee:ff key not recovered",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Title(); got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}
