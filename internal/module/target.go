package module

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
)

// Target is the thing a module runs against. Which fields matter
// depends on the module: passive needs Interface, active needs CIDR,
// capture needs Interface plus BSSID and Channel, crack needs
// CaptureFile and BSSID.
type Target struct {
	Interface   string `json:"interface,omitempty"`
	CIDR        string `json:"cidr,omitempty"`
	BSSID       string `json:"bssid,omitempty"`
	ESSID       string `json:"essid,omitempty"`
	Channel     int    `json:"channel,omitempty"`
	CaptureFile string `json:"capture_file,omitempty"`
}

// String renders the target for prompts and logs.
func (t Target) String() string {
	var parts []string
	if t.Interface != "" {
		parts = append(parts, "iface="+t.Interface)
	}
	if t.CIDR != "" {
		parts = append(parts, t.CIDR)
	}
	if t.BSSID != "" {
		bssid := t.BSSID
		if t.ESSID != "" {
			bssid += " (" + t.ESSID + ")"
		}
		parts = append(parts, bssid)
	}
	if t.CaptureFile != "" {
		parts = append(parts, t.CaptureFile)
	}
	if len(parts) == 0 {
		return "<empty target>"
	}
	return strings.Join(parts, " ")
}

var bssidPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)

// ValidBSSID reports whether s looks like a hardware address.
func ValidBSSID(s string) bool { return bssidPattern.MatchString(s) }

// ValidChannel accepts the 2.4 GHz channels 1-14 and the common 5 GHz
// channel numbers.
func ValidChannel(ch int) bool {
	if ch >= 1 && ch <= 14 {
		return true
	}
	switch ch {
	case 36, 40, 44, 48, 52, 56, 60, 64,
		100, 104, 108, 112, 116, 120, 124, 128, 132, 136, 140, 144,
		149, 153, 157, 161, 165:
		return true
	}
	return false
}

// RequireInterface validates the wireless interface field.
func (t Target) RequireInterface() error {
	if t.Interface == "" {
		return fmt.Errorf("module: target needs a wireless interface")
	}
	return nil
}

// RequireCIDR validates the network range field. A bare address is
// accepted and treated as a /32 by the scanners.
func (t Target) RequireCIDR() error {
	if t.CIDR == "" {
		return fmt.Errorf("module: target needs a network range")
	}
	if _, _, err := net.ParseCIDR(t.CIDR); err == nil {
		return nil
	}
	if net.ParseIP(t.CIDR) != nil {
		return nil
	}
	return fmt.Errorf("module: invalid network range %q", t.CIDR)
}

// RequireBSSID validates the access point address, and the channel when
// one is set.
func (t Target) RequireBSSID() error {
	if t.BSSID == "" {
		return fmt.Errorf("module: target needs a BSSID")
	}
	if !ValidBSSID(t.BSSID) {
		return fmt.Errorf("module: invalid BSSID %q", t.BSSID)
	}
	if t.Channel != 0 && !ValidChannel(t.Channel) {
		return fmt.Errorf("module: invalid channel %d", t.Channel)
	}
	return nil
}

// RequireCaptureFile validates that the capture artifact exists and is
// not empty, before any cracking engine is spawned on it.
func (t Target) RequireCaptureFile() error {
	if t.CaptureFile == "" {
		return fmt.Errorf("module: target needs a capture file")
	}
	info, err := os.Stat(t.CaptureFile)
	if err != nil {
		return fmt.Errorf("module: capture file %s: %w", t.CaptureFile, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("module: capture file %s is empty", t.CaptureFile)
	}
	return nil
}
