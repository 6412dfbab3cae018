package wireless

import (
	"testing"
)

const iwDevOutput = `phy#1
	Interface wlan1
		ifindex 4
		wdev 0x100000001
		addr 11:22:33:44:55:66
		type monitor
		channel 6 (2437 MHz), width: 20 MHz (no HT), center1: 2437 MHz
phy#0
	Interface wlan0
		ifindex 3
		wdev 0x1
		addr AA:BB:CC:DD:EE:FF
		ssid HomeNet
		type managed
		channel 11 (2462 MHz), width: 20 MHz, center1: 2462 MHz
		txpower 20.00 dBm
`

func TestParseIWDev(t *testing.T) {
	ifaces := ParseIWDev([]byte(iwDevOutput))
	if len(ifaces) != 2 {
		t.Fatalf("expected 2 interfaces, got %d: %+v", len(ifaces), ifaces)
	}

	mon := ifaces[0]
	if mon.Name != "wlan1" || mon.Phy != "phy#1" {
		t.Errorf("first interface = %+v", mon)
	}
	if mon.Mode != ModeMonitor {
		t.Errorf("wlan1 mode = %s, want monitor", mon.Mode)
	}
	if mon.Addr != "11:22:33:44:55:66" {
		t.Errorf("wlan1 addr = %q", mon.Addr)
	}

	managed := ifaces[1]
	if managed.Name != "wlan0" || managed.Mode != ModeManaged {
		t.Errorf("second interface = %+v", managed)
	}
	if managed.Addr != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("addr should be lowercased, got %q", managed.Addr)
	}
}

func TestParseIWDev_StationTypeCountsAsManaged(t *testing.T) {
	ifaces := ParseIWDev([]byte("phy#0\n\tInterface wlp3s0\n\t\ttype station\n"))
	if len(ifaces) != 1 || ifaces[0].Mode != ModeManaged {
		t.Fatalf("got %+v", ifaces)
	}
}

func TestParseIWDev_Empty(t *testing.T) {
	if ifaces := ParseIWDev(nil); len(ifaces) != 0 {
		t.Fatalf("expected no interfaces, got %+v", ifaces)
	}
}

func TestInterfaces_FiltersVirtual(t *testing.T) {
	names, err := Interfaces()
	if err != nil {
		t.Fatalf("Interfaces: %v", err)
	}
	for _, name := range names {
		if isVirtual(name) {
			t.Errorf("virtual interface %q not filtered", name)
		}
	}
}

func TestModeString(t *testing.T) {
	if ModeManaged.String() != "managed" || ModeMonitor.String() != "monitor" || ModeUnknown.String() != "unknown" {
		t.Error("mode names changed")
	}
}
