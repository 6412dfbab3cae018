package wireless

import (
	"sort"
	"strings"

	gnet "github.com/shirou/gopsutil/v3/net"
)

// virtualPrefixes name interface classes that can never enter monitor
// mode: loopback, container bridges, and veth pairs.
var virtualPrefixes = []string{"lo", "docker", "br-", "veth", "virbr"}

// Interfaces lists the system's physical network interface names,
// sorted. Virtual interfaces are filtered out.
func Interfaces() ([]string, error) {
	stats, err := gnet.Interfaces()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(stats))
	var names []string
	for _, st := range stats {
		if isVirtual(st.Name) || seen[st.Name] {
			continue
		}
		seen[st.Name] = true
		names = append(names, st.Name)
	}
	sort.Strings(names)
	return names, nil
}

func isVirtual(name string) bool {
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Interface is one wireless device reported by `iw dev`.
type Interface struct {
	Phy  string
	Name string
	Addr string
	Mode Mode
}

// ParseIWDev parses `iw dev` output: phy blocks each containing one or
// more indented Interface blocks with addr and type lines.
func ParseIWDev(data []byte) []Interface {
	var (
		ifaces  []Interface
		current *Interface
		phy     string
	)

	flush := func() {
		if current != nil && current.Name != "" {
			ifaces = append(ifaces, *current)
		}
		current = nil
	}

	for _, rawLine := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(rawLine)
		switch {
		case strings.HasPrefix(line, "phy#"):
			flush()
			phy = line
		case strings.HasPrefix(line, "Interface "):
			flush()
			current = &Interface{
				Phy:  phy,
				Name: strings.TrimSpace(strings.TrimPrefix(line, "Interface ")),
				Mode: ModeUnknown,
			}
		case current != nil && strings.HasPrefix(line, "addr "):
			current.Addr = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "addr ")))
		case current != nil && strings.HasPrefix(line, "type "):
			current.Mode = parseMode(strings.TrimSpace(strings.TrimPrefix(line, "type ")))
		}
	}
	flush()
	return ifaces
}

// Mode is a wireless interface operating mode.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeManaged
	ModeMonitor
)

func (m Mode) String() string {
	switch m {
	case ModeManaged:
		return "managed"
	case ModeMonitor:
		return "monitor"
	default:
		return "unknown"
	}
}

// parseMode maps an `iw` type string. Station mode is managed for our
// purposes: it means the interface must be reconfigured before capture.
func parseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "monitor":
		return ModeMonitor
	case "managed", "station":
		return ModeManaged
	default:
		return ModeUnknown
	}
}
