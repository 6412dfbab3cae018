package parse

import (
	"strings"

	"github.com/Ullaakut/nmap/v3"
)

// NmapHost is one host from an nmap XML report.
type NmapHost struct {
	Address  string
	Hostname string
	State    string
	Ports    []NmapPort
}

// NmapPort is one scanned port, with whatever service detection added.
type NmapPort struct {
	Port     int
	Protocol string
	State    string
	Service  string
	Product  string
	Version  string
	Tunnel   string
}

// NmapXML parses the XML nmap writes with -oX. Structured export is the
// only nmap mode the engine consumes; the human-readable text changes
// between releases and is never parsed.
func NmapXML(data []byte) ([]NmapHost, error) {
	if len(data) == 0 {
		return nil, incomplete("nmap", "empty report")
	}

	var run nmap.Run
	if err := nmap.Parse(data, &run); err != nil {
		return nil, incomplete("nmap", "malformed XML: %v", err)
	}

	var hosts []NmapHost
	for _, h := range run.Hosts {
		addr := pickAddress(h)
		if addr == "" {
			continue
		}

		host := NmapHost{
			Address: addr,
			State:   h.Status.State,
		}
		if len(h.Hostnames) > 0 {
			host.Hostname = h.Hostnames[0].Name
		}
		for _, p := range h.Ports {
			host.Ports = append(host.Ports, NmapPort{
				Port:     int(p.ID),
				Protocol: p.Protocol,
				State:    p.State.State,
				Service:  p.Service.Name,
				Product:  p.Service.Product,
				Version:  p.Service.Version,
				Tunnel:   p.Service.Tunnel,
			})
		}
		hosts = append(hosts, host)
	}

	if len(hosts) == 0 && len(run.Hosts) > 0 {
		return nil, incomplete("nmap", "%d hosts without addresses", len(run.Hosts))
	}
	return hosts, nil
}

// LiveHosts filters a report down to hosts nmap saw respond.
func LiveHosts(hosts []NmapHost) []NmapHost {
	var live []NmapHost
	for _, h := range hosts {
		if strings.EqualFold(h.State, "up") {
			live = append(live, h)
		}
	}
	return live
}

// OpenPorts filters a host's ports down to open ones. Filtered and
// closed ports stay out of findings.
func OpenPorts(h NmapHost) []NmapPort {
	var open []NmapPort
	for _, p := range h.Ports {
		if strings.HasPrefix(strings.ToLower(p.State), "open") {
			open = append(open, p)
		}
	}
	return open
}

func pickAddress(h nmap.Host) string {
	for _, a := range h.Addresses {
		if a.AddrType == "ipv4" {
			return a.Addr
		}
	}
	for _, a := range h.Addresses {
		if a.AddrType == "ipv6" {
			return a.Addr
		}
	}
	if len(h.Addresses) > 0 {
		return h.Addresses[0].Addr
	}
	return ""
}
