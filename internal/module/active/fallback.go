package active

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/darcy0x/nethawk/internal/parse"
	"github.com/darcy0x/nethawk/internal/toolkit"
)

// sweepCap bounds how many addresses the fallback sweep will expand a
// CIDR into. nmap handles big ranges fine; the ping pool should not.
const sweepCap = 4096

// commonPorts is the fallback connect-scan port list, roughly nmap's
// most common TCP services.
var commonPorts = []int{
	21, 22, 23, 25, 53, 80, 110, 111, 135, 139,
	143, 443, 445, 993, 995, 1723, 3306, 3389, 5432, 5900,
	6379, 8000, 8080, 8443, 9200, 27017,
}

// fallbackServices names what usually listens on a port when no
// version probe ran.
var fallbackServices = map[int]string{
	21: "ftp", 22: "ssh", 23: "telnet", 25: "smtp", 53: "domain",
	80: "http", 110: "pop3", 111: "rpcbind", 135: "msrpc", 139: "netbios-ssn",
	143: "imap", 443: "https", 445: "microsoft-ds", 993: "imaps", 995: "pop3s",
	1723: "pptp", 3306: "mysql", 3389: "ms-wbt-server", 5432: "postgresql",
	5900: "vnc", 6379: "redis", 8000: "http-alt", 8080: "http-proxy",
	8443: "https-alt", 9200: "elasticsearch", 27017: "mongodb",
}

// pingSweep discovers live hosts without nmap: expand the CIDR and ping
// every address from a bounded worker pool.
func (m *Module) pingSweep(ctx context.Context, cidr string, warnings *[]string) ([]parse.NmapHost, error) {
	if !m.deps.Tools.Available(toolkit.ToolPing) {
		return nil, fmt.Errorf("neither nmap nor ping is installed")
	}
	addrs, capped, err := expandCIDR(cidr)
	if err != nil {
		return nil, err
	}
	if capped {
		*warnings = append(*warnings, fmt.Sprintf("sweep range truncated to %d addresses; install nmap for full-range discovery", sweepCap))
	}

	jobs := make(chan string)
	alive := make(chan string, len(addrs))
	var wg sync.WaitGroup

	workers := m.deps.PingWorkers
	if workers > len(addrs) {
		workers = len(addrs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range jobs {
				if m.pingOnce(ctx, addr) {
					alive <- addr
				}
			}
		}()
	}

	for _, addr := range addrs {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, context.Canceled
		case jobs <- addr:
		}
	}
	close(jobs)
	wg.Wait()
	close(alive)

	if ctx.Err() != nil {
		return nil, context.Canceled
	}

	var hosts []parse.NmapHost
	for addr := range alive {
		hosts = append(hosts, parse.NmapHost{Address: addr, State: "up"})
	}
	sort.Slice(hosts, func(i, j int) bool { return lessIP(hosts[i].Address, hosts[j].Address) })
	return hosts, nil
}

func (m *Module) pingOnce(ctx context.Context, addr string) bool {
	inv, err := m.deps.Runner.Run(ctx, toolkit.RunSpec{
		Tool:    toolkit.ToolPing,
		Path:    m.deps.Tools.Describe(toolkit.ToolPing).Path,
		Args:    []string{"-c", "1", "-W", "1", addr},
		Timeout: 3 * time.Second,
	})
	return err == nil && inv.ExitCode == 0
}

// connectScan is the nmap-less port scan: a plain TCP connect against
// the common port list for every live host.
func (m *Module) connectScan(ctx context.Context, hosts []parse.NmapHost) ([]parse.NmapHost, error) {
	for i := range hosts {
		for _, port := range commonPorts {
			if ctx.Err() != nil {
				return nil, context.Canceled
			}
			conn, err := m.deps.Dial(ctx, "tcp", net.JoinHostPort(hosts[i].Address, strconv.Itoa(port)))
			if err != nil {
				continue
			}
			conn.Close()
			hosts[i].Ports = append(hosts[i].Ports, parse.NmapPort{
				Port:     port,
				Protocol: "tcp",
				State:    "open",
				Service:  fallbackServices[port],
			})
		}
	}
	return hosts, nil
}

// bannerGrab is the nmap-less service stage: reconnect to each open
// port and keep whatever the server volunteers as the product string.
func (m *Module) bannerGrab(ctx context.Context, hosts []parse.NmapHost) []parse.NmapHost {
	for i := range hosts {
		for j, p := range hosts[i].Ports {
			if ctx.Err() != nil {
				return hosts
			}
			if banner := m.grabOnce(ctx, hosts[i].Address, p.Port); banner != "" {
				hosts[i].Ports[j].Product = banner
			}
		}
	}
	return hosts
}

func (m *Module) grabOnce(ctx context.Context, addr string, port int) string {
	conn, err := m.deps.Dial(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return ""
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	buf := make([]byte, 128)
	n, _ := conn.Read(buf)
	if n == 0 {
		return ""
	}
	banner := strings.TrimSpace(string(buf[:n]))
	if i := strings.IndexByte(banner, '\n'); i >= 0 {
		banner = strings.TrimSpace(banner[:i])
	}
	return banner
}

// expandCIDR lists the usable addresses in a CIDR, or the single
// address when given a bare IP. IPv4 network and broadcast addresses
// are excluded for prefixes shorter than /31.
func expandCIDR(cidr string) (addrs []string, capped bool, err error) {
	if !strings.Contains(cidr, "/") {
		return []string{cidr}, false, nil
	}
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, false, fmt.Errorf("parsing %q: %w", cidr, err)
	}

	ones, bits := ipnet.Mask.Size()
	hostAddrs := bits - ones > 1

	for cur := ip.Mask(ipnet.Mask); ipnet.Contains(cur); cur = nextIP(cur) {
		addrs = append(addrs, cur.String())
		if len(addrs) > sweepCap {
			addrs = addrs[:sweepCap]
			capped = true
			break
		}
	}
	if hostAddrs && len(addrs) > 2 && !capped {
		addrs = addrs[1 : len(addrs)-1]
	} else if hostAddrs && len(addrs) > 1 {
		addrs = addrs[1:]
	}
	return addrs, capped, nil
}

func nextIP(ip net.IP) net.IP {
	next := make(net.IP, len(ip))
	copy(next, ip)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}
	return next
}

func lessIP(a, b string) bool {
	pa, pb := net.ParseIP(a), net.ParseIP(b)
	if pa == nil || pb == nil {
		return a < b
	}
	if v4a, v4b := pa.To16(), pb.To16(); v4a != nil && v4b != nil {
		return string(v4a) < string(v4b)
	}
	return a < b
}
