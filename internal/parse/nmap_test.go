package parse

import (
	"errors"
	"testing"
)

const nmapSample = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE nmaprun>
<nmaprun scanner="nmap" args="nmap -sV -oX - 192.168.1.0/30" start="1705312800" version="7.94" xmloutputversion="1.05">
<host starttime="1705312801" endtime="1705312830">
<status state="up" reason="syn-ack" reason_ttl="64"/>
<address addr="192.168.1.1" addrtype="ipv4"/>
<address addr="AA:BB:CC:DD:EE:FF" addrtype="mac"/>
<hostnames>
<hostname name="router.lan" type="PTR"/>
</hostnames>
<ports>
<port protocol="tcp" portid="22"><state state="open" reason="syn-ack" reason_ttl="64"/><service name="ssh" product="OpenSSH" version="9.6" method="probed" conf="10"/></port>
<port protocol="tcp" portid="80"><state state="open" reason="syn-ack" reason_ttl="64"/><service name="http" product="nginx" version="1.24.0" method="probed" conf="10"/></port>
<port protocol="tcp" portid="443"><state state="open" reason="syn-ack" reason_ttl="64"/><service name="http" product="nginx" tunnel="ssl" method="probed" conf="10"/></port>
<port protocol="tcp" portid="3306"><state state="filtered" reason="no-response" reason_ttl="0"/><service name="mysql" method="table" conf="3"/></port>
</ports>
</host>
<host starttime="1705312801" endtime="1705312830">
<status state="down" reason="no-response" reason_ttl="0"/>
<address addr="192.168.1.2" addrtype="ipv4"/>
</host>
<runstats><finished time="1705312830" timestr="Mon Jan 15 10:00:30 2024" elapsed="30.12" summary="Nmap done" exit="success"/><hosts up="1" down="1" total="2"/></runstats>
</nmaprun>`

func TestNmapXML_Sample(t *testing.T) {
	hosts, err := NmapXML([]byte(nmapSample))
	if err != nil {
		t.Fatalf("NmapXML returned error: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(hosts))
	}

	h := hosts[0]
	if h.Address != "192.168.1.1" {
		t.Errorf("Address = %q, want 192.168.1.1 (ipv4 preferred over mac)", h.Address)
	}
	if h.Hostname != "router.lan" {
		t.Errorf("Hostname = %q", h.Hostname)
	}
	if h.State != "up" {
		t.Errorf("State = %q", h.State)
	}
	if len(h.Ports) != 4 {
		t.Fatalf("expected 4 ports, got %d", len(h.Ports))
	}

	ssh := h.Ports[0]
	if ssh.Port != 22 || ssh.Protocol != "tcp" || ssh.State != "open" {
		t.Errorf("port[0] = %+v", ssh)
	}
	if ssh.Service != "ssh" || ssh.Product != "OpenSSH" || ssh.Version != "9.6" {
		t.Errorf("port[0] service = %+v", ssh)
	}
	if h.Ports[2].Tunnel != "ssl" {
		t.Errorf("port 443 tunnel = %q, want ssl", h.Ports[2].Tunnel)
	}

	if hosts[1].Address != "192.168.1.2" || hosts[1].State != "down" {
		t.Errorf("host[1] = %+v", hosts[1])
	}
}

func TestNmapXML_EmptyIsIncomplete(t *testing.T) {
	_, err := NmapXML(nil)
	var incErr *IncompleteError
	if !errors.As(err, &incErr) {
		t.Fatalf("expected IncompleteError, got %v", err)
	}
}

func TestNmapXML_MalformedIsIncomplete(t *testing.T) {
	_, err := NmapXML([]byte("nmap crashed before writing XML"))
	var incErr *IncompleteError
	if !errors.As(err, &incErr) {
		t.Fatalf("expected IncompleteError, got %v", err)
	}
	if incErr.Tool != "nmap" {
		t.Errorf("Tool = %q", incErr.Tool)
	}
}

func TestNmapXML_HostsWithoutAddressesIsIncomplete(t *testing.T) {
	xml := `<?xml version="1.0"?><nmaprun><host><status state="up" reason="syn-ack"/></host></nmaprun>`
	_, err := NmapXML([]byte(xml))
	var incErr *IncompleteError
	if !errors.As(err, &incErr) {
		t.Fatalf("expected IncompleteError, got %v", err)
	}
}

func TestLiveHosts(t *testing.T) {
	hosts, err := NmapXML([]byte(nmapSample))
	if err != nil {
		t.Fatalf("NmapXML returned error: %v", err)
	}
	live := LiveHosts(hosts)
	if len(live) != 1 {
		t.Fatalf("expected 1 live host, got %d", len(live))
	}
	if live[0].Address != "192.168.1.1" {
		t.Errorf("live[0].Address = %q", live[0].Address)
	}
}

func TestOpenPorts(t *testing.T) {
	hosts, err := NmapXML([]byte(nmapSample))
	if err != nil {
		t.Fatalf("NmapXML returned error: %v", err)
	}
	open := OpenPorts(hosts[0])
	if len(open) != 3 {
		t.Fatalf("expected 3 open ports, got %d", len(open))
	}
	for _, p := range open {
		if p.State != "open" {
			t.Errorf("port %d state = %q", p.Port, p.State)
		}
	}
}

func TestOpenPorts_IncludesOpenFiltered(t *testing.T) {
	h := NmapHost{Ports: []NmapPort{
		{Port: 53, State: "open|filtered"},
		{Port: 80, State: "closed"},
	}}
	open := OpenPorts(h)
	if len(open) != 1 || open[0].Port != 53 {
		t.Fatalf("open = %+v", open)
	}
}
