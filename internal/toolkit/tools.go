package toolkit

// ToolInfo describes one external tool the engine knows how to drive.
type ToolInfo struct {
	// Name is the registry key. By convention it matches the binary name.
	Name string

	// Binary is the executable resolved on PATH.
	Binary string

	// VersionArgs invoke the tool so that it prints a version string.
	// Nil means the tool has no safe version probe; several of the
	// wireless tools print their version only inside --help output,
	// which is still fine because probes tolerate nonzero exits.
	VersionArgs []string
}

// Tool names used across the engine. Modules refer to these constants so
// a rename stays a one-line change.
const (
	ToolAirodump   = "airodump-ng"
	ToolAireplay   = "aireplay-ng"
	ToolAircrack   = "aircrack-ng"
	ToolCap2hccapx = "cap2hccapx"
	ToolHashcat    = "hashcat"
	ToolNmap       = "nmap"
	ToolPing       = "ping"
	ToolNikto      = "nikto"
	ToolEnum4linux = "enum4linux"
	ToolDig        = "dig"
	ToolDNSRecon   = "dnsrecon"
	ToolIW         = "iw"
	ToolIP         = "ip"
	ToolAirmon     = "airmon-ng"
)

// knownTools returns the descriptor table for every external collaborator.
// Each Registry copies this so instances stay independent.
func knownTools() map[string]ToolInfo {
	infos := []ToolInfo{
		{Name: ToolAirodump, Binary: "airodump-ng", VersionArgs: []string{"--help"}},
		{Name: ToolAireplay, Binary: "aireplay-ng", VersionArgs: []string{"--help"}},
		{Name: ToolAircrack, Binary: "aircrack-ng", VersionArgs: []string{"--help"}},
		{Name: ToolCap2hccapx, Binary: "cap2hccapx"},
		{Name: ToolHashcat, Binary: "hashcat", VersionArgs: []string{"--version"}},
		{Name: ToolNmap, Binary: "nmap", VersionArgs: []string{"--version"}},
		{Name: ToolPing, Binary: "ping", VersionArgs: []string{"-V"}},
		{Name: ToolNikto, Binary: "nikto", VersionArgs: []string{"-Version"}},
		{Name: ToolEnum4linux, Binary: "enum4linux"},
		{Name: ToolDig, Binary: "dig", VersionArgs: []string{"-v"}},
		{Name: ToolDNSRecon, Binary: "dnsrecon"},
		{Name: ToolIW, Binary: "iw", VersionArgs: []string{"--version"}},
		{Name: ToolIP, Binary: "ip", VersionArgs: []string{"-V"}},
		{Name: ToolAirmon, Binary: "airmon-ng", VersionArgs: []string{"--help"}},
	}

	table := make(map[string]ToolInfo, len(infos))
	for _, info := range infos {
		table[info.Name] = info
	}
	return table
}
