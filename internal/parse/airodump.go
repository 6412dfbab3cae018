package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/darcy0x/nethawk/internal/finding"
)

// macPattern matches a colon- or dash-separated hardware address.
var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)

// AirodumpResult holds the access points and stations recovered from
// one airodump-ng CSV snapshot.
type AirodumpResult struct {
	Networks []finding.WirelessNetwork
	Clients  []finding.WirelessClient
}

// Airodump parses the CSV file airodump-ng writes with
// --output-format csv. The file has two sections, access points and
// stations, each introduced by its own header row. Columns are resolved
// by header name so reordered or extended layouts from other airodump
// versions still parse. Rows that do not carry a valid MAC are skipped.
func Airodump(data []byte) (*AirodumpResult, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return &AirodumpResult{}, incomplete("airodump-ng", "empty capture file")
	}

	result := &AirodumpResult{}
	var cols map[string]int
	section := ""

	for _, rawLine := range strings.Split(string(data), "\n") {
		line := strings.TrimRight(rawLine, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := splitCSVRow(line)
		first := strings.ToLower(fields[0])

		switch first {
		case "bssid":
			section = "networks"
			cols = headerIndex(fields)
			continue
		case "station mac":
			section = "stations"
			cols = headerIndex(fields)
			continue
		}

		if section == "" || cols == nil {
			continue
		}

		switch section {
		case "networks":
			if net, ok := parseNetworkRow(fields, cols); ok {
				result.Networks = append(result.Networks, net)
			}
		case "stations":
			if client, ok := parseStationRow(fields, cols); ok {
				result.Clients = append(result.Clients, client)
			}
		}
	}

	if section == "" {
		return result, incomplete("airodump-ng", "no section headers found")
	}
	if len(result.Networks) == 0 && len(result.Clients) == 0 {
		return result, incomplete("airodump-ng", "no parsable rows")
	}
	return result, nil
}

func parseNetworkRow(fields []string, cols map[string]int) (finding.WirelessNetwork, bool) {
	bssid := field(fields, cols, "bssid")
	if !macPattern.MatchString(bssid) {
		return finding.WirelessNetwork{}, false
	}
	return finding.WirelessNetwork{
		BSSID:   strings.ToLower(bssid),
		ESSID:   field(fields, cols, "essid"),
		Channel: atoi(field(fields, cols, "channel")),
		Privacy: field(fields, cols, "privacy"),
		Power:   atoi(field(fields, cols, "power")),
	}, true
}

func parseStationRow(fields []string, cols map[string]int) (finding.WirelessClient, bool) {
	station := field(fields, cols, "station mac")
	if !macPattern.MatchString(station) {
		return finding.WirelessClient{}, false
	}

	// Unassociated stations carry "(not associated)" in the BSSID
	// column; normalize that to empty.
	bssid := field(fields, cols, "bssid")
	if !macPattern.MatchString(bssid) {
		bssid = ""
	}

	return finding.WirelessClient{
		Station: strings.ToLower(station),
		BSSID:   strings.ToLower(bssid),
		Power:   atoi(field(fields, cols, "power")),
	}, true
}

// headerIndex maps normalized column names to their positions.
func headerIndex(fields []string) map[string]int {
	cols := make(map[string]int, len(fields))
	for i, name := range fields {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func field(fields []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

// splitCSVRow splits an airodump row. The format never quotes fields,
// so a plain comma split with trimming is the faithful reading.
func splitCSVRow(line string) []string {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
