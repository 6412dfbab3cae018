package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/darcy0x/nethawk/internal/finding"
)

const smbPort = 445

var (
	enumUserPattern    = regexp.MustCompile(`user:\[([^\]]+)\]\s+rid:\[([^\]]+)\]`)
	enumGroupPattern   = regexp.MustCompile(`group:\[([^\]]+)\]\s+rid:\[([^\]]+)\]`)
	enumMappingPattern = regexp.MustCompile(`//\S+/(\S+)\s+Mapping:\s*(\w[\w/]*),?\s*Listing:\s*(\w[\w/]*)`)
	enumDomainPattern  = regexp.MustCompile(`(?:Domain Name|Got domain/workgroup name):\s*(\S+)`)
)

// Enum4linux scrapes the tabular text enum4linux prints. There is no
// structured export mode, so this parser keys on the stable line shapes
// (user:[...] rid:[...], share mapping rows) and ignores the banner art
// around them. Anonymous enumeration succeeding is itself the exposure
// each record describes.
func Enum4linux(addr string, data []byte) ([]finding.Vulnerability, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, incomplete("enum4linux", "empty output")
	}

	var vulns []finding.Vulnerability

	for _, m := range enumUserPattern.FindAllStringSubmatch(text, -1) {
		vulns = append(vulns, finding.Vulnerability{
			Address:   addr,
			Port:      smbPort,
			Reference: "smb-user-" + m[1],
			Summary:   fmt.Sprintf("SMB user enumerable anonymously: %s (rid %s)", m[1], m[2]),
		})
	}

	for _, m := range enumGroupPattern.FindAllStringSubmatch(text, -1) {
		vulns = append(vulns, finding.Vulnerability{
			Address:   addr,
			Port:      smbPort,
			Reference: "smb-group-" + m[1],
			Summary:   fmt.Sprintf("SMB group enumerable anonymously: %s (rid %s)", m[1], m[2]),
		})
	}

	for _, m := range enumMappingPattern.FindAllStringSubmatch(text, -1) {
		share, mapping, listing := m[1], m[2], m[3]
		vulns = append(vulns, finding.Vulnerability{
			Address:   addr,
			Port:      smbPort,
			Reference: "smb-share-" + share,
			Summary:   fmt.Sprintf("SMB share %s: mapping %s, listing %s", share, mapping, listing),
		})
	}

	if m := enumDomainPattern.FindStringSubmatch(text); m != nil {
		vulns = append(vulns, finding.Vulnerability{
			Address:   addr,
			Port:      smbPort,
			Reference: "smb-domain",
			Summary:   "SMB domain/workgroup disclosed: " + m[1],
		})
	}

	if len(vulns) == 0 {
		return nil, incomplete("enum4linux", "no recognizable enumeration lines")
	}
	return vulns, nil
}

// Enum4linuxSeverity grades an SMB exposure: a share that anonymous
// users can both map and list outranks name disclosure.
func Enum4linuxSeverity(v finding.Vulnerability) finding.Severity {
	switch {
	case strings.HasPrefix(v.Reference, "smb-share-") && strings.Contains(v.Summary, "mapping OK"):
		return finding.SeverityMedium
	case strings.HasPrefix(v.Reference, "smb-user-"):
		return finding.SeverityLow
	case strings.HasPrefix(v.Reference, "smb-group-"):
		return finding.SeverityLow
	default:
		return finding.SeverityInfo
	}
}
