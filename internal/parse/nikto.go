package parse

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/darcy0x/nethawk/internal/finding"
)

// niktoReport mirrors the JSON nikto writes with -Format json. Field
// types drift between nikto releases (port as string or number), so
// everything numeric goes through flexInt.
type niktoReport struct {
	Host            string      `json:"host"`
	IP              string      `json:"ip"`
	Port            flexInt     `json:"port"`
	Banner          string      `json:"banner"`
	Vulnerabilities []niktoItem `json:"vulnerabilities"`
}

type niktoItem struct {
	ID     string `json:"id"`
	OSVDB  string `json:"OSVDB"`
	Method string `json:"method"`
	Msg    string `json:"msg"`
	URL    string `json:"url"`
}

// Nikto parses a nikto JSON report into vulnerability records. Both the
// bare-object and array export layouts are accepted.
func Nikto(data []byte) ([]finding.Vulnerability, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, incomplete("nikto", "empty report")
	}

	var reports []niktoReport
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &reports); err != nil {
			return nil, incomplete("nikto", "malformed JSON array: %v", err)
		}
	} else {
		var one niktoReport
		if err := json.Unmarshal([]byte(trimmed), &one); err != nil {
			return nil, incomplete("nikto", "malformed JSON: %v", err)
		}
		reports = []niktoReport{one}
	}

	var vulns []finding.Vulnerability
	for _, rep := range reports {
		addr := rep.IP
		if addr == "" {
			addr = rep.Host
		}
		for _, item := range rep.Vulnerabilities {
			if item.Msg == "" {
				continue
			}
			vulns = append(vulns, finding.Vulnerability{
				Address:   addr,
				Port:      int(rep.Port),
				Reference: niktoReference(item),
				Method:    item.Method,
				URL:       item.URL,
				Summary:   item.Msg,
			})
		}
	}

	if len(vulns) == 0 {
		return nil, incomplete("nikto", "no vulnerability entries")
	}
	return vulns, nil
}

// NiktoSeverity grades a nikto item: entries backed by an OSVDB
// reference outrank bare informational messages.
func NiktoSeverity(v finding.Vulnerability) finding.Severity {
	if strings.HasPrefix(v.Reference, "OSVDB-") {
		return finding.SeverityMedium
	}
	return finding.SeverityLow
}

func niktoReference(item niktoItem) string {
	if item.OSVDB != "" && item.OSVDB != "0" {
		return "OSVDB-" + item.OSVDB
	}
	if item.ID != "" {
		return "nikto-" + item.ID
	}
	return "nikto"
}

// flexInt decodes JSON numbers that some tool versions quote as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}
