package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// Hashcat status block fields, e.g.
//
//	Status...........: Cracked
//	Speed.#1.........:   812.4 kH/s (6.50ms)
//	Progress.........: 212992/14344385 (1.48%)
var (
	hashcatStatusPattern   = regexp.MustCompile(`(?m)^Status\.+:\s*(\S+)`)
	hashcatSpeedPattern    = regexp.MustCompile(`(?m)^Speed\.#\d+\.+:\s*(\d+(?:\.\d+)?)\s*([kMG]?)H/s`)
	hashcatProgressPattern = regexp.MustCompile(`(?m)^Progress\.+:\s*(\d+)/(\d+)`)
)

// hashcatPlainPattern matches the cracked hash line hashcat prints to
// stdout: colon-separated fields ending in the recovered plaintext,
// with a hex digest first.
var hashcatPlainPattern = regexp.MustCompile(`(?m)^[0-9a-fA-F]{16,}[^:]*(?::[^:\n]*)*:(.+)$`)

// Hashcat parses complete hashcat stdout from a WPA (-m 2500) run.
func Hashcat(data []byte) (*CrackOutcome, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return &CrackOutcome{}, incomplete("hashcat", "empty output")
	}

	outcome := &CrackOutcome{}
	recognized := false

	if m := hashcatStatusPattern.FindAllStringSubmatch(text, -1); len(m) > 0 {
		recognized = true
		// Status appears once per refresh; the final one decides.
		status := strings.ToLower(m[len(m)-1][1])
		outcome.Found = status == "cracked"
	}

	if outcome.Found {
		if m := hashcatPlainPattern.FindStringSubmatch(text); m != nil {
			outcome.Password = strings.TrimSpace(m[1])
		}
	}

	if m := hashcatProgressPattern.FindAllStringSubmatch(text, -1); len(m) > 0 {
		last := m[len(m)-1]
		if n, err := strconv.ParseInt(last[1], 10, 64); err == nil {
			outcome.KeysTested = n
			recognized = true
		}
	}

	if m := hashcatSpeedPattern.FindAllStringSubmatch(text, -1); len(m) > 0 {
		last := m[len(m)-1]
		if rate, err := strconv.ParseFloat(last[1], 64); err == nil {
			outcome.Rate = rate * hashcatUnit(last[2])
		}
	}

	if !recognized {
		return outcome, incomplete("hashcat", "no status block found")
	}
	return outcome, nil
}

// HashcatProgressLine extracts the progress counter from a single
// streamed line.
func HashcatProgressLine(line string) (done, total int64, ok bool) {
	m := hashcatProgressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	done, err1 := strconv.ParseInt(m[1], 10, 64)
	total, err2 := strconv.ParseInt(m[2], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return done, total, true
}

func hashcatUnit(prefix string) float64 {
	switch prefix {
	case "k":
		return 1e3
	case "M":
		return 1e6
	case "G":
		return 1e9
	default:
		return 1
	}
}
