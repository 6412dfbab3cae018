package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// CrackOutcome is the normalized result of one key recovery run,
// whichever engine produced it.
type CrackOutcome struct {
	Found      bool
	Password   string
	KeysTested int64
	Rate       float64 // keys per second
}

// keyFoundPattern extracts the recovered key from the aircrack banner:
// "KEY FOUND! [ password123 ]".
var keyFoundPattern = regexp.MustCompile(`KEY FOUND!\s*\[\s*(.*?)\s*\]`)

// aircrackProgressPattern matches the running counter line:
// "[00:00:03] 2341/14344392 keys tested (812.44 k/s)".
var aircrackProgressPattern = regexp.MustCompile(`(\d+)/\d+ keys tested \((\d+(?:\.\d+)?) k/s\)`)

// successIndicators are the fragments that mark a successful recovery
// when the banner itself is missing from truncated output. Matching is
// case-insensitive.
var successIndicators = []string{
	"key found",
	"passphrase found",
	"wpa key",
	"master key",
}

// exhaustedIndicators mark a completed run that found nothing.
var exhaustedIndicators = []string{
	"passphrase not in dictionary",
	"key not found",
	"quitting aircrack-ng",
}

// Aircrack parses complete aircrack-ng stdout. Output that shows
// neither a success banner, an exhaustion notice, nor a progress
// counter is reported incomplete.
func Aircrack(data []byte) (*CrackOutcome, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return &CrackOutcome{}, incomplete("aircrack-ng", "empty output")
	}

	outcome := &CrackOutcome{}
	recognized := false
	lower := strings.ToLower(text)

	if m := keyFoundPattern.FindStringSubmatch(text); m != nil {
		outcome.Found = true
		outcome.Password = m[1]
		recognized = true
	} else {
		for _, indicator := range successIndicators {
			if strings.Contains(lower, indicator) {
				outcome.Found = true
				recognized = true
				break
			}
		}
	}

	if !outcome.Found {
		for _, indicator := range exhaustedIndicators {
			if strings.Contains(lower, indicator) {
				recognized = true
				break
			}
		}
	}

	// The counter moves throughout the run; the last match wins.
	if keys, rate, ok := lastAircrackProgress(text); ok {
		outcome.KeysTested = keys
		outcome.Rate = rate
		recognized = true
	}

	if !recognized {
		return outcome, incomplete("aircrack-ng", "no recognizable result or progress lines")
	}
	return outcome, nil
}

// AircrackProgressLine extracts the counter from a single streamed
// line, for live progress reporting while the tool runs.
func AircrackProgressLine(line string) (keysTested int64, rate float64, ok bool) {
	m := aircrackProgressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	keys, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	// The multiplier is printed as k/s.
	perSec, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	return keys, perSec * 1000, true
}

func lastAircrackProgress(text string) (int64, float64, bool) {
	matches := aircrackProgressPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, 0, false
	}
	last := matches[len(matches)-1]
	keys, err1 := strconv.ParseInt(last[1], 10, 64)
	perSec, err2 := strconv.ParseFloat(last[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return keys, perSec * 1000, true
}
