package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/darcy0x/nethawk/internal/finding"
)

const (
	doubleLine = "\u2550" // ═
	singleLine = "\u2500" // ─
	lineWidth  = 50
)

// sectionTitles names each kind for terminal output.
var sectionTitles = map[finding.Kind]string{
	finding.KindWirelessNetwork: "Wireless Networks",
	finding.KindWirelessClient:  "Wireless Clients",
	finding.KindNetworkHost:     "Live Hosts",
	finding.KindOpenPort:        "Open Ports",
	finding.KindService:         "Services",
	finding.KindVulnerability:   "Vulnerabilities",
	finding.KindHandshake:       "Handshakes",
	finding.KindCrackResult:     "Key Recovery",
	finding.KindDNSRecord:       "DNS Records",
}

// TextRenderer outputs plain terminal text.
type TextRenderer struct{}

// Format returns "text".
func (r *TextRenderer) Format() string { return "text" }

// Render writes the formatted report to w.
func (r *TextRenderer) Render(ctx context.Context, rep *Report, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &strings.Builder{}
	doubleBar := strings.Repeat(doubleLine, lineWidth)
	singleBar := strings.Repeat(singleLine, lineWidth)

	fmt.Fprintln(b, doubleBar)
	fmt.Fprintln(b, "nethawk - Reconnaissance Report")
	fmt.Fprintln(b, doubleBar)

	fmt.Fprintf(b, "Session: %s\n", rep.SessionID)
	if rep.LabMode {
		fmt.Fprintln(b, "Mode:    lab")
	}
	if rep.System.Hostname != "" {
		fmt.Fprintf(b, "Host:    %s (%s, %s)\n", rep.System.Hostname, rep.System.Platform, rep.System.Arch)
	}
	if rep.System.Kernel != "" {
		fmt.Fprintf(b, "Kernel:  %s\n", rep.System.Kernel)
	}

	if len(rep.Sections) == 0 {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintln(b, "No findings recorded.")
	}

	for _, sec := range rep.Sections {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintf(b, "%s (%d)\n", sectionTitle(sec.Kind), len(sec.Findings))
		for _, f := range sec.Findings {
			fmt.Fprintf(b, "  [%s] %s\n", f.Severity, f.Title())
			if f.Origin != "" {
				fmt.Fprintf(b, "        source: %s (%s)\n", f.Origin, f.Tool)
			} else if f.Tool != "" {
				fmt.Fprintf(b, "        source: %s\n", f.Tool)
			}
		}
	}

	fmt.Fprintln(b, doubleBar)
	fmt.Fprintf(b, "Summary: %d findings", rep.Summary.Total)
	if n := rep.Summary.BySeverity[finding.SeverityCritical.String()]; n > 0 {
		fmt.Fprintf(b, ", %d critical", n)
	}
	if n := rep.Summary.BySeverity[finding.SeverityHigh.String()]; n > 0 {
		fmt.Fprintf(b, ", %d high", n)
	}
	fmt.Fprintln(b)
	fmt.Fprintln(b, doubleBar)

	_, err := io.WriteString(w, b.String())
	return err
}

func sectionTitle(kind finding.Kind) string {
	if title, ok := sectionTitles[kind]; ok {
		return title
	}
	return string(kind)
}
