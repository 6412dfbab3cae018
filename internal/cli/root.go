// Package cli implements the nethawk command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "nethawk",
	Short: "Reconnaissance orchestration engine",
	Long: `nethawk - Reconnaissance orchestration engine

Drives the standard wireless and network reconnaissance tools
(aircrack-ng suite, nmap, nikto, dig and friends) through resumable
sessions with normalized findings and deterministic reports.

WARNING: Use this tool only against networks and systems you have
explicit permission to assess. Unauthorized access is illegal.`,
	SilenceUsage: true,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Configuration file (YAML)")
	pf.String("sessions-root", "", "Sessions directory (overrides configuration)")
	pf.StringP("session", "s", "", "Session ID to resume (default: new session)")
	pf.IntP("verbose", "v", 0, "Verbosity level (0-3)")
	pf.Bool("lab", false, "Lab mode: pre-authorize consent-gated operations")
	pf.Bool("no-vendor", false, "Disable MAC vendor lookups")
	pf.StringP("format", "f", "text", "Report format (text, json, html)")
	pf.StringP("output", "o", "", "Output file path (default: stdout)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "nethawk %s (commit: %s, built: %s)\n", version, commit, date)
	},
}
