package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darcy0x/nethawk/internal/toolkit"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Show which external tools are installed",
	Long: `Tools probes every external collaborator the engine knows and reports
its path and version. Missing tools are listed too; modules degrade or
refuse to run depending on what they need.`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	registry := toolkit.NewRegistry(toolkit.RegistryOptions{ProbeVersions: true})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-14s %-10s %-10s %s\n", "TOOL", "STATUS", "VERSION", "PATH")
	for _, desc := range registry.Descriptors() {
		status := "missing"
		if desc.Available {
			status = "ok"
		}
		version := desc.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(out, "%-14s %-10s %-10s %s\n", desc.Name, status, version, desc.Path)
	}
	return nil
}
