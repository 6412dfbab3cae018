package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/darcy0x/nethawk/internal/engine"
	"github.com/darcy0x/nethawk/internal/finding"
	"github.com/darcy0x/nethawk/internal/module"
)

var passiveCmd = &cobra.Command{
	Use:   "passive",
	Short: "Discover wireless networks and clients by listening",
	Long: `Passive switches the interface into monitor mode and records every
access point and station visible during the capture window. Nothing is
transmitted.`,
	RunE: runPassive,
}

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "Sweep a network range for hosts, ports and services",
	Long: `Active discovers live hosts in the target range, scans their ports,
and identifies the services behind them. The vulnerability stage and
the DNS stage run only when requested.`,
	RunE: runActive,
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a WPA handshake from a target access point",
	Long: `Capture runs a targeted monitor-mode capture against one BSSID and
verifies the recorded EAPOL exchange. Deauthentication bursts require
explicit authorization.`,
	RunE: runCapture,
}

var crackCmd = &cobra.Command{
	Use:   "crack",
	Short: "Recover a WPA key from a captured handshake",
	Long: `Crack drives aircrack-ng or hashcat over the configured wordlists
against a capture file. Exhausting every wordlist without a match is a
completed run.`,
	RunE: runCrack,
}

func init() {
	rootCmd.AddCommand(passiveCmd, activeCmd, captureCmd, crackCmd)

	passiveCmd.Flags().StringP("interface", "i", "", "Wireless interface (required)")
	passiveCmd.Flags().Duration("window", 0, "Capture window (default from configuration)")

	activeCmd.Flags().StringP("target", "t", "", "Network range, CIDR or single address (required)")
	activeCmd.Flags().StringP("ports", "p", "", "Port specification (nmap syntax)")
	activeCmd.Flags().Bool("vuln", false, "Run the vulnerability stage (requires authorization)")
	activeCmd.Flags().String("domain", "", "Resolve DNS records for this domain")

	captureCmd.Flags().StringP("interface", "i", "", "Wireless interface (required)")
	captureCmd.Flags().StringP("bssid", "b", "", "Target access point BSSID (required)")
	captureCmd.Flags().String("essid", "", "Target network name, recorded with the handshake")
	captureCmd.Flags().IntP("channel", "c", 0, "Target channel")
	captureCmd.Flags().Duration("window", 0, "Capture window (default from configuration)")
	captureCmd.Flags().Bool("deauth", false, "Send deauthentication bursts (requires authorization)")

	crackCmd.Flags().String("capture", "", "Capture file with the handshake (required)")
	crackCmd.Flags().StringP("bssid", "b", "", "Target access point BSSID (required)")
	crackCmd.Flags().String("essid", "", "Target network name, recorded with the result")
	crackCmd.Flags().StringArrayP("wordlist", "w", nil, "Wordlist path (repeatable, overrides configuration)")
	crackCmd.Flags().String("tool", "", "Cracking engine: aircrack-ng or hashcat")
	crackCmd.Flags().String("strategy", "", "first-match or exhaustive")
}

func runPassive(cmd *cobra.Command, args []string) error {
	iface, _ := cmd.Flags().GetString("interface")
	window, _ := cmd.Flags().GetDuration("window")
	return runModule(cmd, module.NamePassive,
		module.Target{Interface: iface},
		module.Options{Window: window})
}

func runActive(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetString("target")
	ports, _ := cmd.Flags().GetString("ports")
	vuln, _ := cmd.Flags().GetBool("vuln")
	domain, _ := cmd.Flags().GetString("domain")
	return runModule(cmd, module.NameActive,
		module.Target{CIDR: target},
		module.Options{Ports: ports, VulnScan: vuln, Domain: domain})
}

func runCapture(cmd *cobra.Command, args []string) error {
	iface, _ := cmd.Flags().GetString("interface")
	bssid, _ := cmd.Flags().GetString("bssid")
	essid, _ := cmd.Flags().GetString("essid")
	channel, _ := cmd.Flags().GetInt("channel")
	window, _ := cmd.Flags().GetDuration("window")
	deauth, _ := cmd.Flags().GetBool("deauth")
	return runModule(cmd, module.NameCapture,
		module.Target{Interface: iface, BSSID: bssid, ESSID: essid, Channel: channel},
		module.Options{Window: window, Deauth: deauth})
}

func runCrack(cmd *cobra.Command, args []string) error {
	capturePath, _ := cmd.Flags().GetString("capture")
	bssid, _ := cmd.Flags().GetString("bssid")
	essid, _ := cmd.Flags().GetString("essid")
	wordlists, _ := cmd.Flags().GetStringArray("wordlist")
	tool, _ := cmd.Flags().GetString("tool")
	strategy, _ := cmd.Flags().GetString("strategy")
	return runModule(cmd, module.NameCrack,
		module.Target{CaptureFile: capturePath, BSSID: bssid, ESSID: essid},
		module.Options{Wordlists: wordlists, CrackTool: tool, Strategy: strategy})
}

// runModule wires the runtime, runs one module to a terminal state, and
// prints the outcome. CTRL+C cancels the run; the interface restore and
// session write still happen.
func runModule(cmd *cobra.Command, name string, target module.Target, opts module.Options) error {
	e, err := buildEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	res, sess, err := e.eng.Run(ctx, engine.Request{
		Module:    name,
		Target:    target,
		Options:   opts,
		SessionID: e.sessionID,
		LabMode:   e.labMode,
	})
	if err != nil {
		return err
	}

	printResult(cmd, res, sess.ID)
	if res.State == module.StateFailed {
		return fmt.Errorf("%s: %s", name, res.Reason)
	}
	return nil
}

func printResult(cmd *cobra.Command, res *module.Result, sessionID string) {
	out := cmd.OutOrStdout()
	duration := res.EndedAt.Sub(res.StartedAt).Round(time.Millisecond)
	fmt.Fprintf(out, "[%s] %s: %s (%s, session %s)\n",
		res.State, res.Module, res.Reason, duration, sessionID)

	counts := res.Counts()
	for _, kind := range finding.KindOrder() {
		if n := counts[kind]; n > 0 {
			fmt.Fprintf(out, "  %s: %d\n", kind, n)
		}
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}
