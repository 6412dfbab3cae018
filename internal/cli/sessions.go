package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage recorded sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions with their finding counts",
	RunE:  runSessionsList,
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove sessions older than the retention period",
	Long: `Prune removes sessions whose last update is older than the retention
period. Nothing is ever removed implicitly; this command is the only
path that deletes session data.`,
	RunE: runSessionsPrune,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsPruneCmd)
	sessionsPruneCmd.Flags().Duration("older-than", 0, "Age cutoff (default from retention_days)")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	e, err := buildEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	summaries, err := e.eng.Sessions().List(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}
	fmt.Fprintf(out, "%-16s %-10s %9s  %s\n", "SESSION", "STATUS", "FINDINGS", "UPDATED")
	for _, s := range summaries {
		fmt.Fprintf(out, "%-16s %-10s %9d  %s\n",
			s.ID, s.Status, s.Findings, s.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func runSessionsPrune(cmd *cobra.Command, args []string) error {
	e, err := buildEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	maxAge, _ := cmd.Flags().GetDuration("older-than")
	if maxAge <= 0 {
		maxAge = e.cfg.Retention()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	removed, err := e.eng.Sessions().Prune(ctx, maxAge)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(removed) == 0 {
		fmt.Fprintln(out, "Nothing to prune.")
		return nil
	}
	for _, id := range removed {
		fmt.Fprintf(out, "removed %s\n", id)
	}
	return nil
}
