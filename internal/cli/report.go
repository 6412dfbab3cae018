package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/darcy0x/nethawk/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a session's aggregated findings",
	Long: `Report deduplicates everything the session's runs recorded (latest
observation of each fact wins) and renders it in the chosen format.
Rendering the same session twice produces identical output.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	e, err := buildEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.sessionID == "" {
		return fmt.Errorf("report needs a session (use --session)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	sess, err := e.eng.Sessions().Open(ctx, e.sessionID, e.labMode)
	if err != nil {
		return err
	}
	findings, err := sess.Findings(ctx)
	if err != nil {
		return err
	}

	rep := report.Aggregate(sess.ID, sess.LabMode, findings, report.CollectSystem(ctx))
	renderer, err := report.New(e.format)
	if err != nil {
		return err
	}

	out, done, err := e.outWriter()
	if err != nil {
		return err
	}
	defer done()
	return renderer.Render(ctx, rep, out)
}
