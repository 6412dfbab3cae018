// Package passive implements the passive wireless discovery module:
// switch an interface into monitor mode, run an airodump-ng capture
// window, and parse the CSV snapshot into network and client findings.
package passive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/darcy0x/nethawk/internal/finding"
	"github.com/darcy0x/nethawk/internal/module"
	"github.com/darcy0x/nethawk/internal/oui"
	"github.com/darcy0x/nethawk/internal/parse"
	"github.com/darcy0x/nethawk/internal/session"
	"github.com/darcy0x/nethawk/internal/toolkit"
	"github.com/darcy0x/nethawk/internal/wireless"
)

const defaultWindow = 60 * time.Second

// Deps wires the module to the engine's shared components.
type Deps struct {
	Runner   module.Runner
	Tools    module.Tools
	Wireless *wireless.Manager
	Locks    *wireless.LockTable
	Session  *session.Session
	Vendors  oui.Resolver
	Logger   *slog.Logger

	// OnProgress receives short status lines during the run.
	OnProgress func(string)
}

// Module is the passive discovery workflow.
type Module struct {
	deps Deps
}

var _ module.Module = (*Module)(nil)

// New creates the module. Nil optional deps get working no-ops.
func New(deps Deps) *Module {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Vendors == nil {
		deps.Vendors = oui.Disabled{}
	}
	if deps.OnProgress == nil {
		deps.OnProgress = func(string) {}
	}
	return &Module{deps: deps}
}

// Name implements module.Module.
func (m *Module) Name() string { return module.NamePassive }

// Run drives idle -> monitor_mode_enabling -> capturing -> parsing ->
// done. The capture window is a module-level wall clock: airodump-ng
// runs until signalled, so the window context stopping it is the
// normal end of the stage, not an error.
func (m *Module) Run(ctx context.Context, target module.Target, opts module.Options) (*module.Result, error) {
	if err := target.RequireInterface(); err != nil {
		return nil, err
	}
	window := opts.Window
	if window <= 0 {
		window = defaultWindow
	}

	mach := module.NewMachine(module.NamePassive)
	var warnings []string

	if missing := m.deps.Tools.Missing(toolkit.ToolAirodump); len(missing) > 0 {
		mach.Fail(fmt.Sprintf("required tools not installed: %s", strings.Join(missing, ", ")))
		return finish(mach, nil, warnings), nil
	}

	owner := module.NamePassive + ":" + m.deps.Session.ID
	if err := m.deps.Locks.Acquire(target.Interface, owner); err != nil {
		mach.Fail(err.Error())
		return finish(mach, nil, warnings), nil
	}
	defer m.deps.Locks.Release(target.Interface, owner)

	// ---- monitor_mode_enabling ----
	mach.To(module.StateMonitorModeEnabling)
	m.deps.OnProgress(fmt.Sprintf("enabling monitor mode on %s", target.Interface))

	for _, proc := range m.deps.Wireless.CheckInterferers(ctx) {
		warnings = append(warnings, fmt.Sprintf("process may interfere with capture: %s (pid %d)", proc.Name, proc.PID))
	}

	mon, err := m.deps.Wireless.EnableMonitor(ctx, target.Interface)
	if err != nil {
		if ctx.Err() != nil {
			mach.Cancel("cancelled while enabling monitor mode")
		} else {
			mach.Fail(err.Error())
		}
		return finish(mach, nil, warnings), nil
	}
	defer func() {
		restoreCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := mon.Restore(restoreCtx); err != nil {
			m.deps.Logger.Warn("interface restore failed", "interface", target.Interface, "error", err)
		}
	}()

	// ---- capturing ----
	mach.To(module.StateCapturing)
	m.deps.OnProgress(fmt.Sprintf("capturing on %s for %s", mon.MonitorInterface, window))

	name := m.deps.Session.ArtifactName("passive", "")
	prefix := filepath.Join(m.deps.Session.Dir(session.DirCaptures), name)

	windowCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	inv, err := m.deps.Runner.Run(windowCtx, toolkit.RunSpec{
		Tool: toolkit.ToolAirodump,
		Path: m.deps.Tools.Describe(toolkit.ToolAirodump).Path,
		Args: []string{
			"--output-format", "csv",
			"--write", prefix,
			"--write-interval", "1",
			mon.MonitorInterface,
		},
	})
	if err != nil {
		var spawn *toolkit.SpawnError
		switch {
		case errors.As(err, &spawn):
			mach.Fail(err.Error())
			return finish(mach, nil, warnings), nil
		case ctx.Err() != nil:
			mach.Cancel("cancelled during capture")
			return finish(mach, nil, warnings), nil
		}
		// The window deadline stopping airodump is the normal path.
	}
	if inv != nil && inv.Stop == toolkit.StopExited && inv.ExitCode != 0 {
		mach.Fail(fmt.Sprintf("airodump-ng exited early: %s", firstLine(inv.Stderr)))
		return finish(mach, nil, warnings), nil
	}

	// ---- parsing ----
	mach.To(module.StateParsing)
	csvRel := filepath.Join(session.DirCaptures, name+"-01.csv")
	data, err := os.ReadFile(prefix + "-01.csv")
	if err != nil {
		mach.Fail(fmt.Sprintf("capture produced no output file: %v", err))
		return finish(mach, nil, warnings), nil
	}

	result, err := parse.Airodump(data)
	var incompleteErr *parse.IncompleteError
	if errors.As(err, &incompleteErr) {
		warnings = append(warnings, incompleteErr.Error())
	}

	findings := m.buildFindings(ctx, result, csvRel)
	for i := range findings {
		if err := m.deps.Session.SaveFinding(ctx, &findings[i]); err != nil {
			mach.Fail(fmt.Sprintf("persist findings: %v", err))
			return finish(mach, findings, warnings), nil
		}
	}

	mach.Done(fmt.Sprintf("%d networks, %d clients", len(result.Networks), len(result.Clients)))
	return finish(mach, findings, warnings), nil
}

// buildFindings converts parsed rows into findings, enriching with
// vendor names. Lookups happen here, strictly after the capture ended.
func (m *Module) buildFindings(ctx context.Context, result *parse.AirodumpResult, origin string) []finding.Finding {
	var findings []finding.Finding
	for _, net := range result.Networks {
		net := net
		net.Vendor = m.deps.Vendors.Vendor(ctx, net.BSSID)
		f := finding.New(m.deps.Session.ID, finding.KindWirelessNetwork, toolkit.ToolAirodump)
		f.NaturalKey = finding.NetworkKey(net.BSSID)
		f.Origin = origin
		f.Network = &net
		findings = append(findings, f)
	}
	for _, client := range result.Clients {
		client := client
		client.Vendor = m.deps.Vendors.Vendor(ctx, client.Station)
		f := finding.New(m.deps.Session.ID, finding.KindWirelessClient, toolkit.ToolAirodump)
		f.NaturalKey = finding.ClientKey(client.Station)
		f.Origin = origin
		f.Client = &client
		findings = append(findings, f)
	}
	return findings
}

func finish(mach *module.Machine, findings []finding.Finding, warnings []string) *module.Result {
	res := mach.Result()
	res.Findings = findings
	res.Warnings = warnings
	return res
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
