// Package wireless manages the wireless interface lifecycle around a
// capture: discovery, monitor mode switching with guaranteed restore,
// advisory interface locks, and handshake verification of finished
// capture files.
package wireless

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/darcy0x/nethawk/internal/toolkit"
)

// Runner is the slice of the toolkit runner the wireless helpers use.
type Runner interface {
	Run(ctx context.Context, spec toolkit.RunSpec) (*toolkit.Invocation, error)
}

// Tools resolves binaries through the availability registry.
type Tools interface {
	Available(name string) bool
	Describe(name string) toolkit.Descriptor
}

const iwTimeout = 10 * time.Second

// Manager switches interfaces in and out of monitor mode. It prefers
// the iw/ip sequence and falls back to airmon-ng when iw is absent.
type Manager struct {
	runner Runner
	tools  Tools
	logger *slog.Logger
}

func NewManager(runner Runner, tools Tools, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{runner: runner, tools: tools, logger: logger}
}

// Mode reports the current operating mode of iface via `iw dev <iface>
// info`. Failures degrade to ModeUnknown; the caller decides whether
// unknown is acceptable.
func (m *Manager) Mode(ctx context.Context, iface string) Mode {
	if !m.tools.Available(toolkit.ToolIW) {
		return ModeUnknown
	}
	inv, err := m.runner.Run(ctx, toolkit.RunSpec{
		Tool:    toolkit.ToolIW,
		Path:    m.tools.Describe(toolkit.ToolIW).Path,
		Args:    []string{"dev", iface, "info"},
		Timeout: iwTimeout,
	})
	if err != nil || inv.ExitCode != 0 {
		return ModeUnknown
	}
	for _, line := range strings.Split(string(inv.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "type ") {
			return parseMode(strings.TrimPrefix(line, "type "))
		}
	}
	return ModeUnknown
}

// WirelessInterfaces lists wireless devices via `iw dev`. When iw is
// unavailable it falls back to the system interface table filtered to
// conventional wireless names, with modes unknown.
func (m *Manager) WirelessInterfaces(ctx context.Context) ([]Interface, error) {
	if m.tools.Available(toolkit.ToolIW) {
		inv, err := m.runner.Run(ctx, toolkit.RunSpec{
			Tool:    toolkit.ToolIW,
			Path:    m.tools.Describe(toolkit.ToolIW).Path,
			Args:    []string{"dev"},
			Timeout: iwTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("wireless: list devices: %w", err)
		}
		if inv.ExitCode == 0 {
			return ParseIWDev(inv.Stdout), nil
		}
	}

	names, err := Interfaces()
	if err != nil {
		return nil, fmt.Errorf("wireless: list devices: %w", err)
	}
	var ifaces []Interface
	for _, name := range names {
		if strings.HasPrefix(name, "wl") || strings.HasPrefix(name, "ath") {
			ifaces = append(ifaces, Interface{Name: name, Mode: ModeUnknown})
		}
	}
	return ifaces, nil
}

// MonitorSession tracks one monitor mode switch so it can be undone.
// MonitorInterface is the device to capture on; airmon-ng renames the
// interface, the iw path keeps the original name.
type MonitorSession struct {
	Interface        string
	MonitorInterface string

	original Mode
	method   string
	mgr      *Manager
	restored bool
}

var airmonVIFPattern = regexp.MustCompile(`monitor mode (?:vif )?enabled.*?on\s+(?:\[\w+\])?(\S+?)\)?\s*$`)

// EnableMonitor switches iface into monitor mode. An interface already
// in monitor mode is left untouched and Restore becomes a no-op.
func (m *Manager) EnableMonitor(ctx context.Context, iface string) (*MonitorSession, error) {
	original := m.Mode(ctx, iface)
	session := &MonitorSession{
		Interface:        iface,
		MonitorInterface: iface,
		original:         original,
		mgr:              m,
	}

	if original == ModeMonitor {
		m.logger.Info("interface already in monitor mode", "interface", iface)
		session.restored = true
		return session, nil
	}

	switch {
	case m.tools.Available(toolkit.ToolIW) && m.tools.Available(toolkit.ToolIP):
		session.method = "iw"
		if err := m.switchMode(ctx, iface, "monitor"); err != nil {
			// A partial sequence can leave the link down; put it back
			// before reporting the failure.
			if restoreErr := m.switchMode(ctx, iface, "managed"); restoreErr != nil {
				m.logger.Warn("rollback after failed monitor switch",
					"interface", iface, "error", restoreErr)
			}
			return nil, err
		}
	case m.tools.Available(toolkit.ToolAirmon):
		session.method = "airmon-ng"
		inv, err := m.airmon(ctx, "start", iface)
		if err != nil {
			return nil, err
		}
		if vif := airmonVIF(inv.Stdout); vif != "" {
			session.MonitorInterface = vif
		}
	default:
		return nil, fmt.Errorf("wireless: enable monitor on %s: no iw/ip or airmon-ng available", iface)
	}

	m.logger.Info("monitor mode enabled",
		"interface", iface, "capture_interface", session.MonitorInterface, "method", session.method)
	return session, nil
}

// Restore returns the interface to its pre-capture mode. It is safe to
// call more than once and never escalates: a failed restore is reported
// so the operator can intervene, but the capture results stand.
func (s *MonitorSession) Restore(ctx context.Context) error {
	if s.restored {
		return nil
	}
	s.restored = true

	switch s.method {
	case "airmon-ng":
		if _, err := s.mgr.airmon(ctx, "stop", s.MonitorInterface); err != nil {
			return err
		}
	default:
		// Unknown original modes get the managed restore too; leaving
		// an adapter in monitor mode breaks normal connectivity.
		if err := s.mgr.switchMode(ctx, s.Interface, "managed"); err != nil {
			return err
		}
	}
	s.mgr.logger.Info("interface restored", "interface", s.Interface, "mode", s.original.String())
	return nil
}

// switchMode runs the ip/iw sequence: link down, set type, link up.
func (m *Manager) switchMode(ctx context.Context, iface, mode string) error {
	steps := []struct {
		tool string
		args []string
	}{
		{toolkit.ToolIP, []string{"link", "set", iface, "down"}},
		{toolkit.ToolIW, []string{"dev", iface, "set", "type", mode}},
		{toolkit.ToolIP, []string{"link", "set", iface, "up"}},
	}
	for _, step := range steps {
		inv, err := m.runner.Run(ctx, toolkit.RunSpec{
			Tool:    step.tool,
			Path:    m.tools.Describe(step.tool).Path,
			Args:    step.args,
			Timeout: iwTimeout,
		})
		if err != nil {
			return fmt.Errorf("wireless: set %s %s: %w", iface, mode, err)
		}
		if inv.ExitCode != 0 {
			return fmt.Errorf("wireless: set %s %s: %s %s: exit %d: %s",
				iface, mode, step.tool, strings.Join(step.args, " "), inv.ExitCode,
				strings.TrimSpace(string(inv.Stderr)))
		}
	}
	return nil
}

func (m *Manager) airmon(ctx context.Context, verb, iface string) (*toolkit.Invocation, error) {
	inv, err := m.runner.Run(ctx, toolkit.RunSpec{
		Tool:    toolkit.ToolAirmon,
		Path:    m.tools.Describe(toolkit.ToolAirmon).Path,
		Args:    []string{verb, iface},
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("wireless: airmon-ng %s %s: %w", verb, iface, err)
	}
	if inv.ExitCode != 0 {
		return nil, fmt.Errorf("wireless: airmon-ng %s %s: exit %d: %s",
			verb, iface, inv.ExitCode, strings.TrimSpace(string(inv.Stderr)))
	}
	return inv, nil
}

func airmonVIF(output []byte) string {
	for _, line := range strings.Split(string(output), "\n") {
		if m := airmonVIFPattern.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

// Interferer is a process airmon-ng flags as likely to touch the
// adapter during capture.
type Interferer struct {
	PID  int
	Name string
}

var interfererPattern = regexp.MustCompile(`^\s*(\d+)\s+(\S+)`)

// CheckInterferers runs `airmon-ng check` and reports the processes it
// flags. The list is advisory: nothing is ever killed automatically,
// the operator decides what a NetworkManager restart would break.
func (m *Manager) CheckInterferers(ctx context.Context) []Interferer {
	if !m.tools.Available(toolkit.ToolAirmon) {
		return nil
	}
	inv, err := m.runner.Run(ctx, toolkit.RunSpec{
		Tool:    toolkit.ToolAirmon,
		Path:    m.tools.Describe(toolkit.ToolAirmon).Path,
		Args:    []string{"check"},
		Timeout: 30 * time.Second,
	})
	if err != nil || inv.ExitCode != 0 {
		return nil
	}

	var procs []Interferer
	inTable := false
	for _, line := range strings.Split(string(inv.Stdout), "\n") {
		if strings.Contains(line, "PID") && strings.Contains(line, "Name") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		if m := interfererPattern.FindStringSubmatch(line); m != nil {
			pid, _ := strconv.Atoi(m[1])
			procs = append(procs, Interferer{PID: pid, Name: m[2]})
		}
	}
	return procs
}
