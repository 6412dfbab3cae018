// Package crack implements offline WPA key recovery against a captured
// handshake, driving aircrack-ng or hashcat over a validated wordlist
// chain. Exhausting every wordlist without recovering the key is a
// completed run, not a failed one.
package crack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/darcy0x/nethawk/internal/finding"
	"github.com/darcy0x/nethawk/internal/module"
	"github.com/darcy0x/nethawk/internal/parse"
	"github.com/darcy0x/nethawk/internal/session"
	"github.com/darcy0x/nethawk/internal/toolkit"
)

// Strategy names. First-match stops at the first recovered key;
// exhaustive runs the full chain regardless.
const (
	StrategyFirstMatch = "first-match"
	StrategyExhaustive = "exhaustive"
)

// Deps wires the module to the engine's shared components.
type Deps struct {
	Runner  module.Runner
	Tools   module.Tools
	Session *session.Session
	Logger  *slog.Logger

	OnProgress func(string)
}

// Module is the key recovery workflow.
type Module struct {
	deps Deps
}

var _ module.Module = (*Module)(nil)

// New creates the module.
func New(deps Deps) *Module {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.OnProgress == nil {
		deps.OnProgress = func(string) {}
	}
	return &Module{deps: deps}
}

// Name implements module.Module.
func (m *Module) Name() string { return module.NameCrack }

// Run drives idle -> wordlist_validation -> cracking -> parsing ->
// done. An absent or empty capture artifact fails before any engine
// spawns; a clean run that recovers nothing still ends done, carrying a
// not-cracked result.
func (m *Module) Run(ctx context.Context, target module.Target, opts module.Options) (*module.Result, error) {
	if target.CaptureFile == "" {
		return nil, fmt.Errorf("module: target needs a capture file")
	}
	if err := target.RequireBSSID(); err != nil {
		return nil, err
	}
	if opts.CrackTool == "" {
		opts.CrackTool = toolkit.ToolAircrack
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyFirstMatch
	}
	if opts.Strategy != StrategyFirstMatch && opts.Strategy != StrategyExhaustive {
		return nil, fmt.Errorf("module: unknown crack strategy %q", opts.Strategy)
	}

	mach := module.NewMachine(module.NameCrack)
	var warnings []string

	if err := target.RequireCaptureFile(); err != nil {
		missing := &module.ArtifactMissingError{
			Module:   module.NameCrack,
			Artifact: target.CaptureFile,
			Reason:   err.Error(),
		}
		mach.Fail(missing.Error())
		return finish(mach, nil, warnings), nil
	}

	required := []string{toolkit.ToolAircrack}
	if opts.CrackTool == toolkit.ToolHashcat {
		required = []string{toolkit.ToolHashcat, toolkit.ToolCap2hccapx}
	}
	if missing := m.deps.Tools.Missing(required...); len(missing) > 0 {
		mach.Fail(fmt.Sprintf("required tools not installed: %s", strings.Join(missing, ", ")))
		return finish(mach, nil, warnings), nil
	}

	// ---- wordlist_validation ----
	mach.To(module.StateWordlistValidation)
	wordlists, err := resolveWordlists(opts)
	if err != nil {
		mach.Fail(err.Error())
		return finish(mach, nil, warnings), nil
	}
	m.deps.OnProgress(fmt.Sprintf("%d wordlists validated", len(wordlists)))

	// ---- cracking ----
	mach.To(module.StateCracking)

	hashFile := target.CaptureFile
	if opts.CrackTool == toolkit.ToolHashcat {
		hashFile, err = m.convertCapture(ctx, target.CaptureFile, opts)
		if err != nil {
			if ctx.Err() != nil {
				mach.Cancel("cancelled during conversion")
			} else {
				mach.Fail(err.Error())
			}
			return finish(mach, nil, warnings), nil
		}
	}

	best := &parse.CrackOutcome{}
	usedWordlist := ""
	var tested int64
	for _, wl := range wordlists {
		m.deps.OnProgress(fmt.Sprintf("trying %s", filepath.Base(wl)))
		outcome, err := m.crackOnce(ctx, hashFile, wl, target, opts)
		if err != nil {
			if ctx.Err() != nil {
				mach.Cancel("cancelled during cracking")
				return finish(mach, nil, warnings), nil
			}
			var incompleteErr *parse.IncompleteError
			if errors.As(err, &incompleteErr) {
				warnings = append(warnings, fmt.Sprintf("%s: %v", filepath.Base(wl), incompleteErr))
				continue
			}
			mach.Fail(err.Error())
			return finish(mach, nil, warnings), nil
		}

		tested += outcome.KeysTested
		if outcome.Found && !best.Found {
			best = outcome
			usedWordlist = wl
			if opts.Strategy == StrategyFirstMatch {
				break
			}
		}
	}

	// ---- parsing ----
	mach.To(module.StateParsing)
	f := finding.New(m.deps.Session.ID, finding.KindCrackResult, opts.CrackTool)
	f.NaturalKey = finding.CrackKey(target.BSSID)
	f.Crack = &finding.CrackResult{
		BSSID:      strings.ToLower(target.BSSID),
		ESSID:      target.ESSID,
		Wordlist:   usedWordlist,
		Password:   best.Password,
		Cracked:    best.Found,
		KeysTested: tested,
	}
	if best.Found {
		f.Severity = finding.SeverityCritical
	}
	if err := m.deps.Session.SaveFinding(ctx, &f); err != nil {
		mach.Fail(fmt.Sprintf("persist finding: %v", err))
		return finish(mach, []finding.Finding{f}, warnings), nil
	}

	if best.Found {
		mach.Done(fmt.Sprintf("key recovered using %s", filepath.Base(usedWordlist)))
	} else {
		mach.Done(fmt.Sprintf("%d wordlists exhausted, key not recovered", len(wordlists)))
	}
	return finish(mach, []finding.Finding{f}, warnings), nil
}

// crackOnce runs one engine invocation against one wordlist and parses
// its complete output.
func (m *Module) crackOnce(ctx context.Context, hashFile, wordlist string, target module.Target, opts module.Options) (*parse.CrackOutcome, error) {
	tool := opts.CrackTool
	var args []string
	var onLine func(string)

	switch tool {
	case toolkit.ToolAircrack:
		args = []string{"-w", wordlist, "-b", target.BSSID, hashFile}
		onLine = func(line string) {
			if keys, rate, ok := parse.AircrackProgressLine(line); ok {
				m.deps.OnProgress(fmt.Sprintf("%d keys tested (%.0f k/s)", keys, rate/1000))
			}
		}
	case toolkit.ToolHashcat:
		args = []string{
			"-m", "2500", "-a", "0",
			"--potfile-disable", "--logfile-disable",
			"--status", "--status-timer", "10",
			hashFile, wordlist,
		}
		onLine = func(line string) {
			if done, total, ok := parse.HashcatProgressLine(line); ok {
				m.deps.OnProgress(fmt.Sprintf("%d/%d candidates", done, total))
			}
		}
	default:
		return nil, fmt.Errorf("module: unknown crack tool %q", tool)
	}

	inv, err := m.deps.Runner.Run(ctx, toolkit.RunSpec{
		Tool:    tool,
		Path:    m.deps.Tools.Describe(tool).Path,
		Args:    args,
		Timeout: opts.StageTimeout,
		OnLine:  onLine,
	})
	if err != nil {
		return nil, fmt.Errorf("%s against %s: %w", tool, filepath.Base(wordlist), err)
	}

	name := m.deps.Session.ArtifactName(tool+"_"+filepath.Base(wordlist), "log")
	if _, err := m.deps.Session.WriteArtifact(session.DirLogs, name, inv.Stdout); err != nil {
		m.deps.Logger.Warn("archiving crack output failed", "tool", tool, "error", err)
	}

	if tool == toolkit.ToolHashcat {
		// hashcat exits 1 when the hash was not cracked; only other
		// codes mean trouble.
		if inv.ExitCode != 0 && inv.ExitCode != 1 {
			return nil, fmt.Errorf("hashcat exit %d: %s", inv.ExitCode, firstLine(inv.Stderr))
		}
		return parse.Hashcat(inv.Stdout)
	}
	return parse.Aircrack(inv.Stdout)
}

// convertCapture turns a pcap into hashcat's hccapx input inside the
// session capture directory.
func (m *Module) convertCapture(ctx context.Context, capture string, opts module.Options) (string, error) {
	out := filepath.Join(m.deps.Session.Dir(session.DirCaptures),
		m.deps.Session.ArtifactName("convert", "hccapx"))
	inv, err := m.deps.Runner.Run(ctx, toolkit.RunSpec{
		Tool:    toolkit.ToolCap2hccapx,
		Path:    m.deps.Tools.Describe(toolkit.ToolCap2hccapx).Path,
		Args:    []string{capture, out},
		Timeout: opts.StageTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("cap2hccapx: %w", err)
	}
	if inv.ExitCode != 0 {
		return "", fmt.Errorf("cap2hccapx exit %d: %s", inv.ExitCode, firstLine(inv.Stderr))
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return "", fmt.Errorf("cap2hccapx produced no hashes from %s", capture)
	}
	return out, nil
}

// resolveWordlists builds the candidate chain: explicit lists win and
// must all be usable; otherwise configured directories are scanned.
// Fail fast here: spawning an engine on a missing list wastes a run.
func resolveWordlists(opts module.Options) ([]string, error) {
	if len(opts.Wordlists) > 0 {
		for _, wl := range opts.Wordlists {
			if err := usableWordlist(wl); err != nil {
				return nil, err
			}
		}
		return opts.Wordlists, nil
	}

	var found []string
	for _, dir := range opts.WordlistDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if usableWordlist(path) == nil {
				found = append(found, path)
			}
		}
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("module: no usable wordlists in %s", strings.Join(opts.WordlistDirs, ", "))
	}
	sort.Strings(found)
	return found, nil
}

func usableWordlist(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("module: wordlist %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("module: wordlist %s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("module: wordlist %s is empty", path)
	}
	return nil
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
