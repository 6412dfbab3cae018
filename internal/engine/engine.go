// Package engine wires the shared infrastructure together and routes a
// scan request to its module: one runner, one tool registry, one lock
// table, and a session resolved per request.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/darcy0x/nethawk/internal/config"
	"github.com/darcy0x/nethawk/internal/consent"
	"github.com/darcy0x/nethawk/internal/module"
	"github.com/darcy0x/nethawk/internal/module/active"
	"github.com/darcy0x/nethawk/internal/module/capture"
	"github.com/darcy0x/nethawk/internal/module/crack"
	"github.com/darcy0x/nethawk/internal/module/passive"
	"github.com/darcy0x/nethawk/internal/oui"
	"github.com/darcy0x/nethawk/internal/session"
	"github.com/darcy0x/nethawk/internal/toolkit"
	"github.com/darcy0x/nethawk/internal/wireless"
)

// Request is one scan to run: which module, against what, with which
// options. A zero SessionID opens a fresh session.
type Request struct {
	Module    string
	Target    module.Target
	Options   module.Options
	SessionID string
	LabMode   bool
}

// Engine owns the shared components every module run needs.
type Engine struct {
	cfg      *config.Config
	sessions *session.Manager
	runner   module.Runner
	tools    module.Tools
	gate     consent.Gate
	vendors  oui.Resolver
	locks    *wireless.LockTable
	logger   *slog.Logger

	onProgress func(string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner replaces the process runner.
func WithRunner(r module.Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithTools replaces the tool registry.
func WithTools(t module.Tools) Option {
	return func(e *Engine) { e.tools = t }
}

// WithGate sets the consent gate for traffic-injecting operations.
func WithGate(g consent.Gate) Option {
	return func(e *Engine) { e.gate = g }
}

// WithVendors replaces the MAC vendor resolver.
func WithVendors(v oui.Resolver) Option {
	return func(e *Engine) { e.vendors = v }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithProgress sets a callback receiving short status lines while a
// module runs.
func WithProgress(fn func(string)) Option {
	return func(e *Engine) { e.onProgress = fn }
}

// New creates an engine with all components wired up. Unset options get
// production defaults; the consent gate defaults to denying.
func New(cfg *config.Config, sessions *session.Manager, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		cfg:      cfg,
		sessions: sessions,
		locks:    wireless.NewLockTable(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.runner == nil {
		e.runner = toolkit.NewRunner(e.logger)
	}
	if e.tools == nil {
		e.tools = toolkit.NewRegistry(toolkit.RegistryOptions{})
	}
	if e.gate == nil {
		e.gate = &consent.Static{}
	}
	if e.vendors == nil {
		if cfg.Vendor.Lookup {
			e.vendors = oui.NewClient(oui.ClientOptions{Endpoint: cfg.Vendor.Endpoint})
		} else {
			e.vendors = oui.Disabled{}
		}
	}
	return e
}

// Sessions exposes the session manager for listing and pruning.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// LoggerForVerbosity maps the repeatable -v flag to a slog level:
// errors only by default, then warn, info, debug.
func LoggerForVerbosity(verbose int, w io.Writer) *slog.Logger {
	level := slog.LevelError
	switch {
	case verbose >= 3:
		level = slog.LevelDebug
	case verbose >= 2:
		level = slog.LevelInfo
	case verbose >= 1:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Run resolves the session, fills option defaults from configuration,
// and drives the requested module to a terminal state. The error return
// follows the module contract: bad requests only.
func (e *Engine) Run(ctx context.Context, req Request) (*module.Result, *session.Session, error) {
	sess, err := e.sessions.Open(ctx, req.SessionID, req.LabMode)
	if err != nil {
		return nil, nil, err
	}

	opts := e.withDefaults(req.Options)
	mod, err := e.build(req.Module, sess)
	if err != nil {
		return nil, sess, err
	}

	e.logger.Info("module starting",
		"module", req.Module, "session", sess.ID, "target", req.Target.String())

	res, err := mod.Run(ctx, req.Target, opts)
	if err != nil {
		return nil, sess, err
	}

	e.logger.Info("module finished",
		"module", req.Module, "state", res.State, "reason", res.Reason,
		"findings", len(res.Findings), "warnings", len(res.Warnings))
	return res, sess, nil
}

// build constructs the named module against the shared components.
func (e *Engine) build(name string, sess *session.Session) (module.Module, error) {
	wifi := wireless.NewManager(e.runner, e.tools, e.logger)

	switch name {
	case module.NamePassive:
		return passive.New(passive.Deps{
			Runner:     e.runner,
			Tools:      e.tools,
			Wireless:   wifi,
			Locks:      e.locks,
			Session:    sess,
			Vendors:    e.vendors,
			Logger:     e.logger,
			OnProgress: e.onProgress,
		}), nil
	case module.NameActive:
		return active.New(active.Deps{
			Runner:      e.runner,
			Tools:       e.tools,
			Session:     sess,
			Gate:        e.gate,
			Logger:      e.logger,
			PingWorkers: e.cfg.Active.PingWorkers,
			OnProgress:  e.onProgress,
		}), nil
	case module.NameCapture:
		return capture.New(capture.Deps{
			Runner:     e.runner,
			Tools:      e.tools,
			Wireless:   wifi,
			Locks:      e.locks,
			Session:    sess,
			Gate:       e.gate,
			Logger:     e.logger,
			OnProgress: e.onProgress,
		}), nil
	case module.NameCrack:
		return crack.New(crack.Deps{
			Runner:     e.runner,
			Tools:      e.tools,
			Session:    sess,
			Logger:     e.logger,
			OnProgress: e.onProgress,
		}), nil
	default:
		return nil, fmt.Errorf("engine: unknown module %q", name)
	}
}

// withDefaults fills option fields the caller left zero from the
// engine configuration.
func (e *Engine) withDefaults(opts module.Options) module.Options {
	if opts.Window <= 0 {
		opts.Window = e.cfg.Capture.Window
	}
	if opts.Ports == "" {
		opts.Ports = e.cfg.Active.Ports
	}
	if opts.DeauthCount <= 0 {
		opts.DeauthCount = e.cfg.Capture.DeauthCount
	}
	if opts.DeauthBursts <= 0 {
		opts.DeauthBursts = e.cfg.Capture.DeauthBursts
	}
	if opts.DeauthInterval <= 0 {
		opts.DeauthInterval = e.cfg.Capture.DeauthInterval
	}
	if opts.VerifyAttempts <= 0 {
		opts.VerifyAttempts = e.cfg.Capture.VerifyAttempts
	}
	if len(opts.Wordlists) == 0 {
		opts.Wordlists = usableSubset(e.cfg.Crack.Wordlists)
	}
	if len(opts.WordlistDirs) == 0 {
		opts.WordlistDirs = e.cfg.Crack.WordlistDirs
	}
	if opts.Strategy == "" {
		opts.Strategy = e.cfg.Crack.Strategy
	}
	if opts.CrackTool == "" {
		opts.CrackTool = e.cfg.Crack.Tool
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = e.cfg.Active.StageTimeout
	}
	return opts
}

// usableSubset keeps only the configured wordlists that exist. An
// absent stock list falls through to the directory scan; only lists
// named explicitly on the command line fail the run when missing.
func usableSubset(paths []string) []string {
	var usable []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() && info.Size() > 0 {
			usable = append(usable, p)
		}
	}
	return usable
}
