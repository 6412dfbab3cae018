package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/darcy0x/nethawk/internal/config"
	"github.com/darcy0x/nethawk/internal/consent"
	"github.com/darcy0x/nethawk/internal/engine"
	"github.com/darcy0x/nethawk/internal/session"
)

// indexFile is the SQLite index inside the sessions root.
const indexFile = "nethawk.db"

// env is the per-invocation runtime: configuration, session manager,
// and the engine, wired from the persistent flags.
type env struct {
	cfg       *config.Config
	eng       *engine.Engine
	sessionID string
	labMode   bool
	verbose   int
	format    string
	output    string

	store *session.SQLiteStore
}

// buildEnv reads the persistent flags and wires the runtime. Callers
// must Close it.
func buildEnv(cmd *cobra.Command) (*env, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if root, _ := cmd.Flags().GetString("sessions-root"); root != "" {
		cfg.SessionsRoot = root
	}
	if noVendor, _ := cmd.Flags().GetBool("no-vendor"); noVendor {
		cfg.Vendor.Lookup = false
	}

	e := &env{cfg: cfg}
	e.sessionID, _ = cmd.Flags().GetString("session")
	e.labMode, _ = cmd.Flags().GetBool("lab")
	e.verbose, _ = cmd.Flags().GetInt("verbose")
	e.format, _ = cmd.Flags().GetString("format")
	e.output, _ = cmd.Flags().GetString("output")

	if err := os.MkdirAll(cfg.SessionsRoot, 0o750); err != nil {
		return nil, fmt.Errorf("creating sessions root: %w", err)
	}
	e.store, err = session.NewSQLiteStore(filepath.Join(cfg.SessionsRoot, indexFile))
	if err != nil {
		return nil, err
	}
	mgr, err := session.NewManager(cfg.SessionsRoot, e.store)
	if err != nil {
		e.store.Close()
		return nil, err
	}

	var gate consent.Gate
	if e.labMode {
		gate = &consent.Static{Lab: true}
	} else {
		gate = &consent.Prompt{In: os.Stdin, Out: os.Stderr}
	}

	opts := []engine.Option{
		engine.WithLogger(engine.LoggerForVerbosity(e.verbose, os.Stderr)),
		engine.WithGate(gate),
	}
	if e.verbose > 0 {
		opts = append(opts, engine.WithProgress(func(msg string) {
			fmt.Fprintf(os.Stderr, "[*] %s\n", msg)
		}))
	}
	e.eng = engine.New(cfg, mgr, opts...)
	return e, nil
}

// Close releases the session index.
func (e *env) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

// outWriter resolves --output: stdout by default, a created file
// otherwise. The returned cleanup is a no-op for stdout.
func (e *env) outWriter() (*os.File, func(), error) {
	if e.output == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(e.output)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file %q: %w", e.output, err)
	}
	return f, func() { f.Close() }, nil
}
