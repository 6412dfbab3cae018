package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/darcy0x/nethawk/internal/finding"
)

// Subdirectories every session owns. Creation is idempotent; nothing in
// the engine ever removes them except explicit pruning.
const (
	DirCaptures        = "captures"
	DirLogs            = "logs"
	DirVulnerabilities = "vulnerabilities"
	DirReports         = "reports"
)

// idPattern constrains human-chosen session IDs to names that are safe
// as directory names on every filesystem the tool runs on.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// autoPattern matches auto-numbered session directories.
var autoPattern = regexp.MustCompile(`^session_(\d+)$`)

// Session is a live handle on one session's workspace: its directory
// layout plus the store that indexes its findings.
type Session struct {
	ID      string
	Root    string
	LabMode bool

	store Store
}

// Manager owns the sessions root directory and hands out sessions.
type Manager struct {
	root  string
	store Store
}

// NewManager creates a manager rooted at root, indexing sessions in
// store. The root directory is created if it does not exist.
func NewManager(root string, store Store) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("session: empty sessions root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("session: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("session: create sessions root: %w", err)
	}
	return &Manager{root: abs, store: store}, nil
}

// Root returns the absolute sessions root directory.
func (m *Manager) Root() string { return m.root }

// Open returns a session handle, creating the directory layout and the
// descriptor if needed. An empty id allocates the next auto-numbered
// session. Opening an existing id is idempotent and never duplicates or
// disturbs existing artifacts.
func (m *Manager) Open(ctx context.Context, id string, labMode bool) (*Session, error) {
	if id == "" {
		next, err := m.nextAutoID()
		if err != nil {
			return nil, err
		}
		id = next
	} else if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("session: invalid session id %q", id)
	}

	root := filepath.Join(m.root, id)
	for _, sub := range []string{DirCaptures, DirLogs, DirVulnerabilities, DirReports} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o750); err != nil {
			return nil, fmt.Errorf("session: create layout: %w", err)
		}
	}

	rec, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &Record{ID: id, Root: root, LabMode: labMode}
	} else {
		rec.Root = root
		if labMode {
			rec.LabMode = true
		}
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	return &Session{ID: id, Root: root, LabMode: rec.LabMode, store: m.store}, nil
}

// List returns summaries for every indexed session.
func (m *Manager) List(ctx context.Context) ([]*Summary, error) {
	return m.store.List(ctx)
}

// Prune deletes sessions older than maxAge: their index rows and their
// directories. It returns the IDs removed. Pruning is the only code
// path that deletes session artifacts.
func (m *Manager) Prune(ctx context.Context, maxAge time.Duration) ([]string, error) {
	stale, err := m.store.StaleSessions(ctx, maxAge)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, rec := range stale {
		// Refuse to remove anything outside the managed root, no matter
		// what the descriptor claims.
		dir := filepath.Join(m.root, rec.ID)
		if rel, err := filepath.Rel(m.root, dir); err != nil || strings.HasPrefix(rel, "..") {
			return removed, fmt.Errorf("session: prune %s: directory escapes root", rec.ID)
		}
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("session: prune %s: %w", rec.ID, err)
		}
		if err := m.store.Delete(ctx, rec.ID); err != nil {
			return removed, err
		}
		removed = append(removed, rec.ID)
	}
	return removed, nil
}

// nextAutoID scans the root for session_<n> directories and allocates
// max+1, tolerating foreign directory names.
func (m *Manager) nextAutoID() (string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return "", fmt.Errorf("session: scan sessions root: %w", err)
	}

	max := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		match := autoPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		if n, err := strconv.Atoi(match[1]); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("session_%d", max+1), nil
}

// --------------------------------------------------------------------------
// Session workspace
// --------------------------------------------------------------------------

// Dir returns the absolute path of one of the session's subdirectories.
func (s *Session) Dir(sub string) string {
	return filepath.Join(s.Root, sub)
}

// ArtifactName builds a collision-free artifact file name with the given
// prefix and extension: <prefix>_<utc-timestamp>_<nonce><ext>. Two
// modules writing to the same session concurrently get distinct names.
func (s *Session) ArtifactName(prefix, ext string) string {
	stamp := time.Now().UTC().Format("20060102T150405")
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s_%s_%s%s", prefix, stamp, nonce, ext)
}

// WriteArtifact writes data to sub/name inside the session and returns
// the path relative to the session root, which is what findings record
// as their origin.
func (s *Session) WriteArtifact(sub, name string, data []byte) (string, error) {
	path := filepath.Join(s.Root, sub, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("session: write artifact: %w", err)
	}
	return filepath.Join(sub, name), nil
}

// SaveFinding stamps the finding with this session's ID and appends it
// to the store.
func (s *Session) SaveFinding(ctx context.Context, f *finding.Finding) error {
	f.SessionID = s.ID
	return s.store.AppendFinding(ctx, f)
}

// Findings returns every finding recorded for this session.
func (s *Session) Findings(ctx context.Context) ([]finding.Finding, error) {
	return s.store.Findings(ctx, s.ID)
}

// Touch refreshes the descriptor's updated_at, marking recent activity.
func (s *Session) Touch(ctx context.Context) error {
	rec, err := s.store.Load(ctx, s.ID)
	if err != nil || rec == nil {
		return err
	}
	return s.store.Save(ctx, rec)
}
