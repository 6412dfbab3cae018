package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/darcy0x/nethawk/internal/finding"
)

// SQLiteStore implements Store using SQLite via modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store.
// dbPath is the path to the SQLite database file; use ":memory:" for testing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("session: open database: %w", err)
	}

	// Verify the connection works.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: ping database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			root       TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'active',
			lab_mode   INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS findings (
			id            TEXT PRIMARY KEY,
			session_id    TEXT NOT NULL,
			kind          TEXT NOT NULL,
			natural_key   TEXT NOT NULL,
			tool          TEXT NOT NULL,
			severity      TEXT NOT NULL,
			discovered_at DATETIME NOT NULL,
			payload_json  TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_findings_session ON findings(session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_findings_dedup ON findings(session_id, kind, natural_key);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("session: create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Save persists a session descriptor, inserting or updating by ID.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("session: save: empty session id")
	}

	now := time.Now().UTC()
	rec.UpdatedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.Status == "" {
		rec.Status = "active"
	}

	query := `
		INSERT INTO sessions (id, root, status, lab_mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			root       = excluded.root,
			status     = excluded.status,
			lab_mode   = excluded.lab_mode,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Root,
		rec.Status,
		boolToInt(rec.LabMode),
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("session: save descriptor: %w", err)
	}
	return nil
}

// Load retrieves a session descriptor by ID.
// Returns (nil, nil) if no session is found.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Record, error) {
	query := `SELECT id, root, status, lab_mode, created_at, updated_at FROM sessions WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// List returns a summary of all sessions, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]*Summary, error) {
	query := `
		SELECT s.id, s.status, s.updated_at,
		       (SELECT COUNT(*) FROM findings f WHERE f.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC, s.id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("session: list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []*Summary
	for rows.Next() {
		var (
			summary   Summary
			updatedAt string
		)
		if err := rows.Scan(&summary.ID, &summary.Status, &updatedAt, &summary.Findings); err != nil {
			return nil, fmt.Errorf("session: scan summary row: %w", err)
		}
		t, err := parseStoredTime(updatedAt)
		if err != nil {
			return nil, err
		}
		summary.UpdatedAt = t
		summaries = append(summaries, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate rows: %w", err)
	}
	return summaries, nil
}

// Delete removes a session descriptor and all its findings.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM findings WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("session: delete findings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("session: delete session: %w", err)
	}
	return nil
}

// AppendFinding inserts a finding row. Inserts only: repeated
// observations of the same natural key accumulate instead of replacing
// each other.
func (s *SQLiteStore) AppendFinding(ctx context.Context, f *finding.Finding) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.SessionID == "" {
		return fmt.Errorf("session: append finding: empty session id")
	}
	if f.DiscoveredAt.IsZero() {
		f.DiscoveredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("session: marshal finding: %w", err)
	}

	query := `
		INSERT INTO findings (id, session_id, kind, natural_key, tool, severity, discovered_at, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		f.ID,
		f.SessionID,
		string(f.Kind),
		f.NaturalKey,
		f.Tool,
		f.Severity.String(),
		f.DiscoveredAt.UTC().Format(time.RFC3339Nano),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("session: append finding: %w", err)
	}
	return nil
}

// Findings returns every finding recorded for the session in discovery
// order.
func (s *SQLiteStore) Findings(ctx context.Context, sessionID string) ([]finding.Finding, error) {
	query := `
		SELECT payload_json FROM findings
		WHERE session_id = ?
		ORDER BY discovered_at, natural_key, id
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: query findings: %w", err)
	}
	defer rows.Close()

	var findings []finding.Finding
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("session: scan finding row: %w", err)
		}
		var f finding.Finding
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			return nil, fmt.Errorf("session: unmarshal finding: %w", err)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate findings: %w", err)
	}
	return findings, nil
}

// StaleSessions returns descriptors whose updated_at is older than
// maxAge from now.
func (s *SQLiteStore) StaleSessions(ctx context.Context, maxAge time.Duration) ([]*Record, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)

	query := `
		SELECT id, root, status, lab_mode, created_at, updated_at FROM sessions
		WHERE updated_at < ?
		ORDER BY updated_at
	`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("session: query stale sessions: %w", err)
	}
	defer rows.Close()

	var stale []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		stale = append(stale, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: iterate stale rows: %w", err)
	}
	return stale, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Row helpers
// --------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		labMode   int
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.Root, &rec.Status, &labMode, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("session: scan descriptor row: %w", err)
	}
	rec.LabMode = labMode != 0

	var err error
	if rec.CreatedAt, err = parseStoredTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// parseStoredTime accepts RFC3339 and falls back to the SQLite default
// format for rows created by CURRENT_TIMESTAMP.
func parseStoredTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("session: parse stored time %q: %w", value, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
