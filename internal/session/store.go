// Package session manages the on-disk workspace of a reconnaissance
// run: the per-session directory layout under the sessions root, and
// the SQLite index of session descriptors and their findings.
package session

import (
	"context"
	"time"

	"github.com/darcy0x/nethawk/internal/finding"
)

// Record is the persisted descriptor of one session.
type Record struct {
	ID        string    `json:"id"`
	Root      string    `json:"root"`
	Status    string    `json:"status"`
	LabMode   bool      `json:"lab_mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is a lightweight session overview for listings.
type Summary struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Findings  int64     `json:"findings"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists session descriptors and their findings. Findings are
// append-only: the same natural key observed twice yields two rows, and
// deduplication happens at report time, never at write time.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Load(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]*Summary, error)
	Delete(ctx context.Context, id string) error

	AppendFinding(ctx context.Context, f *finding.Finding) error
	Findings(ctx context.Context, sessionID string) ([]finding.Finding, error)

	// StaleSessions returns descriptors whose last update is older than
	// maxAge, for explicit retention pruning.
	StaleSessions(ctx context.Context, maxAge time.Duration) ([]*Record, error)

	Close() error
}
