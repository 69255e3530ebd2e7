package repository

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Run statuses. A run stays "running" until Finish records its report.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusAborted   = "aborted"
	StatusFailed    = "failed"
)

// Run represents a runs row.
type Run struct {
	ID         string
	Image      string
	Width      int
	Height     int
	OriginX    int
	OriginY    int
	RegionX    int
	RegionY    int
	Total      int
	Painted    int
	Rejected   int
	Status     string
	CursorRow  int
	CursorCol  int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// RunResult is what Finish writes back.
type RunResult struct {
	Status     string
	Painted    int
	Rejected   int
	CursorRow  int
	CursorCol  int
	FinishedAt time.Time
}

// Attempt represents an attempts row.
type Attempt struct {
	ID      int64
	RunID   string
	X       int
	Y       int
	Color   int
	Outcome string
	Error   *string
	At      time.Time
}
