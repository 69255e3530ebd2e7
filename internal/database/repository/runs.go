package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrRunNotFound = errors.New("run not found")

// RunRepo handles runs.
type RunRepo struct {
	db DBTX
}

func NewRunRepo(db DBTX) *RunRepo {
	return &RunRepo{db: db}
}

const runColumns = `id, image, width, height, origin_x, origin_y, region_x, region_y,
	total, painted, rejected, status, cursor_row, cursor_col, started_at, finished_at`

func (r *RunRepo) Create(ctx context.Context, run Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO runs(`+runColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Image, run.Width, run.Height, run.OriginX, run.OriginY, run.RegionX, run.RegionY,
		run.Total, run.Painted, run.Rejected, run.Status, run.CursorRow, run.CursorCol, run.StartedAt, run.FinishedAt)
	return err
}

// UpdateProgress stores the running counters without closing the run.
func (r *RunRepo) UpdateProgress(ctx context.Context, id string, painted, rejected int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE runs SET painted=?, rejected=? WHERE id=?`, painted, rejected, id)
	return err
}

// Finish records the terminal state of a run.
func (r *RunRepo) Finish(ctx context.Context, id string, res RunResult) error {
	out, err := r.db.ExecContext(ctx, `
	UPDATE runs SET status=?, painted=?, rejected=?, cursor_row=?, cursor_col=?, finished_at=?
	WHERE id=?`,
		res.Status, res.Painted, res.Rejected, res.CursorRow, res.CursorCol, res.FinishedAt, id)
	if err != nil {
		return err
	}
	n, err := out.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish %s: %w", id, ErrRunNotFound)
	}
	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get %s: %w", id, ErrRunNotFound)
	}
	return run, err
}

// List returns the most recent runs first. limit <= 0 means all.
func (r *RunRepo) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Prune deletes runs started before cutoff along with their attempts.
func (r *RunRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var run Run
	err := s.Scan(&run.ID, &run.Image, &run.Width, &run.Height, &run.OriginX, &run.OriginY,
		&run.RegionX, &run.RegionY, &run.Total, &run.Painted, &run.Rejected, &run.Status,
		&run.CursorRow, &run.CursorCol, &run.StartedAt, &run.FinishedAt)
	return run, err
}
