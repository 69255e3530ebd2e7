package repository

import (
	"context"
)

// AttemptRepo handles attempts.
type AttemptRepo struct {
	db DBTX
}

func NewAttemptRepo(db DBTX) *AttemptRepo {
	return &AttemptRepo{db: db}
}

func (r *AttemptRepo) Insert(ctx context.Context, a Attempt) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO attempts(run_id, x, y, color, outcome, error, at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.X, a.Y, a.Color, a.Outcome, a.Error, a.At)
	return err
}

// InsertAll writes attempts in order. Run it inside a transaction for
// batches.
func (r *AttemptRepo) InsertAll(ctx context.Context, attempts []Attempt) error {
	for _, a := range attempts {
		if err := r.Insert(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// ListByRun returns a run's attempts in write order.
func (r *AttemptRepo) ListByRun(ctx context.Context, runID string) ([]Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, run_id, x, y, color, outcome, error, at
	FROM attempts WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.RunID, &a.X, &a.Y, &a.Color, &a.Outcome, &a.Error, &a.At); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountByOutcome tallies a run's attempts per outcome.
func (r *AttemptRepo) CountByOutcome(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM attempts WHERE run_id=? GROUP BY outcome`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}
