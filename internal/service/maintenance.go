package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jask/canvaspaint/internal/database"
	"github.com/jask/canvaspaint/internal/database/repository"
)

// HistoryService reads and trims the run history.
type HistoryService struct {
	DB *sql.DB
}

// RunSummary is a run with its attempt tallies.
type RunSummary struct {
	repository.Run
	Outcomes map[string]int
}

// Recent returns up to limit runs, newest first.
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("history: db not configured")
	}
	runs, err := repository.NewRunRepo(s.DB).List(ctx, limit)
	if err != nil {
		return nil, err
	}
	attempts := repository.NewAttemptRepo(s.DB)
	out := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		counts, err := attempts.CountByOutcome(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, RunSummary{Run: r, Outcomes: counts})
	}
	return out, nil
}

// Prune drops runs older than age.
func (s *HistoryService) Prune(ctx context.Context, age time.Duration) (int64, error) {
	if s.DB == nil {
		return 0, fmt.Errorf("history: db not configured")
	}
	return repository.NewRunRepo(s.DB).Prune(ctx, database.Now().Add(-age))
}

// Reset wipes the history. It keeps the schema intact.
func (s *HistoryService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("history: db not configured")
	}
	if err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		for _, t := range []string{"attempts", "runs"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
