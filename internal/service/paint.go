package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jask/canvaspaint/internal/database"
	"github.com/jask/canvaspaint/internal/database/repository"
	"github.com/jask/canvaspaint/internal/paint"
)

const attemptFlushSize = 25

// PaintService runs jobs and records them in the run history. History is
// audit only: a failing database never stops a run.
type PaintService struct {
	Canvas  paint.Canvas
	DB      *sql.DB
	Options paint.Options
	Logger  *slog.Logger
	Now     func() time.Time
}

func (s *PaintService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return database.Now()
}

func (s *PaintService) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Paint runs job to a terminal state. rep receives the same events the
// history recorder sees and may be nil. image is stored with the run.
func (s *PaintService) Paint(ctx context.Context, job *paint.Job, image string, rep paint.Reporter) (paint.Report, string, error) {
	opts := s.Options
	if opts.Logger == nil {
		opts.Logger = s.Logger
	}
	var reporters paint.Reporters
	if rep != nil {
		reporters = append(reporters, rep)
	}

	runID := uuid.NewString()
	var rec *historyRecorder
	if s.DB != nil {
		rec = &historyRecorder{db: s.DB, runID: runID, job: job, now: s.now, log: s.log()}
		if err := rec.start(ctx, image); err != nil {
			s.log().Warn("run history unavailable", "err", err)
			rec = nil
		} else {
			reporters = append(reporters, rec)
		}
	}
	opts.Reporter = reporters

	report, err := paint.NewOrchestrator(s.Canvas, opts).Run(ctx, job)
	if rec != nil {
		// the run context may be cancelled already
		rec.finish(context.WithoutCancel(ctx), report)
	}
	return report, runID, err
}

// historyRecorder is a paint.Reporter that buffers attempts and writes them
// in batches on the run goroutine.
type historyRecorder struct {
	db    *sql.DB
	runID string
	job   *paint.Job
	now   func() time.Time
	log   *slog.Logger

	pending []repository.Attempt
}

func (h *historyRecorder) start(ctx context.Context, image string) error {
	return repository.NewRunRepo(h.db).Create(ctx, repository.Run{
		ID:        h.runID,
		Image:     image,
		Width:     h.job.Raster.Width,
		Height:    h.job.Raster.Height,
		OriginX:   h.job.Origin.X,
		OriginY:   h.job.Origin.Y,
		RegionX:   h.job.Region.X,
		RegionY:   h.job.Region.Y,
		Total:     h.job.Total,
		Painted:   h.job.Painted,
		Rejected:  h.job.Rejected,
		CursorRow: h.job.Cursor.Row,
		CursorCol: h.job.Cursor.Col,
		StartedAt: h.now(),
	})
}

func (h *historyRecorder) Progress(paint.Progress)        {}
func (h *historyRecorder) Wait(paint.Wait)                {}
func (h *historyRecorder) Challenge(paint.ChallengeState) {}

func (h *historyRecorder) Attempt(a paint.Attempt) {
	row := repository.Attempt{
		RunID:   h.runID,
		X:       a.At.X,
		Y:       a.At.Y,
		Color:   a.Cell.Color,
		Outcome: a.Outcome.String(),
		At:      h.now(),
	}
	if a.Err != nil {
		msg := a.Err.Error()
		row.Error = &msg
	}
	h.pending = append(h.pending, row)
	if len(h.pending) >= attemptFlushSize {
		h.flush(context.Background())
	}
}

func (h *historyRecorder) flush(ctx context.Context) {
	if len(h.pending) == 0 {
		return
	}
	batch := h.pending
	h.pending = nil
	err := database.WithTx(h.db, func(tx *sql.Tx) error {
		if err := repository.NewAttemptRepo(tx).InsertAll(ctx, batch); err != nil {
			return err
		}
		return repository.NewRunRepo(tx).UpdateProgress(ctx, h.runID, h.job.Painted, h.job.Rejected)
	})
	if err != nil {
		h.log.Warn("dropping attempt history", "run", h.runID, "attempts", len(batch), "err", err)
	}
}

func (h *historyRecorder) finish(ctx context.Context, r paint.Report) {
	h.flush(ctx)
	err := repository.NewRunRepo(h.db).Finish(ctx, h.runID, repository.RunResult{
		Status:     runStatus(r.Status),
		Painted:    r.Painted,
		Rejected:   r.Rejected,
		CursorRow:  r.Cursor.Row,
		CursorCol:  r.Cursor.Col,
		FinishedAt: h.now(),
	})
	if err != nil {
		h.log.Warn("could not close run", "run", h.runID, "err", err)
	}
}

func runStatus(s paint.Status) string {
	switch s {
	case paint.Completed:
		return repository.StatusCompleted
	case paint.Stopped:
		return repository.StatusStopped
	case paint.Aborted:
		return repository.StatusAborted
	default:
		return repository.StatusFailed
	}
}
