package paint

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jask/canvaspaint/internal/remote"
)

const defaultLogInterval = 10

// Canvas is the remote side of a run.
type Canvas interface {
	ChargeSource
	ClearChecker
	WritePixel(ctx context.Context, region remote.Point, x, y, colorID int) remote.WriteResult
}

// Options tune an Orchestrator. Zero values fall back to defaults.
type Options struct {
	Timing      Timing
	LogInterval int
	Jitter      Jitter
	Sleep       Sleeper
	Reporter    Reporter
	Logger      *slog.Logger
}

// Orchestrator runs jobs one cell at a time. At most one write is in flight.
type Orchestrator struct {
	canvas      Canvas
	timing      Timing
	logInterval int
	jitter      Jitter
	sleep       Sleeper
	reporter    Reporter
	log         *slog.Logger
}

func NewOrchestrator(c Canvas, opts Options) *Orchestrator {
	o := &Orchestrator{
		canvas:      c,
		timing:      opts.Timing,
		logInterval: opts.LogInterval,
		jitter:      opts.Jitter,
		sleep:       opts.Sleep,
		reporter:    opts.Reporter,
		log:         orDiscard(opts.Logger),
	}
	if o.timing == (Timing{}) {
		o.timing = DefaultTiming()
	}
	if o.logInterval <= 0 {
		o.logInterval = defaultLogInterval
	}
	if o.jitter == nil {
		o.jitter = RandomJitter()
	}
	if o.sleep == nil {
		o.sleep = Sleep
	}
	if o.reporter == nil {
		o.reporter = NopReporter{}
	}
	return o
}

// step tells the loop what to do with the current cell.
type step int

const (
	stepAdvance step = iota
	stepRetry
	stepAbort
)

type run struct {
	*Orchestrator
	job  *Job
	gov  *Governor
	mon  *Monitor
	scan *Scanner
}

// Run paints job from its cursor until the raster is exhausted, ctx is
// cancelled (Stopped) or challenge recovery is cancelled (Aborted, with
// ErrRecoveryCancelled). The job's cursor is left at the resume point.
func (o *Orchestrator) Run(ctx context.Context, job *Job) (Report, error) {
	start := time.Now()
	r := &run{
		Orchestrator: o,
		job:          job,
		gov:          NewGovernor(o.canvas, o.timing, o.jitter, o.log),
		mon:          NewMonitor(o.canvas, o.timing, o.jitter, o.sleep, o.log, o.reporter.Challenge),
		scan:         job.Scanner(),
	}
	o.log.Info("painting started",
		"total", job.Total, "origin", job.Origin.String(), "region", job.Region.String(),
		"resume_row", job.Cursor.Row, "resume_col", job.Cursor.Col)

	r.refresh(ctx)
	r.progress()

	finish := func(s Status) Report {
		return Report{
			Status:   s,
			Painted:  job.Painted,
			Rejected: job.Rejected,
			Total:    job.Total,
			Cursor:   job.Cursor,
			Elapsed:  time.Since(start),
		}
	}

	for {
		if ctx.Err() != nil {
			job.Cursor = r.scan.Position()
			o.log.Info("painting paused", "x", job.Cursor.Col, "y", job.Cursor.Row, "painted", job.Painted)
			return finish(Stopped), nil
		}
		cell, ok := r.scan.Current()
		if !ok {
			job.Cursor = Cursor{}
			o.log.Info("painting complete", "painted", job.Painted, "rejected", job.Rejected)
			return finish(Completed), nil
		}
		switch r.paintCell(ctx, cell) {
		case stepAdvance:
			r.scan.Advance()
		case stepRetry:
		case stepAbort:
			job.Cursor = r.scan.Position()
			o.log.Warn("painting aborted", "x", job.Cursor.Col, "y", job.Cursor.Row, "painted", job.Painted)
			return finish(Aborted), ErrRecoveryCancelled
		}
	}
}

func (r *run) paintCell(ctx context.Context, cell Cell) step {
	if r.mon.Active() {
		return r.recover(ctx)
	}
	if !r.gov.HasCharge() {
		return r.replenish(ctx)
	}

	if err := r.sleep(ctx, r.jitter.Between(r.timing.PaceMin, r.timing.PaceMax)); err != nil {
		return stepRetry
	}

	at := r.job.Canvas(cell)
	// a stop request never interrupts a write already decided on
	res := r.canvas.WritePixel(context.WithoutCancel(ctx), r.job.Region, at.X, at.Y, cell.Color)
	r.reporter.Attempt(Attempt{Cell: cell, At: at, Outcome: res.Outcome, Err: res.Err})

	switch res.Outcome {
	case remote.Painted:
		r.job.Painted++
		if err := r.gov.ConsumeOne(); err != nil {
			r.log.Debug("charge bookkeeping drifted", "err", err)
		}
		if r.job.Painted%r.logInterval == 0 {
			r.log.Info("progress", "painted", r.job.Painted, "total", r.job.Total)
		}
		r.progress()
		return stepAdvance
	case remote.Rejected:
		r.job.Rejected++
		r.log.Debug("pixel not painted", "x", at.X, "y", at.Y, "color", cell.Color, "status", res.StatusCode)
		return stepAdvance
	case remote.ChallengeRequired:
		r.mon.Activate()
		return r.recover(ctx)
	default:
		d := r.jitter.Between(r.timing.TransientMin, r.timing.TransientMax)
		r.log.Warn("pixel write failed, retrying", "x", at.X, "y", at.Y, "err", res.Err, "backoff", d)
		r.reporter.Wait(Wait{Reason: WaitTransient, Duration: d})
		_ = r.sleep(ctx, d)
		return stepRetry
	}
}

// replenish waits out the cooldown and re-queries charges. The cell is
// always retried so the loop re-checks cancellation and the charge gate.
func (r *run) replenish(ctx context.Context) step {
	d := r.gov.WaitDuration()
	r.log.Info("no charges, waiting", "wait", FormatDuration(d))
	r.reporter.Wait(Wait{Reason: WaitCooldown, Duration: d})
	if err := r.sleep(ctx, d); err != nil {
		return stepRetry
	}
	if r.refresh(ctx) {
		return r.recover(ctx)
	}
	r.progress()
	return stepRetry
}

// recover waits for the challenge to clear, then refreshes charges.
func (r *run) recover(ctx context.Context) step {
	if err := r.mon.Await(ctx); err != nil {
		return stepAbort
	}
	r.refresh(ctx)
	return stepRetry
}

// refresh updates charges and reports whether a challenge was raised.
func (r *run) refresh(ctx context.Context) bool {
	_, err := r.gov.Refresh(ctx)
	switch {
	case err == nil:
		return false
	case errors.Is(err, remote.ErrChallengeRequired):
		r.mon.Activate()
		return true
	default:
		r.log.Warn("charge query failed", "err", err)
		return false
	}
}

func (r *run) progress() {
	r.reporter.Progress(Progress{
		Painted: r.job.Painted,
		Total:   r.job.Total,
		ETA:     r.gov.ETA(r.job.Remaining()),
		Charges: r.gov.State(),
		Cursor:  r.scan.Position(),
	})
}
