package paint

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/canvaspaint/internal/raster"
	"github.com/jask/canvaspaint/internal/remote"
)

func newTestJob(t *testing.T, r *raster.Raster) *Job {
	t.Helper()
	job, err := NewJob(JobSpec{
		Raster:  r,
		Palette: testPalette(),
		Origin:  &Point{X: 100, Y: 200},
		Region:  &Point{X: 1052, Y: 673},
		Filter:  DefaultFilter(),
	})
	require.NoError(t, err)
	return job
}

func newTestOrchestrator(c Canvas, clock *fakeClock, rep Reporter) *Orchestrator {
	return NewOrchestrator(c, Options{
		Timing:   DefaultTiming(),
		Jitter:   edgeJitter{},
		Sleep:    clock.Sleep,
		Reporter: rep,
	})
}

func twoByOne(t *testing.T) *raster.Raster {
	t.Helper()
	r, err := raster.New(2, 1, []uint8{
		10, 10, 10, 255,
		10, 10, 10, 0,
	})
	require.NoError(t, err)
	return r
}

func TestNewJobPreconditions(t *testing.T) {
	r := twoByOne(t)
	origin, region := &Point{}, &Point{}
	cases := []JobSpec{
		{Palette: testPalette(), Origin: origin, Region: region},
		{Raster: r, Origin: origin, Region: region},
		{Raster: r, Palette: testPalette(), Region: region},
		{Raster: r, Palette: testPalette(), Origin: origin},
	}
	for _, spec := range cases {
		_, err := NewJob(spec)
		require.ErrorIs(t, err, ErrPrecondition)
	}
}

func TestRunSingleWriteMappedThroughOrigin(t *testing.T) {
	job := newTestJob(t, twoByOne(t))
	require.Equal(t, 1, job.Total)

	canvas := &fakeCanvas{}
	rep := &recordingReporter{}
	report, err := newTestOrchestrator(canvas, &fakeClock{}, rep).Run(context.Background(), job)
	require.NoError(t, err)

	require.Equal(t, Completed, report.Status)
	require.Equal(t, 1, report.Painted)
	require.Equal(t, 1, report.Total)
	require.Equal(t, Cursor{}, job.Cursor)
	require.Equal(t, []writeCall{{Region: Point{X: 1052, Y: 673}, X: 100, Y: 200, Color: 1}}, canvas.writes)

	require.Len(t, rep.attempts, 1)
	require.Equal(t, remote.Painted, rep.attempts[0].Outcome)
	final := rep.progress[len(rep.progress)-1]
	require.Equal(t, 1, final.Painted)
	require.Equal(t, 100, final.Percent())
}

func TestRunPacesEveryWrite(t *testing.T) {
	r := randomRaster(t, 5, 4, 4)
	job := newTestJob(t, r)
	clock := &fakeClock{}
	canvas := &fakeCanvas{}
	_, err := newTestOrchestrator(canvas, clock, nil).Run(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, canvas.writes, job.Total)
	require.Len(t, clock.sleeps, job.Total)
	for _, d := range clock.sleeps {
		require.Equal(t, 150*time.Millisecond, d)
	}
}

func TestRunVisitsScanOrder(t *testing.T) {
	r := randomRaster(t, 9, 6, 5)
	job := newTestJob(t, r)
	canvas := &fakeCanvas{}
	_, err := newTestOrchestrator(canvas, &fakeClock{}, nil).Run(context.Background(), job)
	require.NoError(t, err)

	cells := slices.Collect(NewScanner(r, DefaultFilter(), testMatcher(t), Cursor{}).Cells())
	require.Len(t, canvas.writes, len(cells))
	for i, c := range cells {
		require.Equal(t, writeCall{Region: job.Region, X: 100 + c.X, Y: 200 + c.Y, Color: c.Color}, canvas.writes[i])
	}
}

func TestRunChallengeRetriesSameCell(t *testing.T) {
	log := &eventLog{}
	canvas := &fakeCanvas{
		log:      log,
		outcomes: []remote.Outcome{remote.ChallengeRequired, remote.Painted},
		cleared:  []bool{false, true},
	}
	rep := &recordingReporter{}
	job := newTestJob(t, twoByOne(t))
	report, err := newTestOrchestrator(canvas, &fakeClock{log: log}, rep).Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, Completed, report.Status)
	require.Equal(t, 1, report.Painted)

	require.Len(t, canvas.writes, 2)
	require.Equal(t, canvas.writes[0], canvas.writes[1])

	require.Equal(t, []string{
		"charges",
		"sleep 150ms",
		"write 100,200",
		"cleared=false",
		"sleep 8s",
		"cleared=true",
		"sleep 1.2s",
		"charges",
		"sleep 150ms",
		"write 100,200",
	}, log.events)

	require.NotEmpty(t, rep.challenges)
	require.True(t, rep.challenges[0].Active)
	require.False(t, rep.challenges[len(rep.challenges)-1].Active)
}

func TestRunWaitsOutCooldown(t *testing.T) {
	log := &eventLog{}
	canvas := &fakeCanvas{
		log: log,
		charges: []chargeReply{
			{charges: remote.Charges{Count: 0, Cooldown: 31 * time.Second}},
			{charges: remote.Charges{Count: 3, Cooldown: 31 * time.Second}},
		},
	}
	rep := &recordingReporter{}
	job := newTestJob(t, twoByOne(t))
	o := NewOrchestrator(canvas, Options{Jitter: RandomJitter(), Sleep: (&fakeClock{log: log}).Sleep, Reporter: rep})
	report, err := o.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, Completed, report.Status)

	require.GreaterOrEqual(t, len(log.events), 4)
	require.Equal(t, "charges", log.events[0])
	require.Equal(t, "charges", log.events[2])

	require.Len(t, rep.waits, 1)
	w := rep.waits[0]
	require.Equal(t, WaitCooldown, w.Reason)
	require.GreaterOrEqual(t, w.Duration, 31*time.Second)
	require.LessOrEqual(t, w.Duration, 31*time.Second+800*time.Millisecond)
	require.Equal(t, "sleep "+w.Duration.String(), log.events[1])
}

func TestRunRejectedAdvancesWithoutCounting(t *testing.T) {
	r, err := raster.New(2, 1, []uint8{
		10, 10, 10, 255,
		240, 30, 30, 255,
	})
	require.NoError(t, err)
	job := newTestJob(t, r)
	canvas := &fakeCanvas{outcomes: []remote.Outcome{remote.Rejected, remote.Painted}}
	report, err := newTestOrchestrator(canvas, &fakeClock{}, nil).Run(context.Background(), job)
	require.NoError(t, err)

	require.Equal(t, Completed, report.Status)
	require.Len(t, canvas.writes, 2)
	require.Equal(t, 100, canvas.writes[0].X)
	require.Equal(t, 101, canvas.writes[1].X)
	require.Equal(t, 1, report.Painted)
	require.Equal(t, 1, report.Rejected)
}

func TestRunTransientErrorRetriesAfterBackoff(t *testing.T) {
	log := &eventLog{}
	canvas := &fakeCanvas{
		log:      log,
		outcomes: []remote.Outcome{remote.TransientError, remote.TransientError, remote.Painted},
	}
	rep := &recordingReporter{}
	job := newTestJob(t, twoByOne(t))
	report, err := newTestOrchestrator(canvas, &fakeClock{log: log}, rep).Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, 1, report.Painted)
	require.Len(t, canvas.writes, 3)
	require.Equal(t, []string{
		"charges",
		"sleep 150ms", "write 100,200", "sleep 800ms",
		"sleep 150ms", "write 100,200", "sleep 800ms",
		"sleep 150ms", "write 100,200",
	}, log.events)
	require.Len(t, rep.waits, 2)
	require.Equal(t, WaitTransient, rep.waits[0].Reason)
}

func TestRunStopKeepsCursorAndResumes(t *testing.T) {
	r := randomRaster(t, 21, 8, 6)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := newTestJob(t, r)
	require.Greater(t, job.Total, 4)
	canvas := &fakeCanvas{}
	// the fourth pacing sleep sees the stop, so three cells get painted
	clock := &fakeClock{cancelAt: 4, cancel: cancel}
	report, err := newTestOrchestrator(canvas, clock, nil).Run(ctx, job)
	require.NoError(t, err)
	require.Equal(t, Stopped, report.Status)
	require.Equal(t, 3, report.Painted)
	require.Len(t, canvas.writes, 3)

	cells := slices.Collect(NewScanner(r, DefaultFilter(), testMatcher(t), Cursor{}).Cells())
	require.Equal(t, Cursor{Row: cells[3].Y, Col: cells[3].X}, job.Cursor)
	require.Equal(t, job.Cursor, report.Cursor)

	// resume on the same job
	report, err = newTestOrchestrator(canvas, &fakeClock{}, nil).Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, Completed, report.Status)
	require.Equal(t, job.Total, report.Painted)
	require.Len(t, canvas.writes, len(cells))
	for i, c := range cells {
		require.Equal(t, 100+c.X, canvas.writes[i].X)
		require.Equal(t, 200+c.Y, canvas.writes[i].Y)
	}
}

func TestRunCancelledDuringChallengeAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	canvas := &fakeCanvas{
		outcomes: []remote.Outcome{remote.ChallengeRequired},
		cleared:  []bool{false},
	}
	job := newTestJob(t, twoByOne(t))
	// sleep 1 is pacing, sleep 2 the first challenge backoff
	clock := &fakeClock{cancelAt: 2, cancel: cancel}
	report, err := newTestOrchestrator(canvas, clock, nil).Run(ctx, job)
	require.ErrorIs(t, err, ErrRecoveryCancelled)
	require.Equal(t, Aborted, report.Status)
	require.Zero(t, report.Painted)
	require.Equal(t, Cursor{Row: 0, Col: 0}, job.Cursor)
}

func TestRunInitialChallengeRecoversFirst(t *testing.T) {
	log := &eventLog{}
	canvas := &fakeCanvas{
		log: log,
		charges: []chargeReply{
			{err: remote.ErrChallengeRequired},
			{charges: remote.Charges{Count: 10, Cooldown: time.Second}},
		},
		cleared: []bool{true},
	}
	job := newTestJob(t, twoByOne(t))
	report, err := newTestOrchestrator(canvas, &fakeClock{log: log}, nil).Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, Completed, report.Status)
	require.Equal(t, []string{
		"charges", "cleared=true", "sleep 1.2s", "charges", "sleep 150ms", "write 100,200",
	}, log.events)
}

func TestRunCooldownRefreshRaisesChallenge(t *testing.T) {
	log := &eventLog{}
	canvas := &fakeCanvas{
		log: log,
		charges: []chargeReply{
			{charges: remote.Charges{Count: 0, Cooldown: 5 * time.Second}},
			{err: remote.ErrChallengeRequired},
			{charges: remote.Charges{Count: 2, Cooldown: 5 * time.Second}},
		},
		cleared: []bool{true},
	}
	job := newTestJob(t, twoByOne(t))
	report, err := newTestOrchestrator(canvas, &fakeClock{log: log}, nil).Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, Completed, report.Status)
	require.Equal(t, []string{
		"charges",
		"sleep 5.1s",
		"charges",
		"cleared=true", "sleep 1.2s",
		"charges",
		"sleep 150ms", "write 100,200",
	}, log.events)
}

func TestRunAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	canvas := &fakeCanvas{}
	job := newTestJob(t, twoByOne(t))
	report, err := newTestOrchestrator(canvas, &fakeClock{}, nil).Run(ctx, job)
	require.NoError(t, err)
	require.Equal(t, Stopped, report.Status)
	require.Empty(t, canvas.writes)
}

func TestJobResizeRecounts(t *testing.T) {
	pix := make([]uint8, 4*2*2)
	for i := 0; i < len(pix); i += 4 {
		pix[i+3] = 255
	}
	r, err := raster.New(2, 2, pix)
	require.NoError(t, err)
	job := newTestJob(t, r)
	job.Painted, job.Cursor = 3, Cursor{Row: 1, Col: 1}
	require.Equal(t, 4, job.Total)

	require.NoError(t, job.Resize(10, 12))
	require.Equal(t, 120, job.Total)
	require.Zero(t, job.Painted)
	require.Equal(t, Cursor{}, job.Cursor)
	require.Equal(t, 10, job.Raster.Width)
}
