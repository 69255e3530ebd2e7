package paint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/canvaspaint/internal/remote"
)

func TestGovernorConsumeNeverNegative(t *testing.T) {
	src := &fakeCanvas{charges: []chargeReply{{charges: remote.Charges{Count: 2.5, Cooldown: time.Second}}}}
	g := NewGovernor(src, DefaultTiming(), edgeJitter{}, nil)

	require.False(t, g.HasCharge())
	require.ErrorIs(t, g.ConsumeOne(), ErrNoCharge)
	require.Zero(t, g.State().Count)

	_, err := g.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, g.HasCharge())
	require.Equal(t, 2, g.State().Available())

	require.NoError(t, g.ConsumeOne())
	require.NoError(t, g.ConsumeOne())
	require.False(t, g.HasCharge())
	require.InDelta(t, 0.5, g.State().Count, 1e-9)

	// a fractional remainder floors at zero
	require.NoError(t, g.ConsumeOne())
	require.Zero(t, g.State().Count)
	require.ErrorIs(t, g.ConsumeOne(), ErrNoCharge)
	require.Zero(t, g.State().Count)
}

func TestGovernorRefreshChallengeKeepsState(t *testing.T) {
	src := &fakeCanvas{charges: []chargeReply{
		{charges: remote.Charges{Count: 5, Cooldown: 10 * time.Second}},
		{err: remote.ErrChallengeRequired},
	}}
	g := NewGovernor(src, DefaultTiming(), edgeJitter{}, nil)

	_, err := g.Refresh(context.Background())
	require.NoError(t, err)
	st, err := g.Refresh(context.Background())
	require.ErrorIs(t, err, remote.ErrChallengeRequired)
	require.Equal(t, ChargeState{Count: 5, Cooldown: 10 * time.Second}, st)
	require.Equal(t, st, g.State())
}

func TestGovernorRefreshFailureFallsBack(t *testing.T) {
	boom := errors.New("connection reset")
	src := &fakeCanvas{charges: []chargeReply{
		{charges: remote.Charges{Count: 5, Cooldown: 10 * time.Second}},
		{err: boom},
		{charges: remote.Charges{Count: 3}},
	}}
	g := NewGovernor(src, DefaultTiming(), edgeJitter{}, nil)

	_, _ = g.Refresh(context.Background())
	st, err := g.Refresh(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, ChargeState{Cooldown: DefaultCooldown}, st)

	// a missing cooldown falls back to the default too
	st, err = g.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, ChargeState{Count: 3, Cooldown: DefaultCooldown}, st)
}

func TestGovernorWaitDurationAddsJitter(t *testing.T) {
	src := &fakeCanvas{charges: []chargeReply{{charges: remote.Charges{Count: 0, Cooldown: 31 * time.Second}}}}
	lo := NewGovernor(src, DefaultTiming(), edgeJitter{}, nil)
	hi := NewGovernor(src, DefaultTiming(), edgeJitter{high: true}, nil)
	_, _ = lo.Refresh(context.Background())
	_, _ = hi.Refresh(context.Background())

	require.Equal(t, 31*time.Second+100*time.Millisecond, lo.WaitDuration())
	require.Equal(t, 31*time.Second+800*time.Millisecond, hi.WaitDuration())

	rnd := NewGovernor(src, DefaultTiming(), RandomJitter(), nil)
	_, _ = rnd.Refresh(context.Background())
	for i := 0; i < 50; i++ {
		d := rnd.WaitDuration()
		require.GreaterOrEqual(t, d, 31*time.Second+100*time.Millisecond)
		require.LessOrEqual(t, d, 31*time.Second+800*time.Millisecond)
	}
}

func TestEstimateTime(t *testing.T) {
	cd := 30 * time.Second
	// ceil(90/10)=9 cycles + 99 pixels of overhead
	require.Equal(t, 9*cd+99*100*time.Millisecond, EstimateTime(100, 10, cd))
	// no charges: one cooldown per pixel
	require.Equal(t, 5*cd+4*100*time.Millisecond, EstimateTime(5, 0, cd))
	// enough charges for everything
	require.Equal(t, 2*100*time.Millisecond, EstimateTime(3, 20, cd))
	require.Zero(t, EstimateTime(0, 5, cd))
	require.Zero(t, EstimateTime(-3, 5, cd))
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "0s", FormatDuration(0))
	require.Equal(t, "0s", FormatDuration(-time.Second))
	require.Equal(t, "59s", FormatDuration(59*time.Second+900*time.Millisecond))
	require.Equal(t, "1m 1s", FormatDuration(61*time.Second))
	require.Equal(t, "1h 0m 0s", FormatDuration(time.Hour))
	require.Equal(t, "1d 1h 1m 1s", FormatDuration(90061*time.Second))
}

func TestTimingValidate(t *testing.T) {
	require.NoError(t, DefaultTiming().Validate())

	bad := DefaultTiming()
	bad.PaceMin, bad.PaceMax = time.Second, time.Millisecond
	require.Error(t, bad.Validate())

	bad = DefaultTiming()
	bad.BackoffMax = 0
	require.Error(t, bad.Validate())
}
