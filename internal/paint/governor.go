package paint

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/jask/canvaspaint/internal/remote"
)

const (
	DefaultCooldown = 31 * time.Second
	// per-pixel overhead assumed by ETA
	etaPerPixel = 100 * time.Millisecond
)

var ErrNoCharge = errors.New("paint: no charge to consume")

// ChargeState is the local view of the remote charge economy.
type ChargeState struct {
	Count    float64
	Cooldown time.Duration
}

// Available is the number of whole charges.
func (s ChargeState) Available() int {
	if s.Count < 1 {
		return 0
	}
	return int(math.Floor(s.Count))
}

// ChargeSource is the part of the canvas the governor queries.
type ChargeSource interface {
	Charges(ctx context.Context) (remote.Charges, error)
}

// Governor gates writes on charges and computes cooldown waits.
type Governor struct {
	src             ChargeSource
	state           ChargeState
	defaultCooldown time.Duration
	jitterMin       time.Duration
	jitterMax       time.Duration
	rand            Jitter
	log             *slog.Logger
}

func NewGovernor(src ChargeSource, t Timing, j Jitter, log *slog.Logger) *Governor {
	return &Governor{
		src:             src,
		state:           ChargeState{Cooldown: t.CooldownDefault},
		defaultCooldown: t.CooldownDefault,
		jitterMin:       t.CooldownJitterMin,
		jitterMax:       t.CooldownJitterMax,
		rand:            j,
		log:             orDiscard(log),
	}
}

func (g *Governor) State() ChargeState { return g.state }

func (g *Governor) HasCharge() bool { return g.state.Count >= 1 }

// ConsumeOne books one successful write. Calling it with nothing left is a
// caller bug and reported as ErrNoCharge.
func (g *Governor) ConsumeOne() error {
	if g.state.Count <= 0 {
		return ErrNoCharge
	}
	g.state.Count = math.Max(0, g.state.Count-1)
	return nil
}

// Refresh replaces the local state with a remote snapshot. A challenge is
// returned as remote.ErrChallengeRequired and leaves the state untouched.
// Any other failure drops to zero charges with the default cooldown and is
// returned for logging.
func (g *Governor) Refresh(ctx context.Context) (ChargeState, error) {
	ch, err := g.src.Charges(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrChallengeRequired) {
			return g.state, err
		}
		g.state = ChargeState{Cooldown: g.defaultCooldown}
		return g.state, err
	}
	cd := ch.Cooldown
	if cd <= 0 {
		cd = g.defaultCooldown
	}
	g.state = ChargeState{Count: math.Max(0, ch.Count), Cooldown: cd}
	g.log.Debug("charges refreshed", "count", g.state.Count, "cooldown", g.state.Cooldown)
	return g.state, nil
}

// WaitDuration is the cooldown plus a small random jitter.
func (g *Governor) WaitDuration() time.Duration {
	return g.state.Cooldown + g.rand.Between(g.jitterMin, g.jitterMax)
}

// ETA estimates the time to paint remaining cells with the current state.
func (g *Governor) ETA(remaining int) time.Duration {
	return EstimateTime(remaining, g.state.Available(), g.state.Cooldown)
}

// EstimateTime is a rough guess, never negative:
// ceil((remaining-available)/max(available,1)) cooldowns plus 100ms per
// pixel after the first.
func EstimateTime(remaining, available int, cooldown time.Duration) time.Duration {
	if remaining <= 0 {
		return 0
	}
	if available < 0 {
		available = 0
	}
	per := max(available, 1)
	cycles := int(math.Ceil(float64(remaining-available) / float64(per)))
	eta := time.Duration(cycles)*cooldown + time.Duration(remaining-1)*etaPerPixel
	return max(eta, 0)
}
