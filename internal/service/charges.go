package service

import (
	"context"
	"time"

	"github.com/jask/canvaspaint/internal/paint"
)

// ChargeService answers one-shot charge questions outside a run.
type ChargeService struct {
	Source paint.ChargeSource
}

// ChargeSummary is what the charges command prints.
type ChargeSummary struct {
	State     paint.ChargeState
	Available int
	// ETA estimates how long Remaining pixels would take from now.
	Remaining int
	ETA       time.Duration
}

// Query asks the canvas for the current charges. A challenge surfaces as
// remote.ErrChallengeRequired.
func (s *ChargeService) Query(ctx context.Context, remaining int) (ChargeSummary, error) {
	c, err := s.Source.Charges(ctx)
	if err != nil {
		return ChargeSummary{}, err
	}
	st := paint.ChargeState{Count: c.Count, Cooldown: c.Cooldown}
	if st.Cooldown <= 0 {
		st.Cooldown = paint.DefaultCooldown
	}
	return ChargeSummary{
		State:     st,
		Available: st.Available(),
		Remaining: remaining,
		ETA:       paint.EstimateTime(remaining, st.Available(), st.Cooldown),
	}, nil
}
