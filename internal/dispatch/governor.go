package dispatch

import (
	"time"

	"golang.org/x/time/rate"
)

// RateGovernor tracks a rolling budget of calls to the external generation
// provider. It is process-local and best-effort: it exists to stop the
// dispatcher from burning invocation attempts the provider would reject, not
// to be the authoritative enforcement of provider limits.
type RateGovernor struct {
	limiter       *rate.Limiter
	callsPerGuide int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewRateGovernor builds a governor allowing callsPerWindow provider calls
// per rolling window. Each guide generation may consume several provider
// calls, so the governor reserves callsPerGuide at a time.
func NewRateGovernor(callsPerWindow int, window time.Duration, callsPerGuide int) *RateGovernor {
	if callsPerWindow <= 0 {
		callsPerWindow = 1
	}
	if callsPerGuide <= 0 {
		callsPerGuide = 1
	}
	limit := rate.Limit(float64(callsPerWindow) / window.Seconds())
	return &RateGovernor{
		limiter:       rate.NewLimiter(limit, callsPerWindow),
		callsPerGuide: callsPerGuide,
		nowFunc:       time.Now,
	}
}

// CanProceed reports whether the budget covers one more guide generation
// without consuming it.
func (g *RateGovernor) CanProceed() bool {
	return g.limiter.TokensAt(g.nowFunc()) >= float64(g.callsPerGuide)
}

// WaitTime returns how long until the budget covers one more generation.
// Zero means a generation may proceed now.
func (g *RateGovernor) WaitTime() time.Duration {
	now := g.nowFunc()
	r := g.limiter.ReserveN(now, g.callsPerGuide)
	if !r.OK() {
		return rate.InfDuration
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}

// Reserve consumes one guide generation's worth of budget.
func (g *RateGovernor) Reserve() {
	g.limiter.ReserveN(g.nowFunc(), g.callsPerGuide)
}
