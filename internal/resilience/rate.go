package resilience

import "golang.org/x/time/rate"

// NewLimiter returns a limiter allowing perSec calls per second with a burst
// of one. A non-positive rate disables limiting.
func NewLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSec), 1)
}
