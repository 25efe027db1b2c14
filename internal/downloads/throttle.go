package downloads

import (
	"time"

	"golang.org/x/time/rate"
)

// DefaultProgressInterval is the minimum spacing between progress
// notifications delivered for one job (at most 4 per second)
const DefaultProgressInterval = 250 * time.Millisecond

// ProgressThrottle rate-limits outbound progress notifications for a
// single job. Throttling state is per attempt; completion and terminal
// events bypass the throttle entirely and are never dropped.
type ProgressThrottle struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// NewProgressThrottle creates a throttle emitting at most one event per
// interval
func NewProgressThrottle(interval time.Duration) *ProgressThrottle {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ProgressThrottle{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Allow reports whether a non-terminal progress event may be emitted now
func (t *ProgressThrottle) Allow() bool {
	return t.limiter.Allow()
}

// Reset discards throttling state when a job starts a new attempt
func (t *ProgressThrottle) Reset() {
	t.limiter = rate.NewLimiter(rate.Every(t.interval), 1)
}
