package downloads

import (
	"time"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
)

// Retry defaults: up to 3 retries beyond the first attempt, with an
// exponential delay of 2s, 4s, 8s capped at 10s
const (
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 2 * time.Second
	DefaultRetryMaxDelay  = 10 * time.Second
)

// RetryPolicy decides whether a failed attempt is retried and how long
// to back off before the next attempt
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the standard production policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultRetryBaseDelay,
		MaxDelay:   DefaultRetryMaxDelay,
	}
}

// Retryable reports whether the error is a transient condition worth
// another attempt. Fatal request and system errors are surfaced
// immediately without retry.
func (p RetryPolicy) Retryable(err error) bool {
	return models.ClassifyError(err) == models.ErrorKindTransientNetwork
}

// NextDelay computes the backoff before the given retry, starting at 0
// for the first retry. The sequence is monotonically non-decreasing and
// capped at MaxDelay.
func (p RetryPolicy) NextDelay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	delay := p.BaseDelay
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
