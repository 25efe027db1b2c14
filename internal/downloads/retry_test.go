package downloads

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
)

func TestNextDelayDoublesAndCaps(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 2*time.Second, policy.NextDelay(0))
	assert.Equal(t, 4*time.Second, policy.NextDelay(1))
	assert.Equal(t, 8*time.Second, policy.NextDelay(2))
	assert.Equal(t, 10*time.Second, policy.NextDelay(3))
	assert.Equal(t, 10*time.Second, policy.NextDelay(10))
}

func TestNextDelayNegativeRetryClamped(t *testing.T) {
	policy := DefaultRetryPolicy()
	assert.Equal(t, policy.BaseDelay, policy.NextDelay(-1))
}

func TestNextDelayNeverDecreases(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries: 8,
		BaseDelay:  time.Second,
		MaxDelay:   7 * time.Second,
	}

	prev := time.Duration(0)
	for retry := 0; retry < 8; retry++ {
		delay := policy.NextDelay(retry)
		assert.GreaterOrEqual(t, delay, prev)
		assert.LessOrEqual(t, delay, policy.MaxDelay)
		prev = delay
	}
}

func TestRetryableFollowsClassification(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.True(t, policy.Retryable(models.NewTransientError(errors.New("reset"))))
	assert.True(t, policy.Retryable(models.ErrStalled))
	assert.True(t, policy.Retryable(&models.HTTPStatusError{StatusCode: 503}))

	assert.False(t, policy.Retryable(models.NewFatalRequestError(models.ErrContentUnavailable)))
	assert.False(t, policy.Retryable(models.NewFatalSystemError(errors.New("disk full"))))
	assert.False(t, policy.Retryable(models.ErrCancelled))
}
