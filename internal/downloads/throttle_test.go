package downloads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottleSpacesEvents(t *testing.T) {
	throttle := NewProgressThrottle(50 * time.Millisecond)

	assert.True(t, throttle.Allow(), "first event always passes")
	assert.False(t, throttle.Allow(), "second immediate event is suppressed")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, throttle.Allow(), "event after the interval passes")
}

func TestThrottleResetClearsState(t *testing.T) {
	throttle := NewProgressThrottle(time.Hour)

	assert.True(t, throttle.Allow())
	assert.False(t, throttle.Allow())

	throttle.Reset()
	assert.True(t, throttle.Allow(), "a new attempt starts with a clean throttle")
}

func TestThrottleDefaultsInterval(t *testing.T) {
	throttle := NewProgressThrottle(0)
	assert.Equal(t, DefaultProgressInterval, throttle.interval)
}
