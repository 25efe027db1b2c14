package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStateIsTerminal(t *testing.T) {
	assert.False(t, JobStateQueued.IsTerminal())
	assert.False(t, JobStateRunning.IsTerminal())
	assert.False(t, JobStateRetrying.IsTerminal())
	assert.False(t, JobStatePaused.IsTerminal())
	assert.True(t, JobStateSucceeded.IsTerminal())
	assert.True(t, JobStateFailed.IsTerminal())
	assert.True(t, JobStateCancelled.IsTerminal())
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, FormatAudio.IsValid())
	assert.True(t, FormatVideo.IsValid())
	assert.False(t, Format("vinyl").IsValid())
	assert.False(t, Format("").IsValid())
}

func TestFormatNeedsMux(t *testing.T) {
	assert.False(t, FormatAudio.NeedsMux())
	assert.True(t, FormatVideo.NeedsMux())
}
