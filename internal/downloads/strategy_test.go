package downloads

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
	"github.com/anmolramgarhia9/tunegrab/internal/transfer"
)

func TestRouteMergedFormatAlwaysMuxed(t *testing.T) {
	// An accelerator cannot coordinate the audio+video merge, so its
	// presence must not change the routing for video
	withAccel := transfer.Capabilities{Accelerator: true, Connections: 8}

	assert.Equal(t, transfer.ModeMuxed, Route(models.FormatVideo, withAccel))
	assert.Equal(t, transfer.ModeMuxed, Route(models.FormatVideo, transfer.Capabilities{}))
}

func TestRouteAudioUsesAcceleratorWhenAvailable(t *testing.T) {
	assert.Equal(t, transfer.ModeAccelerated,
		Route(models.FormatAudio, transfer.Capabilities{Accelerator: true, Connections: 4}))
	assert.Equal(t, transfer.ModeSingle,
		Route(models.FormatAudio, transfer.Capabilities{}))
}
