package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDirectFileURL(t *testing.T) {
	direct := []string{
		"https://cdn.example.com/song.mp3",
		"https://cdn.example.com/album/01%20-%20intro.flac",
		"https://cdn.example.com/clip.MP4",
		"https://cdn.example.com/a.webm?token=abc",
	}
	for _, u := range direct {
		assert.Truef(t, isDirectFileURL(u), "url: %s", u)
	}

	pages := []string{
		"https://media.example.com/watch?v=abc123",
		"https://media.example.com/track/share-link",
		"https://example.com/",
		"not a url at all",
	}
	for _, u := range pages {
		assert.Falsef(t, isDirectFileURL(u), "url: %s", u)
	}
}

func TestSelectorFallsBackWithoutAccelerator(t *testing.T) {
	single := NewDirectEngine("ua", false, quietLogger())
	s := &Selector{Single: single}

	assert.Equal(t, single, s.ForMode(ModeAccelerated))
	assert.Equal(t, single, s.ForMode(ModeSingle))
}

func TestNewSelectorBuildsAcceleratedPairOnlyWithCapability(t *testing.T) {
	logger := quietLogger()

	without := NewSelector("ua", Capabilities{}, false, logger)
	assert.Nil(t, without.Accelerated)
	assert.NotNil(t, without.Single)
	assert.NotNil(t, without.Muxed)

	with := NewSelector("ua", Capabilities{Accelerator: true, Connections: 4}, false, logger)
	assert.NotNil(t, with.Accelerated)
}
