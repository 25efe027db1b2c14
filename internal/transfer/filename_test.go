package transfer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
)

func TestDestinationPathFromTitle(t *testing.T) {
	path, err := destinationPath(models.DownloadRequest{
		URL:            "https://example.com/watch?v=abc",
		Title:          "Artist - Track",
		Format:         models.FormatAudio,
		DestinationDir: "/music",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/music", "Artist - Track.mp3"), path)
}

func TestDestinationPathSanitizesTitle(t *testing.T) {
	path, err := destinationPath(models.DownloadRequest{
		URL:            "https://example.com/watch?v=abc",
		Title:          `A/B\C:D*E?F"G<H>I|J`,
		Format:         models.FormatVideo,
		DestinationDir: "/videos",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/videos", "A-B-C-D-E-F-G-H-I-J.mp4"), path)
}

func TestDestinationPathFallsBackToURLBase(t *testing.T) {
	path, err := destinationPath(models.DownloadRequest{
		URL:            "https://cdn.example.com/tracks/song.mp3",
		Format:         models.FormatAudio,
		DestinationDir: "/music",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/music", "song.mp3"), path)
}

func TestDestinationPathErrors(t *testing.T) {
	_, err := destinationPath(models.DownloadRequest{URL: "https://example.com/a", Format: models.FormatAudio})
	assert.Error(t, err, "missing destination directory")

	_, err = destinationPath(models.DownloadRequest{
		URL:            "https://example.com/",
		Format:         models.FormatAudio,
		DestinationDir: "/music",
	})
	assert.Error(t, err, "no derivable filename")
}
