package transfer

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
)

// directFileExtensions are URL path suffixes that identify a plain
// downloadable file, as opposed to a media page that needs extraction.
var directFileExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".mp4":  true,
	".mkv":  true,
	".webm": true,
}

// isDirectFileURL reports whether the URL points straight at a media
// file rather than a page the extractor has to resolve.
func isDirectFileURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	return directFileExtensions[ext]
}

// routedEngine picks between a plain HTTP transfer and the extractor
// based on the request URL. Direct file URLs skip the extractor
// entirely.
type routedEngine struct {
	direct Engine
	site   Engine
}

func (e *routedEngine) Transfer(ctx context.Context, req models.DownloadRequest, onProgress ProgressFunc) (string, error) {
	if isDirectFileURL(req.URL) {
		return e.direct.Transfer(ctx, req, onProgress)
	}
	return e.site.Transfer(ctx, req, onProgress)
}

// NewSelector builds the full engine set for the given environment.
// Each routing mode resolves to an HTTP engine for direct file URLs
// and to the extractor for everything else. The accelerated pair is
// only built when the capabilities probe found the accelerator.
func NewSelector(userAgent string, caps Capabilities, keepPartial bool, logger *logrus.Logger) *Selector {
	direct := NewDirectEngine(userAgent, keepPartial, logger)

	s := &Selector{
		Single: &routedEngine{
			direct: direct,
			site:   NewYtdlpEngine(ModeSingle, 0, keepPartial, logger),
		},
		// Merged formats always go through the extractor's own muxing
		// path; a direct file URL is already a single merged stream.
		Muxed: &routedEngine{
			direct: direct,
			site:   NewYtdlpEngine(ModeMuxed, 0, keepPartial, logger),
		},
	}

	if caps.Accelerator {
		s.Accelerated = &routedEngine{
			direct: NewAcceleratedEngine(userAgent, caps.Connections, keepPartial, logger),
			site:   NewYtdlpEngine(ModeAccelerated, caps.Connections, keepPartial, logger),
		}
	}

	return s
}
