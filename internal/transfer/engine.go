package transfer

import (
	"context"
	"os/exec"
	"time"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
)

// ProgressFunc receives raw transfer progress from an engine. It is
// invoked from the transferring goroutine; callers are expected to do
// their own throttling and cross-goroutine handoff.
type ProgressFunc func(bytesDownloaded, totalBytes int64, ts time.Time)

// Engine performs one blocking transfer attempt for a request. It
// returns the final output path on success, or an error classifiable
// through models.ClassifyError. Engines must honor ctx cancellation at
// every progress checkpoint.
type Engine interface {
	Transfer(ctx context.Context, req models.DownloadRequest, onProgress ProgressFunc) (string, error)
}

// Mode identifies the transfer strategy chosen for a job. The routing
// decision is made once, when the job first starts running.
type Mode string

const (
	// ModeSingle is a plain single-connection transfer of one stream
	ModeSingle Mode = "single"
	// ModeAccelerated fetches a single stream over multiple connections
	ModeAccelerated Mode = "accelerated"
	// ModeMuxed uses the engine's built-in path that downloads separate
	// audio and video streams and merges them. An accelerator cannot
	// coordinate the merge.
	ModeMuxed Mode = "muxed"
)

// Capabilities describes what the local transfer setup supports
type Capabilities struct {
	Accelerator bool
	Connections int
}

// DetectCapabilities probes the local environment for the
// multi-connection accelerator
func DetectCapabilities(connections int) Capabilities {
	if connections < 1 {
		connections = 4
	}
	_, err := exec.LookPath("aria2c")
	return Capabilities{
		Accelerator: err == nil,
		Connections: connections,
	}
}

// Selector maps a routing mode to a concrete engine
type Selector struct {
	Single      Engine
	Accelerated Engine
	Muxed       Engine
}

// ForMode returns the engine for the given mode, falling back to the
// single-connection engine when no accelerated engine is configured
func (s *Selector) ForMode(mode Mode) Engine {
	switch mode {
	case ModeAccelerated:
		if s.Accelerated != nil {
			return s.Accelerated
		}
		return s.Single
	case ModeMuxed:
		return s.Muxed
	default:
		return s.Single
	}
}
