package downloads

import (
	"github.com/anmolramgarhia9/tunegrab/internal/models"
	"github.com/anmolramgarhia9/tunegrab/internal/transfer"
)

// Route maps a resolved format onto a transfer strategy. A format that
// merges separate audio and video streams must use the engine's
// built-in muxing path; a single-stream format may use the
// multi-connection accelerator when one is available. The decision is
// made once per job when it first starts running and is not
// re-evaluated on retry.
func Route(format models.Format, caps transfer.Capabilities) transfer.Mode {
	if format.NeedsMux() {
		return transfer.ModeMuxed
	}
	if caps.Accelerator {
		return transfer.ModeAccelerated
	}
	return transfer.ModeSingle
}
