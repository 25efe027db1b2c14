package transfer

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
)

// partSuffix marks a staging file that has not been finalized yet
const partSuffix = ".part"

var filenameSanitizer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "-",
	"\"", "-",
	"<", "-",
	">", "-",
	"|", "-",
)

// destinationPath computes the final output path for a request: the
// sanitized title (or the URL's base name) inside the destination
// directory, with an extension matching the requested format.
func destinationPath(req models.DownloadRequest) (string, error) {
	if req.DestinationDir == "" {
		return "", models.NewFatalRequestError(errors.New("no destination directory configured"))
	}

	name := strings.TrimSpace(req.Title)
	if name == "" {
		u, err := url.Parse(req.URL)
		if err != nil || u.Path == "" || path.Base(u.Path) == "/" {
			return "", models.NewFatalRequestError(fmt.Errorf("%w: cannot derive a filename from %q", models.ErrInvalidURL, req.URL))
		}
		name = path.Base(u.Path)
	}
	name = filenameSanitizer.Replace(name)

	if filepath.Ext(name) == "" {
		name += extensionFor(req.Format)
	}
	return filepath.Join(req.DestinationDir, name), nil
}

func extensionFor(format models.Format) string {
	if format == models.FormatAudio {
		return ".mp3"
	}
	return ".mp4"
}
