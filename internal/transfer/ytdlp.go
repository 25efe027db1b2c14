package transfer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
)

// YtdlpEngine drives the yt-dlp binary for platform URLs that need
// stream extraction. Audio-only requests extract a single stream and
// may hand the transfer to the aria2c accelerator; merged video
// requests always use yt-dlp's built-in downloader, which coordinates
// the audio+video merge that an external accelerator cannot.
type YtdlpEngine struct {
	binary      string
	mode        Mode
	connections int
	keepPartial bool
	logger      *logrus.Logger
}

// NewYtdlpEngine creates a yt-dlp backed engine operating in the given mode
func NewYtdlpEngine(mode Mode, connections int, keepPartial bool, logger *logrus.Logger) *YtdlpEngine {
	if connections < 1 {
		connections = 4
	}
	return &YtdlpEngine{
		binary:      "yt-dlp",
		mode:        mode,
		connections: connections,
		keepPartial: keepPartial,
		logger:      logger,
	}
}

// Transfer runs yt-dlp for the request, streaming parsed progress
// upward until the process exits
func (e *YtdlpEngine) Transfer(ctx context.Context, req models.DownloadRequest, onProgress ProgressFunc) (string, error) {
	if req.DestinationDir == "" {
		return "", models.NewFatalRequestError(fmt.Errorf("no destination directory configured"))
	}
	if err := os.MkdirAll(req.DestinationDir, 0755); err != nil {
		return "", models.NewFatalSystemError(fmt.Errorf("failed to create destination directory: %w", err))
	}

	args := e.buildArgs(req)
	cmd := exec.CommandContext(ctx, e.binary, append(args, req.URL)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to attach to yt-dlp stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", models.NewFatalSystemError(fmt.Errorf("failed to start yt-dlp: %w", err))
	}

	var lastDestination string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if dest, ok := parseDestinationLine(line); ok {
			lastDestination = dest
			continue
		}
		if p, ok := parseProgressLine(line); ok && onProgress != nil {
			done := int64(p.Percent / 100 * float64(p.TotalBytes))
			onProgress(done, p.TotalBytes, time.Now())
		}
	}

	if err := cmd.Wait(); err != nil {
		e.cleanupPartials(ctx, req.DestinationDir)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyYtdlpFailure(err, stderr.String())
	}

	if lastDestination == "" {
		return "", models.NewFatalRequestError(fmt.Errorf("yt-dlp produced no output file"))
	}

	// Postprocessing rewrites the extension (.webm stream becomes .mp3,
	// merged streams become .mp4), mirroring the announced destination.
	finalPath := strings.TrimSuffix(lastDestination, filepath.Ext(lastDestination)) + extensionFor(req.Format)
	if _, err := os.Stat(finalPath); err != nil {
		// Some formats keep the announced name
		finalPath = lastDestination
	}
	return finalPath, nil
}

// buildArgs assembles the yt-dlp invocation for the request, following
// the audio-extraction vs built-in-mux split
func (e *YtdlpEngine) buildArgs(req models.DownloadRequest) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"--no-warnings",
		"--continue",
		"--retries", "0",
		"--socket-timeout", "20",
		"--output", filepath.Join(req.DestinationDir, "%(title)s [%(id)s].%(ext)s"),
	}

	if req.Format == models.FormatAudio {
		bitrate := req.BitrateKbps
		if bitrate <= 0 {
			bitrate = 320
		}
		args = append(args,
			"--format", "bestaudio[ext=m4a]/bestaudio/best",
			"--extract-audio",
			"--audio-format", "mp3",
			"--audio-quality", strconv.Itoa(bitrate)+"K",
		)
		if e.mode == ModeAccelerated {
			args = append(args,
				"--downloader", "aria2c",
				"--downloader-args", fmt.Sprintf("aria2c:-x %d -s %d -k 1M", e.connections, e.connections),
			)
		}
		return args
	}

	format := "bestvideo+bestaudio/best"
	if req.Quality != "" && req.Quality != models.QualityBest {
		format = fmt.Sprintf("bestvideo[height<=%s]+bestaudio/bestvideo+bestaudio/best", req.Quality)
	}
	return append(args,
		"--format", format,
		"--merge-output-format", "mp4",
	)
}

// cleanupPartials removes yt-dlp's own .part staging files after an
// aborted run. A paused run keeps them so --continue can resume.
func (e *YtdlpEngine) cleanupPartials(ctx context.Context, dir string) {
	if e.keepPartial || errors.Is(context.Cause(ctx), models.ErrPaused) {
		return
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*"+partSuffix))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			e.logger.Warnf("Failed to remove partial file %s: %v", m, err)
		}
	}
}

// classifyYtdlpFailure maps yt-dlp stderr output onto the download
// error taxonomy
func classifyYtdlpFailure(err error, stderr string) error {
	msg := strings.ToLower(stderr)

	switch {
	case strings.Contains(msg, "video unavailable"),
		strings.Contains(msg, "private video"),
		strings.Contains(msg, "has been removed"):
		return models.NewFatalRequestError(fmt.Errorf("%w: %s", models.ErrContentUnavailable, firstErrorLine(stderr)))
	case strings.Contains(msg, "is not a valid url"),
		strings.Contains(msg, "unsupported url"):
		return models.NewFatalRequestError(fmt.Errorf("%w: %s", models.ErrInvalidURL, firstErrorLine(stderr)))
	case strings.Contains(msg, "requested format is not available"):
		return models.NewFatalRequestError(fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, firstErrorLine(stderr)))
	case strings.Contains(msg, "http error 429"),
		strings.Contains(msg, "http error 502"),
		strings.Contains(msg, "http error 503"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "temporary failure"):
		return models.NewTransientError(fmt.Errorf("yt-dlp: %s", firstErrorLine(stderr)))
	case strings.Contains(msg, "no space left"):
		return models.NewFatalSystemError(fmt.Errorf("yt-dlp: %s", firstErrorLine(stderr)))
	}
	return models.NewFatalRequestError(fmt.Errorf("yt-dlp failed: %w: %s", err, firstErrorLine(stderr)))
}

// firstErrorLine pulls the first ERROR: line out of yt-dlp stderr, or
// the first non-empty line when there is none
func firstErrorLine(stderr string) string {
	var fallback string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
		if fallback == "" {
			fallback = line
		}
	}
	return fallback
}
