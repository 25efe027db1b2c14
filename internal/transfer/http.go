package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
)

// DirectEngine downloads a single stream over one HTTP connection.
// Transfers are staged in a ".part" file next to the final destination
// and resumed with a Range request when a partial is already present.
type DirectEngine struct {
	client      *http.Client
	userAgent   string
	keepPartial bool
	logger      *logrus.Logger
}

// NewDirectEngine creates a single-connection HTTP engine
func NewDirectEngine(userAgent string, keepPartial bool, logger *logrus.Logger) *DirectEngine {
	return &DirectEngine{
		client:      &http.Client{},
		userAgent:   userAgent,
		keepPartial: keepPartial,
		logger:      logger,
	}
}

// Transfer fetches the request URL into its destination directory
func (e *DirectEngine) Transfer(ctx context.Context, req models.DownloadRequest, onProgress ProgressFunc) (string, error) {
	finalPath, err := destinationPath(req)
	if err != nil {
		return "", err
	}
	partPath := finalPath + partSuffix

	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return "", models.NewFatalSystemError(fmt.Errorf("failed to create destination directory: %w", err))
	}

	// Resume from an existing partial if the server cooperates
	var offset int64
	if st, statErr := os.Stat(partPath); statErr == nil {
		offset = st.Size()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", models.NewFatalRequestError(fmt.Errorf("%w: %v", models.ErrInvalidURL, err))
	}
	httpReq.Header.Set("User-Agent", e.userAgent)
	if offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.cleanupPartial(ctx, partPath)
		return "", fmt.Errorf("transfer request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the Range header; restart from scratch
		offset = 0
	case http.StatusPartialContent:
		e.logger.WithField("offset", offset).Debug("Resuming partial download")
	default:
		e.cleanupPartial(ctx, partPath)
		return "", &models.HTTPStatusError{StatusCode: resp.StatusCode, URL: req.URL}
	}

	total := int64(0)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(partPath, flags, 0644)
	if err != nil {
		return "", models.NewFatalSystemError(fmt.Errorf("failed to open staging file: %w", err))
	}

	reader := &progressReader{
		ctx:        ctx,
		reader:     resp.Body,
		read:       offset,
		total:      total,
		onProgress: onProgress,
	}

	_, copyErr := io.Copy(out, reader)
	closeErr := out.Close()
	if copyErr != nil {
		e.cleanupPartial(ctx, partPath)
		return "", fmt.Errorf("transfer interrupted: %w", copyErr)
	}
	if closeErr != nil {
		e.cleanupPartial(ctx, partPath)
		return "", models.NewFatalSystemError(fmt.Errorf("failed to finalize staging file: %w", closeErr))
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		return "", models.NewFatalSystemError(fmt.Errorf("failed to move download into place: %w", err))
	}
	return finalPath, nil
}

func (e *DirectEngine) cleanupPartial(ctx context.Context, partPath string) {
	// A paused transfer keeps its partial so Resume can pick it up with
	// a Range request
	if e.keepPartial || errors.Is(context.Cause(ctx), models.ErrPaused) {
		return
	}
	if err := os.Remove(partPath); err != nil && !os.IsNotExist(err) {
		e.logger.Warnf("Failed to remove partial file %s: %v", partPath, err)
	}
}

// progressReader counts bytes as they stream through and reports them
// upward. It checks for cancellation on every read so aborts take
// effect within one chunk.
type progressReader struct {
	ctx        context.Context
	reader     io.Reader
	read       int64
	total      int64
	onProgress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	if err := pr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := pr.reader.Read(p)
	pr.read += int64(n)
	if n > 0 && pr.onProgress != nil {
		pr.onProgress(pr.read, pr.total, time.Now())
	}
	return n, err
}
