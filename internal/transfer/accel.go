package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
)

// minChunkBytes is the smallest span worth opening a connection for
const minChunkBytes = 1 << 20

// AcceleratedEngine fetches a single stream over several parallel range
// requests. It only applies to formats with one stream; merged
// audio+video downloads go through the muxing engine instead. When the
// server does not advertise range support the engine falls back to the
// single-connection path.
type AcceleratedEngine struct {
	client      *http.Client
	userAgent   string
	connections int
	keepPartial bool
	fallback    *DirectEngine
	logger      *logrus.Logger
}

// NewAcceleratedEngine creates a multi-connection HTTP engine
func NewAcceleratedEngine(userAgent string, connections int, keepPartial bool, logger *logrus.Logger) *AcceleratedEngine {
	if connections < 1 {
		connections = 4
	}
	return &AcceleratedEngine{
		client:      &http.Client{},
		userAgent:   userAgent,
		connections: connections,
		keepPartial: keepPartial,
		fallback:    NewDirectEngine(userAgent, keepPartial, logger),
		logger:      logger,
	}
}

// Transfer fetches the request URL using parallel range requests
func (e *AcceleratedEngine) Transfer(ctx context.Context, req models.DownloadRequest, onProgress ProgressFunc) (string, error) {
	size, ranges, err := e.probe(ctx, req.URL)
	if err != nil {
		return "", err
	}
	if !ranges || size < minChunkBytes {
		e.logger.WithField("url", req.URL).Debug("Range requests unavailable, using single connection")
		return e.fallback.Transfer(ctx, req, onProgress)
	}

	finalPath, err := destinationPath(req)
	if err != nil {
		return "", err
	}
	partPath := finalPath + partSuffix

	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return "", models.NewFatalSystemError(fmt.Errorf("failed to create destination directory: %w", err))
	}

	out, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", models.NewFatalSystemError(fmt.Errorf("failed to open staging file: %w", err))
	}
	if err := out.Truncate(size); err != nil {
		out.Close()
		e.cleanupPartial(partPath)
		return "", models.NewFatalSystemError(fmt.Errorf("failed to preallocate staging file: %w", err))
	}

	var downloaded atomic.Int64
	var reported atomic.Int64
	report := func() {
		if onProgress == nil {
			return
		}
		// Only publish cumulative counts that move forward so observers
		// never see bytes regress across worker goroutines.
		cur := downloaded.Load()
		for {
			prev := reported.Load()
			if cur <= prev {
				return
			}
			if reported.CompareAndSwap(prev, cur) {
				onProgress(cur, size, time.Now())
				return
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := size / int64(e.connections)
	for i := 0; i < e.connections; i++ {
		start := int64(i) * chunk
		end := start + chunk - 1
		if i == e.connections-1 {
			end = size - 1
		}
		g.Go(func() error {
			return e.fetchRange(gctx, req.URL, out, start, end, &downloaded, report)
		})
	}

	gErr := g.Wait()
	closeErr := out.Close()
	if gErr != nil {
		e.cleanupPartial(partPath)
		return "", gErr
	}
	if closeErr != nil {
		e.cleanupPartial(partPath)
		return "", models.NewFatalSystemError(fmt.Errorf("failed to finalize staging file: %w", closeErr))
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		return "", models.NewFatalSystemError(fmt.Errorf("failed to move download into place: %w", err))
	}
	return finalPath, nil
}

// probe checks the remote size and whether byte ranges are supported
func (e *AcceleratedEngine) probe(ctx context.Context, rawURL string) (int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, false, models.NewFatalRequestError(fmt.Errorf("%w: %v", models.ErrInvalidURL, err))
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, &models.HTTPStatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	ranges := resp.Header.Get("Accept-Ranges") == "bytes"
	return resp.ContentLength, ranges, nil
}

// fetchRange downloads one byte span into the staging file at its offset
func (e *AcceleratedEngine) fetchRange(ctx context.Context, rawURL string, out *os.File, start, end int64, downloaded *atomic.Int64, report func()) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.NewFatalRequestError(fmt.Errorf("%w: %v", models.ErrInvalidURL, err))
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("range request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return &models.HTTPStatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	buf := make([]byte, 32*1024)
	offset := start
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.WriteAt(buf[:n], offset); writeErr != nil {
				return models.NewFatalSystemError(fmt.Errorf("failed to write staging file: %w", writeErr))
			}
			offset += int64(n)
			downloaded.Add(int64(n))
			report()
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("range read failed: %w", readErr)
		}
	}
}

func (e *AcceleratedEngine) cleanupPartial(partPath string) {
	if e.keepPartial {
		return
	}
	if err := os.Remove(partPath); err != nil && !os.IsNotExist(err) {
		e.logger.Warnf("Failed to remove partial file %s: %v", partPath, err)
	}
}
