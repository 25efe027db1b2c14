package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
)

// ErrorKind classifies a download failure for retry decisions and
// user-facing reporting
type ErrorKind string

const (
	// ErrorKindTransientNetwork covers timeouts, resets, and upstream
	// throttling. These failures are absorbed by the retry loop.
	ErrorKindTransientNetwork ErrorKind = "transient_network"
	// ErrorKindFatalRequest covers invalid URLs, unsupported formats,
	// and removed or private content. Never retried.
	ErrorKindFatalRequest ErrorKind = "fatal_request"
	// ErrorKindFatalSystem covers local I/O failures such as a full
	// disk or an unwritable destination. Never retried.
	ErrorKindFatalSystem ErrorKind = "fatal_system"
	// ErrorKindCancelled marks a user-initiated abort, not a failure
	ErrorKindCancelled ErrorKind = "cancelled"
)

// Common download errors
var (
	ErrJobNotFound        = errors.New("job not found")
	ErrJobAlreadyDone     = errors.New("job already reached a terminal state")
	ErrInvalidURL         = errors.New("invalid download URL")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrContentUnavailable = errors.New("content removed or private")
	ErrStalled            = errors.New("transfer stalled: no progress within the stall timeout")
	ErrCancelled          = errors.New("cancelled by user")
	ErrPaused             = errors.New("paused by user")
	ErrJobNotPaused       = errors.New("job is not paused")
)

// DownloadError is a typed transfer failure carrying its classification.
// Engines wrap their underlying errors in a DownloadError so the retry
// policy never has to inspect engine internals.
type DownloadError struct {
	Kind ErrorKind
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retryable network failure
func NewTransientError(err error) *DownloadError {
	return &DownloadError{Kind: ErrorKindTransientNetwork, Err: err}
}

// NewFatalRequestError wraps err as a non-retryable request failure
func NewFatalRequestError(err error) *DownloadError {
	return &DownloadError{Kind: ErrorKindFatalRequest, Err: err}
}

// NewFatalSystemError wraps err as a non-retryable local system failure
func NewFatalSystemError(err error) *DownloadError {
	return &DownloadError{Kind: ErrorKindFatalSystem, Err: err}
}

// HTTPStatusError reports an unexpected HTTP response from the remote side
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d for %s", e.StatusCode, e.URL)
}

// retryableStatus reports whether the HTTP status signals a condition
// worth retrying (upstream overload or rate limiting)
func retryableStatus(code int) bool {
	switch code {
	case 429, 502, 503:
		return true
	}
	return false
}

// ClassifyError maps an arbitrary transfer error onto the download
// error taxonomy. Already-classified errors keep their kind; everything
// unrecognized is treated as a fatal request error and surfaced
// immediately without retry.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var dlErr *DownloadError
	if errors.As(err, &dlErr) {
		return dlErr.Kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return ErrorKindCancelled
	}

	// A per-attempt deadline or stall is transient: the next attempt may
	// land on a healthier connection.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrStalled) {
		return ErrorKindTransientNetwork
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if retryableStatus(statusErr.StatusCode) {
			return ErrorKindTransientNetwork
		}
		return ErrorKindFatalRequest
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTransientNetwork
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return ErrorKindTransientNetwork
	}

	// A body cut short mid-transfer is worth another attempt
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrorKindTransientNetwork
	}

	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EROFS) {
		return ErrorKindFatalSystem
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// url.Error wraps transport failures; recurse on the cause
		return ClassifyError(urlErr.Err)
	}

	return ErrorKindFatalRequest
}
