package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyErrorKeepsExplicitKind(t *testing.T) {
	assert.Equal(t, ErrorKindTransientNetwork, ClassifyError(NewTransientError(errors.New("reset"))))
	assert.Equal(t, ErrorKindFatalRequest, ClassifyError(NewFatalRequestError(errors.New("bad"))))
	assert.Equal(t, ErrorKindFatalSystem, ClassifyError(NewFatalSystemError(errors.New("disk"))))

	// Wrapped classified errors keep their kind
	wrapped := fmt.Errorf("attempt failed: %w", NewTransientError(errors.New("reset")))
	assert.Equal(t, ErrorKindTransientNetwork, ClassifyError(wrapped))
}

func TestClassifyErrorCancellation(t *testing.T) {
	assert.Equal(t, ErrorKindCancelled, ClassifyError(context.Canceled))
	assert.Equal(t, ErrorKindCancelled, ClassifyError(ErrCancelled))
	assert.Equal(t, ErrorKindCancelled, ClassifyError(fmt.Errorf("aborted: %w", ErrCancelled)))
}

func TestClassifyErrorTransientConditions(t *testing.T) {
	transient := []error{
		context.DeadlineExceeded,
		ErrStalled,
		fmt.Errorf("%w (no progress for 30s)", ErrStalled),
		&HTTPStatusError{StatusCode: 429, URL: "https://example.com"},
		&HTTPStatusError{StatusCode: 502, URL: "https://example.com"},
		&HTTPStatusError{StatusCode: 503, URL: "https://example.com"},
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		syscall.EPIPE,
		io.ErrUnexpectedEOF,
	}
	for _, err := range transient {
		assert.Equalf(t, ErrorKindTransientNetwork, ClassifyError(err), "error: %v", err)
	}
}

func TestClassifyErrorFatalConditions(t *testing.T) {
	assert.Equal(t, ErrorKindFatalRequest, ClassifyError(&HTTPStatusError{StatusCode: 404, URL: "https://example.com"}))
	assert.Equal(t, ErrorKindFatalRequest, ClassifyError(&HTTPStatusError{StatusCode: 403, URL: "https://example.com"}))
	assert.Equal(t, ErrorKindFatalSystem, ClassifyError(syscall.ENOSPC))
	assert.Equal(t, ErrorKindFatalSystem, ClassifyError(syscall.EACCES))
	assert.Equal(t, ErrorKindFatalSystem, ClassifyError(syscall.EROFS))

	// Unrecognized errors fail fast rather than retry forever
	assert.Equal(t, ErrorKindFatalRequest, ClassifyError(errors.New("mystery")))
}

func TestClassifyErrorUnwrapsURLError(t *testing.T) {
	urlErr := &url.Error{Op: "Get", URL: "https://example.com", Err: syscall.ECONNRESET}
	assert.Equal(t, ErrorKindTransientNetwork, ClassifyError(urlErr))

	fatal := &url.Error{Op: "Get", URL: "https://example.com", Err: errors.New("unsupported protocol scheme")}
	assert.Equal(t, ErrorKindFatalRequest, ClassifyError(fatal))
}
