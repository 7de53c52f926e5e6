// Package uploader sends queued photos to the remote store.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies an upload failure for the retry scheduler.
type Kind string

const (
	// KindRetryable failures (network, throttling, server errors) go back
	// to pending with backoff.
	KindRetryable Kind = "retryable"
	// KindPermanent failures (auth, missing bucket, rejected content) fail
	// the item immediately.
	KindPermanent Kind = "permanent"
)

// Result reports where a successful upload landed.
type Result struct {
	RemoteKey string
	Size      int64
	ETag      string
}

// Uploader pushes a single photo to the remote store.
type Uploader interface {
	Upload(ctx context.Context, sourcePath, remoteKey string) (*Result, error)
}

// UploadError carries the failure classification alongside the cause.
type UploadError struct {
	Kind Kind
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Kind, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// NewRetryable wraps err as a transient upload failure.
func NewRetryable(err error) *UploadError {
	return &UploadError{Kind: KindRetryable, Err: err}
}

// NewPermanent wraps err as a terminal upload failure.
func NewPermanent(err error) *UploadError {
	return &UploadError{Kind: KindPermanent, Err: err}
}

// IsRetryable reports whether err warrants another attempt. Classified
// errors answer directly; unclassified errors are inspected for transient
// network conditions and default to retryable, so only failures known to be
// permanent burn the item.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue.Kind == KindRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, token := range permanentTokens {
		if strings.Contains(message, token) {
			return false
		}
	}
	return true
}

var permanentTokens = []string{
	"access denied",
	"invalid access key",
	"signature",
	"nosuchbucket",
	"bucket does not exist",
	"entity too large",
	"invalid argument",
}
