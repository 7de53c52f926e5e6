// Package source abstracts where photo bytes come from.
package source

import (
	"context"
	"io"
	"os"

	"snapsync/internal/services"
)

// Source opens photo content for hashing and upload.
type Source interface {
	// Open returns a reader over the photo bytes plus the byte count.
	Open(ctx context.Context, path string) (io.ReadCloser, int64, error)
}

// Local reads photos from the filesystem.
type Local struct{}

// NewLocal returns a filesystem-backed source.
func NewLocal() *Local {
	return &Local{}
}

// Open implements Source. Failures are marked retryable: a path that does
// not resolve right now may be an unmounted card or a network share blip,
// so the attempt is charged and the item rescheduled rather than failed.
func (l *Local) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrRetryable, "source", "open", "open photo", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, services.Wrap(services.ErrRetryable, "source", "open", "stat photo", err)
	}
	return f, info.Size(), nil
}
