package uploader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"snapsync/internal/config"
	"snapsync/internal/source"
)

// MinIO uploads photos to an S3-compatible object store.
type MinIO struct {
	client  *minio.Client
	bucket  string
	prefix  string
	timeout time.Duration
	photos  source.Source
}

// NewMinIO builds an uploader from the configured endpoint and credentials.
func NewMinIO(cfg config.Upload) (*MinIO, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("upload endpoint is not configured")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &MinIO{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  prefix,
		timeout: time.Duration(cfg.RequestTimeout) * time.Second,
		photos:  source.NewLocal(),
	}, nil
}

// Upload implements Uploader. The source file streams straight from disk;
// failures come back classified so the workflow knows whether to retry.
func (m *MinIO) Upload(ctx context.Context, sourcePath, remoteKey string) (*Result, error) {
	objectName, err := m.objectName(remoteKey)
	if err != nil {
		return nil, NewPermanent(err)
	}

	reader, size, err := m.photos.Open(ctx, sourcePath)
	if err != nil {
		// An unreadable source may be a transient mount or share problem;
		// retry until the attempt budget decides otherwise.
		return nil, NewRetryable(fmt.Errorf("open source: %w", err))
	}
	defer reader.Close()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	uploaded, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{})
	if err != nil {
		return nil, classify(err)
	}

	return &Result{
		RemoteKey: objectName,
		Size:      uploaded.Size,
		ETag:      uploaded.ETag,
	}, nil
}

func (m *MinIO) objectName(remoteKey string) (string, error) {
	if strings.TrimSpace(remoteKey) == "" {
		return "", errors.New("empty remote key")
	}
	clean := path.Clean(remoteKey)
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid remote key: %s", remoteKey)
	}
	return m.prefix + strings.TrimLeft(clean, "/"), nil
}

// classify maps object store errors onto the retryable/permanent split using
// the HTTP status the server returned.
func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewRetryable(err)
	case resp.StatusCode >= 500:
		return NewRetryable(err)
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusBadRequest:
		return NewPermanent(err)
	}
	if IsRetryable(err) {
		return NewRetryable(err)
	}
	return NewPermanent(err)
}
