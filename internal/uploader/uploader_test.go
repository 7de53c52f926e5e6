package uploader

import (
	"context"
	"errors"
	"testing"

	"snapsync/internal/config"
)

func TestIsRetryableClassifiedErrors(t *testing.T) {
	if !IsRetryable(NewRetryable(errors.New("503 service unavailable"))) {
		t.Fatal("retryable error should retry")
	}
	if IsRetryable(NewPermanent(errors.New("access denied"))) {
		t.Fatal("permanent error should not retry")
	}
}

func TestIsRetryableUnclassifiedErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"unknown defaults to retry", errors.New("something odd happened"), true},
		{"access denied", errors.New("Access Denied."), false},
		{"missing bucket", errors.New("NoSuchBucket: the specified bucket does not exist"), false},
		{"bad credentials", errors.New("the request signature we calculated does not match"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestUploadErrorUnwraps(t *testing.T) {
	cause := errors.New("root cause")
	err := NewRetryable(cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected UploadError to unwrap its cause")
	}
}

func TestNewMinIORequiresEndpoint(t *testing.T) {
	if _, err := NewMinIO(config.Upload{}); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestUploadMissingSourceIsRetryable(t *testing.T) {
	m, err := NewMinIO(config.Upload{
		Endpoint:  "127.0.0.1:9000",
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "photos",
	})
	if err != nil {
		t.Fatalf("NewMinIO failed: %v", err)
	}

	_, err = m.Upload(context.Background(), "/nonexistent/photo.jpg", "2026/photo.jpg")
	if err == nil {
		t.Fatal("expected error for missing source file")
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable classification for unreadable source, got %v", err)
	}
}

func TestMinIOObjectNameAppliesPrefixAndRejectsTraversal(t *testing.T) {
	m := &MinIO{prefix: "photos/"}

	name, err := m.objectName("/2026/a.jpg")
	if err != nil {
		t.Fatalf("objectName failed: %v", err)
	}
	if name != "photos/2026/a.jpg" {
		t.Fatalf("unexpected object name %q", name)
	}

	if _, err := m.objectName("../escape.jpg"); err == nil {
		t.Fatal("expected traversal rejection")
	}
	if _, err := m.objectName("  "); err == nil {
		t.Fatal("expected empty key rejection")
	}
}
