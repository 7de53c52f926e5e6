package services_test

import (
	"errors"
	"strings"
	"testing"

	"snapsync/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrPermanent, "uploader", "put", "server rejected object", base)
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
	if !strings.Contains(err.Error(), "uploader: put: server rejected object") {
		t.Fatalf("unexpected detail: %v", err)
	}
}

func TestWrapDefaultsToRetryable(t *testing.T) {
	err := services.Wrap(nil, "source", "read", "", errors.New("eof"))
	if !errors.Is(err, services.ErrRetryable) {
		t.Fatalf("expected retryable default, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"permanent", services.Wrap(services.ErrPermanent, "u", "put", "", nil), false},
		{"validation", services.Wrap(services.ErrValidation, "m", "check", "", nil), false},
		{"retryable", services.Wrap(services.ErrRetryable, "u", "put", "", nil), true},
		{"unclassified", errors.New("mystery"), true},
	}
	for _, tc := range cases {
		if got := services.IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
