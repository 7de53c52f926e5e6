package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for the engine's error taxonomy. Components wrap failures
// with one of these so the worker pool and the enqueue path can classify the
// outcome without inspecting collaborator-specific error types.
var (
	// ErrValidation marks bad input (size, format, missing metadata).
	// Rejected before queueing, never retried.
	ErrValidation = errors.New("validation error")
	// ErrHashing marks unreadable or undecodable media bytes.
	// Rejected before queueing, never retried.
	ErrHashing = errors.New("hashing failed")
	// ErrRetryable marks transient upload failures (network, timeout,
	// server 5xx, throttling). Charges an attempt and reschedules.
	ErrRetryable = errors.New("retryable upload error")
	// ErrPermanent marks definitive server rejections. Immediate failure,
	// no further attempts.
	ErrPermanent = errors.New("permanent upload error")
	// ErrPersistence marks durable-store write failures. Fatal to the
	// current operation; in-memory state must not advance past what was
	// durably written.
	ErrPersistence = errors.New("persistence error")
)

// Wrap builds an error message that includes operation context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrRetryable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a processing error should charge an attempt and
// reschedule rather than fail the item terminally. Unclassified errors are
// treated as retryable so a transient collaborator bug cannot strand items.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrValidation) {
		return false
	}
	return true
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
