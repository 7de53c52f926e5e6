package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must be set")
	}

	if c.Queue.MaxConcurrentUploads <= 0 {
		problems = append(problems, "queue.max_concurrent_uploads must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		problems = append(problems, "queue.max_retries must not be negative")
	}
	if c.Queue.RetryBaseSeconds <= 0 {
		problems = append(problems, "queue.retry_base_seconds must be positive")
	}
	if c.Queue.RetryMaxSeconds < c.Queue.RetryBaseSeconds {
		problems = append(problems, "queue.retry_max_seconds must be at least retry_base_seconds")
	}
	if c.Queue.CompletedRetentionDays < 0 {
		problems = append(problems, "queue.completed_retention_days must not be negative")
	}

	if c.RateLimit.MaxUploadsPerWindow <= 0 {
		problems = append(problems, "rate_limit.max_uploads_per_window must be positive")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		problems = append(problems, "rate_limit.window_seconds must be positive")
	}

	switch c.Dedup.Policy {
	case "skip", "review":
	default:
		problems = append(problems, fmt.Sprintf("dedup.policy must be \"skip\" or \"review\", got %q", c.Dedup.Policy))
	}
	if c.Dedup.DuplicateThreshold < 0 || c.Dedup.DuplicateThreshold > 1 {
		problems = append(problems, "dedup.duplicate_threshold must be between 0 and 1")
	}
	if c.Dedup.NearThreshold < 0 || c.Dedup.NearThreshold > 1 {
		problems = append(problems, "dedup.near_threshold must be between 0 and 1")
	}
	if c.Dedup.NearThreshold < c.Dedup.DuplicateThreshold {
		problems = append(problems, "dedup.near_threshold must be at least duplicate_threshold")
	}
	if weightSum := c.Dedup.DHashWeight + c.Dedup.PHashWeight; math.Abs(weightSum-1.0) > 1e-9 {
		problems = append(problems, fmt.Sprintf("dedup fingerprint weights must sum to 1, got %.3f", weightSum))
	}
	if c.Dedup.DHashWeight < 0 || c.Dedup.PHashWeight < 0 {
		problems = append(problems, "dedup fingerprint weights must not be negative")
	}

	if c.Validation.MaxFileBytes <= 0 {
		problems = append(problems, "validation.max_file_bytes must be positive")
	}
	if len(c.Validation.AllowedMimeTypes) == 0 {
		problems = append(problems, "validation.allowed_mime_types must not be empty")
	}

	if c.Workflow.QueuePollInterval <= 0 {
		problems = append(problems, "workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		problems = append(problems, "workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		problems = append(problems, "workflow.heartbeat_timeout must exceed heartbeat_interval")
	}

	if c.Watch.Enabled {
		if strings.TrimSpace(c.Paths.PhotosDir) == "" {
			problems = append(problems, "paths.photos_dir must be set when watch is enabled")
		}
		if c.Watch.ScanIntervalSeconds <= 0 {
			problems = append(problems, "watch.scan_interval_seconds must be positive")
		}
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
