package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	PhotosDir string `toml:"photos_dir"`
	LogDir    string `toml:"log_dir"`
	DataDir   string `toml:"data_dir"`
}

// Upload contains configuration for the remote upload target.
type Upload struct {
	Endpoint       string `toml:"endpoint"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Queue contains configuration for retry, concurrency, and retention.
type Queue struct {
	MaxConcurrentUploads   int `toml:"max_concurrent_uploads"`
	MaxRetries             int `toml:"max_retries"`
	RetryBaseSeconds       int `toml:"retry_base_seconds"`
	RetryMaxSeconds        int `toml:"retry_max_seconds"`
	CompletedRetentionDays int `toml:"completed_retention_days"`
}

// RateLimit contains the sliding-window upload budget.
type RateLimit struct {
	MaxUploadsPerWindow int `toml:"max_uploads_per_window"`
	WindowSeconds       int `toml:"window_seconds"`
}

// Dedup contains configuration for duplicate detection and grouping.
type Dedup struct {
	// Policy selects how non-representative near-duplicates are handled:
	// "skip" excludes them from upload, "review" flags them for an operator.
	Policy             string  `toml:"policy"`
	DuplicateThreshold float64 `toml:"duplicate_threshold"`
	NearThreshold      float64 `toml:"near_threshold"`
	DHashWeight        float64 `toml:"dhash_weight"`
	PHashWeight        float64 `toml:"phash_weight"`
}

// Validation contains admission limits for incoming media.
type Validation struct {
	MaxFileBytes     int64    `toml:"max_file_bytes"`
	AllowedMimeTypes []string `toml:"allowed_mime_types"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Watch contains configuration for automatic photo discovery.
type Watch struct {
	Enabled             bool `toml:"enabled"`
	ScanIntervalSeconds int  `toml:"scan_interval_seconds"`
	DeviceEvents        bool `toml:"device_events"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for snapsync.
//
// Configuration sections by subsystem:
//   - Paths: photo watch directory, log and data directories
//   - Upload: S3-compatible upload target and credentials
//   - Queue: worker concurrency, retry bounds, retention
//   - RateLimit: sliding-window upload budget
//   - Dedup: duplicate thresholds, fingerprint weights, exclusion policy
//   - Validation: admission limits for incoming media
//   - Workflow: daemon polling intervals and heartbeat timeouts
//   - Watch: automatic discovery of new photos
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Upload     Upload     `toml:"upload"`
	Queue      Queue      `toml:"queue"`
	RateLimit  RateLimit  `toml:"rate_limit"`
	Dedup      Dedup      `toml:"dedup"`
	Validation Validation `toml:"validation"`
	Workflow   Workflow   `toml:"workflow"`
	Watch      Watch      `toml:"watch"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/snapsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("snapsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.PhotosDir, &c.Paths.LogDir, &c.Paths.DataDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Dedup.Policy = strings.ToLower(strings.TrimSpace(c.Dedup.Policy))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	for i, mime := range c.Validation.AllowedMimeTypes {
		c.Validation.AllowedMimeTypes[i] = strings.ToLower(strings.TrimSpace(mime))
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
// PhotosDir is created on a best-effort basis so the daemon can run when the
// watched volume is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.PhotosDir) != "" {
		_ = os.MkdirAll(c.Paths.PhotosDir, 0o755)
	}
	return nil
}

// DatabasePath returns the location of the queue database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// SocketPath returns the location of the daemon control socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "snapsync.sock")
}

// LockPath returns the location of the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "snapsync.lock")
}

// RetryBase returns the backoff base delay as a duration.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.Queue.RetryBaseSeconds) * time.Second
}

// RetryMax returns the backoff delay cap as a duration.
func (c *Config) RetryMax() time.Duration {
	return time.Duration(c.Queue.RetryMaxSeconds) * time.Second
}

// RateWindow returns the rate limiter window as a duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
