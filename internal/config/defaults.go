package config

const (
	defaultPhotosDir              = "~/photos"
	defaultLogDir                 = "~/.local/share/snapsync/logs"
	defaultDataDir                = "~/.local/share/snapsync"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 60
	defaultMaxConcurrentUploads   = 3
	defaultMaxRetries             = 3
	defaultRetryBaseSeconds       = 2
	defaultRetryMaxSeconds        = 300
	defaultCompletedRetentionDays = 30
	defaultRateLimitMax           = 10
	defaultRateLimitWindowSeconds = 60
	defaultUploadRequestTimeout   = 120
	defaultDedupPolicy            = "skip"
	defaultDuplicateThreshold     = 0.05
	defaultNearThreshold          = 0.15
	defaultDHashWeight            = 0.5
	defaultPHashWeight            = 0.5
	defaultMaxFileBytes           = 256 << 20
	defaultQueuePollInterval      = 5
	defaultErrorRetryInterval     = 10
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultWatchScanInterval      = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			PhotosDir: defaultPhotosDir,
			LogDir:    defaultLogDir,
			DataDir:   defaultDataDir,
		},
		Upload: Upload{
			UseSSL:         true,
			RequestTimeout: defaultUploadRequestTimeout,
		},
		Queue: Queue{
			MaxConcurrentUploads:   defaultMaxConcurrentUploads,
			MaxRetries:             defaultMaxRetries,
			RetryBaseSeconds:       defaultRetryBaseSeconds,
			RetryMaxSeconds:        defaultRetryMaxSeconds,
			CompletedRetentionDays: defaultCompletedRetentionDays,
		},
		RateLimit: RateLimit{
			MaxUploadsPerWindow: defaultRateLimitMax,
			WindowSeconds:       defaultRateLimitWindowSeconds,
		},
		Dedup: Dedup{
			Policy:             defaultDedupPolicy,
			DuplicateThreshold: defaultDuplicateThreshold,
			NearThreshold:      defaultNearThreshold,
			DHashWeight:        defaultDHashWeight,
			PHashWeight:        defaultPHashWeight,
		},
		Validation: Validation{
			MaxFileBytes: defaultMaxFileBytes,
			AllowedMimeTypes: []string{
				"image/jpeg",
				"image/png",
				"image/gif",
			},
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Watch: Watch{
			Enabled:             false,
			ScanIntervalSeconds: defaultWatchScanInterval,
			DeviceEvents:        true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
