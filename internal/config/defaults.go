package config

const (
	defaultAPIBind            = "127.0.0.1:8390"
	defaultDBPath             = "~/.local/share/forge/forge.db"
	defaultLogDir             = "~/.local/share/forge/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultDownloadsDir       = "~/.local/share/forge/models"
	defaultImagesDir          = "~/.local/share/forge/images"
	defaultRegistryBaseURL    = "https://huggingface.co"
	defaultQueuePollMs        = 1500
	defaultQueueErrorRetryMs  = 5000
	defaultHeartbeatMs        = 5000
	defaultHeartbeatTimeoutMs = 30000
	defaultDownloadTimeoutS   = 30
	defaultStartupTimeoutMs   = 90000
	defaultPortRangeStart     = 8000
	defaultPortRangeEnd       = 9000
	defaultStopGraceMs        = 5000
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind:             defaultAPIBind,
			ReadHeaderTimout: 5,
			ShutdownTimeout:  10,
		},
		DB: DB{
			Path: defaultDBPath,
		},
		Queue: Queue{
			PollIntervalMs:       defaultQueuePollMs,
			ErrorRetryIntervalMs: defaultQueueErrorRetryMs,
			HeartbeatIntervalMs:  defaultHeartbeatMs,
			HeartbeatTimeoutMs:   defaultHeartbeatTimeoutMs,
		},
		Downloads: Downloads{
			RegistryBaseURL:   defaultRegistryBaseURL,
			Dir:               defaultDownloadsDir,
			MaxConcurrentJobs: 1,
			RequestTimeoutS:   defaultDownloadTimeoutS,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			Dir:           defaultLogDir,
			RetentionDays: defaultLogRetentionDays,
		},
		Registry: Registry{
			PortRangeStart: defaultPortRangeStart,
			PortRangeEnd:   defaultPortRangeEnd,
			StopGraceMs:    defaultStopGraceMs,
		},
		Images: Images{
			Dir: defaultImagesDir,
		},
	}
}
