package config

const (
	defaultDataDir           = "~/.local/share/medintake/data"
	defaultStorageDir        = "~/.local/share/medintake/storage"
	defaultLogDir            = "~/.local/share/medintake/logs"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 60
	defaultMatchStrategy     = "weighted"
	defaultAutoLinkThreshold = 0.95
	defaultReviewThreshold   = 0.8
	defaultMaxCandidates     = 5
	defaultWorkers           = 5
	defaultMaxFileSizeMiB    = 512
	defaultStaleResetMinutes = 30
	defaultIndexCollection   = "medical_documents"
	defaultIndexTimeout      = 30
	defaultNotifyTimeout     = 10
)

func defaultAllowedExtensions() []string {
	return []string{".pdf", ".doc", ".docx", ".tif", ".tiff", ".jpg", ".jpeg", ".png", ".txt"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StorageDir: defaultStorageDir,
			LogDir:     defaultLogDir,
		},
		Matching: Matching{
			Strategy:          defaultMatchStrategy,
			AutoLinkThreshold: defaultAutoLinkThreshold,
			ReviewThreshold:   defaultReviewThreshold,
			MaxCandidates:     defaultMaxCandidates,
		},
		Processing: Processing{
			Workers:           defaultWorkers,
			AllowedExtensions: defaultAllowedExtensions(),
			MaxFileSizeMiB:    defaultMaxFileSizeMiB,
			StaleResetMinutes: defaultStaleResetMinutes,
		},
		Indexing: Indexing{
			Collection:     defaultIndexCollection,
			RequestTimeout: defaultIndexTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Sessions:       true,
			Review:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
