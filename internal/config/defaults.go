package config

const (
	defaultSourceDir          = "./source-courses"
	defaultOptimizedDir       = "./optimized-courses"
	defaultTmpDir             = "./tmp"
	defaultLogDir             = "./logs"
	defaultWorkers            = 2
	defaultCourseTimeout      = 1800
	defaultWatchSettleSeconds = 5
	defaultEncoder            = EncoderAuto
	defaultMagickBinary       = "magick"
	defaultManifestPolicy     = ManifestPolicyLenient
	defaultReportFormat       = ReportFormatJSON
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultHistoryFile        = "history.db"
	defaultNtfyTimeout        = 10
)

// Encoder backends.
const (
	EncoderAuto   = "auto"
	EncoderMagick = "magick"
	EncoderNative = "native"
)

// Manifest policies.
const (
	ManifestPolicyLenient = "lenient"
	ManifestPolicyStrict  = "strict"
)

// Report formats.
const (
	ReportFormatJSON = "json"
	ReportFormatYAML = "yaml"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceDir:    defaultSourceDir,
			OptimizedDir: defaultOptimizedDir,
			TmpDir:       defaultTmpDir,
			LogDir:       defaultLogDir,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			CourseTimeout:      defaultCourseTimeout,
			WatchSettleSeconds: defaultWatchSettleSeconds,
		},
		Imaging: Imaging{
			Encoder:      defaultEncoder,
			MagickBinary: defaultMagickBinary,
		},
		Scan: Scan{
			KeepLocked: true,
		},
		Manifest: Manifest{
			Policy: defaultManifestPolicy,
		},
		Report: Report{
			Format: defaultReportFormat,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		History: History{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
	}
}
