package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Encryption EncryptionConfig `mapstructure:"encryption" validate:"required"`
	Storage    StorageConfig    `mapstructure:"storage"    validate:"required"`
	Queue      QueueConfig      `mapstructure:"queue"      validate:"required"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" validate:"required"`
	Insight    InsightConfig    `mapstructure:"insight"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// The metadata store is the single source of truth for document existence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// EncryptionConfig contains the envelope-encryption settings.
type EncryptionConfig struct {
	// MasterKey is the hex-encoded 256-bit master key. Its absence at
	// startup is fatal; detailed validation happens in keymanager.New.
	MasterKey string `mapstructure:"master_key" validate:"required,len=64,hexadecimal"`
}

// StorageConfig selects and configures the storage backend holding document
// bytes. Only the section for the selected backend is validated.
type StorageConfig struct {
	// Backend selects which storage provider holds document bytes.
	Backend string `mapstructure:"backend" validate:"required,oneof=local s3 gcs"`

	// TempDir is where ingestion scratch files live. Cleaned on every exit
	// path. Empty means os.TempDir().
	TempDir string `mapstructure:"temp_dir"`

	Local LocalStorageConfig `mapstructure:"local"`
	S3    S3StorageConfig    `mapstructure:"s3"`
	GCS   GCSStorageConfig   `mapstructure:"gcs"`
}

// LocalStorageConfig configures the filesystem backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// S3StorageConfig configures the S3-compatible backend.
type S3StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// GCSStorageConfig configures the Google Cloud Storage backend.
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// QueueConfig configures the enrichment job queue and worker pool.
type QueueConfig struct {
	// WorkerCount bounds concurrent job execution.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`

	// QueueSize bounds the waiting backlog per priority.
	QueueSize int `mapstructure:"queue_size" validate:"required,gt=0"`

	// JobTimeoutSeconds is the hard per-job execution timeout.
	JobTimeoutSeconds int `mapstructure:"job_timeout_seconds" validate:"required,gt=0"`

	// MaxAttempts bounds retries before a job is dead-lettered.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// BackoffBaseMillis and BackoffMaxMillis shape the exponential retry
	// delay: base * 2^attempt, capped at max.
	BackoffBaseMillis int `mapstructure:"backoff_base_millis" validate:"required,gt=0"`
	BackoffMaxMillis  int `mapstructure:"backoff_max_millis"  validate:"required,gt=0"`

	// SyncFallback explicitly selects the no-queue synchronous submission
	// strategy. Fallback is a configuration decision, never inferred from a
	// connectivity probe.
	SyncFallback bool `mapstructure:"sync_fallback"`

	// ConnectTimeoutSeconds bounds the startup connection check for the
	// durable queue backend.
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds" validate:"required,gt=0"`

	// Health thresholds (see internal/health).
	AlertQueueDepth  int `mapstructure:"alert_queue_depth"  validate:"required,gt=0"`
	FailedDegraded   int `mapstructure:"failed_degraded"    validate:"required,gt=0"`
	FailedUnhealthy  int `mapstructure:"failed_unhealthy"   validate:"required,gt=0"`
	BacklogThreshold int `mapstructure:"backlog_threshold"  validate:"required,gt=0"`
}

// RateLimitConfig configures per-principal admission control.
type RateLimitConfig struct {
	// Capacity is the token bucket burst size.
	Capacity int `mapstructure:"capacity" validate:"required,gt=0"`

	// RefillPerSec is the sustained tokens-per-second refill rate.
	RefillPerSec float64 `mapstructure:"refill_per_sec" validate:"required,gt=0"`

	// IdleTTLSeconds evicts buckets not used for this long.
	IdleTTLSeconds int `mapstructure:"idle_ttl_seconds" validate:"required,gt=0"`
}

// InsightConfig contains the AI insight generation settings. Optional: with
// no API key the insight job handler is not registered.
type InsightConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"`
}
