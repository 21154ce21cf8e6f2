package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file: ./config.yaml or /etc/vault-api/config.yaml.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/vault-api")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; environment variables may carry everything.
	}

	// Environment variables with VAULT_ prefix override file values, with
	// dots replaced by underscores (VAULT_SERVER_PORT → server.port).
	v.SetEnvPrefix("VAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers defaults for everything that has a sensible one. The
// master key and database URL deliberately have no default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Keys without a meaningful default are still registered (as empty) so
	// AutomaticEnv can bind them during Unmarshal; validation rejects the
	// empty values afterwards.
	v.SetDefault("database.url", "")
	v.SetDefault("encryption.master_key", "")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.temp_dir", "")
	v.SetDefault("storage.local.base_dir", "/var/lib/vault-api/objects")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.gcs.bucket", "")

	v.SetDefault("queue.worker_count", 4)
	v.SetDefault("queue.queue_size", 256)
	v.SetDefault("queue.job_timeout_seconds", 120)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_base_millis", 500)
	v.SetDefault("queue.backoff_max_millis", 30000)
	v.SetDefault("queue.sync_fallback", false)
	v.SetDefault("queue.connect_timeout_seconds", 5)
	v.SetDefault("queue.alert_queue_depth", 100)
	v.SetDefault("queue.failed_degraded", 5)
	v.SetDefault("queue.failed_unhealthy", 20)
	v.SetDefault("queue.backlog_threshold", 50)

	v.SetDefault("rate_limit.capacity", 10)
	v.SetDefault("rate_limit.refill_per_sec", 1.0)
	v.SetDefault("rate_limit.idle_ttl_seconds", 600)

	v.SetDefault("insight.gemini_api_key", "")
	v.SetDefault("insight.model_name", "gemini-2.0-flash")
}

// validate runs struct validation plus the cross-field checks the tag
// language cannot express.
func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// The selected storage backend must be fully configured.
	switch cfg.Storage.Backend {
	case "local":
		if cfg.Storage.Local.BaseDir == "" {
			return errors.New("invalid configuration: storage.local.base_dir is required for the local backend")
		}
	case "s3":
		s3 := cfg.Storage.S3
		if s3.Endpoint == "" || s3.AccessKey == "" || s3.SecretKey == "" || s3.Bucket == "" {
			return errors.New("invalid configuration: storage.s3 requires endpoint, access_key, secret_key and bucket")
		}
	case "gcs":
		if cfg.Storage.GCS.Bucket == "" {
			return errors.New("invalid configuration: storage.gcs.bucket is required for the gcs backend")
		}
	}

	if cfg.Queue.BackoffMaxMillis < cfg.Queue.BackoffBaseMillis {
		return errors.New("invalid configuration: queue.backoff_max_millis must be >= queue.backoff_base_millis")
	}

	if cfg.Queue.FailedUnhealthy < cfg.Queue.FailedDegraded {
		return errors.New("invalid configuration: queue.failed_unhealthy must be >= queue.failed_degraded")
	}

	return nil
}
