package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BEACON_"

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates it. Environment variables are not consulted.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Load reads path when it is not empty, otherwise starts from the defaults,
// then applies BEACON_* environment overrides and validates the result.
// Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	var cfg *Config
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = Default()
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

type envBinding struct {
	name  string
	apply func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = i
		return nil
	}
}

func list(dst *[]string) func(string) error {
	return func(v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
		return nil
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func bindings(cfg *Config) []envBinding {
	return []envBinding{
		{"STORAGE_DRIVER", str(&cfg.Storage.Driver)},
		{"STORAGE_DSN", str(&cfg.Storage.DSN)},
		{"BLOB_DRIVER", str(&cfg.Blob.Driver)},
		{"BLOB_ROOT", str(&cfg.Blob.Root)},
		{"BLOB_S3_BUCKET", str(&cfg.Blob.S3.Bucket)},
		{"BLOB_S3_REGION", str(&cfg.Blob.S3.Region)},
		{"BLOB_S3_ENDPOINT", str(&cfg.Blob.S3.Endpoint)},
		{"BLOB_S3_PATH_STYLE", boolean(&cfg.Blob.S3.PathStyle)},
		{"VALIDATION_STRICT_INFO_KEYS", boolean(&cfg.Validation.StrictInfoKeys)},
		{"VALIDATION_BEACON_TIMESTAMP_ORDERING", boolean(&cfg.Validation.BeaconTimestampOrdering)},
		{"VALIDATION_REJECT_UNKNOWN_FIELDS", boolean(&cfg.Validation.RejectUnknownFields)},
		{"VALIDATION_PLUGINS", list(&cfg.Validation.Plugins)},
		{"COMPOSER_WORKERS", integer(&cfg.Composer.Workers)},
		{"CATALOG_PREFIX", str(&cfg.Catalog.Prefix)},
		{"CATALOG_SNAPSHOT_PREFIX", str(&cfg.Catalog.SnapshotPrefix)},
		{"CATALOG_WATCH_DIR", str(&cfg.Catalog.WatchDir)},
		{"CATALOG_DEBOUNCE", duration(&cfg.Catalog.Debounce)},
		{"CATALOG_REVALIDATE_SCHEDULE", str(&cfg.Catalog.RevalidateSchedule)},
		{"TELEMETRY_LOGGING_LEVEL", str(&cfg.Telemetry.Logging.Level)},
		{"TELEMETRY_LOGGING_FORMAT", str(&cfg.Telemetry.Logging.Format)},
		{"TELEMETRY_METRICS_ENABLED", boolean(&cfg.Telemetry.Metrics.Enabled)},
		{"TELEMETRY_METRICS_NAMESPACE", str(&cfg.Telemetry.Metrics.Namespace)},
		{"TELEMETRY_TRACING_ENABLED", boolean(&cfg.Telemetry.Tracing.Enabled)},
		{"TELEMETRY_TRACING_SERVICE_NAME", str(&cfg.Telemetry.Tracing.ServiceName)},
	}
}

// applyEnvOverrides applies BEACON_SECTION_FIELD variables. Unparseable
// values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	for _, b := range bindings(cfg) {
		val, ok := os.LookupEnv(EnvPrefix + b.name)
		if !ok || val == "" {
			continue
		}
		if err := b.apply(val); err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, b.name, val, err)
		}
	}
	return nil
}
