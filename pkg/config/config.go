// Package config loads beaconcore settings from YAML with environment
// overrides and validates them before any component is constructed.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	// Storage selects the catalog store backend.
	Storage StorageConfig `yaml:"storage"`

	// Blob selects where catalog documents and snapshots are kept.
	Blob BlobConfig `yaml:"blob"`

	// Validation tunes the consistency rules.
	Validation ValidationConfig `yaml:"validation"`

	// Composer sizes the per-dataset query fan-out.
	Composer ComposerConfig `yaml:"composer"`

	// Catalog controls loading, watching and periodic revalidation.
	Catalog CatalogConfig `yaml:"catalog"`

	// Telemetry contains logging, metrics and tracing settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig selects the catalog store.
type StorageConfig struct {
	// Driver is one of memory, sqlite or postgres.
	// Default: "sqlite"
	Driver string `yaml:"driver" validate:"oneof=memory sqlite postgres"`

	// DSN is the sqlite database path or the postgres connection string.
	// Default: "beaconcore.db"
	DSN string `yaml:"dsn"`
}

// BlobConfig selects the document store.
type BlobConfig struct {
	// Driver is one of fs, s3 or memory.
	// Default: "fs"
	Driver string `yaml:"driver" validate:"oneof=fs s3 memory"`

	// Root is the directory used by the fs driver.
	// Default: "./catalog"
	Root string `yaml:"root"`

	S3 S3Config `yaml:"s3"`
}

// S3Config holds the bucket coordinates for the s3 driver.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
	PathStyle bool   `yaml:"path_style"`
}

// ValidationConfig tunes the validation pipeline.
type ValidationConfig struct {
	// StrictInfoKeys makes unrecognised alternateBasesInfo keys blocking.
	// Default: false
	StrictInfoKeys bool `yaml:"strict_info_keys"`

	// BeaconTimestampOrdering also checks a Beacon's own timestamps.
	// Default: false
	BeaconTimestampOrdering bool `yaml:"beacon_timestamp_ordering"`

	// RejectUnknownFields reports fields outside the schema as errors.
	// Default: false
	RejectUnknownFields bool `yaml:"reject_unknown_fields"`

	// Plugins names the built-in rule plugins to install.
	Plugins []string `yaml:"plugins" validate:"dive,oneof=provenance"`
}

// ComposerConfig sizes the composer's worker pool.
type ComposerConfig struct {
	// Workers bounds concurrent dataset queries.
	// Default: 8
	Workers int `yaml:"workers" validate:"min=1,max=1024"`
}

// CatalogConfig controls catalog document handling.
type CatalogConfig struct {
	// Prefix is the blob key prefix Beacon documents are loaded from.
	// Default: "beacons/"
	Prefix string `yaml:"prefix" validate:"required"`

	// SnapshotPrefix is where exported snapshots are written.
	// Default: "snapshots/"
	SnapshotPrefix string `yaml:"snapshot_prefix" validate:"required"`

	// WatchDir, when set, is reloaded whenever a file in it changes.
	WatchDir string `yaml:"watch_dir"`

	// Debounce coalesces bursts of file events.
	// Default: 500ms
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`

	// RevalidateSchedule is a cron expression for the revalidation sweep, or
	// "off" to disable it.
	// Default: "@every 1h"
	RevalidateSchedule string `yaml:"revalidate_schedule" validate:"schedule"`
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	// Default: "info"
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format is json or text.
	// Default: "json"
	Format string `yaml:"format" validate:"oneof=json text"`

	// AddSource includes file and line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus recorder.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name.
	// Default: "beaconcore"
	Namespace string `yaml:"namespace" validate:"required_if=Enabled true"`
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// ServiceName is the instrumentation scope name.
	// Default: "beaconcore"
	ServiceName string `yaml:"service_name"`
}
