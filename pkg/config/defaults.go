package config

import "time"

// Default values for configuration fields.
const (
	DefaultStorageDriver = "sqlite"
	DefaultStorageDSN    = "beaconcore.db"

	DefaultBlobDriver = "fs"
	DefaultBlobRoot   = "./catalog"

	DefaultComposerWorkers = 8

	DefaultCatalogPrefix             = "beacons/"
	DefaultCatalogSnapshotPrefix     = "snapshots/"
	DefaultCatalogDebounce           = 500 * time.Millisecond
	DefaultCatalogRevalidateSchedule = "@every 1h"
	ScheduleOff                      = "off"

	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsNamespace = "beaconcore"
	DefaultServiceName      = "beaconcore"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields. Booleans keep their zero value, so
// options that default to false need no entry here.
func ApplyDefaults(cfg *Config) {
	setString(&cfg.Storage.Driver, DefaultStorageDriver)
	if cfg.Storage.Driver == "sqlite" {
		setString(&cfg.Storage.DSN, DefaultStorageDSN)
	}

	setString(&cfg.Blob.Driver, DefaultBlobDriver)
	setString(&cfg.Blob.Root, DefaultBlobRoot)

	if cfg.Composer.Workers == 0 {
		cfg.Composer.Workers = DefaultComposerWorkers
	}

	setString(&cfg.Catalog.Prefix, DefaultCatalogPrefix)
	setString(&cfg.Catalog.SnapshotPrefix, DefaultCatalogSnapshotPrefix)
	if cfg.Catalog.Debounce == 0 {
		cfg.Catalog.Debounce = DefaultCatalogDebounce
	}
	setString(&cfg.Catalog.RevalidateSchedule, DefaultCatalogRevalidateSchedule)

	setString(&cfg.Telemetry.Logging.Level, DefaultLoggingLevel)
	setString(&cfg.Telemetry.Logging.Format, DefaultLoggingFormat)
	setString(&cfg.Telemetry.Metrics.Namespace, DefaultMetricsNamespace)
	setString(&cfg.Telemetry.Tracing.ServiceName, DefaultServiceName)
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
