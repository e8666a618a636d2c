package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"beaconcore/internal/blob"
	"beaconcore/internal/core"
	"beaconcore/internal/telemetry/logging"
	"beaconcore/internal/telemetry/metrics"
	"beaconcore/internal/telemetry/tracing"
	"beaconcore/internal/validation"
	"beaconcore/pkg/config"
	"beaconcore/plugins"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// runtime holds everything a command needs, built from configuration.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	provider *sdktrace.TracerProvider
	pipeline *core.Pipeline

	// set by openCatalog
	service *core.Service
	blobs   blob.Store
	closers []io.Closer
}

func newRuntime(opts *globalOptions) (*runtime, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		Writer:    opts.stderr,
	})
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}

	engine := core.NewDefaultRulesEngine(
		core.WithStrictInfoKeys(cfg.Validation.StrictInfoKeys),
		core.WithBeaconTimestampOrdering(cfg.Validation.BeaconTimestampOrdering),
	)
	for _, name := range cfg.Validation.Plugins {
		plugin, ok := plugins.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q (available: %v)", name, plugins.Names())
		}
		meta, err := core.RegisterPlugin(engine, plugin)
		if err != nil {
			return nil, err
		}
		logger.Debug("plugin installed", slog.String("plugin", meta.Name), slog.Any("rules", meta.Rules))
	}
	pipelineOpts := []core.PipelineOption{
		core.WithLogger(logger),
		core.WithRulesEngine(engine),
	}
	if cfg.Validation.RejectUnknownFields {
		pipelineOpts = append(pipelineOpts, core.WithValidator(validation.New(validation.WithRejectUnknownFields())))
	}
	if cfg.Telemetry.Metrics.Enabled {
		recorder, err := metrics.NewRecorder(cfg.Telemetry.Metrics.Namespace, nil)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		rt.registry = recorder.Registry()
		pipelineOpts = append(pipelineOpts, core.WithMetrics(recorder))
	}
	if cfg.Telemetry.Tracing.Enabled {
		rt.provider = tracing.NewProvider()
		pipelineOpts = append(pipelineOpts, core.WithTracer(tracing.New(rt.provider, cfg.Telemetry.Tracing.ServiceName)))
	}
	rt.pipeline = core.NewPipeline(pipelineOpts...)
	return rt, nil
}

// openCatalog opens the catalog store and the blob store and builds the
// service over them. querier may be nil for commands that never compose.
func (rt *runtime) openCatalog(ctx context.Context, querier core.AlleleQuerier) error {
	store, err := core.OpenCatalogStore(ctx, core.StorageDriver(rt.cfg.Storage.Driver), rt.cfg.Storage.DSN, rt.pipeline)
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}
	blobs, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(rt.cfg.Blob.Driver),
		Root:   rt.cfg.Blob.Root,
		S3: blob.S3Config{
			Region:    rt.cfg.Blob.S3.Region,
			Bucket:    rt.cfg.Blob.S3.Bucket,
			Endpoint:  rt.cfg.Blob.S3.Endpoint,
			PathStyle: rt.cfg.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	rt.blobs = blobs
	rt.service = core.NewService(store, rt.pipeline, querier, core.WithWorkers(rt.cfg.Composer.Workers))
	return nil
}

func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.service != nil {
		rt.service.Close()
	}
	for _, c := range rt.closers {
		errs = append(errs, c.Close())
	}
	if rt.provider != nil {
		errs = append(errs, rt.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
