package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"beaconcore/internal/catalog"
	"beaconcore/internal/core"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newCatalogCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the beacon catalog",
	}
	cmd.AddCommand(
		newCatalogLoadCmd(g),
		newCatalogExportCmd(g),
		newCatalogRestoreCmd(g),
		newCatalogRevalidateCmd(g),
		newCatalogWatchCmd(g),
	)
	return cmd
}

// withCatalog builds a runtime with the catalog opened and runs fn.
func withCatalog(cmd *cobra.Command, g *globalOptions, fn func(context.Context, *runtime) error) error {
	ctx := cmd.Context()
	run, err := newRuntime(g)
	if err != nil {
		return err
	}
	defer func() { _ = run.Close(ctx) }()
	if err := run.openCatalog(ctx, nil); err != nil {
		return err
	}
	return fn(ctx, run)
}

func (rt *runtime) loader() *catalog.Loader {
	return catalog.NewLoader(rt.service, rt.blobs,
		catalog.WithPrefix(rt.cfg.Catalog.Prefix), catalog.WithLogger(rt.logger))
}

func (rt *runtime) exporter() *catalog.Exporter {
	return catalog.NewExporter(rt.service, rt.blobs, rt.cfg.Catalog.SnapshotPrefix, rt.logger)
}

func printJSON(g *globalOptions, v any) error {
	enc := json.NewEncoder(g.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCatalogLoadCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load Beacon documents from blob storage into the catalog",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, g, func(ctx context.Context, rt *runtime) error {
				report, err := rt.loader().Load(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(g, report); err != nil {
					return err
				}
				if len(report.Failed) > 0 {
					return errRejected
				}
				return nil
			})
		},
	}
}

func newCatalogExportCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of the catalog to blob storage",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, g, func(ctx context.Context, rt *runtime) error {
				info, err := rt.exporter().Export(ctx)
				if err != nil {
					return err
				}
				return printJSON(g, info)
			})
		},
	}
}

func newCatalogRestoreCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot-key>",
		Short: "Restore the beacons of a snapshot into the catalog",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, g, func(ctx context.Context, rt *runtime) error {
				n, err := rt.exporter().Restore(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(g.stdout, "restored %d beacons from %s\n", n, args[0])
				return nil
			})
		},
	}
}

func newCatalogRevalidateCmd(g *globalOptions) *cobra.Command {
	var load bool
	cmd := &cobra.Command{
		Use:   "revalidate",
		Short: "Check every stored beacon against the current rule set",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, g, func(ctx context.Context, rt *runtime) error {
				if load {
					if _, err := rt.loader().Load(ctx); err != nil {
						return err
					}
				}
				reports, err := rt.service.Revalidate(ctx)
				if err != nil {
					return err
				}
				if reports == nil {
					reports = []core.BeaconReport{}
				}
				if err := printJSON(g, reports); err != nil {
					return err
				}
				for _, r := range reports {
					if r.Result.HasBlocking() {
						return errRejected
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&load, "load", false, "load documents from blob storage first")
	return cmd
}

func newCatalogWatchCmd(g *globalOptions) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the catalog loaded, reloading on change and revalidating on schedule",
		Long: `Watch loads the catalog, then reloads it whenever a document under
catalog.watch_dir changes and revalidates it on catalog.revalidate_schedule.
It runs until interrupted.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withCatalog(cmd, g, func(_ context.Context, rt *runtime) error {
				return runWatch(ctx, rt, metricsAddr)
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (requires telemetry.metrics.enabled)")
	return cmd
}

func runWatch(ctx context.Context, rt *runtime, metricsAddr string) error {
	if metricsAddr != "" && rt.registry == nil {
		return usageError{errors.New("--metrics-addr needs telemetry.metrics.enabled")}
	}
	loader := rt.loader()
	if report, err := loader.Load(ctx); err != nil {
		return err
	} else if len(report.Failed) > 0 {
		rt.logger.Warn("initial load rejected documents", slog.Int("failed", len(report.Failed)))
	}

	scheduler, err := catalog.NewScheduler(rt.service, rt.cfg.Catalog.RevalidateSchedule, nil, rt.logger)
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if rt.cfg.Catalog.WatchDir == "" {
		rt.logger.Info("no watch directory configured; waiting for shutdown")
		<-ctx.Done()
		return nil
	}
	watcher := catalog.NewWatcher(rt.cfg.Catalog.WatchDir, rt.cfg.Catalog.Debounce, catalog.LoaderReload(loader), rt.logger)
	return watcher.Run(ctx)
}
