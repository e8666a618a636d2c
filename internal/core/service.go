package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"beaconcore/internal/infra/persistence/memory"
	"beaconcore/pkg/domain"
)

// Service ties the validation pipeline, the response composer and the beacon
// catalog together.
type Service struct {
	pipeline *Pipeline
	store    domain.CatalogStore
	composer *Composer

	mu      sync.RWMutex
	plugins map[string]PluginMetadata
}

// NewService constructs a service over store. Queries are answered by querier.
func NewService(store domain.CatalogStore, pipeline *Pipeline, querier AlleleQuerier, opts ...ComposerOption) *Service {
	if pipeline == nil {
		pipeline = NewPipeline()
	}
	return &Service{
		pipeline: pipeline,
		store:    store,
		composer: NewComposer(pipeline, querier, opts...),
		plugins:  make(map[string]PluginMetadata),
	}
}

// NewInMemoryService creates a service over a fresh in-memory catalog that is
// revalidated by pipeline.
func NewInMemoryService(pipeline *Pipeline, querier AlleleQuerier) *Service {
	if pipeline == nil {
		pipeline = NewPipeline()
	}
	return NewService(memory.NewStore(pipeline), pipeline, querier)
}

// Store returns the underlying catalog store.
func (s *Service) Store() domain.CatalogStore { return s.store }

// Pipeline returns the validation pipeline.
func (s *Service) Pipeline() *Pipeline { return s.pipeline }

// Close releases the composer's worker pool.
func (s *Service) Close() { s.composer.Close() }

// Query validates a raw allele request and answers it against the datasets of
// the named beacon. Unknown beacons yield a 404 error response.
func (s *Service) Query(ctx context.Context, beaconID string, raw any) (domain.BeaconAlleleResponse, error) {
	beacon, ok := s.store.GetBeacon(beaconID)
	if !ok {
		return errorResponse(beaconID, CodeNotFound, fmt.Sprintf("beacon %s not found", beaconID)), nil
	}
	return s.composer.Compose(ctx, beacon, raw)
}

// RegisterBeacon validates a raw Beacon document and stores it. Invalid
// documents are rejected with a *RejectionError before touching the catalog.
func (s *Service) RegisterBeacon(ctx context.Context, raw any) (domain.Beacon, Result, error) {
	out, err := s.pipeline.Validate(ctx, domain.RecordBeacon, raw)
	if err != nil {
		return domain.Beacon{}, Result{}, err
	}
	if !out.Valid() {
		return domain.Beacon{}, Result{Violations: out.Violations}, out.Err()
	}
	return s.PutBeacon(ctx, out.Record.(domain.Beacon))
}

// PutBeacon creates or replaces a beacon. The catalog revalidates it before commit.
func (s *Service) PutBeacon(ctx context.Context, beacon domain.Beacon) (domain.Beacon, Result, error) {
	var stored domain.Beacon
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		stored, err = tx.PutBeacon(beacon)
		return err
	})
	if err != nil {
		return domain.Beacon{}, res, err
	}
	s.pipeline.logger.InfoContext(ctx, "beacon stored",
		slog.String("beacon_id", stored.ID), slog.Int("datasets", len(stored.Datasets)))
	return stored, res, nil
}

// UpdateDataset mutates one dataset of a beacon and revalidates the beacon.
func (s *Service) UpdateDataset(ctx context.Context, beaconID, datasetID string, mutator func(*domain.BeaconDataset) error) (domain.BeaconDataset, Result, error) {
	var updated domain.BeaconDataset
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateDataset(beaconID, datasetID, mutator)
		return err
	})
	return updated, res, err
}

// DeleteBeacon removes a beacon from the catalog.
func (s *Service) DeleteBeacon(ctx context.Context, id string) (Result, error) {
	return s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteBeacon(id)
	})
}

// BeaconInfo returns the stored description of a beacon.
func (s *Service) BeaconInfo(id string) (domain.Beacon, error) {
	beacon, ok := s.store.GetBeacon(id)
	if !ok {
		return domain.Beacon{}, ErrNotFound{Record: domain.RecordBeacon, ID: id}
	}
	return beacon, nil
}

// BeaconReport is the revalidation outcome of one stored beacon.
type BeaconReport struct {
	BeaconID string `json:"beacon_id"`
	Result   Result `json:"result"`
}

// Revalidate checks every stored beacon against the current rule set and
// returns the beacons that report any violation. Rules can change between
// deployments, so a catalog that was valid when written may no longer be.
func (s *Service) Revalidate(ctx context.Context) ([]BeaconReport, error) {
	var reports []BeaconReport
	for _, beacon := range s.store.ListBeacons() {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		res, err := s.pipeline.CheckBeacon(ctx, beacon)
		if err != nil {
			return reports, fmt.Errorf("check beacon %s: %w", beacon.ID, err)
		}
		if len(res.Violations) == 0 {
			continue
		}
		reports = append(reports, BeaconReport{BeaconID: beacon.ID, Result: res})
		s.pipeline.logger.WarnContext(ctx, "stored beacon no longer validates",
			slog.String("beacon_id", beacon.ID),
			slog.Int("blocking", len(res.Blocking())),
			slog.Int("warnings", len(res.Warnings())))
	}
	return reports, nil
}

// InstallPlugin registers a plugin, wiring its rules into the pipeline's
// engine. Plugins must be installed before the service handles traffic.
func (s *Service) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}

	meta, err := RegisterPlugin(s.pipeline.engine, plugin)
	if err != nil {
		return PluginMetadata{}, err
	}
	s.plugins[plugin.Name()] = meta
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins, sorted by name.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
