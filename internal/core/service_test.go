package core_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"beaconcore/internal/core"
	"beaconcore/pkg/domain"
)

func sampleBeacon() map[string]any {
	return map[string]any{
		"id":           "beacon-1",
		"name":         "Sample Beacon",
		"apiVersion":   "v0.3.0",
		"organization": map[string]any{"id": "org-1", "name": "Sample Org"},
		"datasets": []any{
			map[string]any{
				"id":             "d1",
				"name":           "Cohort",
				"assemblyId":     "GRCh37",
				"createDateTime": "2020-01-01T00:00:00Z",
				"updateDateTime": "2020-02-01T00:00:00Z",
			},
		},
	}
}

func sampleQuery() map[string]any {
	return map[string]any{
		"referenceName":  "X",
		"start":          float64(5000),
		"referenceBases": "G",
		"alternateBases": "C",
		"assemblyId":     "GRCh37",
	}
}

func newService(t *testing.T) *core.Service {
	t.Helper()
	svc := core.NewInMemoryService(core.NewPipeline(), core.AlleleQuerierFunc(
		func(_ context.Context, ds domain.BeaconDataset, _ domain.BeaconAlleleRequest) (core.DatasetResult, error) {
			return core.DatasetResult{Exists: ds.ID == "d1"}, nil
		}))
	t.Cleanup(svc.Close)
	return svc
}

func TestServiceRegisterAndQuery(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	stored, res, err := svc.RegisterBeacon(ctx, sampleBeacon())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.HasBlocking() || stored.CreateDateTime == nil || stored.UpdateDateTime == nil {
		t.Fatalf("expected stored beacon with timestamps, got %+v", stored)
	}

	resp, err := svc.Query(ctx, "beacon-1", sampleQuery())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.Exists == nil || !*resp.Exists || resp.BeaconID != "beacon-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	resp, err = svc.Query(ctx, "nope", sampleQuery())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.Error == nil || resp.Error.ErrorCode != core.CodeNotFound {
		t.Fatalf("expected 404 for unknown beacon, got %+v", resp)
	}
}

func TestServiceRejectsInvalidBeacon(t *testing.T) {
	svc := newService(t)
	raw := sampleBeacon()
	raw["datasets"] = []any{}

	_, res, err := svc.RegisterBeacon(context.Background(), raw)
	var rejection *core.RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result, got %+v", res)
	}
	if _, err := svc.BeaconInfo("beacon-1"); err == nil {
		t.Fatalf("rejected beacon must not be stored")
	}
}

func TestServiceUpdateDatasetRevalidates(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if _, _, err := svc.RegisterBeacon(ctx, sampleBeacon()); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, err := svc.UpdateDataset(ctx, "beacon-1", "d1", func(ds *domain.BeaconDataset) error {
		ds.UpdateDateTime = "2019-01-01T00:00:00Z"
		return nil
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	info, err := svc.BeaconInfo("beacon-1")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Datasets[0].UpdateDateTime != "2020-02-01T00:00:00Z" {
		t.Fatalf("rejected update must not be committed, got %s", info.Datasets[0].UpdateDateTime)
	}

	updated, _, err := svc.UpdateDataset(ctx, "beacon-1", "d1", func(ds *domain.BeaconDataset) error {
		ds.SampleCount = domain.Ptr(int64(42))
		return nil
	})
	if err != nil || updated.SampleCount == nil || *updated.SampleCount != 42 {
		t.Fatalf("expected update to commit: %+v %v", updated, err)
	}

	_, _, err = svc.UpdateDataset(ctx, "beacon-1", "missing", func(*domain.BeaconDataset) error { return nil })
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) || notFound.ID != "missing" {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestServiceDeleteBeacon(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if _, _, err := svc.RegisterBeacon(ctx, sampleBeacon()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.DeleteBeacon(ctx, "beacon-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var notFound domain.ErrNotFound
	if _, err := svc.BeaconInfo("beacon-1"); !errors.As(err, &notFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

type describedDatasetsPlugin struct{}

func (describedDatasetsPlugin) Name() string    { return "described-datasets" }
func (describedDatasetsPlugin) Version() string { return "0.1.0" }

func (describedDatasetsPlugin) Register(registry *core.PluginRegistry) error {
	return registry.RegisterRule(describedDatasetsRule{})
}

type describedDatasetsRule struct{}

func (describedDatasetsRule) Name() string { return "DescribedDatasets" }

func (describedDatasetsRule) Evaluate(_ context.Context, subject domain.Subject) (domain.Result, error) {
	beacon, ok := subject.Record.(domain.Beacon)
	if !ok {
		return domain.Result{}, nil
	}
	res := domain.Result{}
	for _, ds := range beacon.Datasets {
		if ds.Description == nil {
			res.Add(domain.Violation{
				Rule:     "DescribedDatasets",
				Severity: domain.SeverityWarn,
				Message:  "dataset has no description",
				Record:   domain.RecordDataset,
				RecordID: ds.ID,
			})
		}
	}
	return res, nil
}

func TestServicePluginsAndRevalidate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if _, _, err := svc.RegisterBeacon(ctx, sampleBeacon()); err != nil {
		t.Fatalf("register: %v", err)
	}

	reports, err := svc.Revalidate(ctx)
	if err != nil || len(reports) != 0 {
		t.Fatalf("expected clean catalog, got %+v %v", reports, err)
	}

	meta, err := svc.InstallPlugin(describedDatasetsPlugin{})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(meta.Rules) != 1 || meta.Rules[0] != "DescribedDatasets" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if _, err := svc.InstallPlugin(describedDatasetsPlugin{}); err == nil {
		t.Fatalf("expected duplicate plugin error")
	}
	if _, err := svc.InstallPlugin(nil); err == nil {
		t.Fatalf("expected nil plugin error")
	}
	if got := svc.RegisteredPlugins(); len(got) != 1 || got[0].Version != "0.1.0" {
		t.Fatalf("unexpected plugins: %+v", got)
	}

	reports, err = svc.Revalidate(ctx)
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if len(reports) != 1 || reports[0].BeaconID != "beacon-1" || reports[0].Result.HasBlocking() {
		t.Fatalf("expected one warning report, got %+v", reports)
	}
}

type dupRulePlugin struct{}

func (dupRulePlugin) Name() string    { return "dup" }
func (dupRulePlugin) Version() string { return "1" }

func (dupRulePlugin) Register(registry *core.PluginRegistry) error {
	if err := registry.RegisterRule(describedDatasetsRule{}); err != nil {
		return err
	}
	return registry.RegisterRule(describedDatasetsRule{})
}

func TestInstallPluginRejectsDuplicateRules(t *testing.T) {
	svc := newService(t)
	if _, err := svc.InstallPlugin(dupRulePlugin{}); err == nil {
		t.Fatalf("expected duplicate rule error")
	}
	if len(svc.RegisteredPlugins()) != 0 {
		t.Fatalf("failed plugins must not be recorded")
	}
}

func TestOpenCatalogStore(t *testing.T) {
	ctx := context.Background()
	pipeline := core.NewPipeline()

	store, err := core.OpenCatalogStore(ctx, core.StorageMemory, "", pipeline)
	if err != nil || store == nil {
		t.Fatalf("memory store: %v", err)
	}

	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err = core.OpenCatalogStore(ctx, core.StorageSQLite, path, pipeline)
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		t.Cleanup(func() { _ = closer.Close() })
	}
	svc := core.NewService(store, pipeline, nil)
	t.Cleanup(svc.Close)
	if _, _, err := svc.RegisterBeacon(ctx, sampleBeacon()); err != nil {
		t.Fatalf("register on sqlite: %v", err)
	}
	if len(svc.Store().ListBeacons()) != 1 {
		t.Fatalf("expected stored beacon")
	}

	if _, err := core.OpenCatalogStore(ctx, "mongo", "", pipeline); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
