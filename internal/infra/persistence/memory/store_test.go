package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"beaconcore/pkg/domain"
)

func sampleBeacon(id string) domain.Beacon {
	return domain.Beacon{
		ID:           id,
		Name:         "Beacon " + id,
		APIVersion:   "v0.3.0",
		Organization: domain.BeaconOrganization{ID: "org", Name: "Org", Info: map[string]string{"country": "SE"}},
		Datasets: []domain.BeaconDataset{{
			ID:             "ds1",
			Name:           "Dataset 1",
			AssemblyID:     "GRCh37",
			CreateDateTime: "2020-01-01T00:00:00Z",
			UpdateDateTime: "2020-02-01T00:00:00Z",
			Info:           map[string]string{"k": "v"},
		}},
	}
}

type checkerFunc func(context.Context, domain.Beacon) (domain.Result, error)

func (f checkerFunc) CheckBeacon(ctx context.Context, b domain.Beacon) (domain.Result, error) {
	return f(ctx, b)
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindBeacon("missing"); ok {
			t.Fatalf("expected missing beacon lookup")
		}
		created, err := tx.PutBeacon(sampleBeacon("b1"))
		if err != nil {
			return err
		}
		if created.CreateDateTime == nil || *created.CreateDateTime != "2024-03-01T12:00:00Z" {
			t.Fatalf("expected stamped create time, got %v", created.CreateDateTime)
		}
		if len(tx.Snapshot().ListBeacons()) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(store.ListBeacons()) != 1 {
		t.Fatalf("expected persisted beacon")
	}

	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListBeacons()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if _, ok := store.GetBeacon("b1"); !ok {
		t.Fatalf("expected restored state")
	}
	if store.NowFunc() == nil {
		t.Fatalf("expected now func")
	}
}

func TestStoreRollsBackOnError(t *testing.T) {
	store := NewStore(nil)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutBeacon(sampleBeacon("b1")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(store.ListBeacons()) != 0 {
		t.Fatalf("expected rollback")
	}
}

func TestStoreChecksTouchedBeacons(t *testing.T) {
	var checked []string
	store := NewStore(checkerFunc(func(_ context.Context, b domain.Beacon) (domain.Result, error) {
		checked = append(checked, b.ID)
		if b.Name == "bad" {
			return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock, RecordID: b.ID}}}, nil
		}
		return domain.Result{Violations: []domain.Violation{{Rule: "warn", Severity: domain.SeverityWarn, RecordID: b.ID}}}, nil
	}))
	ctx := context.Background()

	res, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.PutBeacon(sampleBeacon("b1")); err != nil {
			return err
		}
		_, err := tx.UpdateBeacon("b1", func(b *domain.Beacon) error {
			b.Description = domain.Ptr("updated")
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(checked) != 1 || checked[0] != "b1" {
		t.Fatalf("expected b1 checked once, got %v", checked)
	}
	if len(res.Warnings()) != 1 {
		t.Fatalf("expected warning to surface, got %+v", res)
	}

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateBeacon("b1", func(b *domain.Beacon) error {
			b.Name = "bad"
			return nil
		})
		return err
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	current, _ := store.GetBeacon("b1")
	if current.Name != "Beacon b1" {
		t.Fatalf("expected blocked update to be discarded, got %q", current.Name)
	}
}

func TestStoreCheckerError(t *testing.T) {
	boom := errors.New("checker down")
	store := NewStore(checkerFunc(func(context.Context, domain.Beacon) (domain.Result, error) {
		return domain.Result{}, boom
	}))
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.PutBeacon(sampleBeacon("b1"))
		return err
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected checker error, got %v", err)
	}
}

func TestUpdateDataset(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.PutBeacon(sampleBeacon("b1"))
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ds, err := tx.UpdateDataset("b1", "ds1", func(d *domain.BeaconDataset) error {
			d.ID = "renamed"
			d.VariantCount = domain.Ptr(int64(42))
			return nil
		})
		if err != nil {
			return err
		}
		if ds.ID != "ds1" {
			t.Fatalf("dataset id must not change, got %s", ds.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update dataset: %v", err)
	}
	err = store.View(ctx, func(v domain.TransactionView) error {
		ds, ok := v.FindDataset("b1", "ds1")
		if !ok || ds.VariantCount == nil || *ds.VariantCount != 42 {
			t.Fatalf("expected updated dataset, got %+v", ds)
		}
		if _, ok := v.FindDataset("b1", "nope"); ok {
			t.Fatalf("unexpected dataset")
		}
		if _, ok := v.FindDataset("nope", "ds1"); ok {
			t.Fatalf("unexpected beacon")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateDataset("b1", "nope", func(*domain.BeaconDataset) error { return nil })
		return err
	})
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) || nf.Record != domain.RecordDataset {
		t.Fatalf("expected dataset not found, got %v", err)
	}
}

func TestDeleteBeacon(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.PutBeacon(sampleBeacon("b1")); err != nil {
			return err
		}
		return tx.DeleteBeacon("b1")
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.ListBeacons()) != 0 {
		t.Fatalf("expected empty store")
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteBeacon("b1")
	})
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPutBeaconRequiresID(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.PutBeacon(domain.Beacon{})
		return err
	})
	if err == nil {
		t.Fatalf("expected error for missing id")
	}
}

func TestReturnedBeaconsAreCopies(t *testing.T) {
	store := NewStore(nil)
	store.ImportState(Snapshot{Beacons: map[string]domain.Beacon{"b1": sampleBeacon("")}})
	b, ok := store.GetBeacon("b1")
	if !ok {
		t.Fatalf("expected beacon keyed by map key")
	}
	b.Datasets[0].Info["k"] = "mutated"
	b.Organization.Info["country"] = "mutated"
	again, _ := store.GetBeacon("b1")
	if again.Datasets[0].Info["k"] != "v" || again.Organization.Info["country"] != "SE" {
		t.Fatalf("store state leaked through returned value")
	}
}

func TestBlockedUpdateLeavesPointerFieldsUntouched(t *testing.T) {
	store := NewStore(checkerFunc(func(_ context.Context, b domain.Beacon) (domain.Result, error) {
		if b.Datasets[0].UpdateDateTime < b.Datasets[0].CreateDateTime {
			return domain.Result{Violations: []domain.Violation{{Rule: "TimestampOrdering", Severity: domain.SeverityBlock, RecordID: b.ID}}}, nil
		}
		return domain.Result{}, nil
	}))
	ctx := context.Background()
	seed := sampleBeacon("b1")
	seed.Description = domain.Ptr("original")
	seed.Organization.Address = domain.Ptr("Main St")
	seed.Datasets[0].VariantCount = domain.Ptr(int64(5))
	seed.SampleAlleleRequests = []domain.BeaconAlleleRequest{{
		ReferenceName:           "1",
		ReferenceBases:          "A",
		AlternateBases:          "T",
		AssemblyID:              "GRCh37",
		AlternateBasesInfo:      domain.Ptr("END=10"),
		IncludeDatasetResponses: domain.Ptr(false),
	}}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.PutBeacon(seed)
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.UpdateBeacon("b1", func(b *domain.Beacon) error {
			*b.Description = "changed"
			*b.Organization.Address = "Elsewhere"
			*b.SampleAlleleRequests[0].AlternateBasesInfo = "SVLEN=3"
			*b.SampleAlleleRequests[0].IncludeDatasetResponses = true
			return nil
		}); err != nil {
			return err
		}
		_, err := tx.UpdateDataset("b1", "ds1", func(d *domain.BeaconDataset) error {
			*d.VariantCount = 7
			d.UpdateDateTime = "2000-01-01T00:00:00Z"
			return nil
		})
		return err
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation, got %v", err)
	}

	got, ok := store.GetBeacon("b1")
	if !ok {
		t.Fatalf("beacon vanished after rollback")
	}
	if *got.Datasets[0].VariantCount != 5 {
		t.Fatalf("variantCount leaked from rolled back transaction: %d", *got.Datasets[0].VariantCount)
	}
	if *got.Description != "original" || *got.Organization.Address != "Main St" {
		t.Fatalf("beacon fields leaked from rolled back transaction: %+v", got)
	}
	req := got.SampleAlleleRequests[0]
	if *req.AlternateBasesInfo != "END=10" || *req.IncludeDatasetResponses {
		t.Fatalf("sample request leaked from rolled back transaction: %+v", req)
	}
}

func TestReturnedBeaconPointersAreCopies(t *testing.T) {
	store := NewStore(nil)
	b := sampleBeacon("b1")
	b.Datasets[0].VariantCount = domain.Ptr(int64(5))
	store.ImportState(Snapshot{Beacons: map[string]domain.Beacon{"b1": b}})
	*b.Datasets[0].VariantCount = 6

	got, _ := store.GetBeacon("b1")
	*got.Datasets[0].VariantCount = 9
	again, _ := store.GetBeacon("b1")
	if *again.Datasets[0].VariantCount != 5 {
		t.Fatalf("store shares counters with callers: %d", *again.Datasets[0].VariantCount)
	}
}
