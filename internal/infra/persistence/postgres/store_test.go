package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"beaconcore/internal/infra/persistence/postgres/testutil"
	"beaconcore/pkg/domain"
)

func sampleBeacon(id string) domain.Beacon {
	return domain.Beacon{
		ID:           id,
		Name:         "Beacon " + id,
		APIVersion:   "v0.3.0",
		Organization: domain.BeaconOrganization{ID: "org", Name: "Org"},
		Datasets: []domain.BeaconDataset{{
			ID:             "ds1",
			Name:           "Dataset 1",
			AssemblyID:     "GRCh38",
			CreateDateTime: "2020-01-01T00:00:00Z",
			UpdateDateTime: "2020-01-01T00:00:00Z",
		}},
	}
}

func withStub(t *testing.T) *testutil.StubConn {
	t.Helper()
	_, conn := withStubDB(t)
	return conn
}

func withStubDB(t *testing.T) (*sql.DB, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	return db, conn
}

func requireClosed(t *testing.T, db *sql.DB) {
	t.Helper()
	if err := db.PingContext(context.Background()); err == nil || !strings.Contains(err.Error(), "closed") {
		t.Fatalf("expected the database handle to be closed, ping returned %v", err)
	}
}

func TestNewStoreCreatesTableAndLoadsSnapshot(t *testing.T) {
	conn := withStub(t)
	conn.Seed("state", map[string]any{
		"bucket":  "beacons",
		"payload": []byte(`{"b1":{"id":"b1","name":"Seeded","apiVersion":"v1","organization":{"id":"o","name":"O"},"datasets":[]}}`),
	})
	conn.Seed("state", map[string]any{"bucket": "legacy", "payload": []byte(`[]`)})

	store, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	b, ok := store.GetBeacon("b1")
	if !ok || b.Name != "Seeded" {
		t.Fatalf("expected seeded beacon, got %+v", b)
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got %v", conn.Execs)
	}
}

func TestRunInTransactionPersistsSnapshot(t *testing.T) {
	conn := withStub(t)
	store, err := NewStore(context.Background(), "postgres://example", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.DB() == nil {
		t.Fatalf("expected db handle")
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.PutBeacon(sampleBeacon("b1"))
		return err
	}); err != nil {
		t.Fatalf("put: %v", err)
	}
	rows := conn.Tables["state"]
	if len(rows) != 1 || rows[0]["bucket"] != "beacons" {
		t.Fatalf("expected single beacons row, got %+v", rows)
	}
	payload, _ := rows[0]["payload"].([]byte)
	if !strings.Contains(string(payload), `"b1"`) {
		t.Fatalf("expected beacon in payload, got %s", payload)
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteBeacon("b1")
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(conn.Tables["state"]) != 1 {
		t.Fatalf("expected upsert to replace the row, got %d rows", len(conn.Tables["state"]))
	}
}

func TestNewStoreErrors(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("no driver") })
		defer restore()
		if _, err := NewStore(context.Background(), "", nil); err == nil {
			t.Fatalf("expected open error")
		}
	})
	t.Run("ping", func(t *testing.T) {
		db, conn := withStubDB(t)
		defer requireClosed(t, db)
		conn.FailPing = true
		if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "ping") {
			t.Fatalf("expected ping error, got %v", err)
		}
	})
	t.Run("ddl", func(t *testing.T) {
		db, conn := withStubDB(t)
		defer requireClosed(t, db)
		conn.FailExec = true
		if _, err := NewStore(context.Background(), "", nil); err == nil {
			t.Fatalf("expected ddl error")
		}
	})
	t.Run("rows", func(t *testing.T) {
		db, conn := withStubDB(t)
		defer requireClosed(t, db)
		conn.RowsErr = errors.New("broken cursor")
		if _, err := NewStore(context.Background(), "", nil); err == nil {
			t.Fatalf("expected iterate error")
		}
	})
	t.Run("decode", func(t *testing.T) {
		db, conn := withStubDB(t)
		defer requireClosed(t, db)
		conn.Seed("state", map[string]any{"bucket": "beacons", "payload": []byte(`{`)})
		if _, err := NewStore(context.Background(), "", nil); err == nil {
			t.Fatalf("expected decode error")
		}
	})
}

func TestPersistErrorsSurface(t *testing.T) {
	conn := withStub(t)
	store, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.FailCommit = true
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.PutBeacon(sampleBeacon("b1"))
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
	conn.FailCommit = false
	conn.FailBegin = true
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.PutBeacon(sampleBeacon("b2"))
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "begin") {
		t.Fatalf("expected begin error, got %v", err)
	}
}
