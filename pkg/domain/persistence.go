package domain

import (
	"context"
	"fmt"
)

// Action enumerates catalog mutations captured during a transaction.
type Action string

// Catalog actions.
const (
	// ActionCreate indicates a beacon was added to the catalog.
	ActionCreate Action = "create"
	// ActionUpdate indicates a beacon (or one of its datasets) changed.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes a single beacon mutation within a catalog transaction.
type Change struct {
	Action Action
	Before *Beacon
	After  *Beacon
}

// BeaconChecker revalidates a beacon before a catalog transaction commits.
// A returned error aborts the transaction; blocking violations in the result
// abort it with a RuleViolationError.
type BeaconChecker interface {
	CheckBeacon(ctx context.Context, beacon Beacon) (Result, error)
}

// Transaction exposes the catalog operations that a persistence
// implementation must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	PutBeacon(Beacon) (Beacon, error)
	UpdateBeacon(id string, mutator func(*Beacon) error) (Beacon, error)
	UpdateDataset(beaconID, datasetID string, mutator func(*BeaconDataset) error) (BeaconDataset, error)
	DeleteBeacon(id string) error
	FindBeacon(id string) (Beacon, bool)
}

// TransactionView provides read-only access to a catalog snapshot.
type TransactionView interface {
	ListBeacons() []Beacon
	FindBeacon(id string) (Beacon, bool)
	FindDataset(beaconID, datasetID string) (BeaconDataset, bool)
}

// CatalogStore is the abstraction over durable catalog backends (memory,
// sqlite, postgres).
type CatalogStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetBeacon(id string) (Beacon, bool)
	ListBeacons() []Beacon
}

// ErrNotFound is returned when a referenced catalog record does not exist.
type ErrNotFound struct {
	Record RecordType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Record, e.ID)
}
