// Package memory provides an in-memory implementation of the beacon catalog
// store used for tests and ephemeral environments. The durable backends
// embed it and snapshot its state after every commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"beaconcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.CatalogStore = (*Store)(nil)

// Snapshot captures a point-in-time clone of the catalog.
type Snapshot struct {
	Beacons map[string]domain.Beacon `json:"beacons"`
}

type memoryState struct {
	beacons map[string]domain.Beacon
}

func newMemoryState() memoryState {
	return memoryState{beacons: make(map[string]domain.Beacon)}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.beacons {
		cloned.beacons[k] = cloneBeacon(v)
	}
	return cloned
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneDataset(d domain.BeaconDataset) domain.BeaconDataset {
	cp := d
	cp.Description = clonePtr(d.Description)
	cp.Version = clonePtr(d.Version)
	cp.VariantCount = clonePtr(d.VariantCount)
	cp.CallCount = clonePtr(d.CallCount)
	cp.SampleCount = clonePtr(d.SampleCount)
	cp.ExternalURL = clonePtr(d.ExternalURL)
	cp.Info = cloneStrings(d.Info)
	return cp
}

func cloneOrganization(o domain.BeaconOrganization) domain.BeaconOrganization {
	cp := o
	cp.Description = clonePtr(o.Description)
	cp.Address = clonePtr(o.Address)
	cp.WelcomeURL = clonePtr(o.WelcomeURL)
	cp.ContactURL = clonePtr(o.ContactURL)
	cp.LogoURL = clonePtr(o.LogoURL)
	cp.Info = cloneStrings(o.Info)
	return cp
}

func cloneRequest(r domain.BeaconAlleleRequest) domain.BeaconAlleleRequest {
	cp := r
	cp.AlternateBasesInfo = clonePtr(r.AlternateBasesInfo)
	cp.IncludeDatasetResponses = clonePtr(r.IncludeDatasetResponses)
	if r.DatasetIDs != nil {
		cp.DatasetIDs = append(make([]string, 0, len(r.DatasetIDs)), r.DatasetIDs...)
	}
	return cp
}

// cloneBeacon copies b without sharing any pointer, slice or map with it, so
// a rolled back transaction leaves committed state untouched.
func cloneBeacon(b domain.Beacon) domain.Beacon {
	cp := b
	cp.Description = clonePtr(b.Description)
	cp.Version = clonePtr(b.Version)
	cp.WelcomeURL = clonePtr(b.WelcomeURL)
	cp.AlternativeURL = clonePtr(b.AlternativeURL)
	cp.CreateDateTime = clonePtr(b.CreateDateTime)
	cp.UpdateDateTime = clonePtr(b.UpdateDateTime)
	cp.Info = cloneStrings(b.Info)
	cp.Organization = cloneOrganization(b.Organization)
	if b.Datasets != nil {
		cp.Datasets = make([]domain.BeaconDataset, len(b.Datasets))
		for i, ds := range b.Datasets {
			cp.Datasets[i] = cloneDataset(ds)
		}
	}
	if b.SampleAlleleRequests != nil {
		cp.SampleAlleleRequests = make([]domain.BeaconAlleleRequest, len(b.SampleAlleleRequests))
		for i, req := range b.SampleAlleleRequests {
			cp.SampleAlleleRequests[i] = cloneRequest(req)
		}
	}
	return cp
}

// Store provides an in-memory transactional catalog of beacons.
type Store struct {
	mu      sync.RWMutex
	state   memoryState
	checker domain.BeaconChecker
	nowFn   func() time.Time
}

// NewStore constructs an in-memory store. Every beacon touched by a
// transaction is revalidated with checker before commit; a nil checker
// accepts everything.
func NewStore(checker domain.BeaconChecker) *Store {
	return &Store{
		state:   newMemoryState(),
		checker: checker,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{Beacons: make(map[string]domain.Beacon, len(s.state.beacons))}
	for k, v := range s.state.beacons {
		out.Beacons[k] = cloneBeacon(v)
	}
	return out
}

// ImportState replaces the store state with the provided snapshot. Imported
// beacons are not revalidated.
func (s *Store) ImportState(snapshot Snapshot) {
	state := newMemoryState()
	for k, v := range snapshot.Beacons {
		if v.ID == "" {
			v.ID = k
		}
		state.beacons[v.ID] = cloneBeacon(v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Checker exposes the configured beacon checker.
func (s *Store) Checker() domain.BeaconChecker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checker
}

// NowFunc returns the time provider used to stamp beacon timestamps.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

// ListBeacons returns every beacon sorted by id.
func (v transactionView) ListBeacons() []domain.Beacon {
	out := make([]domain.Beacon, 0, len(v.state.beacons))
	for _, b := range v.state.beacons {
		out = append(out, cloneBeacon(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindBeacon(id string) (domain.Beacon, bool) {
	b, ok := v.state.beacons[id]
	if !ok {
		return domain.Beacon{}, false
	}
	return cloneBeacon(b), true
}

func (v transactionView) FindDataset(beaconID, datasetID string) (domain.BeaconDataset, bool) {
	b, ok := v.state.beacons[beaconID]
	if !ok {
		return domain.BeaconDataset{}, false
	}
	ds, ok := b.FindDataset(datasetID)
	if !ok {
		return domain.BeaconDataset{}, false
	}
	return cloneDataset(ds), true
}

// RunInTransaction applies fn to a private copy of the catalog. The copy
// replaces the catalog only when fn succeeds and no touched beacon has
// blocking violations.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.checker != nil {
		for _, id := range tx.touched() {
			b, ok := tx.state.beacons[id]
			if !ok {
				continue
			}
			res, err := s.checker.CheckBeacon(ctx, cloneBeacon(b))
			if err != nil {
				return domain.Result{}, fmt.Errorf("check beacon %s: %w", id, err)
			}
			result.Merge(res)
		}
		if result.HasBlocking() {
			return result, domain.RuleViolationError{Result: result}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// GetBeacon returns a beacon by id.
func (s *Store) GetBeacon(id string) (domain.Beacon, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindBeacon(id)
}

// ListBeacons returns every beacon sorted by id.
func (s *Store) ListBeacons() []domain.Beacon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListBeacons()
}

// touched returns the ids of beacons changed in this transaction, in first
// change order.
func (tx *transaction) touched() []string {
	seen := make(map[string]struct{}, len(tx.changes))
	var ids []string
	for _, c := range tx.changes {
		if c.After == nil {
			continue
		}
		if _, ok := seen[c.After.ID]; ok {
			continue
		}
		seen[c.After.ID] = struct{}{}
		ids = append(ids, c.After.ID)
	}
	return ids
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) stamp() *string {
	ts := tx.now.Format(time.RFC3339)
	return &ts
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

// FindBeacon looks a beacon up within the transaction scope.
func (tx *transaction) FindBeacon(id string) (domain.Beacon, bool) {
	return transactionView{state: &tx.state}.FindBeacon(id)
}

// PutBeacon creates or replaces a beacon. Absent creation and update
// timestamps are stamped with the transaction time.
func (tx *transaction) PutBeacon(b domain.Beacon) (domain.Beacon, error) {
	if b.ID == "" {
		return domain.Beacon{}, fmt.Errorf("beacon id is required")
	}
	before, exists := tx.state.beacons[b.ID]
	if b.CreateDateTime == nil {
		if exists && before.CreateDateTime != nil {
			b.CreateDateTime = before.CreateDateTime
		} else {
			b.CreateDateTime = tx.stamp()
		}
	}
	if b.UpdateDateTime == nil {
		b.UpdateDateTime = tx.stamp()
	}
	after := cloneBeacon(b)
	tx.state.beacons[b.ID] = after
	change := domain.Change{Action: domain.ActionCreate, After: &after}
	if exists {
		prev := cloneBeacon(before)
		change = domain.Change{Action: domain.ActionUpdate, Before: &prev, After: &after}
	}
	tx.recordChange(change)
	return cloneBeacon(after), nil
}

// UpdateBeacon mutates a beacon using the provided mutator function.
func (tx *transaction) UpdateBeacon(id string, mutator func(*domain.Beacon) error) (domain.Beacon, error) {
	current, ok := tx.state.beacons[id]
	if !ok {
		return domain.Beacon{}, domain.ErrNotFound{Record: domain.RecordBeacon, ID: id}
	}
	before := cloneBeacon(current)
	current = cloneBeacon(current)
	if err := mutator(&current); err != nil {
		return domain.Beacon{}, err
	}
	current.ID = id
	current.UpdateDateTime = tx.stamp()
	tx.state.beacons[id] = current
	after := cloneBeacon(current)
	tx.recordChange(domain.Change{Action: domain.ActionUpdate, Before: &before, After: &after})
	return cloneBeacon(current), nil
}

// UpdateDataset mutates one dataset of a beacon. The dataset id cannot change.
func (tx *transaction) UpdateDataset(beaconID, datasetID string, mutator func(*domain.BeaconDataset) error) (domain.BeaconDataset, error) {
	var updated domain.BeaconDataset
	_, err := tx.UpdateBeacon(beaconID, func(b *domain.Beacon) error {
		for i := range b.Datasets {
			if b.Datasets[i].ID != datasetID {
				continue
			}
			if err := mutator(&b.Datasets[i]); err != nil {
				return err
			}
			b.Datasets[i].ID = datasetID
			updated = cloneDataset(b.Datasets[i])
			return nil
		}
		return domain.ErrNotFound{Record: domain.RecordDataset, ID: datasetID}
	})
	if err != nil {
		return domain.BeaconDataset{}, err
	}
	return updated, nil
}

// DeleteBeacon removes a beacon from the transaction state.
func (tx *transaction) DeleteBeacon(id string) error {
	current, ok := tx.state.beacons[id]
	if !ok {
		return domain.ErrNotFound{Record: domain.RecordBeacon, ID: id}
	}
	delete(tx.state.beacons, id)
	before := cloneBeacon(current)
	tx.recordChange(domain.Change{Action: domain.ActionDelete, Before: &before})
	return nil
}
