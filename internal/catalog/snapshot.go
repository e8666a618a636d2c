package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"beaconcore/internal/blob"
	"beaconcore/internal/core"
	"beaconcore/pkg/domain"

	"github.com/google/uuid"
)

// DefaultSnapshotPrefix is the blob prefix snapshots are written under.
const DefaultSnapshotPrefix = "snapshots/"

// Snapshot is a point-in-time export of the catalog.
type Snapshot struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Beacons   []domain.Beacon `json:"beacons"`
}

// Exporter writes catalog snapshots to blob storage and restores them.
type Exporter struct {
	service *core.Service
	store   blob.Store
	prefix  string
	now     func() time.Time
	logger  *slog.Logger
}

// NewExporter constructs an exporter writing under prefix (DefaultSnapshotPrefix
// when empty).
func NewExporter(service *core.Service, store blob.Store, prefix string, logger *slog.Logger) *Exporter {
	if prefix == "" {
		prefix = DefaultSnapshotPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		service: service,
		store:   store,
		prefix:  prefix,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "catalog.exporter")),
	}
}

// Export writes every stored beacon to a new snapshot document and returns
// its metadata. Snapshot keys are never reused.
func (e *Exporter) Export(ctx context.Context) (blob.Info, error) {
	snap := Snapshot{
		ID:        uuid.NewString(),
		CreatedAt: e.now(),
		Beacons:   e.service.Store().ListBeacons(),
	}
	if snap.Beacons == nil {
		snap.Beacons = []domain.Beacon{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode snapshot: %w", err)
	}
	key := e.prefix + snap.ID + ".json"
	info, err := e.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"beacons":    strconv.Itoa(len(snap.Beacons)),
			"created-at": snap.CreatedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("write snapshot %s: %w", key, err)
	}
	e.logger.InfoContext(ctx, "catalog snapshot written",
		slog.String("key", key), slog.Int("beacons", len(snap.Beacons)))
	return info, nil
}

// List returns the snapshots under the prefix, ordered by key.
func (e *Exporter) List(ctx context.Context) ([]blob.Info, error) {
	infos, err := e.store.List(ctx, e.prefix)
	if err != nil {
		return nil, err
	}
	out := infos[:0]
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".json") {
			out = append(out, info)
		}
	}
	return out, nil
}

// Read decodes the snapshot stored at key.
func (e *Exporter) Read(ctx context.Context, key string) (Snapshot, error) {
	_, body, err := e.store.Get(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snap, nil
}

// Restore stores every beacon of the snapshot at key. Each beacon is
// revalidated by the catalog; the first rejection aborts the restore and
// leaves beacons restored so far in place.
func (e *Exporter) Restore(ctx context.Context, key string) (int, error) {
	snap, err := e.Read(ctx, key)
	if err != nil {
		return 0, err
	}
	for i, beacon := range snap.Beacons {
		if _, _, err := e.service.PutBeacon(ctx, beacon); err != nil {
			return i, fmt.Errorf("restore beacon %s: %w", beacon.ID, err)
		}
	}
	e.logger.InfoContext(ctx, "catalog snapshot restored",
		slog.String("key", key), slog.Int("beacons", len(snap.Beacons)))
	return len(snap.Beacons), nil
}
