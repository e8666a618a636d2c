// Package catalog keeps the beacon catalog in sync with Beacon documents in
// blob storage: it loads and reloads them, exports snapshots and
// periodically revalidates what is stored.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"beaconcore/internal/blob"
	"beaconcore/internal/core"
	"beaconcore/internal/validation"
	"beaconcore/pkg/domain"
)

// DefaultPrefix is the blob prefix Beacon documents are read from.
const DefaultPrefix = "beacons/"

// DocumentError records why one document could not be loaded.
type DocumentError struct {
	Key string `json:"key"`
	Err error  `json:"-"`
	// Problems lists the rejection reasons when the document was invalid.
	Problems []string `json:"problems,omitempty"`
}

func (e DocumentError) Error() string { return fmt.Sprintf("%s: %v", e.Key, e.Err) }

func (e DocumentError) Unwrap() error { return e.Err }

// LoadReport summarises one Load pass.
type LoadReport struct {
	Loaded    []string        `json:"loaded,omitempty"`
	Unchanged int             `json:"unchanged"`
	Removed   []string        `json:"removed,omitempty"`
	Failed    []DocumentError `json:"failed,omitempty"`
}

// Err joins the per-document failures, or returns nil.
func (r LoadReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

type loadedDocument struct {
	fingerprint string
	beaconID    string
}

// Loader registers Beacon documents found under a blob prefix. It remembers
// each document's fingerprint so unchanged documents are skipped on reload,
// and removes beacons whose document disappeared.
type Loader struct {
	service *core.Service
	store   blob.Store
	prefix  string
	logger  *slog.Logger

	mu   sync.Mutex
	docs map[string]loadedDocument
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPrefix sets the blob prefix documents are listed from.
func WithPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithLogger sets the loader's logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader constructs a loader feeding service from store.
func NewLoader(service *core.Service, store blob.Store, opts ...LoaderOption) *Loader {
	l := &Loader{
		service: service,
		store:   store,
		prefix:  DefaultPrefix,
		logger:  slog.Default(),
		docs:    make(map[string]loadedDocument),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.logger = l.logger.With(slog.String("component", "catalog.loader"))
	return l
}

// Prefix returns the prefix the loader reads.
func (l *Loader) Prefix() string { return l.prefix }

// Load lists every JSON document under the prefix and registers the ones
// that are new or changed. A document that fails validation is reported and
// leaves the previously loaded version of its beacon in place. The returned
// error is reserved for failures to reach the blob store.
func (l *Loader) Load(ctx context.Context) (LoadReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	infos, err := l.store.List(ctx, l.prefix)
	if err != nil {
		return LoadReport{}, fmt.Errorf("list %s: %w", l.prefix, err)
	}

	var report LoadReport
	present := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		if !strings.HasSuffix(info.Key, ".json") {
			continue
		}
		present[info.Key] = struct{}{}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		beaconID, changed, err := l.loadDocument(ctx, info.Key)
		switch {
		case err != nil:
			report.Failed = append(report.Failed, documentError(info.Key, err))
			l.logger.WarnContext(ctx, "beacon document rejected",
				slog.String("key", info.Key), slog.Any("error", err))
		case changed:
			report.Loaded = append(report.Loaded, beaconID)
		default:
			report.Unchanged++
		}
	}

	for key, doc := range l.docs {
		if _, ok := present[key]; ok {
			continue
		}
		if l.claimedElsewhere(key, doc.beaconID) {
			delete(l.docs, key)
			continue
		}
		if _, err := l.service.DeleteBeacon(ctx, doc.beaconID); err != nil && !isNotFound(err) {
			report.Failed = append(report.Failed, documentError(key, err))
			continue
		}
		delete(l.docs, key)
		report.Removed = append(report.Removed, doc.beaconID)
	}

	l.logger.InfoContext(ctx, "catalog loaded",
		slog.Int("loaded", len(report.Loaded)),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("removed", len(report.Removed)),
		slog.Int("failed", len(report.Failed)))
	return report, nil
}

func (l *Loader) loadDocument(ctx context.Context, key string) (string, bool, error) {
	_, body, err := l.store.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	data, err := io.ReadAll(body)
	_ = body.Close()
	if err != nil {
		return "", false, fmt.Errorf("read: %w", err)
	}

	fingerprint := blob.Fingerprint(data)
	if prev, ok := l.docs[key]; ok && prev.fingerprint == fingerprint {
		return prev.beaconID, false, nil
	}

	raw, err := validation.DecodeRaw(data)
	if err != nil {
		return "", false, err
	}
	stored, _, err := l.service.RegisterBeacon(ctx, raw)
	if err != nil {
		return "", false, err
	}
	if prev, ok := l.docs[key]; ok && prev.beaconID != stored.ID {
		// the document was renamed in place; drop the old beacon
		if _, err := l.service.DeleteBeacon(ctx, prev.beaconID); err != nil && !isNotFound(err) {
			return "", false, err
		}
	}
	l.docs[key] = loadedDocument{fingerprint: fingerprint, beaconID: stored.ID}
	return stored.ID, true, nil
}

// claimedElsewhere reports whether another loaded document defines beaconID.
func (l *Loader) claimedElsewhere(key, beaconID string) bool {
	for other, doc := range l.docs {
		if other != key && doc.beaconID == beaconID {
			return true
		}
	}
	return false
}

func documentError(key string, err error) DocumentError {
	de := DocumentError{Key: key, Err: err}
	var rejection *core.RejectionError
	if errors.As(err, &rejection) {
		de.Problems = rejection.Problems()
	}
	var violation domain.RuleViolationError
	if errors.As(err, &violation) && len(de.Problems) == 0 {
		for _, v := range violation.Result.Blocking() {
			de.Problems = append(de.Problems, v.String())
		}
	}
	return de
}

func isNotFound(err error) bool {
	var nf domain.ErrNotFound
	return errors.As(err, &nf)
}
