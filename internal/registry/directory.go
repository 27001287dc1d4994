package registry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/model"
)

const (
	// DefaultDirectoryTTL is how long a fetched directory is considered fresh.
	DefaultDirectoryTTL = 6 * time.Hour
	// RetryInterval is the minimum wait between failed directory fetches.
	RetryInterval = time.Minute
	// DefaultFetchTimeout bounds one shared directory refresh.
	DefaultFetchTimeout = 30 * time.Second
)

// ErrSnapshotMiss is returned by a SnapshotStore with nothing stored.
var ErrSnapshotMiss = errors.New("directory snapshot not found")

// SnapshotStore persists the last good directory snapshot across restarts.
type SnapshotStore interface {
	GetDirectorySnapshot(ctx context.Context) (*model.DirectorySnapshot, error)
	SetDirectorySnapshot(ctx context.Context, snap *model.DirectorySnapshot) error
}

// Directory is a registry backed by an external agency directory. Each agency
// owns a single record type: its lower-cased abbreviation.
//
// Fetch failures never surface to callers. The registry serves the newest
// snapshot it has (memory, then store) and, with none at all, routes every
// tag to the fallback office.
type Directory struct {
	client   DirectoryClient
	store    SnapshotStore
	fallback model.Office
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time

	group       singleflight.Group
	mu          sync.RWMutex
	catalog     *Catalog
	fetchedAt   time.Time
	nextAttempt time.Time
}

// NewDirectory creates a fetch-backed registry. store may be nil.
func NewDirectory(client DirectoryClient, store SnapshotStore, fallback model.Office, ttl time.Duration, logger *slog.Logger, recorder metrics.Recorder) *Directory {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if ttl <= 0 {
		ttl = DefaultDirectoryTTL
	}
	return &Directory{
		client:   client,
		store:    store,
		fallback: fallback,
		ttl:      ttl,
		timeout:  DefaultFetchTimeout,
		logger:   logger.With("component", "registry.directory"),
		metrics:  recorder,
		now:      time.Now,
	}
}

// Classify implements Registry.
func (d *Directory) Classify(ctx context.Context, recordType string) model.Office {
	office, fallback := d.current(ctx).Classify(recordType)
	d.metrics.IncClassification(fallback)
	if fallback {
		d.logger.Info("record type routed to fallback office",
			"record_type", recordType,
			"office", office.Code,
		)
	}
	return office
}

// ListRecordTypes implements Registry.
func (d *Directory) ListRecordTypes(ctx context.Context) []model.RecordTypeOption {
	return d.current(ctx).RecordTypes()
}

// Offices implements Registry.
func (d *Directory) Offices(ctx context.Context) []model.Office {
	return d.current(ctx).Offices()
}

// Lookup implements Registry.
func (d *Directory) Lookup(ctx context.Context, code string) (model.Office, bool) {
	return d.current(ctx).Lookup(code)
}

// Refresh forces a directory fetch regardless of freshness.
func (d *Directory) Refresh(ctx context.Context) error {
	_, err, _ := d.group.Do("refresh", func() (any, error) {
		fctx, cancel := d.shared(ctx)
		defer cancel()
		return nil, d.fetch(fctx)
	})
	return err
}

// shared returns the context for a refresh run inside group. Every waiter
// gets its result, so it ignores the first caller's cancellation.
func (d *Directory) shared(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
}

// current returns the catalog to route with, refreshing when stale.
func (d *Directory) current(ctx context.Context) *Catalog {
	d.mu.RLock()
	catalog, fetchedAt, nextAttempt := d.catalog, d.fetchedAt, d.nextAttempt
	d.mu.RUnlock()

	now := d.now()
	fresh := catalog != nil && now.Sub(fetchedAt) < d.ttl
	if !fresh && !now.Before(nextAttempt) {
		_, _, _ = d.group.Do("refresh", func() (any, error) {
			fctx, cancel := d.shared(ctx)
			defer cancel()
			d.refresh(fctx)
			return nil, nil
		})
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.catalog == nil {
		return NewCatalog(nil, d.fallback)
	}
	return d.catalog
}

// refresh loads a fresh snapshot from the store or the directory. Errors
// leave the previous catalog in place.
func (d *Directory) refresh(ctx context.Context) {
	if snap := d.loadStored(ctx); snap != nil && d.now().Sub(snap.FetchedAt) < d.ttl {
		d.metrics.IncDirectoryFetch(metrics.FetchCacheHit)
		d.install(snap)
		return
	}

	err := d.fetch(ctx)
	if err == nil {
		return
	}

	d.logger.Warn("directory fetch failed, serving last snapshot", "error", err)

	d.mu.Lock()
	d.nextAttempt = d.now().Add(RetryInterval)
	haveMemory := d.catalog != nil
	d.mu.Unlock()
	if haveMemory {
		return
	}
	if snap := d.loadStored(ctx); snap != nil {
		d.install(snap)
	}
}

func (d *Directory) fetch(ctx context.Context) error {
	entries, err := d.client.FetchDirectory(ctx)
	if err != nil {
		d.metrics.IncDirectoryFetch(metrics.FetchError)
		return err
	}
	d.metrics.IncDirectoryFetch(metrics.FetchSuccess)

	offices := NormalizeDirectory(entries)
	snap := &model.DirectorySnapshot{Offices: offices, FetchedAt: d.now()}
	d.install(snap)

	d.logger.Info("directory refreshed", "entries", len(entries), "offices", len(offices))

	if d.store != nil {
		if err := d.store.SetDirectorySnapshot(ctx, snap); err != nil {
			d.logger.Warn("failed to store directory snapshot", "error", err)
		}
	}
	return nil
}

func (d *Directory) loadStored(ctx context.Context) *model.DirectorySnapshot {
	if d.store == nil {
		return nil
	}
	snap, err := d.store.GetDirectorySnapshot(ctx)
	if err != nil {
		if !errors.Is(err, ErrSnapshotMiss) {
			d.logger.Warn("failed to load directory snapshot", "error", err)
		}
		return nil
	}
	return snap
}

func (d *Directory) install(snap *model.DirectorySnapshot) {
	catalog := NewCatalog(snap.Offices, d.fallback)
	d.mu.Lock()
	d.catalog = catalog
	d.fetchedAt = snap.FetchedAt
	d.mu.Unlock()
}

// NormalizeDirectory converts raw entries to offices sorted by name. Entries
// without an abbreviation, a name or any contact email are dropped.
func NormalizeDirectory(entries []DirectoryEntry) []model.Office {
	offices := make([]model.Office, 0, len(entries))
	seen := make(map[string]bool)
	for _, e := range entries {
		office, ok := NormalizeEntry(e)
		if !ok || seen[strings.ToLower(office.Code)] {
			continue
		}
		seen[strings.ToLower(office.Code)] = true
		offices = append(offices, office)
	}

	sort.SliceStable(offices, func(i, j int) bool {
		return strings.ToLower(offices[i].Name) < strings.ToLower(offices[j].Name)
	})
	return offices
}

// NormalizeEntry maps one directory entry to an office. The request form
// address is preferred over the general contact list.
func NormalizeEntry(e DirectoryEntry) (model.Office, bool) {
	code := strings.TrimSpace(e.Abbreviation)
	name := strings.TrimSpace(e.Name)
	if code == "" || name == "" {
		return model.Office{}, false
	}

	var email string
	if e.RequestForm != nil {
		email = strings.TrimSpace(e.RequestForm.Email)
	}
	for _, candidate := range e.Emails {
		if email != "" {
			break
		}
		email = strings.TrimSpace(candidate)
	}
	if email == "" {
		return model.Office{}, false
	}

	return model.Office{
		Code:        code,
		Name:        name,
		Email:       email,
		Description: strings.TrimSpace(e.Description),
		RecordTypes: []string{strings.ToLower(code)},
	}, true
}
