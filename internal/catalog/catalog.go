// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog holds the deduplicating, expiring collection of detected
// media, keyed by locator and scoped by browsing context.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/xgrab/internal/classify"
	"github.com/ManuGH/xgrab/internal/kv"
	xglog "github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/media"
	"github.com/ManuGH/xgrab/internal/metrics"
)

const (
	// MaxAge is the retention window of the periodic sweep.
	MaxAge = 10 * time.Minute
	// ContextMaxAge is the window used by on-demand context sweeps.
	ContextMaxAge = 5 * time.Minute
	// SweepInterval is how often Run sweeps.
	SweepInterval = time.Minute
	// StorageKey is the kv key holding the serialized record list.
	StorageKey = "catalog/records"

	persistTimeout = 5 * time.Second
)

// ErrNotFound is returned by SetSize for unknown locators.
var ErrNotFound = errors.New("catalog: record not found")

// Catalog maps locator to record. The zero value is not usable; use New.
type Catalog struct {
	mu      sync.RWMutex
	records map[string]media.Record

	// persistMu serialises snapshot+write so a later snapshot never loses
	// to an earlier one.
	persistMu sync.Mutex
	store     kv.Store

	now    func() time.Time
	logger zerolog.Logger
}

// Option customises a Catalog.
type Option func(*Catalog)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// Now reads the catalog's clock. Records aged by this catalog should be
// stamped with it.
func (c *Catalog) Now() time.Time { return c.now() }

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// New returns an empty catalog persisting to store. A nil store disables
// persistence.
func New(store kv.Store, opts ...Option) *Catalog {
	c := &Catalog{
		records: make(map[string]media.Record),
		store:   store,
		now:     time.Now,
		logger:  xglog.WithComponent("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add inserts rec unless its locator is already present. It reports whether
// the record was inserted. Only invalid records produce an error.
func (c *Catalog) Add(ctx context.Context, rec media.Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	c.mu.Lock()
	if _, exists := c.records[rec.Locator]; exists {
		c.mu.Unlock()
		return false, nil
	}
	c.records[rec.Locator] = rec.Clone()
	n := len(c.records)
	c.mu.Unlock()

	metrics.SetCatalogSize(n)
	c.persist(ctx)
	return true, nil
}

// Get returns a copy of the record for locator.
func (c *Catalog) Get(locator string) (media.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[locator]
	if !ok {
		return media.Record{}, false
	}
	return rec.Clone(), true
}

// Has reports whether locator is catalogued.
func (c *Catalog) Has(locator string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.records[locator]
	return ok
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// SetSize back-fills the size of an existing record. It is the only
// mutation a record accepts after insertion.
func (c *Catalog) SetSize(ctx context.Context, locator string, size int64) error {
	if size < 0 {
		return media.ErrInvalidRecord
	}
	c.mu.Lock()
	rec, ok := c.records[locator]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	rec.SizeBytes = &size
	c.records[locator] = rec
	c.mu.Unlock()

	c.persist(ctx)
	return nil
}

// Remove deletes one record and reports whether it existed.
func (c *Catalog) Remove(ctx context.Context, locator string) bool {
	c.mu.Lock()
	_, ok := c.records[locator]
	delete(c.records, locator)
	n := len(c.records)
	c.mu.Unlock()

	if ok {
		metrics.SetCatalogSize(n)
		metrics.RecordEvictions("explicit", 1)
		c.persist(ctx)
	}
	return ok
}

// ClearAll drops every record.
func (c *Catalog) ClearAll(ctx context.Context) {
	c.mu.Lock()
	n := len(c.records)
	c.records = make(map[string]media.Record)
	c.mu.Unlock()

	metrics.SetCatalogSize(0)
	metrics.RecordEvictions("explicit", n)
	c.persist(ctx)
}

// ClearContext drops every record belonging to contextID regardless of age.
func (c *Catalog) ClearContext(ctx context.Context, contextID int64) int {
	return c.evict(ctx, "explicit", func(r media.Record) bool {
		return r.InContext(contextID)
	})
}

// All returns every record, newest first.
func (c *Catalog) All() []media.Record {
	return c.collect(func(media.Record) bool { return true })
}

// ForContext returns the records of one context, newest first. Ephemeral and
// segment-like records are excluded unless asked for.
func (c *Catalog) ForContext(contextID int64, includeEphemeral, includeSegmentLike bool) []media.Record {
	return c.collect(func(r media.Record) bool {
		if !r.InContext(contextID) {
			return false
		}
		if !includeEphemeral && IsEphemeral(r) {
			return false
		}
		if !includeSegmentLike && IsSegmentLike(r) {
			return false
		}
		return true
	})
}

// Sweep evicts every record older than maxAge.
func (c *Catalog) Sweep(ctx context.Context, maxAge time.Duration) int {
	now := c.now()
	return c.evict(ctx, "age", func(r media.Record) bool {
		return r.IsExpired(now, maxAge)
	})
}

// SweepContext evicts records that belong to contextID and are older than
// maxAge. Both conditions must hold.
func (c *Catalog) SweepContext(ctx context.Context, contextID int64, maxAge time.Duration) int {
	now := c.now()
	return c.evict(ctx, "context", func(r media.Record) bool {
		return r.InContext(contextID) && r.IsExpired(now, maxAge)
	})
}

// Run sweeps with MaxAge every SweepInterval until ctx is done.
func (c *Catalog) Run(ctx context.Context) {
	c.runEvery(ctx, SweepInterval)
}

func (c *Catalog) runEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(ctx, MaxAge); n > 0 {
				c.logger.Debug().Str(xglog.FieldEvent, "catalog.swept").Int("removed", n).Msg("expired records evicted")
			}
		}
	}
}

// Load replaces the in-memory records with the persisted snapshot. Invalid
// entries are skipped. A missing snapshot is not an error.
func (c *Catalog) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	var stored []media.Record
	if err := kv.GetJSON(ctx, c.store, StorageKey, &stored); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		return err
	}

	loaded := make(map[string]media.Record, len(stored))
	for _, rec := range stored {
		if err := rec.Validate(); err != nil {
			c.logger.Warn().Err(err).Str(xglog.FieldLocator, rec.Locator).Msg("skipping invalid persisted record")
			continue
		}
		if _, dup := loaded[rec.Locator]; !dup {
			loaded[rec.Locator] = rec
		}
	}

	c.mu.Lock()
	c.records = loaded
	c.mu.Unlock()
	metrics.SetCatalogSize(len(loaded))
	c.logger.Info().Str(xglog.FieldEvent, "catalog.loaded").Int("records", len(loaded)).Msg("catalog restored from storage")
	return nil
}

// IsEphemeral reports whether rec refers to an in-memory object.
func IsEphemeral(rec media.Record) bool {
	return rec.Provenance == media.ProvenanceBlob || classify.IsEphemeral(rec.Locator)
}

var segmentExtensions = map[string]struct{}{"ts": {}, "m4s": {}, "aac": {}}

// IsSegmentLike reports whether rec looks like one chunk of a stream.
func IsSegmentLike(rec media.Record) bool {
	if _, ok := segmentExtensions[classify.LocatorExtension(rec.Locator)]; ok {
		return true
	}
	ct := strings.ToLower(rec.ContentType)
	return strings.Contains(ct, "mp2t") || strings.Contains(ct, "iso.segment")
}

func (c *Catalog) collect(keep func(media.Record) bool) []media.Record {
	c.mu.RLock()
	out := make([]media.Record, 0, len(c.records))
	for _, rec := range c.records {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].Locator < out[j].Locator
		}
		return out[i].ObservedAt.After(out[j].ObservedAt)
	})
	return out
}

func (c *Catalog) evict(ctx context.Context, reason string, drop func(media.Record) bool) int {
	c.mu.Lock()
	removed := 0
	for locator, rec := range c.records {
		if drop(rec) {
			delete(c.records, locator)
			removed++
		}
	}
	n := len(c.records)
	c.mu.Unlock()

	if removed > 0 {
		metrics.SetCatalogSize(n)
		metrics.RecordEvictions(reason, removed)
		c.persist(ctx)
	}
	return removed
}

func (c *Catalog) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	snapshot := c.All()
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := kv.SetJSON(wctx, c.store, StorageKey, snapshot); err != nil {
		metrics.RecordPersistFailure("catalog")
		c.logger.Warn().Err(err).Str(xglog.FieldEvent, "catalog.persist_failed").Msg("failed to persist catalog")
	}
}
