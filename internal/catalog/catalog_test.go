// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/xgrab/internal/kv"
	"github.com/ManuGH/xgrab/internal/media"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCatalog(t *testing.T, store kv.Store) (*Catalog, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	return New(store, WithClock(clock.Now), WithLogger(zerolog.Nop())), clock
}

func record(t *testing.T, locator string, at time.Time, opts ...media.Option) media.Record {
	t.Helper()
	opts = append(opts, media.ObservedAt(at))
	rec, err := media.New(locator, media.KindVideo, opts...)
	require.NoError(t, err)
	return rec
}

func TestAddIsIdempotent(t *testing.T) {
	c, clock := newTestCatalog(t, nil)
	ctx := context.Background()

	first := record(t, "https://cdn.example/a.mp4", clock.Now(), media.WithProvenance(media.ProvenanceContentType))
	added, err := c.Add(ctx, first)
	require.NoError(t, err)
	assert.True(t, added)

	second := first
	second.Kind = media.KindAudio
	second.Provenance = media.ProvenanceURLExtension
	added, err = c.Add(ctx, second)
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, 1, c.Len())
	got, ok := c.Get(first.Locator)
	require.True(t, ok)
	assert.Equal(t, media.KindVideo, got.Kind, "first write wins")
	assert.Equal(t, media.ProvenanceContentType, got.Provenance)
}

func TestAddRejectsInvalidRecord(t *testing.T) {
	c, _ := newTestCatalog(t, nil)
	_, err := c.Add(context.Background(), media.Record{Locator: "https://x.example/a", Kind: "image", ObservedAt: time.Now()})
	require.ErrorIs(t, err, media.ErrInvalidRecord)
	assert.Equal(t, 0, c.Len())
}

func TestForContextFiltersAndOrders(t *testing.T) {
	c, clock := newTestCatalog(t, nil)
	ctx := context.Background()
	now := clock.Now()

	recs := []media.Record{
		record(t, "https://cdn.example/old.mp4", now.Add(-3*time.Minute), media.WithContext(1)),
		record(t, "https://cdn.example/new.mp4", now.Add(-1*time.Minute), media.WithContext(1)),
		record(t, "blob:https://site.example/1f2e", now, media.WithContext(1), media.WithProvenance(media.ProvenanceDOMScan)),
		record(t, "https://cdn.example/chunk.m4s", now, media.WithContext(1)),
		record(t, "https://cdn.example/stream", now, media.WithContext(1), media.WithContentType("video/MP2T")),
		record(t, "https://cdn.example/other.mp4", now, media.WithContext(2)),
		record(t, "https://cdn.example/none.mp4", now),
	}
	for _, r := range recs {
		_, err := c.Add(ctx, r)
		require.NoError(t, err)
	}

	locators := func(rs []media.Record) []string {
		out := make([]string, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.Locator)
		}
		return out
	}

	got := locators(c.ForContext(1, false, false))
	want := []string{"https://cdn.example/new.mp4", "https://cdn.example/old.mp4"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ForContext default mismatch (-want +got):\n%s", diff)
	}

	got = locators(c.ForContext(1, true, false))
	assert.Contains(t, got, "blob:https://site.example/1f2e")
	assert.NotContains(t, got, "https://cdn.example/chunk.m4s")

	got = locators(c.ForContext(1, false, true))
	assert.Contains(t, got, "https://cdn.example/chunk.m4s")
	assert.Contains(t, got, "https://cdn.example/stream")
	assert.NotContains(t, got, "blob:https://site.example/1f2e")

	assert.Len(t, c.ForContext(1, true, true), 5)
	assert.Empty(t, c.ForContext(3, true, true))
	assert.Len(t, c.All(), 7)
}

func TestSweepContextRequiresBothConditions(t *testing.T) {
	c, clock := newTestCatalog(t, nil)
	ctx := context.Background()
	now := clock.Now()

	oldSame := record(t, "https://cdn.example/old-same.mp4", now.Add(-6*time.Minute), media.WithContext(1))
	freshSame := record(t, "https://cdn.example/fresh-same.mp4", now.Add(-1*time.Minute), media.WithContext(1))
	oldOther := record(t, "https://cdn.example/old-other.mp4", now.Add(-30*time.Minute), media.WithContext(2))
	oldNone := record(t, "https://cdn.example/old-none.mp4", now.Add(-30*time.Minute))
	for _, r := range []media.Record{oldSame, freshSame, oldOther, oldNone} {
		_, err := c.Add(ctx, r)
		require.NoError(t, err)
	}

	removed := c.SweepContext(ctx, 1, ContextMaxAge)
	assert.Equal(t, 1, removed)
	assert.False(t, c.Has(oldSame.Locator))
	assert.True(t, c.Has(freshSame.Locator), "fresh same-context record survives")
	assert.True(t, c.Has(oldOther.Locator), "other context is never touched")
	assert.True(t, c.Has(oldNone.Locator))
}

func TestSweepIsGlobal(t *testing.T) {
	c, clock := newTestCatalog(t, nil)
	ctx := context.Background()
	now := clock.Now()

	for i, age := range []time.Duration{11 * time.Minute, 10 * time.Minute, time.Minute} {
		r := record(t, "https://cdn.example/"+string(rune('a'+i))+".mp4", now.Add(-age), media.WithContext(int64(i)))
		_, err := c.Add(ctx, r)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, c.Sweep(ctx, MaxAge))
	assert.Equal(t, 2, c.Len())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, c.Sweep(ctx, MaxAge))
	assert.Equal(t, 0, c.Sweep(ctx, MaxAge))
}

func TestSetSizeAndRemove(t *testing.T) {
	c, clock := newTestCatalog(t, nil)
	ctx := context.Background()
	r := record(t, "https://cdn.example/a.mp4", clock.Now())
	_, err := c.Add(ctx, r)
	require.NoError(t, err)

	require.NoError(t, c.SetSize(ctx, r.Locator, 4096))
	got, _ := c.Get(r.Locator)
	require.NotNil(t, got.SizeBytes)
	assert.Equal(t, int64(4096), *got.SizeBytes)

	*got.SizeBytes = 1
	again, _ := c.Get(r.Locator)
	assert.Equal(t, int64(4096), *again.SizeBytes, "Get returns copies")

	require.ErrorIs(t, c.SetSize(ctx, "https://cdn.example/missing", 1), ErrNotFound)
	require.ErrorIs(t, c.SetSize(ctx, r.Locator, -1), media.ErrInvalidRecord)

	assert.True(t, c.Remove(ctx, r.Locator))
	assert.False(t, c.Remove(ctx, r.Locator))
}

func TestClearContextAndClearAll(t *testing.T) {
	c, clock := newTestCatalog(t, nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		r := record(t, "https://cdn.example/"+string(rune('a'+i))+".mp4", clock.Now(), media.WithContext(int64(i%2)))
		_, err := c.Add(ctx, r)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.ClearContext(ctx, 0))
	assert.Equal(t, 2, c.Len())
	c.ClearAll(ctx)
	assert.Equal(t, 0, c.Len())
}

func TestPersistAndLoad(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()

	c, clock := newTestCatalog(t, store)
	r := record(t, "https://cdn.example/a.mp4", clock.Now(), media.WithContext(3), media.WithSize(10))
	_, err := c.Add(ctx, r)
	require.NoError(t, err)

	restored, _ := newTestCatalog(t, store)
	require.NoError(t, restored.Load(ctx))
	got, ok := restored.Get(r.Locator)
	require.True(t, ok)
	assert.True(t, got.InContext(3))
	assert.Equal(t, int64(10), *got.SizeBytes)
	assert.True(t, got.ObservedAt.Equal(r.ObservedAt))
}

func TestLoadWithoutSnapshot(t *testing.T) {
	c, _ := newTestCatalog(t, kv.NewMemoryStore())
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 0, c.Len())
}

type failingStore struct{ kv.Store }

func (failingStore) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestPersistFailureIsSwallowed(t *testing.T) {
	c, clock := newTestCatalog(t, failingStore{kv.NewMemoryStore()})
	added, err := c.Add(context.Background(), record(t, "https://cdn.example/a.mp4", clock.Now()))
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 1, c.Len())
}

func TestConcurrentAdds(t *testing.T) {
	c, clock := newTestCatalog(t, kv.NewMemoryStore())
	ctx := context.Background()
	r := record(t, "https://cdn.example/a.mp4", clock.Now())

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Add(ctx, r)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, c.Len())
}

func TestRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c, clock := newTestCatalog(t, nil)
	_, err := c.Add(context.Background(), record(t, "https://cdn.example/a.mp4", clock.Now().Add(-time.Hour)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.runEvery(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
