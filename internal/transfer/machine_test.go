package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xgrab/internal/fsm"
	"github.com/ManuGH/xgrab/internal/kv"
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

func testOpts() (*fakeClock, []Option) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	return clock, []Option{WithClock(clock.Now), WithLogger(zerolog.Nop())}
}

func persisted(t *testing.T, store kv.Store, contextID int64) Job {
	t.Helper()
	var job Job
	require.NoError(t, kv.GetJSON(context.Background(), store, StorageKey(contextID), &job))
	return job
}

func TestMachineHappyPath(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	clock, opts := testOpts()
	m := NewMachine(store, Job{ID: "j1", SourceLocator: "https://cdn.example/a/index.m3u8", OutputName: "out.ts", ContextID: 7}, opts...)
	assert.Equal(t, StatusIdle, m.Status())

	require.NoError(t, m.Start(ctx))
	got := persisted(t, store, 7)
	assert.Equal(t, StatusDownloading, got.Status)
	assert.Equal(t, 0, got.Total)

	require.NoError(t, m.Progress(ctx, 0, 3))
	require.NoError(t, m.Progress(ctx, 3, 3))
	require.NoError(t, m.Merge(ctx))
	assert.Equal(t, StatusMerging, persisted(t, store, 7).Status)

	clock.Advance(2 * time.Second)
	require.NoError(t, m.Complete(ctx))

	got = persisted(t, store, 7)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, 3, got.Downloaded)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 100, got.Progress())
	assert.Equal(t, 2*time.Second, got.Duration(clock.Now()))
	assert.False(t, got.IsActive())
	assert.Empty(t, got.Error)
}

func TestMachineFailKeepsMessageVerbatim(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	_, opts := testOpts()
	m := NewMachine(store, Job{ID: "j1", ContextID: 1}, opts...)
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Fail(ctx, errors.New("fetch: segment 4 (https://x/4.ts): status 503")))

	got := persisted(t, store, 1)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "fetch: segment 4 (https://x/4.ts): status 503", got.Error)
	require.NotNil(t, got.EndedAt)
}

func TestMachineCancelDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	_, opts := testOpts()
	m := NewMachine(store, Job{ID: "j1", ContextID: 2}, opts...)
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Progress(ctx, 5, 12))

	require.NoError(t, m.Cancel(ctx))
	require.NoError(t, m.Cancel(ctx), "second cancel is a no-op")
	assert.Equal(t, StatusCancelled, m.Snapshot().Status)

	got := persisted(t, store, 2)
	assert.Equal(t, StatusDownloading, got.Status)
	assert.Equal(t, 5, got.Downloaded)
	assert.Empty(t, got.Error)

	err := m.Complete(ctx)
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)
}

func TestMachineRejectsInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	_, opts := testOpts()
	m := NewMachine(nil, Job{ID: "j1"}, opts...)

	require.ErrorIs(t, m.Merge(ctx), fsm.ErrInvalidTransition)
	require.ErrorIs(t, m.Cancel(ctx), fsm.ErrInvalidTransition)
	require.NoError(t, m.Start(ctx))
	require.ErrorIs(t, m.Complete(ctx), fsm.ErrInvalidTransition)
	require.ErrorIs(t, m.Start(ctx), fsm.ErrInvalidTransition)

	require.Error(t, m.Progress(ctx, 4, 3))
	require.Error(t, m.Progress(ctx, -1, 3))
	assert.Equal(t, StatusDownloading, m.Status())
}

func TestJobProgress(t *testing.T) {
	assert.Equal(t, 0, Job{}.Progress())
	assert.Equal(t, 42, Job{Downloaded: 5, Total: 12}.Progress())
	assert.True(t, Job{Status: StatusMerging}.IsActive())
	assert.Equal(t, time.Duration(0), Job{}.Duration(time.Now()))
}
