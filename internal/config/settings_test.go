package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xgrab/internal/kv"
)

func TestSettingsStoreDefaults(t *testing.T) {
	s := NewSettingsStore(kv.NewMemoryStore())

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Settings{FetchBatchSize: 5}, got)
	assert.Equal(t, 5, s.BatchSize())
}

func TestSettingsStorePutPersists(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	saved, err := NewSettingsStore(store).Put(ctx, Settings{ShowEphemeralSources: true, FetchBatchSize: 12})
	require.NoError(t, err)
	assert.Equal(t, 12, saved.FetchBatchSize)

	reloaded := NewSettingsStore(store)
	got, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.ShowEphemeralSources)
	assert.False(t, got.ShowSegmentLikeEntries)
	assert.Equal(t, 12, reloaded.BatchSize())
}

func TestSettingsBatchSizeOutOfRangeResets(t *testing.T) {
	for _, n := range []int{0, -1, 21, 100} {
		s := NewSettingsStore(kv.NewMemoryStore())
		got, err := s.Put(context.Background(), Settings{FetchBatchSize: n})
		require.NoError(t, err)
		assert.Equal(t, 5, got.FetchBatchSize, "batch size %d", n)
	}
}

func TestSettingsLoadNormalizesStoredValue(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, SettingsKey, []byte(`{"fetchBatchSize":99,"showSegmentLikeEntries":true}`)))

	got, err := NewSettingsStore(store).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Settings{ShowSegmentLikeEntries: true, FetchBatchSize: 5}, got)
}
