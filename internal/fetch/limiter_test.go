// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// peakGetter tracks in-flight calls across every fetcher using it.
type peakGetter struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *peakGetter) Get(ctx context.Context, _ string) ([]byte, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(5 * time.Millisecond):
		return []byte("x"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestLimiter_CapsConcurrencyAcrossFetchers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	limiter := NewLimiter()
	g := &peakGetter{}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := NewFetcher(g, 5, WithLimiter(limiter)).FetchAll(context.Background(), segments(10), nil)
			if err == nil && len(out) != 10 {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, g.peak.Load(), int32(5))
	assert.Positive(t, g.peak.Load())
}

func TestLimiter_WeightFollowsBatchSize(t *testing.T) {
	limiter := NewLimiter()
	ctx := context.Background()

	var releases []func()
	for range 7 {
		release, err := limiter.acquire(ctx, 7)
		require.NoError(t, err)
		releases = append(releases, release)
	}

	blocked, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err := limiter.acquire(blocked, 7)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	releases[0]()
	release, err := limiter.acquire(ctx, 7)
	require.NoError(t, err)
	release()
	for _, r := range releases[1:] {
		r()
	}
}

func TestFetchAll_LimiterWaitHonoursCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	limiter := NewLimiter()
	hold, err := limiter.acquire(context.Background(), 1)
	require.NoError(t, err)
	defer hold()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = NewFetcher(&peakGetter{}, 1, WithLimiter(limiter)).FetchAll(ctx, segments(2), nil)
	require.ErrorIs(t, err, ErrCancelled)
}
