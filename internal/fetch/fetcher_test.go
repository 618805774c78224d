// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// scriptedGetter returns "body-<i>" for locator "seg-<i>" and records peak
// concurrency. Within a batch, later segments finish first.
type scriptedGetter struct {
	batchSize int
	inFlight  atomic.Int32
	peak      atomic.Int32
	calls     atomic.Int32
	fail      map[string]error
	block     chan struct{}
}

func (g *scriptedGetter) Get(ctx context.Context, locator string) ([]byte, error) {
	g.calls.Add(1)
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}

	var idx int
	if _, err := fmt.Sscanf(locator, "seg-%d", &idx); err != nil {
		return nil, err
	}
	if err, ok := g.fail[locator]; ok {
		return nil, err
	}
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	pos := idx % g.batchSize
	delay := time.Duration(g.batchSize-pos) * 3 * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []byte(fmt.Sprintf("body-%d", idx)), nil
}

func segments(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("seg-%d", i)
	}
	return out
}

type progressLog struct {
	mu    sync.Mutex
	calls [][2]int
}

func (p *progressLog) record(done, total int) {
	p.mu.Lock()
	p.calls = append(p.calls, [2]int{done, total})
	p.mu.Unlock()
}

func (p *progressLog) snapshot() [][2]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][2]int(nil), p.calls...)
}

func TestFetchAll_BatchesPreserveOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	g := &scriptedGetter{batchSize: 5}
	f := NewFetcher(g, 5)
	var progress progressLog

	out, err := f.FetchAll(context.Background(), segments(12), progress.record)
	require.NoError(t, err)
	require.Len(t, out, 12)
	for i, body := range out {
		assert.Equal(t, fmt.Sprintf("body-%d", i), string(body))
	}
	assert.Equal(t, [][2]int{{5, 12}, {10, 12}, {12, 12}}, progress.snapshot())
	assert.LessOrEqual(t, g.peak.Load(), int32(5))
	assert.Equal(t, int32(12), g.calls.Load())
}

func TestFetchAll_FailureAbortsWithoutPartialData(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("connection reset")
	g := &scriptedGetter{batchSize: 5, fail: map[string]error{"seg-7": boom}}
	var progress progressLog

	out, err := NewFetcher(g, 5).FetchAll(context.Background(), segments(12), progress.record)
	require.Error(t, err)
	assert.Nil(t, out)

	var segErr *SegmentError
	require.ErrorAs(t, err, &segErr)
	assert.Equal(t, 7, segErr.Index)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCancelled)

	assert.Equal(t, [][2]int{{5, 12}}, progress.snapshot())
	assert.LessOrEqual(t, g.calls.Load(), int32(10), "third batch never starts")
}

func TestFetchAll_CancelMidBatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	g := &scriptedGetter{batchSize: 5}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var progress progressLog
	onProgress := func(done, total int) {
		progress.record(done, total)
		if done == 5 {
			// Park the next batch until the cancel lands.
			g.block = make(chan struct{})
			go func() {
				time.Sleep(10 * time.Millisecond)
				cancel()
			}()
		}
	}

	out, err := NewFetcher(g, 5).FetchAll(ctx, segments(12), onProgress)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	calls := progress.snapshot()
	require.NotEmpty(t, calls)
	assert.Equal(t, 5, calls[len(calls)-1][0], "progress never exceeds completed batches")
}

func TestFetchAll_CancelledBeforeStart(t *testing.T) {
	g := &scriptedGetter{batchSize: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(g, 5).FetchAll(ctx, segments(3), nil)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, int32(0), g.calls.Load())
}

func TestFetchAll_DeadlineIsNotCancellation(t *testing.T) {
	g := &scriptedGetter{batchSize: 1, block: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := NewFetcher(g, 1).FetchAll(ctx, segments(2), nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrCancelled)
}

func TestFetchAll_Empty(t *testing.T) {
	out, err := NewFetcher(&scriptedGetter{batchSize: 5}, 5).FetchAll(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestClampBatchSize(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 5}, {-3, 5}, {1, 1}, {5, 5}, {20, 20}, {21, 5}, {100, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampBatchSize(tt.in), "ClampBatchSize(%d)", tt.in)
	}
	assert.Equal(t, 5, NewFetcher(nil, 0).BatchSize())
}
