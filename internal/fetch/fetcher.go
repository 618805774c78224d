// SPDX-License-Identifier: MIT

// Package fetch retrieves playlist and segment bytes over HTTP with bounded
// concurrency and cooperative cancellation.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	xglog "github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/metrics"
	"github.com/ManuGH/xgrab/internal/telemetry"
)

const (
	DefaultBatchSize = 5
	MinBatchSize     = 1
	MaxBatchSize     = 20
)

// ErrCancelled marks a FetchAll aborted by context cancellation. The error
// also matches context.Canceled.
var ErrCancelled = errors.New("fetch: cancelled")

// SegmentError reports the first failed segment of a batch.
type SegmentError struct {
	Index   int
	Locator string
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("fetch: segment %d (%s): %v", e.Index, e.Locator, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// Getter retrieves one body.
type Getter interface {
	Get(ctx context.Context, locator string) ([]byte, error)
}

// ProgressFunc receives the number of segments retrieved so far after every
// completed batch.
type ProgressFunc func(downloaded, total int)

// ClampBatchSize returns n if it lies within [MinBatchSize, MaxBatchSize] and
// DefaultBatchSize otherwise.
func ClampBatchSize(n int) int {
	if n < MinBatchSize || n > MaxBatchSize {
		return DefaultBatchSize
	}
	return n
}

// Fetcher downloads ordered segment lists in sequential batches.
type Fetcher struct {
	getter    Getter
	batchSize int
	limiter   *Limiter
	logger    zerolog.Logger
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithLimiter makes every fetch hold a slot of l, capping concurrency across
// all fetchers sharing it.
func WithLimiter(l *Limiter) FetcherOption {
	return func(f *Fetcher) { f.limiter = l }
}

// NewFetcher returns a fetcher using g with the clamped batch size.
func NewFetcher(g Getter, batchSize int, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		getter:    g,
		batchSize: ClampBatchSize(batchSize),
		logger:    xglog.WithComponent("fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BatchSize reports the effective batch size.
func (f *Fetcher) BatchSize() int { return f.batchSize }

// FetchAll retrieves every locator and returns the bodies in locator order.
// Batches run one after another; fetches inside a batch run concurrently.
// Any failure aborts the whole operation and no partial result is returned.
func (f *Fetcher) FetchAll(ctx context.Context, locators []string, onProgress ProgressFunc) (out [][]byte, err error) {
	ctx, span := telemetry.Tracer("xgrab/fetch").Start(ctx, "fetch.all")
	span.SetAttributes(telemetry.FetchAttributes(len(locators), f.batchSize)...)
	defer func() { telemetry.EndSpan(span, err) }()

	logger := xglog.WithContext(ctx, f.logger)
	total := len(locators)
	out = make([][]byte, total)

	for start, batch := 0, 0; start < total; start, batch = start+f.batchSize, batch+1 {
		if err := ctx.Err(); err != nil {
			return nil, abortErr(err)
		}
		end := min(start+f.batchSize, total)

		began := time.Now()
		if err := f.fetchBatch(ctx, locators, out, start, end); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, abortErr(ctxErr)
			}
			logger.Warn().Err(err).
				Str(xglog.FieldEvent, "fetch.batch_failed").
				Int(xglog.FieldBatch, batch).
				Msg("segment batch failed")
			return nil, err
		}
		metrics.ObserveBatch(time.Since(began))

		// A cancel that lands while the batch finishes still wins.
		if err := ctx.Err(); err != nil {
			return nil, abortErr(err)
		}
		logger.Debug().
			Str(xglog.FieldEvent, "fetch.batch_done").
			Int(xglog.FieldBatch, batch).
			Int("downloaded", end).
			Int("total", total).
			Msg("segment batch complete")
		if onProgress != nil {
			onProgress(end, total)
		}
	}
	return out, nil
}

func (f *Fetcher) fetchBatch(ctx context.Context, locators []string, out [][]byte, start, end int) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := start; i < end; i++ {
		g.Go(func() error {
			if f.limiter != nil {
				release, err := f.limiter.acquire(gctx, f.batchSize)
				if err != nil {
					return &SegmentError{Index: i, Locator: locators[i], Err: err}
				}
				defer release()
			}
			body, err := f.getter.Get(gctx, locators[i])
			if err != nil {
				result := "error"
				if gctx.Err() != nil {
					result = "cancelled"
				}
				metrics.RecordSegmentFetch(result, 0)
				return &SegmentError{Index: i, Locator: locators[i], Err: err}
			}
			metrics.RecordSegmentFetch("ok", len(body))
			out[i] = body
			return nil
		})
	}
	return g.Wait()
}

func abortErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return fmt.Errorf("fetch: %w", err)
}
