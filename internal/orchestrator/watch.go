// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/xgrab/internal/classify"
	xglog "github.com/ManuGH/xgrab/internal/log"
)

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("orchestrator: closed")

// PageWatcher re-scans a page until its context ends.
type PageWatcher interface {
	Watch(ctx context.Context, pageURL string, contextID *int64, interval time.Duration, emit func([]classify.DomObservation)) error
}

// WithPageWatcher enables Watch.
func WithPageWatcher(w PageWatcher) Option {
	return func(o *Orchestrator) { o.watcher = w }
}

type watch struct {
	seq    uint64
	page   string
	cancel context.CancelFunc
}

// Watch keeps scanning pageURL for contextID and catalogues what it finds,
// replacing any earlier watch of that context. interval <= 0 uses the
// watcher's default. The watch runs until StopWatch, ClearContext or Close.
func (o *Orchestrator) Watch(contextID int64, pageURL string, interval time.Duration) error {
	if o.watcher == nil {
		return ErrUnsupported
	}

	o.watchMu.Lock()
	defer o.watchMu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if prev, ok := o.watches[contextID]; ok {
		prev.cancel()
	}
	o.watchSeq++
	ctx, cancel := context.WithCancel(context.Background())
	w := watch{seq: o.watchSeq, page: pageURL, cancel: cancel}
	o.watches[contextID] = w

	logger := o.logger.With().Int64(xglog.FieldContextID, contextID).Str(xglog.FieldLocator, pageURL).Logger()
	ctx = logger.WithContext(ctx)
	id := contextID

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.dropWatch(contextID, w.seq)
		logger.Info().Str(xglog.FieldEvent, "watch.started").Msg("page watch started")
		_ = o.watcher.Watch(ctx, pageURL, &id, interval, func(found []classify.DomObservation) {
			for _, obs := range found {
				if _, _, err := o.Observe(ctx, obs); err != nil && ctx.Err() == nil {
					logger.Warn().Err(err).Str(xglog.FieldEvent, "watch.observe_failed").Msg("catalogue watched source")
				}
			}
		})
		logger.Info().Str(xglog.FieldEvent, "watch.stopped").Msg("page watch stopped")
	}()
	return nil
}

// Watching reports the page watched for contextID.
func (o *Orchestrator) Watching(contextID int64) (string, bool) {
	o.watchMu.Lock()
	defer o.watchMu.Unlock()
	w, ok := o.watches[contextID]
	return w.page, ok
}

// StopWatch ends the watch of contextID. It reports whether one was running.
func (o *Orchestrator) StopWatch(contextID int64) bool {
	o.watchMu.Lock()
	defer o.watchMu.Unlock()
	w, ok := o.watches[contextID]
	if ok {
		w.cancel()
		delete(o.watches, contextID)
	}
	return ok
}

// ClearContext stops the context's watch and drops its catalogued media. It
// returns the number of records removed.
func (o *Orchestrator) ClearContext(ctx context.Context, contextID int64) int {
	o.StopWatch(contextID)
	return o.catalog.ClearContext(ctx, contextID)
}

func (o *Orchestrator) dropWatch(contextID int64, seq uint64) {
	o.watchMu.Lock()
	defer o.watchMu.Unlock()
	if w, ok := o.watches[contextID]; ok && w.seq == seq {
		w.cancel()
		delete(o.watches, contextID)
	}
}

// stopWatches cancels every watch and refuses new ones.
func (o *Orchestrator) stopWatches() {
	o.watchMu.Lock()
	defer o.watchMu.Unlock()
	o.closed = true
	for id, w := range o.watches {
		w.cancel()
		delete(o.watches, id)
	}
}
