// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package orchestrator wires classification into the catalog and runs the
// resolve, fetch, merge and sink pipeline of transfer jobs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/xgrab/internal/catalog"
	"github.com/ManuGH/xgrab/internal/classify"
	"github.com/ManuGH/xgrab/internal/fetch"
	"github.com/ManuGH/xgrab/internal/hls"
	xglog "github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/media"
	"github.com/ManuGH/xgrab/internal/metrics"
	"github.com/ManuGH/xgrab/internal/telemetry"
	"github.com/ManuGH/xgrab/internal/transfer"
)

var (
	// ErrInvalidLocator rejects transfer requests without an absolute
	// http(s) playlist locator.
	ErrInvalidLocator = errors.New("orchestrator: locator must be an absolute http(s) url")
	// ErrUnsupported is returned when an optional collaborator is missing.
	ErrUnsupported = errors.New("orchestrator: not configured")
)

// PlaylistResolver yields the media playlist behind a locator.
type PlaylistResolver interface {
	Resolve(ctx context.Context, locator string) (*hls.Document, error)
}

// PageResolver turns video-hosting pages into direct locators and
// deduplicates them by main path.
type PageResolver interface {
	Resolve(ctx context.Context, ref classify.PageRef) (string, error)
	FirstSeen(locator string) bool
	Forget(locator string)
}

// SizeProber reports the byte length of a locator.
type SizeProber interface {
	Size(ctx context.Context, locator string) (int64, error)
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithPageResolver enables Navigate.
func WithPageResolver(p PageResolver) Option {
	return func(o *Orchestrator) { o.pages = p }
}

// WithProber enables ProbeSize.
func WithProber(p SizeProber) Option {
	return func(o *Orchestrator) { o.prober = p }
}

// WithBatchSize makes the fetch batch size follow fn, read once per job.
func WithBatchSize(fn func() int) Option {
	return func(o *Orchestrator) { o.batchSize = fn }
}

// WithFetchLimiter shares l with other orchestrators. Without it each
// orchestrator owns a limiter covering all of its jobs.
func WithFetchLimiter(l *fetch.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithClock overrides the time source used for default output names.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator owns the passive classification flow and transfer jobs.
type Orchestrator struct {
	catalog  *catalog.Catalog
	tracker  *transfer.Tracker
	resolver PlaylistResolver
	getter   fetch.Getter
	sink     Sink

	pages     PageResolver
	prober    SizeProber
	watcher   PageWatcher
	batchSize func() int
	limiter   *fetch.Limiter
	now       func() time.Time
	logger    zerolog.Logger

	watchMu  sync.Mutex
	watches  map[int64]watch
	watchSeq uint64
	closed   bool

	wg sync.WaitGroup
}

// New wires an orchestrator. Page resolution and size probing stay disabled
// until their options are given.
func New(cat *catalog.Catalog, tracker *transfer.Tracker, resolver PlaylistResolver, getter fetch.Getter, sink Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:   cat,
		tracker:   tracker,
		resolver:  resolver,
		getter:    getter,
		sink:      sink,
		batchSize: func() int { return fetch.DefaultBatchSize },
		limiter:   fetch.NewLimiter(),
		now:       time.Now,
		logger:    xglog.WithComponent("orchestrator"),
		watches:   make(map[int64]watch),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Observe classifies obs and catalogues it. It returns the record and
// whether it was new; non-media observations and video-hosting pages yield
// (zero, false, nil).
func (o *Orchestrator) Observe(ctx context.Context, obs classify.Observation) (media.Record, bool, error) {
	source := "dom"
	var network *classify.NetworkObservation
	switch n := obs.(type) {
	case classify.NetworkObservation:
		network = &n
	case *classify.NetworkObservation:
		network = n
	}
	if network != nil {
		source = "network"
		if _, isPage := classify.PageShortCode(network.Locator); isPage {
			return media.Record{}, false, nil
		}
	}

	res, ok := classify.Classify(obs)
	if !ok {
		return media.Record{}, false, nil
	}
	rec, err := res.Record(media.ObservedAt(o.catalog.Now()))
	if err != nil {
		return media.Record{}, false, err
	}
	inserted, err := o.catalog.Add(ctx, rec)
	if err != nil {
		return media.Record{}, false, err
	}
	if inserted {
		metrics.RecordClassification(source, string(rec.Kind), rec.Provenance)
		xglog.FromContext(ctx).Debug().
			Str(xglog.FieldEvent, "media.detected").
			Str(xglog.FieldLocator, rec.Locator).
			Str(xglog.FieldKind, string(rec.Kind)).
			Str(xglog.FieldProvenance, rec.Provenance).
			Msg("media catalogued")
	}
	return rec, inserted, nil
}

// Navigate handles a page navigation. Video-hosting pages are resolved to a
// direct locator and catalogued with provenance page-resolved, once per main
// path. Other pages yield (zero, false, nil).
func (o *Orchestrator) Navigate(ctx context.Context, pageURL string, contextID *int64) (media.Record, bool, error) {
	ref, ok := classify.PageShortCode(pageURL)
	if !ok {
		return media.Record{}, false, nil
	}
	if o.pages == nil {
		return media.Record{}, false, ErrUnsupported
	}

	direct, err := o.pages.Resolve(ctx, ref)
	if err != nil {
		return media.Record{}, false, err
	}
	if !o.pages.FirstSeen(direct) {
		xglog.FromContext(ctx).Debug().
			Str(xglog.FieldEvent, "pageresolve.duplicate").
			Str(xglog.FieldLocator, direct).
			Msg("resolved locator already known by main path")
		return media.Record{}, false, nil
	}

	opts := []media.Option{
		media.WithProvenance(media.ProvenancePageResolved),
		media.ObservedAt(o.catalog.Now()),
	}
	if contextID != nil {
		opts = append(opts, media.WithContext(*contextID))
	}
	rec, err := media.New(direct, media.KindVideo, opts...)
	if err == nil {
		var inserted bool
		if inserted, err = o.catalog.Add(ctx, rec); err == nil {
			if inserted {
				metrics.RecordClassification("page", string(rec.Kind), rec.Provenance)
			}
			return rec, inserted, nil
		}
	}
	o.pages.Forget(direct)
	return media.Record{}, false, err
}

// ProbeSize looks up the length of locator and back-fills its record.
func (o *Orchestrator) ProbeSize(ctx context.Context, locator string) (int64, error) {
	if o.prober == nil {
		return 0, ErrUnsupported
	}
	if !o.catalog.Has(locator) {
		return 0, catalog.ErrNotFound
	}
	n, err := o.prober.Size(ctx, locator)
	if err != nil {
		return 0, err
	}
	if err := o.catalog.SetSize(ctx, locator, n); err != nil {
		return 0, err
	}
	return n, nil
}

// TransferRequest asks for one playlist to be reconstructed.
type TransferRequest struct {
	Locator    string
	OutputName string
	ContextID  int64
}

// StartTransfer supersedes any job of the request's context and runs the
// new one in the background. It returns the accepted job.
func (o *Orchestrator) StartTransfer(ctx context.Context, req TransferRequest) (transfer.Job, error) {
	h, err := o.claim(ctx, req)
	if err != nil {
		return transfer.Job{}, err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_ = o.run(h)
	}()
	return h.Snapshot(), nil
}

// Transfer runs a job to completion in the caller's goroutine. Cancelling ctx
// cancels the job.
func (o *Orchestrator) Transfer(ctx context.Context, req TransferRequest) (transfer.Job, error) {
	h, err := o.claim(ctx, req)
	if err != nil {
		return transfer.Job{}, err
	}
	stop := context.AfterFunc(ctx, h.Stop)
	defer stop()
	err = o.run(h)
	return h.Snapshot(), err
}

// Cancel stops the job of contextID and waits for it to acknowledge.
func (o *Orchestrator) Cancel(ctx context.Context, contextID int64) (bool, error) {
	return o.tracker.Cancel(ctx, contextID)
}

// Close stops every page watch, cancels every running job and waits for the
// workers to exit.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.stopWatches()
	if err := o.tracker.Close(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) claim(ctx context.Context, req TransferRequest) (*transfer.Handle, error) {
	u, err := url.Parse(req.Locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidLocator
	}
	name := SanitizeName(req.OutputName)
	if name == "" {
		name = DefaultOutputName(o.now())
	}

	h, err := o.tracker.Claim(ctx, transfer.Job{
		SourceLocator: req.Locator,
		OutputName:    name,
		ContextID:     req.ContextID,
	})
	if err != nil {
		return nil, err
	}
	if err := h.Start(ctx); err != nil {
		h.Release()
		return nil, err
	}
	return h, nil
}

// run drives one claimed job and releases its slot. Cancellation ends the
// job without an error state; any other failure is recorded verbatim.
func (o *Orchestrator) run(h *transfer.Handle) (err error) {
	defer h.Release()

	job := h.Snapshot()
	ctx, span := telemetry.Tracer("xgrab/orchestrator").Start(h.Context(), "transfer.run",
		trace.WithAttributes(telemetry.JobAttributes(job.ID, job.ContextID, job.SourceLocator)...))
	logger := o.logger.With().
		Str(xglog.FieldJobID, job.ID).
		Int64(xglog.FieldContextID, job.ContextID).
		Str(xglog.FieldLocator, job.SourceLocator).
		Logger()
	ctx = logger.WithContext(ctx)

	err = o.pipeline(ctx, h, job, logger)
	detached := context.WithoutCancel(ctx)
	switch {
	case err == nil:
		telemetry.EndSpan(span, nil)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		span.End()
		if cerr := h.Cancel(detached); cerr != nil {
			logger.Debug().Err(cerr).Msg("cancel after terminal state")
		}
		logger.Info().Str(xglog.FieldEvent, "transfer.cancelled").Msg("transfer cancelled")
	default:
		telemetry.EndSpan(span, err)
		if ferr := h.Fail(detached, err); ferr != nil {
			logger.Warn().Err(ferr).Msg("record transfer failure")
		}
		logger.Error().Err(err).Str(xglog.FieldEvent, "transfer.failed").Msg("transfer failed")
	}
	return err
}

func (o *Orchestrator) pipeline(ctx context.Context, h *transfer.Handle, job transfer.Job, logger zerolog.Logger) error {
	doc, err := o.resolver.Resolve(ctx, job.SourceLocator)
	if err != nil {
		return err
	}
	locators := doc.Locators()
	if err := h.Progress(ctx, 0, len(locators)); err != nil {
		return err
	}

	fetcher := fetch.NewFetcher(o.getter, o.batchSize(), fetch.WithLimiter(o.limiter))
	parts, err := fetcher.FetchAll(ctx, locators, func(done, total int) {
		if perr := h.Progress(ctx, done, total); perr != nil {
			logger.Warn().Err(perr).Msg("record transfer progress")
		}
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := h.Merge(ctx); err != nil {
		return err
	}
	path, err := o.sink.Write(ctx, job.OutputName, parts)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := h.Complete(ctx); err != nil {
		return err
	}

	logger.Info().
		Str(xglog.FieldEvent, "transfer.complete").
		Int(xglog.FieldSegments, len(locators)).
		Str("output", path).
		Msg("transfer complete")
	return nil
}
