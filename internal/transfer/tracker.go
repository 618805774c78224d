package transfer

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/xgrab/internal/kv"
	xglog "github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/metrics"
)

// Tracker owns the per-context job slot. At most one Handle per context is
// live; claiming a busy slot cancels the holder and waits for its Release.
type Tracker struct {
	mu     sync.Mutex
	slots  map[int64]*Handle
	store  kv.Store
	opts   []Option
	logger zerolog.Logger
}

// NewTracker returns an empty tracker persisting through store.
func NewTracker(store kv.Store, opts ...Option) *Tracker {
	o := buildOptions(opts)
	return &Tracker{
		slots:  make(map[int64]*Handle),
		store:  store,
		opts:   opts,
		logger: o.logger,
	}
}

// Handle is a claimed job slot. The job goroutine must call Release when it
// stops, whatever the outcome.
type Handle struct {
	*Machine

	contextID int64
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
	tracker   *Tracker
}

// Context is cancelled when the job is superseded, cancelled, or the tracker
// closes.
func (h *Handle) Context() context.Context { return h.ctx }

// Done is closed after Release.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Stop cancels the job context without waiting.
func (h *Handle) Stop() { h.cancel() }

// Release frees the slot and acknowledges any pending cancellation.
func (h *Handle) Release() {
	h.once.Do(func() {
		t := h.tracker
		t.mu.Lock()
		if t.slots[h.contextID] == h {
			delete(t.slots, h.contextID)
		}
		t.mu.Unlock()
		h.cancel()
		metrics.ActiveTransfers.Dec()
		close(h.done)
	})
}

// Claim supersedes any job running for job.ContextID, waits for it to
// release, and registers a new idle machine. The job's context is detached
// from ctx; ctx bounds only the wait.
func (t *Tracker) Claim(ctx context.Context, job Job) (*Handle, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	for {
		t.mu.Lock()
		prev, busy := t.slots[job.ContextID]
		if !busy {
			jctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			h := &Handle{
				Machine:   NewMachine(t.store, job, t.opts...),
				contextID: job.ContextID,
				ctx:       jctx,
				cancel:    cancel,
				done:      make(chan struct{}),
				tracker:   t,
			}
			t.slots[job.ContextID] = h
			t.mu.Unlock()
			metrics.ActiveTransfers.Inc()
			return h, nil
		}
		t.mu.Unlock()

		t.logger.Info().
			Str(xglog.FieldEvent, "transfer.superseded").
			Str(xglog.FieldJobID, prev.Snapshot().ID).
			Int64(xglog.FieldContextID, job.ContextID).
			Msg("superseding running transfer")
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Cancel signals the job of contextID and waits for its acknowledgement.
// It reports whether a job was running.
func (t *Tracker) Cancel(ctx context.Context, contextID int64) (bool, error) {
	t.mu.Lock()
	h, ok := t.slots[contextID]
	t.mu.Unlock()
	if !ok {
		return false, nil
	}
	h.cancel()
	select {
	case <-h.done:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// Active returns the live job of contextID.
func (t *Tracker) Active(contextID int64) (Job, bool) {
	t.mu.Lock()
	h, ok := t.slots[contextID]
	t.mu.Unlock()
	if !ok {
		return Job{}, false
	}
	return h.Snapshot(), true
}

// Current prefers the live job and falls back to persisted state.
func (t *Tracker) Current(ctx context.Context, contextID int64) (Job, bool, error) {
	if job, ok := t.Active(contextID); ok {
		return job, true, nil
	}
	return t.Load(ctx, contextID)
}

// Load reads the persisted job of contextID.
func (t *Tracker) Load(ctx context.Context, contextID int64) (Job, bool, error) {
	if t.store == nil {
		return Job{}, false, nil
	}
	var job Job
	err := kv.GetJSON(ctx, t.store, StorageKey(contextID), &job)
	if errors.Is(err, kv.ErrNotFound) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// Clear removes the persisted job of contextID.
func (t *Tracker) Clear(ctx context.Context, contextID int64) error {
	if t.store == nil {
		return nil
	}
	err := t.store.Delete(ctx, StorageKey(contextID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}

// Close cancels every live job and waits for all of them to release.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	live := make([]*Handle, 0, len(t.slots))
	for _, h := range t.slots {
		live = append(live, h)
	}
	t.mu.Unlock()

	for _, h := range live {
		h.cancel()
	}
	for _, h := range live {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
