// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transfer tracks the lifecycle of reconstruction jobs and persists
// their progress for detached observers.
package transfer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/xgrab/internal/fsm"
	"github.com/ManuGH/xgrab/internal/kv"
	xglog "github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/metrics"
)

const persistTimeout = 5 * time.Second

// StorageKey returns the kv key holding the job state of a context.
func StorageKey(contextID int64) string {
	return "transfer/" + strconv.FormatInt(contextID, 10)
}

type options struct {
	now    func() time.Time
	logger zerolog.Logger
}

// Option customises a Machine or Tracker.
type Option func(*options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, logger: xglog.WithComponent("transfer")}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Machine drives one Job through its lifecycle. Every accepted transition
// except cancellation is persisted; persistence failures are logged only.
type Machine struct {
	mu     sync.Mutex
	fsm    *fsm.Machine[Status, Event]
	job    Job
	store  kv.Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewMachine returns an idle machine for job. A nil store disables
// persistence.
func NewMachine(store kv.Store, job Job, opts ...Option) *Machine {
	o := buildOptions(opts)
	job.Status = StatusIdle
	m := &Machine{
		job:   job,
		store: store,
		now:   o.now,
		logger: o.logger.With().
			Str(xglog.FieldJobID, job.ID).
			Int64(xglog.FieldContextID, job.ContextID).
			Logger(),
	}

	logTransition := func(_ context.Context, from, to Status, ev Event) error {
		if from != to {
			m.logger.Debug().
				Str(xglog.FieldEvent, "transfer."+string(ev)).
				Str(xglog.FieldOldState, string(from)).
				Str(xglog.FieldNewState, string(to)).
				Msg("transfer state changed")
		}
		return nil
	}
	transitions := []fsm.Transition[Status, Event]{
		{From: StatusIdle, Event: EventStart, To: StatusDownloading, Action: logTransition},
		{From: StatusDownloading, Event: EventProgress, To: StatusDownloading},
		{From: StatusDownloading, Event: EventMerge, To: StatusMerging, Action: logTransition},
		{From: StatusDownloading, Event: EventFail, To: StatusError, Action: logTransition},
		{From: StatusDownloading, Event: EventCancel, To: StatusCancelled, Action: logTransition},
		{From: StatusMerging, Event: EventComplete, To: StatusComplete, Action: logTransition},
		{From: StatusMerging, Event: EventFail, To: StatusError, Action: logTransition},
		{From: StatusMerging, Event: EventCancel, To: StatusCancelled, Action: logTransition},
	}
	machine, err := fsm.New(StatusIdle, transitions)
	if err != nil {
		panic(fmt.Sprintf("transfer: invalid transition table: %v", err))
	}
	m.fsm = machine
	return m
}

// Snapshot returns a copy of the current job.
func (m *Machine) Snapshot() Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job
}

// Status returns the current status.
func (m *Machine) Status() Status { return m.fsm.State() }

// Start accepts the job: downloading with an unknown total.
func (m *Machine) Start(ctx context.Context) error {
	return m.apply(ctx, EventStart, func(j *Job) {
		now := m.now()
		j.Downloaded, j.Total = 0, 0
		j.Error = ""
		j.StartedAt, j.EndedAt = &now, nil
	})
}

// Progress records downloaded of total segments.
func (m *Machine) Progress(ctx context.Context, downloaded, total int) error {
	if downloaded < 0 || total < 0 || (total > 0 && downloaded > total) {
		return fmt.Errorf("transfer: invalid progress %d/%d", downloaded, total)
	}
	return m.apply(ctx, EventProgress, func(j *Job) {
		j.Downloaded, j.Total = downloaded, total
	})
}

// Merge marks the start of byte concatenation.
func (m *Machine) Merge(ctx context.Context) error {
	return m.apply(ctx, EventMerge, nil)
}

// Complete marks the output as delivered.
func (m *Machine) Complete(ctx context.Context) error {
	return m.apply(ctx, EventComplete, func(j *Job) {
		now := m.now()
		j.EndedAt = &now
	})
}

// Fail records cause verbatim.
func (m *Machine) Fail(ctx context.Context, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return m.apply(ctx, EventFail, func(j *Job) {
		now := m.now()
		j.Error = msg
		j.EndedAt = &now
	})
}

// Cancel stops the job without touching persisted state. Cancelling a
// cancelled job is a no-op.
func (m *Machine) Cancel(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.Status == StatusCancelled {
		return nil
	}
	to, err := m.fsm.Fire(ctx, EventCancel)
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	now := m.now()
	m.job.Status = to
	m.job.EndedAt = &now
	metrics.RecordTransfer(string(to))
	return nil
}

func (m *Machine) apply(ctx context.Context, ev Event, mutate func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	to, err := m.fsm.Fire(ctx, ev)
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	if mutate != nil {
		mutate(&m.job)
	}
	m.job.Status = to
	if to.IsTerminal() {
		metrics.RecordTransfer(string(to))
	}
	m.persist(ctx, m.job)
	return nil
}

func (m *Machine) persist(ctx context.Context, job Job) {
	if m.store == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := kv.SetJSON(wctx, m.store, StorageKey(job.ContextID), job); err != nil {
		metrics.RecordPersistFailure("transfer")
		m.logger.Warn().Err(err).Str(xglog.FieldEvent, "transfer.persist_failed").Msg("failed to persist transfer state")
	}
}
