// Package engine drives the evaluation cycle. Reports are buffered as they
// arrive and released in global timestamp order at each tick, so live and
// replay runs of the same inputs produce the same alert stream. Per-aircraft
// state updates fan out in parallel behind a barrier; the evaluators then see
// one coherent snapshot per tick.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/airfield-data/surfacewatch/internal/alert"
	"github.com/airfield-data/surfacewatch/internal/clearance"
	"github.com/airfield-data/surfacewatch/internal/compliance"
	"github.com/airfield-data/surfacewatch/internal/conflict"
	"github.com/airfield-data/surfacewatch/internal/monitoring"
	"github.com/airfield-data/surfacewatch/internal/surface"
	"github.com/airfield-data/surfacewatch/internal/track"
)

// EventStore persists emitted events; the engine only needs the write side.
type EventStore interface {
	SaveEvents(ctx context.Context, events []alert.Event) error
}

// Options wires the engine's collaborators and tuning together.
type Options struct {
	Estimator  *track.Estimator
	Detector   *conflict.Detector
	Monitor    *compliance.Monitor
	Emitter    *alert.Emitter
	Surface    *surface.Map
	Clearances *clearance.Book

	// Store is optional; nil disables persistence (replay to stdout).
	Store EventStore

	// TickInterval is the live-mode cadence. Replay ignores it and ticks at
	// each distinct report timestamp instead.
	TickInterval time.Duration
}

// Engine owns the tick loop.
type Engine struct {
	opts Options

	mu      sync.Mutex
	pending []track.PositionReport
}

// New builds an engine from its collaborators.
func New(opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &Engine{opts: opts}
}

// Submit buffers a report for the next tick. Safe for concurrent feeds.
func (e *Engine) Submit(r track.PositionReport) {
	e.mu.Lock()
	e.pending = append(e.pending, r)
	e.mu.Unlock()
}

// SubmitClearance records a tower instruction for the next tick.
func (e *Engine) SubmitClearance(c clearance.Clearance) {
	e.opts.Clearances.Add(c)
}

// Run executes the live tick loop until the context is cancelled. An
// in-flight tick always completes; cancellation is only observed between
// ticks, so the last batch of buffered reports is still evaluated.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Tick(ctx, time.Now().UTC())
			return ctx.Err()
		case now := <-ticker.C:
			e.Tick(ctx, now.UTC())
		}
	}
}

// Tick releases all buffered reports stamped at or before now, folds them
// into the estimator in timestamp order, and runs both evaluators over the
// resulting snapshot. Returns the events emitted this tick.
func (e *Engine) Tick(ctx context.Context, now time.Time) []alert.Event {
	batch := e.takeBatch(now)

	e.applyReports(ctx, batch)
	e.opts.Estimator.EvictSilent(now)

	snapshot := e.opts.Estimator.Snapshot()

	// The two evaluators are independent reads of the same snapshot.
	var (
		conflicts  []alert.ConflictEvent
		violations []alert.ComplianceEvent
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		conflicts = e.opts.Detector.Evaluate(snapshot, e.opts.Surface)
		return nil
	})
	g.Go(func() error {
		violations = e.opts.Monitor.Evaluate(snapshot, now)
		return nil
	})
	g.Wait() //nolint:errcheck // evaluators do not fail

	events := e.opts.Emitter.Publish(now, conflicts, violations)

	if e.opts.Store != nil && len(events) > 0 {
		if err := e.opts.Store.SaveEvents(ctx, events); err != nil {
			monitoring.Logf("engine: persisting %d events failed: %v", len(events), err)
		}
	}
	return events
}

// takeBatch removes and returns the buffered reports due at the tick, in
// global (time, aircraft) order. Reports stamped in the future stay buffered.
func (e *Engine) takeBatch(now time.Time) []track.PositionReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	var due, later []track.PositionReport
	for _, r := range e.pending {
		if r.Time.After(now) {
			later = append(later, r)
		} else {
			due = append(due, r)
		}
	}
	e.pending = later

	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].Time.Equal(due[j].Time) {
			return due[i].Time.Before(due[j].Time)
		}
		return due[i].Aircraft < due[j].Aircraft
	})
	return due
}

// applyReports folds the batch into the estimator, one worker per aircraft
// so each aircraft's reports keep their order while distinct aircraft update
// in parallel. All workers finish before the caller snapshots.
func (e *Engine) applyReports(ctx context.Context, batch []track.PositionReport) {
	if len(batch) == 0 {
		return
	}

	byAircraft := make(map[string][]track.PositionReport)
	for _, r := range batch {
		byAircraft[r.Aircraft] = append(byAircraft[r.Aircraft], r)
	}

	g, _ := errgroup.WithContext(ctx)
	for _, reports := range byAircraft {
		reports := reports
		g.Go(func() error {
			for _, r := range reports {
				if _, err := e.opts.Estimator.Update(r); err != nil {
					monitoring.Logf("engine: dropping report for %s: %v", r.Aircraft, err)
				}
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // update errors are logged, never fatal
}

// Replay runs the batch pipeline over a recorded session: reports are
// released tick by tick at each distinct timestamp, clearances come from the
// book already loaded. The full ordered event stream is returned.
func (e *Engine) Replay(ctx context.Context, reports []track.PositionReport) []alert.Event {
	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].Time.Equal(reports[j].Time) {
			return reports[i].Time.Before(reports[j].Time)
		}
		return reports[i].Aircraft < reports[j].Aircraft
	})

	var out []alert.Event
	for i := 0; i < len(reports); {
		tick := reports[i].Time
		for i < len(reports) && reports[i].Time.Equal(tick) {
			e.Submit(reports[i])
			i++
		}
		out = append(out, e.Tick(ctx, tick)...)

		select {
		case <-ctx.Done():
			return out
		default:
		}
	}
	return out
}
