package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airfield-data/surfacewatch/internal/alert"
	"github.com/airfield-data/surfacewatch/internal/clearance"
	"github.com/airfield-data/surfacewatch/internal/compliance"
	"github.com/airfield-data/surfacewatch/internal/conflict"
	"github.com/airfield-data/surfacewatch/internal/geo"
	"github.com/airfield-data/surfacewatch/internal/surface"
	"github.com/airfield-data/surfacewatch/internal/track"
)

var t0 = time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)

func testSurface(t *testing.T) *surface.Map {
	t.Helper()
	m, err := surface.NewMap([]surface.Feature{
		{
			ID:   "T1",
			Kind: surface.Taxiway,
			Geometry: []geo.Point{
				{Lat: 41.7900, Lon: -87.7600},
				{Lat: 41.7900, Lon: -87.7400},
			},
		},
	})
	require.NoError(t, err)
	return m
}

func newTestEngine(t *testing.T, store EventStore) *Engine {
	t.Helper()
	sm := testSurface(t)
	book := clearance.NewBook()
	return New(Options{
		Estimator: track.NewEstimator(track.Config{
			Smoothing:      0.5,
			HistoryLength:  16,
			SilenceTimeout: 5 * time.Minute,
			MaxHorizon:     60 * time.Second,
		}),
		Detector: conflict.New(conflict.Config{
			Horizon:               60 * time.Second,
			Step:                  time.Second,
			HorizontalThresholdNM: 1.0,
			VerticalThresholdFt:   350,
			ProximityCutoffNM:     5.0,
			SeverityTierSeconds:   []float64{10, 30},
			FieldElevationFt:      620,
			GroundMaxAGLFt:        100,
		}),
		Monitor: compliance.New(compliance.Config{
			FieldElevationFt:    620,
			GroundMaxAGLFt:      100,
			RolloutExitSpeedKts: 30,
		}, sm, book),
		Emitter:    alert.NewEmitter(),
		Surface:    sm,
		Clearances: book,
		Store:      store,
	})
}

func report(id string, at time.Time, pos geo.Point, alt, speed, trk float64) track.PositionReport {
	return track.PositionReport{
		Aircraft:       id,
		Time:           at,
		Position:       pos,
		AltitudeFt:     alt,
		GroundSpeedKts: speed,
		TrackDeg:       trk,
	}
}

func TestTickAppliesBufferedReportsInOrder(t *testing.T) {
	e := newTestEngine(t, nil)

	pos := geo.Point{Lat: 41.79, Lon: -87.75}
	// submitted newest first; the tick must reorder by timestamp so neither
	// is rejected as stale
	e.Submit(report("AAL1", t0.Add(2*time.Second), geo.Project(pos, 90, 0.1), 1000, 150, 90))
	e.Submit(report("AAL1", t0, pos, 1000, 150, 90))

	e.Tick(context.Background(), t0.Add(3*time.Second))

	st := e.opts.Estimator.Snapshot()["AAL1"]
	require.NotNil(t, st)
	assert.Equal(t, 2, st.ReportCount)
	assert.Equal(t, t0.Add(2*time.Second), st.LastSeen)
}

func TestTickBuffersFutureReports(t *testing.T) {
	e := newTestEngine(t, nil)

	pos := geo.Point{Lat: 41.79, Lon: -87.75}
	e.Submit(report("AAL1", t0.Add(10*time.Second), pos, 1000, 150, 90))

	e.Tick(context.Background(), t0)
	assert.Equal(t, 0, e.opts.Estimator.TrackedCount())

	e.Tick(context.Background(), t0.Add(10*time.Second))
	assert.Equal(t, 1, e.opts.Estimator.TrackedCount())
}

// headOnSession builds reports for two aircraft closing head-on, sampled
// every 5 s.
func headOnSession() []track.PositionReport {
	var reports []track.PositionReport
	origin := geo.Point{Lat: 41.79, Lon: -87.80}
	for i := 0; i <= 4; i++ {
		at := t0.Add(time.Duration(i*5) * time.Second)
		travelled := float64(i*5) * 150.0 / 3600.0
		a := geo.Project(origin, 90, travelled)
		b := geo.Project(geo.Project(origin, 90, 2.0), 270, travelled)
		reports = append(reports,
			report("AAL1", at, a, 1000, 150, 90),
			report("UAL2", at, b, 1000, 150, 270),
		)
	}
	return reports
}

func TestReplayEmitsOrderedConflicts(t *testing.T) {
	e := newTestEngine(t, nil)
	events := e.Replay(context.Background(), headOnSession())

	require.NotEmpty(t, events)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq, "sequence must be gapless")
		assert.Equal(t, alert.KindConflict, ev.Kind)
	}
	// one ongoing episode across the whole session
	first := events[0].Conflict.EpisodeID
	for _, ev := range events {
		assert.Equal(t, first, ev.Conflict.EpisodeID)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	strip := func(events []alert.Event) []alert.Event {
		// episode IDs are random by design; everything else must match
		out := make([]alert.Event, len(events))
		for i, ev := range events {
			if ev.Conflict != nil {
				c := *ev.Conflict
				c.EpisodeID = ""
				ev.Conflict = &c
			}
			if ev.Compliance != nil {
				v := *ev.Compliance
				v.EpisodeID = ""
				ev.Compliance = &v
			}
			out[i] = ev
		}
		return out
	}

	a := newTestEngine(t, nil).Replay(context.Background(), headOnSession())
	b := newTestEngine(t, nil).Replay(context.Background(), headOnSession())
	if diff := cmp.Diff(strip(a), strip(b)); diff != "" {
		t.Errorf("replays diverged (-first +second):\n%s", diff)
	}
}

type captureStore struct {
	batches [][]alert.Event
}

func (c *captureStore) SaveEvents(_ context.Context, events []alert.Event) error {
	batch := make([]alert.Event, len(events))
	copy(batch, events)
	c.batches = append(c.batches, batch)
	return nil
}

func TestTickPersistsEmittedEvents(t *testing.T) {
	store := &captureStore{}
	e := newTestEngine(t, store)

	events := e.Replay(context.Background(), headOnSession())
	require.NotEmpty(t, events)

	var persisted []alert.Event
	for _, b := range store.batches {
		persisted = append(persisted, b...)
	}
	assert.Equal(t, events, persisted)
}

func TestRunStopsOnCancel(t *testing.T) {
	e := newTestEngine(t, nil)
	e.opts.TickInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
