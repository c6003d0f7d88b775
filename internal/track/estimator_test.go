package track

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airfield-data/surfacewatch/internal/geo"
)

var t0 = time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)

func report(aircraft string, at time.Time, lat, lon, alt, speed, trk float64) PositionReport {
	return PositionReport{
		Aircraft:       aircraft,
		Time:           at,
		Position:       geo.Point{Lat: lat, Lon: lon},
		AltitudeFt:     alt,
		GroundSpeedKts: speed,
		TrackDeg:       trk,
	}
}

func TestUpdateRejectsStaleReport(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	_, err := e.Update(report("SWA2504", t0, 41.79, -87.75, 1000, 150, 90))
	require.NoError(t, err)

	before, err := e.Update(report("SWA2504", t0.Add(2*time.Second), 41.79, -87.748, 1000, 150, 90))
	require.NoError(t, err)

	_, err = e.Update(report("SWA2504", t0.Add(time.Second), 41.79, -87.749, 1000, 150, 90))
	require.ErrorIs(t, err, ErrStaleReport)

	// state untouched by the rejected report
	after := e.Snapshot()["SWA2504"]
	assert.Equal(t, before.LastSeen, after.LastSeen)
	assert.Equal(t, before.Position, after.Position)
	assert.Equal(t, before.ReportCount, after.ReportCount)
}

func TestUpdateSmoothsRates(t *testing.T) {
	e := NewEstimator(Config{Smoothing: 0.5, HistoryLength: 8})

	_, err := e.Update(report("N123", t0, 41.79, -87.75, 1000, 150, 90))
	require.NoError(t, err)

	// 10 degrees right and 100 ft down over 2 s
	st, err := e.Update(report("N123", t0.Add(2*time.Second), 41.79, -87.748, 900, 150, 100))
	require.NoError(t, err)

	// raw turn rate 5 deg/s, raw sink 50 ft/s, both damped by alpha=0.5 from
	// zero priors
	assert.InDelta(t, 2.5, st.TurnRateDegPerSec, 1e-9)
	assert.InDelta(t, -25.0, st.VerticalRateFps, 1e-9)
}

func TestUpdateIsDeterministic(t *testing.T) {
	run := func() *AircraftState {
		e := NewEstimator(DefaultConfig())
		var st *AircraftState
		for i := 0; i < 10; i++ {
			var err error
			st, err = e.Update(report("N123", t0.Add(time.Duration(i)*time.Second),
				41.79+float64(i)*0.0005, -87.75, 1000+float64(i)*10, 140+float64(i), 90+float64(i)*2))
			require.NoError(t, err)
		}
		return st
	}

	a, b := run(), run()
	assert.Equal(t, a, b)
}

func TestTurnRateAcrossNorth(t *testing.T) {
	e := NewEstimator(Config{Smoothing: 1.0, HistoryLength: 8})

	_, err := e.Update(report("N123", t0, 41.79, -87.75, 1000, 150, 358))
	require.NoError(t, err)

	// 358 to 2 degrees is a 4 degree right turn, not -356
	st, err := e.Update(report("N123", t0.Add(time.Second), 41.79, -87.749, 1000, 150, 2))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, st.TurnRateDegPerSec, 1e-9)
}

func TestPredictErrors(t *testing.T) {
	e := NewEstimator(Config{Smoothing: 0.5, HistoryLength: 8, MaxHorizon: 60 * time.Second})

	_, err := e.Predict("NOBODY", 30*time.Second)
	assert.ErrorIs(t, err, ErrUnknownAircraft)

	_, err = e.Update(report("N123", t0, 41.79, -87.75, 1000, 150, 90))
	require.NoError(t, err)

	_, err = e.Predict("N123", 2*time.Minute)
	assert.ErrorIs(t, err, ErrHorizonExceeded)

	_, err = e.Predict("N123", 60*time.Second)
	assert.NoError(t, err)
}

func TestEvictSilent(t *testing.T) {
	e := NewEstimator(Config{Smoothing: 0.5, HistoryLength: 8, SilenceTimeout: 30 * time.Second})

	_, err := e.Update(report("OLD1", t0, 41.79, -87.75, 1000, 150, 90))
	require.NoError(t, err)
	_, err = e.Update(report("NEW1", t0.Add(40*time.Second), 41.78, -87.74, 1000, 150, 90))
	require.NoError(t, err)

	evicted := e.EvictSilent(t0.Add(45 * time.Second))
	assert.Equal(t, []string{"OLD1"}, evicted)
	assert.Equal(t, 1, e.TrackedCount())

	// a report after eviction starts fresh state
	st, err := e.Update(report("OLD1", t0.Add(50*time.Second), 41.79, -87.75, 1000, 150, 90))
	require.NoError(t, err)
	assert.Equal(t, 1, st.ReportCount)
}

func TestSnapshotIsDetached(t *testing.T) {
	e := NewEstimator(DefaultConfig())
	_, err := e.Update(report("N123", t0, 41.79, -87.75, 1000, 150, 90))
	require.NoError(t, err)

	snap := e.Snapshot()
	snap["N123"].Position.Lat = 0
	snap["N123"].History[0].AltitudeFt = -1

	fresh := e.Snapshot()["N123"]
	assert.Equal(t, 41.79, fresh.Position.Lat)
	assert.Equal(t, 1000.0, fresh.History[0].AltitudeFt)
}

func TestTrajectoryAt(t *testing.T) {
	st := &AircraftState{
		Aircraft:       "N123",
		Position:       geo.Point{Lat: 41.79, Lon: -87.75},
		AltitudeFt:     1000,
		GroundSpeedKts: 360, // 0.1 NM/s
		TrackDeg:       90,
	}
	traj := st.Trajectory(60 * time.Second)

	p, err := traj.At(10 * time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, geo.DistanceNM(st.Position, p.Position), 0.01)
	assert.Equal(t, 10*time.Second, p.Offset)

	// pure: same offset, same point
	p2, err := traj.At(10 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, p, p2)

	_, err = traj.At(61 * time.Second)
	assert.True(t, errors.Is(err, ErrHorizonExceeded))

	// negative clamps to origin
	p0, err := traj.At(-5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, st.Position, p0.Position)
}

func TestTrajectoryClimb(t *testing.T) {
	st := &AircraftState{
		Aircraft:        "N123",
		Position:        geo.Point{Lat: 41.79, Lon: -87.75},
		AltitudeFt:      1000,
		GroundSpeedKts:  120,
		TrackDeg:        0,
		VerticalRateFps: 10,
	}
	p, err := st.Trajectory(60 * time.Second).At(30 * time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 1300, p.AltitudeFt, 1e-9)
}

func TestSamplerMatchesAt(t *testing.T) {
	st := &AircraftState{
		Aircraft:          "N123",
		Position:          geo.Point{Lat: 41.79, Lon: -87.75},
		AltitudeFt:        1000,
		GroundSpeedKts:    150,
		TrackDeg:          45,
		TurnRateDegPerSec: 2,
		VerticalRateFps:   -5,
	}
	traj := st.Trajectory(30 * time.Second)

	s := traj.Sampler(5 * time.Second)
	for {
		got, ok := s.Next()
		if !ok {
			break
		}
		want, err := traj.At(got.Offset)
		require.NoError(t, err)
		assert.Equal(t, want, got, "offset %s", got.Offset)
	}
}

func TestSamplerReset(t *testing.T) {
	st := &AircraftState{
		Aircraft:          "N123",
		Position:          geo.Point{Lat: 41.79, Lon: -87.75},
		GroundSpeedKts:    150,
		TrackDeg:          270,
		TurnRateDegPerSec: 1,
	}
	s := st.Trajectory(20 * time.Second).Sampler(2 * time.Second)

	var first []TrajectoryPoint
	for {
		p, ok := s.Next()
		if !ok {
			break
		}
		first = append(first, p)
	}
	require.NotEmpty(t, first)

	s.Reset()
	for i := 0; ; i++ {
		p, ok := s.Next()
		if !ok {
			assert.Equal(t, len(first), i)
			break
		}
		assert.Equal(t, first[i], p)
	}
}

func TestSamplerHorizonBound(t *testing.T) {
	st := &AircraftState{Aircraft: "N123", GroundSpeedKts: 100, TrackDeg: 0}
	s := st.Trajectory(10 * time.Second).Sampler(3 * time.Second)

	var offsets []time.Duration
	for {
		p, ok := s.Next()
		if !ok {
			break
		}
		offsets = append(offsets, p.Offset)
	}
	// 0, 3, 6, 9: the next step would pass the horizon
	assert.Equal(t, []time.Duration{0, 3 * time.Second, 6 * time.Second, 9 * time.Second}, offsets)
}
