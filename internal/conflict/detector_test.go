package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airfield-data/surfacewatch/internal/alert"
	"github.com/airfield-data/surfacewatch/internal/geo"
	"github.com/airfield-data/surfacewatch/internal/surface"
	"github.com/airfield-data/surfacewatch/internal/track"
)

func testConfig() Config {
	return Config{
		Horizon:               60 * time.Second,
		Step:                  time.Second,
		HorizontalThresholdNM: 1.0,
		VerticalThresholdFt:   350,
		ProximityCutoffNM:     5.0,
		SeverityTierSeconds:   []float64{10, 30},
		FieldElevationFt:      620,
		GroundMaxAGLFt:        100,
	}
}

func testMap(t *testing.T) *surface.Map {
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
		{
			ID:   "T2", // parallel to T1, about 0.2 NM north, never touching
			Kind: surface.Taxiway,
			Geometry: []geo.Point{
				{Lat: 41.7933, Lon: -87.7600},
				{Lat: 41.7933, Lon: -87.7400},
			},
		},
	})
	require.NoError(t, err)
	return m
}

func airborne(id string, pos geo.Point, alt, speed, trk float64) *track.AircraftState {
	return &track.AircraftState{
		Aircraft:       id,
		Position:       pos,
		AltitudeFt:     alt,
		GroundSpeedKts: speed,
		TrackDeg:       trk,
	}
}

func TestHeadOnConflict(t *testing.T) {
	// Two aircraft 2 NM apart on the same line, each at 150 kt straight at
	// the other: closing speed 300 kt, meeting after about 24 s.
	a := airborne("AAL1", geo.Point{Lat: 41.79, Lon: -87.80}, 1000, 150, 90)
	bPos := geo.Project(a.Position, 90, 2.0)
	b := airborne("UAL2", bPos, 1000, 150, 270)

	d := New(testConfig())
	events := d.Evaluate(map[string]*track.AircraftState{"AAL1": a, "UAL2": b}, testMap(t))

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "AAL1", ev.First)
	assert.Equal(t, "UAL2", ev.Second)
	assert.InDelta(t, 24.0, ev.TimeToClosest.Seconds(), 1.5)
	assert.Less(t, ev.MinHorizontalNM, 0.05)
	assert.Equal(t, alert.SeverityWarning, ev.Severity)
}

func TestVerticalSeparationGates(t *testing.T) {
	a := airborne("AAL1", geo.Point{Lat: 41.79, Lon: -87.80}, 1000, 150, 90)
	bPos := geo.Project(a.Position, 90, 2.0)

	t.Run("separated in altitude", func(t *testing.T) {
		b := airborne("UAL2", bPos, 2000, 150, 270)
		d := New(testConfig())
		events := d.Evaluate(map[string]*track.AircraftState{"AAL1": a, "UAL2": b}, testMap(t))
		assert.Empty(t, events)
	})

	t.Run("co-altitude", func(t *testing.T) {
		b := airborne("UAL2", bPos, 1100, 150, 270)
		d := New(testConfig())
		events := d.Evaluate(map[string]*track.AircraftState{"AAL1": a, "UAL2": b}, testMap(t))
		assert.Len(t, events, 1)
	})
}

func TestProximityCutoffSkipsDistantPairs(t *testing.T) {
	a := airborne("AAL1", geo.Point{Lat: 41.79, Lon: -87.80}, 1000, 150, 90)
	b := airborne("UAL2", geo.Project(a.Position, 90, 10.0), 1000, 150, 270)

	d := New(testConfig())
	events := d.Evaluate(map[string]*track.AircraftState{"AAL1": a, "UAL2": b}, testMap(t))
	assert.Empty(t, events)
}

func TestGroundPairIgnoresVerticalThreshold(t *testing.T) {
	// two aircraft taxiing toward each other on the same taxiway at field
	// elevation; vertical separation is meaningless on the ground
	a := airborne("SWA1", geo.Point{Lat: 41.7900, Lon: -87.7590}, 620, 10, 90)
	b := airborne("SWA2", geo.Point{Lat: 41.7900, Lon: -87.7510}, 640, 10, 270)

	d := New(testConfig())
	events := d.Evaluate(map[string]*track.AircraftState{"SWA1": a, "SWA2": b}, testMap(t))
	assert.Len(t, events, 1)
}

func TestParallelTaxiwaysAreSeparated(t *testing.T) {
	// stationary aircraft on two parallel taxiways 0.2 NM apart: free-space
	// distance is under the threshold, surface distance is not
	a := airborne("SWA1", geo.Point{Lat: 41.7900, Lon: -87.7500}, 620, 0, 90)
	b := airborne("SWA2", geo.Point{Lat: 41.7933, Lon: -87.7500}, 620, 0, 90)

	d := New(testConfig())
	events := d.Evaluate(map[string]*track.AircraftState{"SWA1": a, "SWA2": b}, testMap(t))
	assert.Empty(t, events)
}

func TestEvaluateSortedAndDeterministic(t *testing.T) {
	// near pair meets sooner than far pair
	near1 := airborne("NR1", geo.Point{Lat: 41.70, Lon: -87.80}, 1000, 150, 90)
	near2 := airborne("NR2", geo.Project(near1.Position, 90, 1.5), 1000, 150, 270)
	far1 := airborne("FR1", geo.Point{Lat: 41.90, Lon: -87.80}, 1000, 150, 90)
	far2 := airborne("FR2", geo.Project(far1.Position, 90, 3.0), 1000, 150, 270)

	states := map[string]*track.AircraftState{
		"NR1": near1, "NR2": near2, "FR1": far1, "FR2": far2,
	}

	d := New(testConfig())
	first := d.Evaluate(states, testMap(t))
	require.Len(t, first, 2)
	assert.Equal(t, "NR1", first[0].First)
	assert.Equal(t, "FR1", first[1].First)
	assert.Less(t, first[0].TimeToClosest, first[1].TimeToClosest)

	second := New(testConfig()).Evaluate(states, testMap(t))
	assert.Equal(t, first, second)
}
