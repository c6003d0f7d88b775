// Package conflict predicts losses of separation between tracked aircraft.
// Each tick it samples every nearby pair's predicted trajectories over the
// shared horizon and flags pairs whose separation drops below the configured
// thresholds, with severity tiers keyed to how soon the approach happens.
package conflict

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/airfield-data/surfacewatch/internal/alert"
	"github.com/airfield-data/surfacewatch/internal/geo"
	"github.com/airfield-data/surfacewatch/internal/surface"
	"github.com/airfield-data/surfacewatch/internal/track"
)

// Config holds the detector thresholds. Tier boundaries are configuration,
// not constants: ground and airborne operating environments tier
// differently.
type Config struct {
	Horizon time.Duration
	Step    time.Duration

	HorizontalThresholdNM float64
	VerticalThresholdFt   float64

	// ProximityCutoffNM pre-filters pairs by current distance so a large
	// fleet does not cost a full O(n²) trajectory comparison.
	ProximityCutoffNM float64

	// SeverityTierSeconds are ascending time-to-closest-approach boundaries.
	SeverityTierSeconds []float64

	// Ground classification
	FieldElevationFt float64
	GroundMaxAGLFt   float64
}

// Detector evaluates pairwise conflicts over state snapshots.
type Detector struct {
	cfg Config

	// featureTouch caches whether two surface features' geometries touch,
	// keyed by "idA|idB" with idA < idB. The surface map is immutable, so
	// entries never invalidate.
	featureTouch map[string]bool
}

// New returns a detector with the given thresholds.
func New(cfg Config) *Detector {
	if cfg.Step <= 0 {
		cfg.Step = time.Second
	}
	return &Detector{
		cfg:          cfg,
		featureTouch: make(map[string]bool),
	}
}

// Evaluate computes conflict events for the current snapshot. Given
// identical snapshots and surface map the output is identical and
// order-independent; results are sorted by ascending time-to-closest-
// approach for stable external consumption.
func (d *Detector) Evaluate(states map[string]*track.AircraftState, sm *surface.Map) []alert.ConflictEvent {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var events []alert.ConflictEvent
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := states[ids[i]], states[ids[j]]

			if geo.DistanceNM(a.Position, b.Position) > d.cfg.ProximityCutoffNM {
				continue
			}

			if ev, ok := d.evaluatePair(a, b, sm); ok {
				events = append(events, ev)
			}
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].TimeToClosest != events[j].TimeToClosest {
			return events[i].TimeToClosest < events[j].TimeToClosest
		}
		return events[i].PairKey() < events[j].PairKey()
	})
	return events
}

// evaluatePair samples both trajectories in lockstep over the horizon. A
// conflict needs at least one sub-threshold sample; the reported
// time-to-closest-approach is the offset of minimum horizontal separation.
func (d *Detector) evaluatePair(a, b *track.AircraftState, sm *surface.Map) (alert.ConflictEvent, bool) {
	groundPair := d.onGround(a) && d.onGround(b)

	sa := a.Trajectory(d.cfg.Horizon).Sampler(d.cfg.Step)
	sb := b.Trajectory(d.cfg.Horizon).Sampler(d.cfg.Step)

	var (
		horizSeries []float64
		vertSeries  []float64
		offsets     []time.Duration
		breached    bool
	)

	for {
		pa, okA := sa.Next()
		pb, okB := sb.Next()
		if !okA || !okB {
			break
		}

		horiz := geo.DistanceNM(pa.Position, pb.Position)
		vert := absFloat(pa.AltitudeFt - pb.AltitudeFt)

		if groundPair && d.separatedSurfaces(pa.Position, pb.Position, sm) {
			// parallel taxiway/runway traffic: surface-constrained
			// distance, not free space, so no conflict at this sample
			continue
		}

		horizSeries = append(horizSeries, horiz)
		vertSeries = append(vertSeries, vert)
		offsets = append(offsets, pa.Offset)

		vertOK := groundPair || vert < d.cfg.VerticalThresholdFt
		if horiz < d.cfg.HorizontalThresholdNM && vertOK {
			breached = true
		}
	}

	if !breached {
		return alert.ConflictEvent{}, false
	}

	first, second := a.Aircraft, b.Aircraft
	if second < first {
		first, second = second, first
	}

	tca := offsets[floats.MinIdx(horizSeries)]
	ev := alert.ConflictEvent{
		First:           first,
		Second:          second,
		TimeToClosest:   tca,
		MinHorizontalNM: floats.Min(horizSeries),
		MinVerticalFt:   floats.Min(vertSeries),
		Severity:        alert.SeverityFor(tca, d.cfg.SeverityTierSeconds),
	}
	return ev, true
}

// onGround classifies an aircraft as surface traffic by height above field.
func (d *Detector) onGround(s *track.AircraftState) bool {
	return s.AltitudeFt-d.cfg.FieldElevationFt < d.cfg.GroundMaxAGLFt
}

// separatedSurfaces reports whether two ground positions sit on distinct,
// non-touching surface features. Two aircraft on parallel taxiways are
// physically separated no matter how small the free-space distance gets.
func (d *Detector) separatedSurfaces(pa, pb geo.Point, sm *surface.Map) bool {
	fa := d.nearestSurface(pa, sm)
	fb := d.nearestSurface(pb, sm)
	if fa == nil || fb == nil || fa.ID == fb.ID {
		return false
	}
	return !d.featuresTouch(fa, fb)
}

// nearestSurface returns the closest taxiway or runway within the feature
// lookup range, preferring whichever is closer.
func (d *Detector) nearestSurface(p geo.Point, sm *surface.Map) *surface.Feature {
	const lookupNM = 0.05 // ~90 m: beyond this the aircraft is off the movement area

	tw := sm.NearestFeature(p, surface.Taxiway, lookupNM)
	rw := sm.NearestFeature(p, surface.Runway, lookupNM)
	switch {
	case tw == nil:
		return rw
	case rw == nil:
		return tw
	}
	if geo.DistanceToPolylineNM(p, rw.Geometry) < geo.DistanceToPolylineNM(p, tw.Geometry) {
		return rw
	}
	return tw
}

// featuresTouch reports whether two features' geometries intersect, e.g. a
// taxiway crossing a runway. Cached: the surface map never changes.
func (d *Detector) featuresTouch(a, b *surface.Feature) bool {
	key := a.ID + "|" + b.ID
	if b.ID < a.ID {
		key = b.ID + "|" + a.ID
	}
	if touch, ok := d.featureTouch[key]; ok {
		return touch
	}

	touch := false
	for i := 0; i+1 < len(a.Geometry) && !touch; i++ {
		if b.Polygon {
			touch = geo.SegmentCrossesPolygon(a.Geometry[i], a.Geometry[i+1], b.Geometry)
		} else {
			touch = geo.SegmentCrossesPolyline(a.Geometry[i], a.Geometry[i+1], b.Geometry)
		}
	}
	d.featureTouch[key] = touch
	return touch
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
