// Package surface holds the static airport geometry: runways, taxiways and
// hold-short lines. The map is loaded once at startup and is read-only for
// the lifetime of the process, so it is shared without locking. Queries go
// through a coarse grid index because both the conflict detector and the
// compliance monitor call them per tick per aircraft.
package surface

import (
	"errors"
	"fmt"
	"math"

	"github.com/airfield-data/surfacewatch/internal/geo"
)

// ErrUnknownFeature is returned when a clearance or query references a
// feature identifier absent from the loaded map.
var ErrUnknownFeature = errors.New("surface: unknown feature reference")

// Kind classifies a surface feature.
type Kind string

const (
	Runway    Kind = "runway"
	Taxiway   Kind = "taxiway"
	HoldShort Kind = "hold_short"
)

// Feature is one piece of airport geometry. Runways carry a closed polygon
// ring; taxiways and hold-short lines carry a polyline. The ID is the
// published reference ("31C", "13C/31C", "H").
type Feature struct {
	ID       string
	Kind     Kind
	Geometry []geo.Point
	// Polygon marks Geometry as a closed ring rather than a polyline.
	Polygon bool
}

// Centroid returns the arithmetic centre of the feature's vertices.
func (f *Feature) Centroid() geo.Point {
	var lat, lon float64
	for _, p := range f.Geometry {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(f.Geometry))
	return geo.Point{Lat: lat / n, Lon: lon / n}
}

// Map is the loaded feature set plus its spatial index.
type Map struct {
	features []Feature
	byID     map[string]int

	// grid index: cell coordinates to feature indices whose bounding box
	// overlaps the cell
	cellDeg float64
	cells   map[cellKey][]int
	minLat  float64
	minLon  float64
}

type cellKey struct{ row, col int }

// DefaultCellNM is the index cell edge length. A quarter mile keeps runway
// polygons in a handful of cells at airport scale.
const DefaultCellNM = 0.25

// NewMap builds a map and its grid index from the given features.
func NewMap(features []Feature) (*Map, error) {
	if len(features) == 0 {
		return nil, errors.New("surface: no features")
	}

	m := &Map{
		features: features,
		byID:     make(map[string]int, len(features)),
		cells:    make(map[cellKey][]int),
		minLat:   math.MaxFloat64,
		minLon:   math.MaxFloat64,
	}

	for i, f := range features {
		if len(f.Geometry) == 0 {
			return nil, fmt.Errorf("surface: feature %q has no geometry", f.ID)
		}
		if _, dup := m.byID[f.ID]; dup {
			return nil, fmt.Errorf("surface: duplicate feature id %q", f.ID)
		}
		m.byID[f.ID] = i
		for _, p := range f.Geometry {
			m.minLat = math.Min(m.minLat, p.Lat)
			m.minLon = math.Min(m.minLon, p.Lon)
		}
	}

	// one degree of latitude is 60 NM; longitude cells are scaled the same
	// way, which is close enough for an index that only has to be
	// conservative
	m.cellDeg = DefaultCellNM / 60.0

	for i, f := range features {
		loLat, hiLat := math.MaxFloat64, -math.MaxFloat64
		loLon, hiLon := math.MaxFloat64, -math.MaxFloat64
		for _, p := range f.Geometry {
			loLat, hiLat = math.Min(loLat, p.Lat), math.Max(hiLat, p.Lat)
			loLon, hiLon = math.Min(loLon, p.Lon), math.Max(hiLon, p.Lon)
		}
		lo := m.cell(geo.Point{Lat: loLat, Lon: loLon})
		hi := m.cell(geo.Point{Lat: hiLat, Lon: hiLon})
		for r := lo.row; r <= hi.row; r++ {
			for c := lo.col; c <= hi.col; c++ {
				k := cellKey{r, c}
				m.cells[k] = append(m.cells[k], i)
			}
		}
	}

	return m, nil
}

func (m *Map) cell(p geo.Point) cellKey {
	return cellKey{
		row: int(math.Floor((p.Lat - m.minLat) / m.cellDeg)),
		col: int(math.Floor((p.Lon - m.minLon) / m.cellDeg)),
	}
}

// FeatureByID returns the feature with the given reference, or
// ErrUnknownFeature.
func (m *Map) FeatureByID(id string) (*Feature, error) {
	i, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, id)
	}
	return &m.features[i], nil
}

// Features returns all loaded features.
func (m *Map) Features() []Feature {
	return m.features
}

// candidates collects the feature indices indexed in the cells within ring
// cells of p's cell.
func (m *Map) candidates(p geo.Point, ring int) []int {
	center := m.cell(p)
	seen := make(map[int]bool)
	var out []int
	for r := center.row - ring; r <= center.row+ring; r++ {
		for c := center.col - ring; c <= center.col+ring; c++ {
			for _, i := range m.cells[cellKey{r, c}] {
				if !seen[i] {
					seen[i] = true
					out = append(out, i)
				}
			}
		}
	}
	return out
}

// NearestFeature returns the closest feature of the given kind to pos, or
// nil when nothing of that kind lies within maxNM. The search widens the
// grid ring until it covers maxNM, so the common hit is a single cell
// lookup.
func (m *Map) NearestFeature(pos geo.Point, kind Kind, maxNM float64) *Feature {
	maxRing := int(math.Ceil(maxNM/DefaultCellNM)) + 1

	var best *Feature
	bestDist := maxNM

	for ring := 0; ring <= maxRing; ring++ {
		for _, i := range m.candidates(pos, ring) {
			f := &m.features[i]
			if f.Kind != kind {
				continue
			}
			d := m.featureDistanceNM(pos, f)
			if d <= bestDist {
				if best == nil || d < bestDist || f.ID < best.ID {
					best = f
					bestDist = d
				}
			}
		}
		if best != nil {
			// one extra ring so a closer feature indexed just outside the
			// current ring cannot be missed
			for _, i := range m.candidates(pos, ring+1) {
				f := &m.features[i]
				if f.Kind != kind {
					continue
				}
				if d := m.featureDistanceNM(pos, f); d < bestDist {
					best = f
					bestDist = d
				}
			}
			return best
		}
	}
	return best
}

// featureDistanceNM scores a feature for the nearest lookup. A polygon that
// contains the point is distance zero; everything else is distance to the
// boundary geometry.
func (m *Map) featureDistanceNM(pos geo.Point, f *Feature) float64 {
	if f.Polygon && geo.PointInPolygon(pos, f.Geometry) {
		return 0
	}
	return geo.DistanceToPolylineNM(pos, f.Geometry)
}

// Contains reports whether pos lies inside the feature. Polyline features
// contain a point when it is within containWidthNM of the line, matching the
// buffered-geometry behaviour of the reference data.
func (m *Map) Contains(pos geo.Point, f *Feature) bool {
	if f.Polygon {
		return geo.PointInPolygon(pos, f.Geometry)
	}
	return geo.DistanceToPolylineNM(pos, f.Geometry) <= containWidthNM
}

// containWidthNM approximates the half-width of a buffered centerline
// (about 40 m, the buffer the reference incursion data used).
const containWidthNM = 0.022

// Crossing reports whether the movement segment from a to b crosses the
// feature. The segment test catches crossings that happened between two
// position samples even when neither endpoint is on the feature.
func (m *Map) Crossing(a, b geo.Point, f *Feature) bool {
	if f.Polygon {
		return geo.SegmentCrossesPolygon(a, b, f.Geometry)
	}
	return geo.SegmentCrossesPolyline(a, b, f.Geometry)
}
