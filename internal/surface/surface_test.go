package surface

import (
	"errors"
	"testing"

	"github.com/airfield-data/surfacewatch/internal/geo"
)

// testFeatures builds a small field: one runway polygon running roughly
// east-west, one taxiway crossing it, one hold-short line on the taxiway.
func testFeatures() []Feature {
	return []Feature{
		{
			ID:   "09/27",
			Kind: Runway,
			Geometry: []geo.Point{
				{Lat: 41.7900, Lon: -87.7600},
				{Lat: 41.7900, Lon: -87.7400},
				{Lat: 41.7910, Lon: -87.7400},
				{Lat: 41.7910, Lon: -87.7600},
			},
			Polygon: true,
		},
		{
			ID:   "A",
			Kind: Taxiway,
			Geometry: []geo.Point{
				{Lat: 41.7880, Lon: -87.7500},
				{Lat: 41.7930, Lon: -87.7500},
			},
		},
		{
			ID:   "H1",
			Kind: HoldShort,
			Geometry: []geo.Point{
				{Lat: 41.7893, Lon: -87.7505},
				{Lat: 41.7893, Lon: -87.7495},
			},
		},
	}
}

func mustMap(t *testing.T) *Map {
	t.Helper()
	m, err := NewMap(testFeatures())
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	return m
}

func TestNewMapValidation(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if _, err := NewMap(nil); err == nil {
			t.Error("expected error for empty feature set")
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		feats := testFeatures()
		feats[1].ID = feats[0].ID
		if _, err := NewMap(feats); err == nil {
			t.Error("expected error for duplicate id")
		}
	})

	t.Run("no geometry", func(t *testing.T) {
		feats := testFeatures()
		feats[2].Geometry = nil
		if _, err := NewMap(feats); err == nil {
			t.Error("expected error for empty geometry")
		}
	})
}

func TestFeatureByID(t *testing.T) {
	m := mustMap(t)

	f, err := m.FeatureByID("09/27")
	if err != nil {
		t.Fatalf("FeatureByID: %v", err)
	}
	if f.Kind != Runway {
		t.Errorf("kind = %v, want runway", f.Kind)
	}

	_, err = m.FeatureByID("31C")
	if !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("err = %v, want ErrUnknownFeature", err)
	}
}

func TestContains(t *testing.T) {
	m := mustMap(t)
	runway, _ := m.FeatureByID("09/27")
	taxiway, _ := m.FeatureByID("A")

	if !m.Contains(geo.Point{Lat: 41.7905, Lon: -87.7500}, runway) {
		t.Error("point inside runway polygon not contained")
	}
	if m.Contains(geo.Point{Lat: 41.7950, Lon: -87.7500}, runway) {
		t.Error("point north of runway reported contained")
	}

	// polyline containment is the buffered centerline
	if !m.Contains(geo.Point{Lat: 41.7920, Lon: -87.75001}, taxiway) {
		t.Error("point on taxiway centerline not contained")
	}
	if m.Contains(geo.Point{Lat: 41.7920, Lon: -87.7530}, taxiway) {
		t.Error("point well off the taxiway reported contained")
	}
}

func TestCrossing(t *testing.T) {
	m := mustMap(t)
	hold, _ := m.FeatureByID("H1")
	runway, _ := m.FeatureByID("09/27")

	// taxiing north along A, one sample south of the hold line and the next
	// north of it
	before := geo.Point{Lat: 41.7890, Lon: -87.7500}
	after := geo.Point{Lat: 41.7896, Lon: -87.7500}
	if !m.Crossing(before, after, hold) {
		t.Error("movement across hold-short line not detected")
	}
	if m.Crossing(before, before, hold) {
		t.Error("stationary aircraft reported crossing")
	}

	// continuing onto the runway
	onto := geo.Point{Lat: 41.7905, Lon: -87.7500}
	if !m.Crossing(after, onto, runway) {
		t.Error("movement onto runway not detected")
	}
}

func TestNearestFeature(t *testing.T) {
	m := mustMap(t)

	p := geo.Point{Lat: 41.7889, Lon: -87.7499}
	f := m.NearestFeature(p, Taxiway, 0.1)
	if f == nil || f.ID != "A" {
		t.Fatalf("nearest taxiway = %+v, want A", f)
	}

	if f := m.NearestFeature(p, Runway, 0.01); f != nil {
		t.Errorf("runway within 0.01 NM = %v, want none", f.ID)
	}

	// point inside the runway polygon is distance zero
	inside := geo.Point{Lat: 41.7905, Lon: -87.7450}
	if f := m.NearestFeature(inside, Runway, 0.05); f == nil || f.ID != "09/27" {
		t.Fatalf("nearest runway from inside = %+v, want 09/27", f)
	}
}

func TestParseGeoJSON(t *testing.T) {
	data := []byte(`{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"ref": "13C/31C", "kind": "runway"},
				"geometry": {
					"type": "Polygon",
					"coordinates": [[
						[-87.76, 41.790], [-87.74, 41.790],
						[-87.74, 41.791], [-87.76, 41.791],
						[-87.76, 41.790]
					]]
				}
			},
			{
				"type": "Feature",
				"properties": {"ref": "Y", "kind": "taxiway"},
				"geometry": {
					"type": "LineString",
					"coordinates": [[-87.75, 41.788], [-87.75, 41.793]]
				}
			}
		]
	}`)

	m, err := ParseGeoJSON(data)
	if err != nil {
		t.Fatalf("ParseGeoJSON: %v", err)
	}

	rw, err := m.FeatureByID("13C/31C")
	if err != nil {
		t.Fatalf("runway missing: %v", err)
	}
	if !rw.Polygon {
		t.Error("runway not marked polygon")
	}
	// explicit closing vertex dropped
	if len(rw.Geometry) != 4 {
		t.Errorf("runway vertices = %d, want 4", len(rw.Geometry))
	}

	tw, err := m.FeatureByID("Y")
	if err != nil {
		t.Fatalf("taxiway missing: %v", err)
	}
	if tw.Polygon || len(tw.Geometry) != 2 {
		t.Errorf("taxiway = %+v, want 2-point polyline", tw)
	}
}

func TestParseGeoJSONRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{
			"unknown kind",
			`{"type":"FeatureCollection","features":[{"type":"Feature",
			  "properties":{"ref":"X","kind":"apron"},
			  "geometry":{"type":"LineString","coordinates":[[-87.75,41.788],[-87.75,41.793]]}}]}`,
		},
		{
			"missing ref",
			`{"type":"FeatureCollection","features":[{"type":"Feature",
			  "properties":{"kind":"taxiway"},
			  "geometry":{"type":"LineString","coordinates":[[-87.75,41.788],[-87.75,41.793]]}}]}`,
		},
		{
			"not json",
			`]`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseGeoJSON([]byte(tc.data)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}
