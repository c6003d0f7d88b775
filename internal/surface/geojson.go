package surface

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/airfield-data/surfacewatch/internal/geo"
)

// geoJSON mirrors the subset of the GeoJSON FeatureCollection schema the
// airport reference exports use. Coordinates are [lon, lat] per RFC 7946.
type geoJSON struct {
	Type     string        `json:"type"`
	Features []geoJSONFeat `json:"features"`
}

type geoJSONFeat struct {
	Type       string `json:"type"`
	Properties struct {
		Ref  string `json:"ref"`
		Kind string `json:"kind"`
	} `json:"properties"`
	Geometry struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
}

// LoadGeoJSON reads a feature collection from path and builds the indexed
// map. Unknown feature kinds and malformed geometry fail the load: the
// surface map is safety reference data, so there are no guessed defaults.
func LoadGeoJSON(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("surface: read %s: %w", path, err)
	}
	return ParseGeoJSON(data)
}

// ParseGeoJSON builds the indexed map from raw GeoJSON bytes.
func ParseGeoJSON(data []byte) (*Map, error) {
	var doc geoJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("surface: parse geojson: %w", err)
	}
	if doc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("surface: expected FeatureCollection, got %q", doc.Type)
	}

	features := make([]Feature, 0, len(doc.Features))
	for _, gf := range doc.Features {
		var kind Kind
		switch Kind(gf.Properties.Kind) {
		case Runway, Taxiway, HoldShort:
			kind = Kind(gf.Properties.Kind)
		default:
			return nil, fmt.Errorf("surface: feature %q has unknown kind %q",
				gf.Properties.Ref, gf.Properties.Kind)
		}
		if gf.Properties.Ref == "" {
			return nil, fmt.Errorf("surface: feature of kind %q has no ref", kind)
		}

		f := Feature{ID: gf.Properties.Ref, Kind: kind}

		switch gf.Geometry.Type {
		case "LineString":
			var coords [][2]float64
			if err := json.Unmarshal(gf.Geometry.Coordinates, &coords); err != nil {
				return nil, fmt.Errorf("surface: feature %q coordinates: %w", f.ID, err)
			}
			for _, c := range coords {
				f.Geometry = append(f.Geometry, geo.Point{Lat: c[1], Lon: c[0]})
			}
		case "Polygon":
			var rings [][][2]float64
			if err := json.Unmarshal(gf.Geometry.Coordinates, &rings); err != nil {
				return nil, fmt.Errorf("surface: feature %q coordinates: %w", f.ID, err)
			}
			if len(rings) == 0 {
				return nil, fmt.Errorf("surface: feature %q polygon has no rings", f.ID)
			}
			// exterior ring only; airport features have no holes
			for _, c := range rings[0] {
				f.Geometry = append(f.Geometry, geo.Point{Lat: c[1], Lon: c[0]})
			}
			// drop an explicit closing vertex, the ray caster closes the ring
			if n := len(f.Geometry); n > 1 && f.Geometry[0] == f.Geometry[n-1] {
				f.Geometry = f.Geometry[:n-1]
			}
			f.Polygon = true
		default:
			return nil, fmt.Errorf("surface: feature %q has unsupported geometry %q",
				f.ID, gf.Geometry.Type)
		}

		if len(f.Geometry) < 2 {
			return nil, fmt.Errorf("surface: feature %q needs at least two vertices", f.ID)
		}
		features = append(features, f)
	}

	return NewMap(features)
}
