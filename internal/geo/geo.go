// Package geo provides the spherical and planar geometry primitives used by
// the surface map, the conflict detector and the compliance monitor.
// Latitudes and longitudes are degrees; distances are nautical miles.
package geo

import "math"

// EarthRadiusNM is the mean Earth radius in nautical miles.
const EarthRadiusNM = 3440.065

// Point is a WGS84 position.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceNM returns the great-circle distance between two points in
// nautical miles (haversine).
func DistanceNM(a, b Point) float64 {
	r1 := a.Lat * math.Pi / 180
	r2 := b.Lat * math.Pi / 180

	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	// handle dateline crossing
	for dLon > math.Pi {
		dLon -= 2 * math.Pi
	}
	for dLon < -math.Pi {
		dLon += 2 * math.Pi
	}

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(r1)*math.Cos(r2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return EarthRadiusNM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BearingDeg returns the initial great-circle bearing from a to b in degrees,
// normalised to [0, 360).
func BearingDeg(a, b Point) float64 {
	r1 := a.Lat * math.Pi / 180
	r2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(r2)
	x := math.Cos(r1)*math.Sin(r2) - math.Sin(r1)*math.Cos(r2)*math.Cos(dLon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Project returns the point reached by travelling distNM nautical miles from
// p on the given true bearing, following a great circle.
func Project(p Point, bearingDeg, distNM float64) Point {
	d := distNM / EarthRadiusNM
	brg := bearingDeg * math.Pi / 180
	lat := p.Lat * math.Pi / 180
	lon := p.Lon * math.Pi / 180

	newLat := math.Asin(math.Sin(lat)*math.Cos(d) +
		math.Cos(lat)*math.Sin(d)*math.Cos(brg))
	newLon := lon + math.Atan2(
		math.Sin(brg)*math.Sin(d)*math.Cos(lat),
		math.Cos(d)-math.Sin(lat)*math.Sin(newLat))

	out := Point{Lat: newLat * 180 / math.Pi, Lon: newLon * 180 / math.Pi}
	if out.Lon > 180 {
		out.Lon -= 360
	} else if out.Lon < -180 {
		out.Lon += 360
	}
	return out
}

// PointInPolygon reports whether p lies inside the polygon by ray casting.
// The polygon is a ring of vertices; it need not be explicitly closed.
func PointInPolygon(p Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	j := len(polygon) - 1

	for i := 0; i < len(polygon); i++ {
		xi, yi := polygon[i].Lat, polygon[i].Lon
		xj, yj := polygon[j].Lat, polygon[j].Lon

		// shift vertices that sit on the far side of the dateline so the
		// ring is continuous relative to p
		if yi-p.Lon > 180 {
			yi -= 360
		} else if yi-p.Lon < -180 {
			yi += 360
		}
		if yj-p.Lon > 180 {
			yj -= 360
		} else if yj-p.Lon < -180 {
			yj += 360
		}

		if ((yi > p.Lon) != (yj > p.Lon)) &&
			(p.Lat < (xj-xi)*(p.Lon-yi)/(yj-yi)+xi) {
			inside = !inside
		}
		j = i
	}

	return inside
}

// SegmentsIntersect reports whether segments ab and cd intersect. Over
// airport-scale distances a planar orientation test on raw lat/lon is
// accurate enough; an endpoint exactly on the other segment counts as an
// intersection.
func SegmentsIntersect(a, b, c, d Point) bool {
	o1 := orientation(a, b, c)
	o2 := orientation(a, b, d)
	o3 := orientation(c, d, a)
	o4 := orientation(c, d, b)

	if o1 != o2 && o3 != o4 {
		return true
	}

	// collinear overlap cases
	if o1 == 0 && onSegment(a, c, b) {
		return true
	}
	if o2 == 0 && onSegment(a, d, b) {
		return true
	}
	if o3 == 0 && onSegment(c, a, d) {
		return true
	}
	if o4 == 0 && onSegment(c, b, d) {
		return true
	}
	return false
}

// orientation returns 0 for collinear, 1 for clockwise and 2 for
// counterclockwise triplets.
func orientation(p, q, r Point) int {
	v := (q.Lon-p.Lon)*(r.Lat-q.Lat) - (q.Lat-p.Lat)*(r.Lon-q.Lon)
	const eps = 1e-12
	if v > eps {
		return 1
	}
	if v < -eps {
		return 2
	}
	return 0
}

// onSegment reports whether q lies on segment pr, assuming collinearity.
func onSegment(p, q, r Point) bool {
	return q.Lon <= math.Max(p.Lon, r.Lon) && q.Lon >= math.Min(p.Lon, r.Lon) &&
		q.Lat <= math.Max(p.Lat, r.Lat) && q.Lat >= math.Min(p.Lat, r.Lat)
}

// SegmentCrossesPolyline reports whether segment ab crosses any edge of the
// polyline.
func SegmentCrossesPolyline(a, b Point, line []Point) bool {
	for i := 0; i+1 < len(line); i++ {
		if SegmentsIntersect(a, b, line[i], line[i+1]) {
			return true
		}
	}
	return false
}

// SegmentCrossesPolygon reports whether segment ab crosses the polygon
// boundary or has an endpoint inside it. Catches crossings that start and
// end outside the ring as well as entries that stop inside.
func SegmentCrossesPolygon(a, b Point, polygon []Point) bool {
	if PointInPolygon(a, polygon) || PointInPolygon(b, polygon) {
		return true
	}
	n := len(polygon)
	for i := 0; i < n; i++ {
		if SegmentsIntersect(a, b, polygon[i], polygon[(i+1)%n]) {
			return true
		}
	}
	return false
}

// DistanceToPolylineNM returns the minimum great-circle distance from p to
// the polyline.
func DistanceToPolylineNM(p Point, line []Point) float64 {
	if len(line) == 1 {
		return DistanceNM(p, line[0])
	}
	best := math.MaxFloat64
	for i := 0; i+1 < len(line); i++ {
		if d := distanceToSegmentNM(p, line[i], line[i+1]); d < best {
			best = d
		}
	}
	return best
}

// distanceToSegmentNM projects p onto segment ab in a local planar frame
// scaled by cos(lat), then measures the great-circle distance to the foot.
func distanceToSegmentNM(p, a, b Point) float64 {
	scale := math.Cos(p.Lat * math.Pi / 180)
	ax, ay := a.Lon*scale, a.Lat
	bx, by := b.Lon*scale, b.Lat
	px, py := p.Lon*scale, p.Lat

	dx, dy := bx-ax, by-ay
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return DistanceNM(p, a)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / l2
	t = math.Max(0, math.Min(1, t))

	foot := Point{Lat: ay + t*dy, Lon: (ax + t*dx) / scale}
	return DistanceNM(p, foot)
}
