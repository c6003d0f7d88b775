// Package adsb ingests aircraft telemetry: recorded flight-history CSVs for
// replay and a live SBS-1 (BaseStation) feed over serial or TCP. All boundary
// validation happens here so the core packages only ever see well-formed
// position reports.
package adsb

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/airfield-data/surfacewatch/internal/geo"
	"github.com/airfield-data/surfacewatch/internal/monitoring"
	"github.com/airfield-data/surfacewatch/internal/track"
)

// history CSV column layout, one file per aircraft
const (
	colTimestamp = "Timestamp"
	colCallsign  = "Callsign"
	colPosition  = "Position"
	colAltitude  = "Altitude"
	colSpeed     = "Speed"
	colDirection = "Direction"
)

// LoadHistoryDir reads every *.csv file in dir and returns the merged report
// set sorted by (time, aircraft). Files that fail to parse are skipped with a
// log line; an empty directory is an error because a replay with no input is
// always a misconfiguration.
func LoadHistoryDir(dir string) ([]track.PositionReport, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("adsb: no CSV files in %s", dir)
	}
	sort.Strings(files)

	var all []track.PositionReport
	for _, file := range files {
		reports, err := loadHistoryFile(file)
		if err != nil {
			monitoring.Logf("adsb: skipping %s: %v", file, err)
			continue
		}
		all = append(all, reports...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("adsb: no usable reports in %s", dir)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Time.Equal(all[j].Time) {
			return all[i].Time.Before(all[j].Time)
		}
		return all[i].Aircraft < all[j].Aircraft
	})
	return all, nil
}

func loadHistoryFile(path string) ([]track.PositionReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseHistory(f)
}

// ParseHistory decodes one flight-history CSV. The header row names the
// columns; rows with a bad timestamp or position are dropped individually
// rather than failing the whole file, matching how exported histories tend to
// carry a few malformed rows.
func ParseHistory(r io.Reader) ([]track.PositionReport, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("adsb: reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colTimestamp, colCallsign, colPosition} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("adsb: history missing column %q", required)
		}
	}

	var (
		reports []track.PositionReport
		dropped int
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		rep, err := parseHistoryRow(row, col)
		if err != nil {
			dropped++
			continue
		}
		reports = append(reports, rep)
	}
	if dropped > 0 {
		monitoring.Logf("adsb: dropped %d malformed history rows", dropped)
	}
	return reports, nil
}

func parseHistoryRow(row []string, col map[string]int) (track.PositionReport, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	ts, err := strconv.ParseFloat(field(colTimestamp), 64)
	if err != nil {
		return track.PositionReport{}, fmt.Errorf("adsb: bad timestamp %q", field(colTimestamp))
	}
	callsign := field(colCallsign)
	if callsign == "" {
		return track.PositionReport{}, fmt.Errorf("adsb: row missing callsign")
	}

	pos, err := parsePosition(field(colPosition))
	if err != nil {
		return track.PositionReport{}, err
	}

	// Altitude, speed and direction are optional in exported histories;
	// missing values parse as zero.
	alt, _ := strconv.ParseFloat(field(colAltitude), 64)
	speed, _ := strconv.ParseFloat(field(colSpeed), 64)
	dir, _ := strconv.ParseFloat(field(colDirection), 64)

	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return track.PositionReport{
		Aircraft:       callsign,
		Time:           time.Unix(sec, nsec).UTC(),
		Position:       pos,
		AltitudeFt:     alt,
		GroundSpeedKts: speed,
		TrackDeg:       dir,
	}, nil
}

// parsePosition decodes the "lat,lon" position column.
func parsePosition(s string) (geo.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.Point{}, fmt.Errorf("adsb: bad position %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("adsb: bad latitude in %q", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("adsb: bad longitude in %q", s)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return geo.Point{}, fmt.Errorf("adsb: position out of range %q", s)
	}
	return geo.Point{Lat: lat, Lon: lon}, nil
}
