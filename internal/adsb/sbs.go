package adsb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/airfield-data/surfacewatch/internal/geo"
	"github.com/airfield-data/surfacewatch/internal/track"
)

// SBS-1 (BaseStation) transmission types that carry fields we use.
const (
	msgIdentification  = 1 // callsign
	msgSurfacePosition = 2 // position, altitude, speed, track
	msgAirbornePos     = 3 // position, altitude
	msgAirborneVel     = 4 // speed, track, vertical rate
)

// ErrSkippedMessage marks SBS lines that are valid but carry no fields the
// decoder uses. Callers treat it as a non-event.
var ErrSkippedMessage = errors.New("adsb: message carries no usable fields")

// sbsMessage is one decoded BaseStation line. Optional fields are pointers:
// an SBS line only populates the columns its transmission type defines.
type sbsMessage struct {
	TransmissionType int
	HexIdent         string
	Callsign         string
	Time             time.Time

	AltitudeFt     *float64
	GroundSpeedKts *float64
	TrackDeg       *float64
	Lat            *float64
	Lon            *float64
}

// parseSBSLine decodes one comma-separated BaseStation line. Field layout per
// the de-facto SBS-1 socket format: index 1 transmission type, 4 hex ident,
// 6/7 generated date and time, 10 callsign, 11 altitude, 12 ground speed,
// 13 track, 14 latitude, 15 longitude.
func parseSBSLine(line string) (sbsMessage, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 11 || fields[0] != "MSG" {
		return sbsMessage{}, fmt.Errorf("adsb: not an SBS MSG line: %q", line)
	}

	tt, err := strconv.Atoi(fields[1])
	if err != nil {
		return sbsMessage{}, fmt.Errorf("adsb: bad transmission type %q", fields[1])
	}

	msg := sbsMessage{
		TransmissionType: tt,
		HexIdent:         strings.TrimSpace(fields[4]),
		Callsign:         strings.TrimSpace(fields[10]),
	}
	if msg.HexIdent == "" {
		return sbsMessage{}, fmt.Errorf("adsb: SBS line missing hex ident")
	}

	msg.Time, err = parseSBSTime(fields[6], fields[7])
	if err != nil {
		return sbsMessage{}, err
	}

	opt := func(i int) *float64 {
		if i >= len(fields) {
			return nil
		}
		s := strings.TrimSpace(fields[i])
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &v
	}
	msg.AltitudeFt = opt(11)
	msg.GroundSpeedKts = opt(12)
	msg.TrackDeg = opt(13)
	msg.Lat = opt(14)
	msg.Lon = opt(15)

	return msg, nil
}

// parseSBSTime combines the generated date and time columns
// ("2026/08/25", "14:03:07.123").
func parseSBSTime(date, clock string) (time.Time, error) {
	t, err := time.Parse("2006/01/02 15:04:05.999", strings.TrimSpace(date)+" "+strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("adsb: bad SBS timestamp %q %q", date, clock)
	}
	return t.UTC(), nil
}

// Decoder assembles position reports from the SBS message stream. Position
// and velocity arrive in separate transmission types, so the decoder keeps
// the last known kinematics per transponder and emits a report whenever a
// position-bearing message completes the picture.
type Decoder struct {
	aircraft map[string]*sbsTrack
}

type sbsTrack struct {
	callsign string
	speedKts float64
	trackDeg float64
	hasVel   bool
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{aircraft: make(map[string]*sbsTrack)}
}

// Decode folds one SBS line into the decoder. It returns a report when the
// line carried a position and the aircraft's velocity is already known;
// otherwise ErrSkippedMessage. Aircraft are identified by callsign when one
// has been seen, falling back to the transponder hex ident.
func (d *Decoder) Decode(line string) (track.PositionReport, error) {
	msg, err := parseSBSLine(line)
	if err != nil {
		return track.PositionReport{}, err
	}

	tr, ok := d.aircraft[msg.HexIdent]
	if !ok {
		tr = &sbsTrack{}
		d.aircraft[msg.HexIdent] = tr
	}
	if msg.Callsign != "" {
		tr.callsign = msg.Callsign
	}
	if msg.GroundSpeedKts != nil {
		tr.speedKts = *msg.GroundSpeedKts
		tr.hasVel = true
	}
	if msg.TrackDeg != nil {
		tr.trackDeg = *msg.TrackDeg
	}

	if msg.Lat == nil || msg.Lon == nil || !tr.hasVel {
		return track.PositionReport{}, ErrSkippedMessage
	}

	id := tr.callsign
	if id == "" {
		id = msg.HexIdent
	}
	var alt float64
	if msg.AltitudeFt != nil {
		alt = *msg.AltitudeFt
	}
	pos := geo.Point{Lat: *msg.Lat, Lon: *msg.Lon}
	if pos.Lat < -90 || pos.Lat > 90 || pos.Lon < -180 || pos.Lon > 180 {
		return track.PositionReport{}, fmt.Errorf("adsb: position out of range %v", pos)
	}

	return track.PositionReport{
		Aircraft:       id,
		Time:           msg.Time,
		Position:       pos,
		AltitudeFt:     alt,
		GroundSpeedKts: tr.speedKts,
		TrackDeg:       tr.trackDeg,
	}, nil
}
