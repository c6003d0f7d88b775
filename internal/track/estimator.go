// Package track owns per-aircraft kinematic state. The estimator consumes
// validated position reports, maintains smoothed speed, turn-rate and
// vertical-rate estimates, and produces bounded constant-speed /
// constant-turn trajectory extrapolations for the evaluators downstream.
package track

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/airfield-data/surfacewatch/internal/geo"
	"github.com/airfield-data/surfacewatch/internal/monitoring"
)

var (
	// ErrStaleReport marks a report older than the aircraft's last known
	// timestamp. The report is rejected and state is left untouched.
	ErrStaleReport = errors.New("track: stale position report")
	// ErrHorizonExceeded marks a prediction request beyond the configured
	// horizon. Requests are refused, never silently truncated.
	ErrHorizonExceeded = errors.New("track: prediction beyond configured horizon")
	// ErrUnknownAircraft marks a prediction request for an untracked
	// identifier.
	ErrUnknownAircraft = errors.New("track: unknown aircraft")
)

// PositionReport is a single validated telemetry fix. Reports are immutable
// and arrive in non-decreasing timestamp order per aircraft.
type PositionReport struct {
	Aircraft       string    `json:"aircraft"`
	Time           time.Time `json:"time"`
	Position       geo.Point `json:"position"`
	AltitudeFt     float64   `json:"altitude_ft"`
	GroundSpeedKts float64   `json:"ground_speed_kts"`
	TrackDeg       float64   `json:"track_deg"`
}

// AircraftState is the filtered state for one aircraft. It is owned
// exclusively by the Estimator; everything handed out of the package is a
// deep copy.
type AircraftState struct {
	Aircraft string `json:"aircraft"`

	Position   geo.Point `json:"position"`
	AltitudeFt float64   `json:"altitude_ft"`

	// Smoothed kinematics
	GroundSpeedKts    float64 `json:"ground_speed_kts"`
	TrackDeg          float64 `json:"track_deg"`
	TurnRateDegPerSec float64 `json:"turn_rate_deg_per_sec"`
	VerticalRateFps   float64 `json:"vertical_rate_fps"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// History is the short report window kept for extrapolation and the
	// between-sample crossing tests. Newest last.
	History []PositionReport `json:"history"`

	ReportCount int `json:"report_count"`
}

// PrevPosition returns the position before the current one, falling back to
// the current position for a state with a single report. The compliance
// monitor uses the pair to detect crossings that happened between samples.
func (s *AircraftState) PrevPosition() geo.Point {
	if n := len(s.History); n >= 2 {
		return s.History[n-2].Position
	}
	return s.Position
}

// Config holds estimator tuning.
type Config struct {
	// Smoothing is the exponential smoothing factor applied to the
	// finite-difference rate estimates; 1 trusts only the newest sample.
	Smoothing float64
	// HistoryLength bounds the per-aircraft report window.
	HistoryLength int
	// SilenceTimeout evicts aircraft with no report for longer than this.
	SilenceTimeout time.Duration
	// MaxHorizon bounds trajectory extrapolation.
	MaxHorizon time.Duration
}

// DefaultConfig returns estimator defaults tuned for 1-5 s report intervals.
func DefaultConfig() Config {
	return Config{
		Smoothing:      0.5,
		HistoryLength:  16,
		SilenceTimeout: 60 * time.Second,
		MaxHorizon:     60 * time.Second,
	}
}

// Estimator tracks all aircraft currently reporting.
type Estimator struct {
	cfg    Config
	states map[string]*AircraftState
	mu     sync.RWMutex
}

// NewEstimator creates an estimator with the given configuration.
func NewEstimator(cfg Config) *Estimator {
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = DefaultConfig().Smoothing
	}
	if cfg.HistoryLength < 2 {
		cfg.HistoryLength = DefaultConfig().HistoryLength
	}
	return &Estimator{
		cfg:    cfg,
		states: make(map[string]*AircraftState),
	}
}

// Update folds a report into the aircraft's state and returns a snapshot of
// the result. A report older than the last accepted one returns
// ErrStaleReport and leaves state untouched.
func (e *Estimator) Update(report PositionReport) (*AircraftState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[report.Aircraft]
	if !ok {
		st = &AircraftState{
			Aircraft:       report.Aircraft,
			Position:       report.Position,
			AltitudeFt:     report.AltitudeFt,
			GroundSpeedKts: report.GroundSpeedKts,
			TrackDeg:       report.TrackDeg,
			FirstSeen:      report.Time,
			LastSeen:       report.Time,
			History:        []PositionReport{report},
			ReportCount:    1,
		}
		e.states[report.Aircraft] = st
		return snapshotState(st), nil
	}

	if report.Time.Before(st.LastSeen) {
		return nil, fmt.Errorf("%w: %s at %s, last seen %s",
			ErrStaleReport, report.Aircraft, report.Time.Format(time.RFC3339Nano),
			st.LastSeen.Format(time.RFC3339Nano))
	}

	dt := report.Time.Sub(st.LastSeen).Seconds()
	alpha := e.cfg.Smoothing

	if dt > 0 {
		// Finite differences over the two newest reports, damped with
		// exponential smoothing so irregular report intervals and sensor
		// noise don't whip the rate estimates around.
		turn := angleDiffDeg(report.TrackDeg, st.TrackDeg) / dt
		vert := (report.AltitudeFt - st.AltitudeFt) / dt

		st.TurnRateDegPerSec = alpha*turn + (1-alpha)*st.TurnRateDegPerSec
		st.VerticalRateFps = alpha*vert + (1-alpha)*st.VerticalRateFps
		st.GroundSpeedKts = alpha*report.GroundSpeedKts + (1-alpha)*st.GroundSpeedKts
	}

	st.Position = report.Position
	st.AltitudeFt = report.AltitudeFt
	st.TrackDeg = report.TrackDeg
	st.LastSeen = report.Time
	st.ReportCount++

	st.History = append(st.History, report)
	if len(st.History) > e.cfg.HistoryLength {
		st.History = st.History[len(st.History)-e.cfg.HistoryLength:]
	}

	return snapshotState(st), nil
}

// Predict returns a trajectory extrapolated from the aircraft's current
// state over the requested horizon.
func (e *Estimator) Predict(aircraft string, horizon time.Duration) (*Trajectory, error) {
	if horizon > e.cfg.MaxHorizon {
		return nil, fmt.Errorf("%w: requested %s, configured %s",
			ErrHorizonExceeded, horizon, e.cfg.MaxHorizon)
	}

	e.mu.RLock()
	st, ok := e.states[aircraft]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAircraft, aircraft)
	}

	return newTrajectory(snapshotState(st), horizon), nil
}

// EvictSilent removes aircraft with no report for longer than the silence
// timeout and returns the evicted identifiers. A later report for an evicted
// identifier starts fresh state rather than resuming stale history.
func (e *Estimator) EvictSilent(now time.Time) []string {
	if e.cfg.SilenceTimeout <= 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var evicted []string
	for id, st := range e.states {
		if now.Sub(st.LastSeen) > e.cfg.SilenceTimeout {
			delete(e.states, id)
			evicted = append(evicted, id)
			monitoring.Logf("track: evicted %s after %s of silence", id, now.Sub(st.LastSeen))
		}
	}
	return evicted
}

// Snapshot returns deep copies of all tracked states keyed by identifier.
// Downstream evaluators only ever see these copies, never the owned state.
func (e *Estimator) Snapshot() map[string]*AircraftState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]*AircraftState, len(e.states))
	for id, st := range e.states {
		out[id] = snapshotState(st)
	}
	return out
}

// TrackedCount returns the number of aircraft currently tracked.
func (e *Estimator) TrackedCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.states)
}

// MaxHorizon exposes the configured prediction bound.
func (e *Estimator) MaxHorizon() time.Duration {
	return e.cfg.MaxHorizon
}

func snapshotState(st *AircraftState) *AircraftState {
	return deepcopy.Copy(st).(*AircraftState)
}

// angleDiffDeg returns the signed smallest difference a-b in degrees,
// normalised to (-180, 180].
func angleDiffDeg(a, b float64) float64 {
	d := math.Mod(a-b, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
