// Package compliance checks observed aircraft movement against the tower
// clearances in force. State is kept per (aircraft, feature) pair; a new
// clearance for the pair always overrides whatever the monitor inferred,
// because tower instructions take precedence over inferred progress. The
// monitor only flags deviation from instructions that were actually issued:
// aircraft with no clearance history never produce events.
package compliance

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/airfield-data/surfacewatch/internal/alert"
	"github.com/airfield-data/surfacewatch/internal/clearance"
	"github.com/airfield-data/surfacewatch/internal/monitoring"
	"github.com/airfield-data/surfacewatch/internal/surface"
	"github.com/airfield-data/surfacewatch/internal/track"
)

// State is the monitor's per (aircraft, feature) machine state.
type State string

const (
	StateNone              State = "none"
	StateHoldingShort      State = "holding_short"
	StateClearedToCross    State = "cleared_to_cross"
	StateClearedForTakeoff State = "cleared_for_takeoff"
	StateClearedToLand     State = "cleared_to_land"
	StateLineUpAndWait     State = "line_up_and_wait"
)

type pairKey struct {
	Aircraft string
	Feature  string
}

type pairState struct {
	State     State
	Clearance clearance.Clearance
	// entered marks that the aircraft has been observed on the feature,
	// used to detect completion of a cleared crossing.
	entered bool
}

// Config holds the thresholds the exit conditions use.
type Config struct {
	FieldElevationFt    float64
	GroundMaxAGLFt      float64
	RolloutExitSpeedKts float64
}

// Monitor evaluates clearance compliance against the surface map.
type Monitor struct {
	cfg  Config
	sm   *surface.Map
	book *clearance.Book

	states  map[pairKey]*pairState
	applied map[string]bool

	runways []*surface.Feature
}

// New builds a monitor over the given surface map and clearance feed.
func New(cfg Config, sm *surface.Map, book *clearance.Book) *Monitor {
	m := &Monitor{
		cfg:     cfg,
		sm:      sm,
		book:    book,
		states:  make(map[pairKey]*pairState),
		applied: make(map[string]bool),
	}
	feats := sm.Features()
	for i := range feats {
		if feats[i].Kind == surface.Runway {
			m.runways = append(m.runways, &feats[i])
		}
	}
	return m
}

// StateFor returns the current machine state for an (aircraft, feature)
// pair; pairs with no history are StateNone.
func (m *Monitor) StateFor(aircraft, feature string) State {
	if ps, ok := m.states[pairKey{aircraft, feature}]; ok {
		return ps.State
	}
	return StateNone
}

// Evaluate applies all clearances valid at the tick and checks every
// aircraft snapshot for violations. Aircraft are processed in identifier
// order so the result is deterministic.
func (m *Monitor) Evaluate(statesByID map[string]*track.AircraftState, now time.Time) []alert.ComplianceEvent {
	m.applyClearances(now)

	ids := make([]string, 0, len(statesByID))
	for id := range statesByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var events []alert.ComplianceEvent
	for _, id := range ids {
		events = append(events, m.observe(statesByID[id], now)...)
	}
	return events
}

// applyClearances folds newly valid clearances into the pair states. A
// clearance that arrives late is still honoured, but it never overrides a
// later clearance for the same pair that has already been applied.
func (m *Monitor) applyClearances(now time.Time) {
	for _, c := range m.book.History() {
		if c.Time.After(now) {
			break // history is in validity order
		}
		ident := fmt.Sprintf("%s|%s|%s|%d", c.Aircraft, c.Command, c.Reference, c.Time.UnixNano())
		if m.applied[ident] {
			continue
		}
		m.applied[ident] = true

		if c.Reference == "" {
			// HOLD_POSITION and similar often come without a feature
			// reference; with no geometry there is nothing to evaluate
			monitoring.Logf("compliance: %s %s has no feature reference, skipping", c.Aircraft, c.Command)
			continue
		}
		if _, err := m.sm.FeatureByID(c.Reference); err != nil {
			if errors.Is(err, surface.ErrUnknownFeature) {
				monitoring.Logf("compliance: %s %s references unknown feature %q, skipping",
					c.Aircraft, c.Command, c.Reference)
				continue
			}
		}

		k := pairKey{c.Aircraft, c.Reference}
		if cur, ok := m.states[k]; ok && c.Time.Before(cur.Clearance.Time) {
			continue // already superseded by a later clearance
		}
		m.states[k] = &pairState{
			State:     stateForCommand(c.Command),
			Clearance: c,
		}
	}
}

func stateForCommand(cmd clearance.Command) State {
	switch cmd {
	case clearance.HoldShort, clearance.HoldPosition:
		return StateHoldingShort
	case clearance.ClearToCross:
		return StateClearedToCross
	case clearance.ClearedForTakeoff:
		return StateClearedForTakeoff
	case clearance.ClearedToLand:
		return StateClearedToLand
	case clearance.LineUpAndWait:
		return StateLineUpAndWait
	default:
		// TAXI, CONTINUE: releases any standing constraint on the feature
		return StateNone
	}
}

// observe runs the violation checks and exit conditions for one aircraft
// against its current and previous positions. Using the movement segment
// rather than instantaneous containment catches crossings that happened
// between samples.
func (m *Monitor) observe(st *track.AircraftState, now time.Time) []alert.ComplianceEvent {
	var events []alert.ComplianceEvent

	prev, cur := st.PrevPosition(), st.Position

	// Authorization is judged as of the start of the tick: a crossing whose
	// completion lapses the clearance this tick was still an authorized
	// movement.
	wasAuthorized := make(map[string]bool, len(m.runways))
	for _, rw := range m.runways {
		wasAuthorized[rw.ID] = m.authorizedOn(st.Aircraft, rw.ID)
	}

	for _, k := range m.pairsFor(st.Aircraft) {
		ps := m.states[k]
		feat, err := m.sm.FeatureByID(k.Feature)
		if err != nil {
			continue // validated at apply time; defensive lookup only
		}

		switch ps.State {
		case StateHoldingShort:
			if m.sm.Crossing(prev, cur, feat) {
				events = append(events, alert.ComplianceEvent{
					Aircraft:     st.Aircraft,
					Kind:         alert.HoldShortViolation,
					Feature:      feat.ID,
					ClearanceRef: string(ps.Clearance.Command),
					Position:     cur,
					Time:         now,
				})
			}

		case StateClearedToCross:
			if m.sm.Contains(cur, feat) {
				ps.entered = true
			} else if ps.entered {
				// past the far edge: crossing complete
				ps.State = StateNone
			}

		case StateClearedToLand:
			if m.onGround(st) && st.GroundSpeedKts < m.cfg.RolloutExitSpeedKts {
				// touchdown and rollout complete
				ps.State = StateNone
			}

		case StateClearedForTakeoff:
			if ps.entered && !m.sm.Contains(cur, feat) {
				// departed runway bounds, airborne or exited
				ps.State = StateNone
			} else if m.sm.Contains(cur, feat) {
				ps.entered = true
			}
		}
	}

	// Runway incursion and unauthorized crossing are checked independently
	// for every runway the movement touches; overlapping geometries are
	// independent evaluations, no precedence is inferred between them.
	if m.book.HasHistory(st.Aircraft) && m.onGround(st) {
		for _, rw := range m.runways {
			if wasAuthorized[rw.ID] {
				continue
			}
			switch {
			case m.sm.Contains(cur, rw):
				events = append(events, alert.ComplianceEvent{
					Aircraft: st.Aircraft,
					Kind:     alert.RunwayIncursion,
					Feature:  rw.ID,
					Position: cur,
					Time:     now,
				})
			case m.sm.Crossing(prev, cur, rw):
				// transited between samples without authority
				events = append(events, alert.ComplianceEvent{
					Aircraft: st.Aircraft,
					Kind:     alert.UnauthorizedCrossing,
					Feature:  rw.ID,
					Position: cur,
					Time:     now,
				})
			}
		}
	}

	return events
}

// pairsFor returns the aircraft's pair keys in feature order for
// deterministic evaluation.
func (m *Monitor) pairsFor(aircraft string) []pairKey {
	var keys []pairKey
	for k := range m.states {
		if k.Aircraft == aircraft {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Feature < keys[j].Feature })
	return keys
}

// authorizedOn reports whether the aircraft holds an active state that
// permits occupying the runway.
func (m *Monitor) authorizedOn(aircraft, runwayID string) bool {
	ps, ok := m.states[pairKey{aircraft, runwayID}]
	if !ok {
		return false
	}
	switch ps.State {
	case StateClearedToCross, StateClearedToLand, StateClearedForTakeoff, StateLineUpAndWait:
		return true
	}
	return false
}

func (m *Monitor) onGround(st *track.AircraftState) bool {
	return st.AltitudeFt-m.cfg.FieldElevationFt < m.cfg.GroundMaxAGLFt
}
