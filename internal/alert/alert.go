// Package alert defines the event records the monitor emits and the emitter
// that merges them into one ordered stream. Events are immutable once
// emitted; an ongoing condition keeps one episode identity across ticks so
// consumers are not flooded with repeats.
package alert

import (
	"fmt"
	"time"

	"github.com/airfield-data/surfacewatch/internal/geo"
)

// Severity ranks a conflict by time-to-closest-approach.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityAdvisory Severity = "advisory"
)

// SeverityFor maps a time-to-closest-approach onto a tier using the
// configured ascending boundaries (seconds). Shorter time means higher
// severity: below the first boundary is critical, below the second warning,
// the rest advisory.
func SeverityFor(timeToClosest time.Duration, boundaries []float64) Severity {
	tca := timeToClosest.Seconds()
	for i, b := range boundaries {
		if tca < b {
			switch i {
			case 0:
				return SeverityCritical
			default:
				return SeverityWarning
			}
		}
	}
	return SeverityAdvisory
}

// ConflictEvent records a predicted loss of separation between two aircraft.
// First and Second are in lexical order so the pair key is stable.
type ConflictEvent struct {
	EpisodeID string `json:"episode_id"`

	First  string `json:"first"`
	Second string `json:"second"`

	// Time is the tick at which the conflict was predicted.
	Time time.Time `json:"time"`
	// TimeToClosest is the offset from Time to the earliest predicted
	// sub-threshold approach.
	TimeToClosest   time.Duration `json:"time_to_closest_ns"`
	MinHorizontalNM float64       `json:"min_horizontal_nm"`
	MinVerticalFt   float64       `json:"min_vertical_ft"`

	Severity Severity `json:"severity"`
}

// PairKey identifies the conflicting pair independent of order.
func (e ConflictEvent) PairKey() string {
	return e.First + "|" + e.Second
}

// ViolationKind classifies a compliance event.
type ViolationKind string

const (
	HoldShortViolation   ViolationKind = "hold_short_violation"
	RunwayIncursion      ViolationKind = "runway_incursion"
	UnauthorizedCrossing ViolationKind = "unauthorized_crossing"
)

// ComplianceEvent records an observed deviation from an issued clearance.
type ComplianceEvent struct {
	EpisodeID string `json:"episode_id"`

	Aircraft string        `json:"aircraft"`
	Kind     ViolationKind `json:"kind"`
	// Feature is the surface feature reference the violation concerns.
	Feature string `json:"feature"`
	// ClearanceRef describes the violated instruction, empty for incursions
	// with no governing clearance.
	ClearanceRef string `json:"clearance_ref,omitempty"`

	Position geo.Point `json:"position"`
	Time     time.Time `json:"time"`
}

func (e ComplianceEvent) episodeKey() string {
	return e.Aircraft + "|" + string(e.Kind) + "|" + e.Feature
}

// EventKind discriminates the merged stream.
type EventKind string

const (
	KindConflict   EventKind = "conflict"
	KindCompliance EventKind = "compliance"
)

// Event is one record of the merged output stream. Exactly one of Conflict
// or Compliance is set, matching Kind.
type Event struct {
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
	Kind EventKind `json:"kind"`

	Conflict   *ConflictEvent   `json:"conflict,omitempty"`
	Compliance *ComplianceEvent `json:"compliance,omitempty"`
}

// String renders a one-line summary for logs.
func (e Event) String() string {
	switch e.Kind {
	case KindConflict:
		c := e.Conflict
		return fmt.Sprintf("#%d conflict %s/%s tca=%s minH=%.2fnm minV=%.0fft severity=%s",
			e.Seq, c.First, c.Second, c.TimeToClosest, c.MinHorizontalNM, c.MinVerticalFt, c.Severity)
	case KindCompliance:
		c := e.Compliance
		return fmt.Sprintf("#%d %s %s at %s", e.Seq, c.Kind, c.Aircraft, c.Feature)
	}
	return fmt.Sprintf("#%d unknown", e.Seq)
}
