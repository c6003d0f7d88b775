package track

import (
	"fmt"
	"time"

	"github.com/airfield-data/surfacewatch/internal/geo"
	"github.com/airfield-data/surfacewatch/internal/units"
)

// integrationStep is the internal integration step for the constant-turn
// model. Coarser external sampling still lands on these sub-steps, so At and
// the sampler agree exactly.
const integrationStep = time.Second

// TrajectoryPoint is one predicted fix along a trajectory.
type TrajectoryPoint struct {
	Offset     time.Duration
	Position   geo.Point
	AltitudeFt float64
}

// Trajectory is a lazy, restartable extrapolation of an aircraft state under
// constant ground speed and constant turn rate. Nothing is materialised
// until points are requested, and the trajectory is never persisted.
type Trajectory struct {
	state   *AircraftState
	horizon time.Duration
}

func newTrajectory(st *AircraftState, horizon time.Duration) *Trajectory {
	return &Trajectory{state: st, horizon: horizon}
}

// Trajectory derives a prediction from a state snapshot. The snapshot is
// referenced, not copied; callers hold snapshots already detached from the
// estimator.
func (s *AircraftState) Trajectory(horizon time.Duration) *Trajectory {
	return newTrajectory(s, horizon)
}

// Horizon returns the trajectory's bound.
func (t *Trajectory) Horizon() time.Duration { return t.horizon }

// Origin returns the state the trajectory extrapolates from.
func (t *Trajectory) Origin() *AircraftState { return t.state }

// At returns the predicted point at the given offset. Offsets beyond the
// horizon are refused with ErrHorizonExceeded; negative offsets clamp to the
// origin. At is pure: identical state and offset always yield the identical
// point.
func (t *Trajectory) At(offset time.Duration) (TrajectoryPoint, error) {
	if offset > t.horizon {
		return TrajectoryPoint{}, fmt.Errorf("%w: offset %s past horizon %s",
			ErrHorizonExceeded, offset, t.horizon)
	}
	if offset < 0 {
		offset = 0
	}

	s := newSampler(t, offset, offset)
	p, _ := s.Next()
	return p, nil
}

// Sampler returns a restartable iterator over predicted points from offset
// zero to the horizon at the given step. A zero or negative step falls back
// to the integration step.
func (t *Trajectory) Sampler(step time.Duration) *TrajectorySampler {
	if step <= 0 {
		step = integrationStep
	}
	return newSampler(t, 0, step)
}

// TrajectorySampler walks a trajectory point by point. It carries its own
// cursor, so independent samplers over the same trajectory do not interfere,
// and Reset rewinds to the origin.
type TrajectorySampler struct {
	traj *Trajectory
	step time.Duration

	// cursor
	offset   time.Duration
	position geo.Point
	altitude float64
	heading  float64
	start    time.Duration
	done     bool
}

func newSampler(t *Trajectory, start, step time.Duration) *TrajectorySampler {
	s := &TrajectorySampler{traj: t, step: step, start: start}
	s.Reset()
	return s
}

// Reset rewinds the sampler to its starting offset.
func (s *TrajectorySampler) Reset() {
	st := s.traj.state
	s.offset = 0
	s.position = st.Position
	s.altitude = st.AltitudeFt
	s.heading = st.TrackDeg
	s.done = false
	if s.start > 0 {
		s.advanceTo(s.start)
	}
}

// Next returns the point at the current offset and advances by the step.
// The second return is false once the horizon has been passed.
func (s *TrajectorySampler) Next() (TrajectoryPoint, bool) {
	if s.done {
		return TrajectoryPoint{}, false
	}

	p := TrajectoryPoint{
		Offset:     s.offset,
		Position:   s.position,
		AltitudeFt: s.altitude,
	}

	next := s.offset + s.step
	if next > s.traj.horizon {
		s.done = true
	} else {
		s.advanceTo(next)
	}
	return p, true
}

// advanceTo integrates the constant-speed constant-turn model forward to the
// target offset in fixed sub-steps.
func (s *TrajectorySampler) advanceTo(target time.Duration) {
	st := s.traj.state
	speedNMps := units.KnotsToNMPerSecond(st.GroundSpeedKts)
	climbFps := st.VerticalRateFps

	for s.offset < target {
		dt := integrationStep
		if remaining := target - s.offset; remaining < dt {
			dt = remaining
		}
		sec := dt.Seconds()

		if speedNMps > 0 {
			s.position = geo.Project(s.position, s.heading, speedNMps*sec)
		}
		s.heading += st.TurnRateDegPerSec * sec
		s.altitude += climbFps * sec
		s.offset += dt
	}
}
