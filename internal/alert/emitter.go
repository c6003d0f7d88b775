package alert

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/airfield-data/surfacewatch/internal/monitoring"
)

// subscriberBuffer is the per-subscriber channel depth. A consumer that
// falls further behind than this starts dropping and must resume from its
// last sequence number via the store.
const subscriberBuffer = 64

// Emitter merges conflict and compliance detections into one time-ordered,
// sequence-numbered stream. Repeated detections of the same ongoing
// condition reuse the episode ID and are suppressed until the condition
// clears.
type Emitter struct {
	mu  sync.Mutex
	seq uint64

	// active episodes keyed by condition identity; the value is the episode
	// ID handed out when the condition first appeared
	conflictEpisodes   map[string]string
	complianceEpisodes map[string]string

	// severity last emitted per conflict episode; an escalation re-emits
	// under the same episode ID
	conflictSeverity map[string]Severity

	subscribers map[int]chan Event
	nextSubID   int
	dropped     uint64
}

// NewEmitter returns an emitter starting at sequence zero.
func NewEmitter() *Emitter {
	return &Emitter{
		conflictEpisodes:   make(map[string]string),
		complianceEpisodes: make(map[string]string),
		conflictSeverity:   make(map[string]Severity),
		subscribers:        make(map[int]chan Event),
	}
}

// Publish folds one tick's detections into the stream and returns the newly
// emitted events in order. Conditions present last tick but absent now are
// cleared, so their next occurrence opens a fresh episode.
func (m *Emitter) Publish(tick time.Time, conflicts []ConflictEvent, violations []ComplianceEvent) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Event

	// deterministic order inside a tick: conflicts by time-to-closest then
	// pair, violations by aircraft then kind
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].TimeToClosest != conflicts[j].TimeToClosest {
			return conflicts[i].TimeToClosest < conflicts[j].TimeToClosest
		}
		return conflicts[i].PairKey() < conflicts[j].PairKey()
	})
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Aircraft != violations[j].Aircraft {
			return violations[i].Aircraft < violations[j].Aircraft
		}
		return violations[i].episodeKey() < violations[j].episodeKey()
	})

	liveConflicts := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		key := c.PairKey()
		liveConflicts[key] = true

		id, ongoing := m.conflictEpisodes[key]
		if ongoing && m.conflictSeverity[key] == c.Severity {
			continue // same ongoing condition, already reported
		}
		if !ongoing {
			id = uuid.NewString()
			m.conflictEpisodes[key] = id
		}
		m.conflictSeverity[key] = c.Severity

		c.EpisodeID = id
		c.Time = tick
		m.seq++
		out = append(out, Event{
			Seq:      m.seq,
			Time:     tick,
			Kind:     KindConflict,
			Conflict: &c,
		})
	}

	liveViolations := make(map[string]bool, len(violations))
	for _, v := range violations {
		key := v.episodeKey()
		liveViolations[key] = true

		if _, ongoing := m.complianceEpisodes[key]; ongoing {
			continue
		}
		id := uuid.NewString()
		m.complianceEpisodes[key] = id

		v.EpisodeID = id
		m.seq++
		out = append(out, Event{
			Seq:        m.seq,
			Time:       tick,
			Kind:       KindCompliance,
			Compliance: &v,
		})
	}

	// clear episodes whose condition is gone
	for key := range m.conflictEpisodes {
		if !liveConflicts[key] {
			delete(m.conflictEpisodes, key)
			delete(m.conflictSeverity, key)
		}
	}
	for key := range m.complianceEpisodes {
		if !liveViolations[key] {
			delete(m.complianceEpisodes, key)
		}
	}

	for _, ev := range out {
		m.broadcast(ev)
	}
	return out
}

// Seq returns the last assigned sequence number.
func (m *Emitter) Seq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// Subscribe registers a live consumer. The returned cancel func must be
// called when the consumer goes away. A consumer that cannot keep up has
// events dropped from its channel; it should re-sync from the store using
// the last sequence number it saw.
func (m *Emitter) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	m.subscribers[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(c)
		}
	}
	return ch, cancel
}

func (m *Emitter) broadcast(ev Event) {
	for id, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			m.dropped++
			monitoring.Logf("alert: subscriber %d lagging, dropped seq %d (total dropped %d)",
				id, ev.Seq, m.dropped)
		}
	}
}
