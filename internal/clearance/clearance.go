// Package clearance models tower instructions as typed records. Free-form
// command strings from the external instruction extractor are mapped onto a
// closed enumeration at this boundary; anything unrecognized is a schema
// validation failure for the extractor to deal with, not for the core to
// guess around.
package clearance

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Command is the closed set of instruction kinds the monitor understands.
type Command string

const (
	HoldShort         Command = "HOLD_SHORT"
	HoldPosition      Command = "HOLD_POSITION"
	ClearToCross      Command = "CLEAR_TO_CROSS"
	ClearedToLand     Command = "CLEARED_TO_LAND"
	ClearedForTakeoff Command = "CLEARED_FOR_TAKEOFF"
	LineUpAndWait     Command = "LINE_UP_AND_WAIT"
	Taxi              Command = "TAXI"
	Continue          Command = "CONTINUE"
)

var commands = map[Command]bool{
	HoldShort:         true,
	HoldPosition:      true,
	ClearToCross:      true,
	ClearedToLand:     true,
	ClearedForTakeoff: true,
	LineUpAndWait:     true,
	Taxi:              true,
	Continue:          true,
}

// ErrUnknownCommand is returned for command strings outside the enumeration.
var ErrUnknownCommand = errors.New("clearance: unknown command")

// ParseCommand maps an instruction string onto the enumeration. Matching is
// case-insensitive and tolerates surrounding whitespace, nothing more.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToUpper(strings.TrimSpace(s)))
	if !commands[c] {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
	return c, nil
}

// Clearance is one tower instruction in force from Time until superseded.
type Clearance struct {
	Aircraft  string  `json:"plane"`
	Command   Command `json:"command"`
	Reference string  `json:"reference"`
	Time      time.Time
}

// record is the wire shape of an instruction as produced by the external
// extractor: {"plane": ..., "command": ..., "reference": ..., "time": <unix float>}.
type record struct {
	Plane     string  `json:"plane"`
	Command   string  `json:"command"`
	Reference string  `json:"reference"`
	Time      float64 `json:"time"`
}

// UnmarshalJSON decodes the extractor's wire format, validating the command
// against the enumeration and requiring plane and time.
func (c *Clearance) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if r.Plane == "" {
		return errors.New("clearance: record missing plane")
	}
	if r.Time == 0 {
		return errors.New("clearance: record missing time")
	}
	cmd, err := ParseCommand(r.Command)
	if err != nil {
		return err
	}

	sec := int64(r.Time)
	nsec := int64((r.Time - float64(sec)) * 1e9)
	*c = Clearance{
		Aircraft:  r.Plane,
		Command:   cmd,
		Reference: strings.TrimSpace(r.Reference),
		Time:      time.Unix(sec, nsec).UTC(),
	}
	return nil
}

// MarshalJSON encodes back to the extractor's wire format.
func (c Clearance) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{
		Plane:     c.Aircraft,
		Command:   string(c.Command),
		Reference: c.Reference,
		Time:      float64(c.Time.UnixNano()) / 1e9,
	})
}

// Book is the append-only clearance feed. Superseded clearances stay in
// history; queries return the most recent applicable record for a given
// evaluation time.
type Book struct {
	mu      sync.RWMutex
	entries []Clearance
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{}
}

// Add appends a clearance. The feed is ordered by validity time; a record
// arriving late is inserted at its proper place so supersession stays
// correct regardless of arrival order relative to position reports.
func (b *Book) Add(c Clearance) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Time.After(c.Time)
	})
	b.entries = append(b.entries, Clearance{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = c
}

// Len returns the number of recorded clearances.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// History returns a copy of all recorded clearances in validity order.
func (b *Book) History() []Clearance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Clearance, len(b.entries))
	copy(out, b.entries)
	return out
}

// ForAircraft returns the aircraft's clearances valid at or before t, in
// validity order.
func (b *Book) ForAircraft(aircraft string, t time.Time) []Clearance {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Clearance
	for _, c := range b.entries {
		if c.Aircraft == aircraft && !c.Time.After(t) {
			out = append(out, c)
		}
	}
	return out
}

// HasHistory reports whether any clearance has ever been issued to the
// aircraft. Aircraft with no history are never judged by the monitor.
func (b *Book) HasHistory(aircraft string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.entries {
		if c.Aircraft == aircraft {
			return true
		}
	}
	return false
}
