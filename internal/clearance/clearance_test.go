package clearance

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in      string
		want    Command
		wantErr bool
	}{
		{"HOLD_SHORT", HoldShort, false},
		{"hold_short", HoldShort, false},
		{"  Cleared_To_Land  ", ClearedToLand, false},
		{"LINE_UP_AND_WAIT", LineUpAndWait, false},
		{"EXPEDITE", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseCommand(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownCommand) {
					t.Errorf("err = %v, want ErrUnknownCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseCommand(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestClearanceUnmarshal(t *testing.T) {
	data := []byte(`{"plane":"SWA2504","command":"HOLD_SHORT","reference":"13C/31C","time":1740495452.5}`)

	var c Clearance
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if c.Aircraft != "SWA2504" || c.Command != HoldShort || c.Reference != "13C/31C" {
		t.Errorf("decoded = %+v", c)
	}
	want := time.Unix(1740495452, 500000000).UTC()
	if !c.Time.Equal(want) {
		t.Errorf("time = %v, want %v", c.Time, want)
	}
}

func TestClearanceUnmarshalRejects(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"unknown command", `{"plane":"SWA2504","command":"GO_FASTER","time":1}`},
		{"missing plane", `{"command":"TAXI","time":1}`},
		{"missing time", `{"plane":"SWA2504","command":"TAXI"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c Clearance
			if err := json.Unmarshal([]byte(tc.data), &c); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClearanceMarshalRoundTrip(t *testing.T) {
	in := Clearance{
		Aircraft:  "FDX1170",
		Command:   ClearToCross,
		Reference: "4R/22L",
		Time:      time.Unix(1740495500, 0).UTC(),
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out Clearance
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestBookOrdersLateArrivals(t *testing.T) {
	b := NewBook()
	at := func(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

	b.Add(Clearance{Aircraft: "A", Command: Taxi, Time: at(30)})
	b.Add(Clearance{Aircraft: "A", Command: HoldShort, Reference: "H", Time: at(10)})
	b.Add(Clearance{Aircraft: "B", Command: ClearedToLand, Reference: "13C/31C", Time: at(20)})

	h := b.History()
	if len(h) != 3 {
		t.Fatalf("len = %d, want 3", len(h))
	}
	for i := 1; i < len(h); i++ {
		if h[i].Time.Before(h[i-1].Time) {
			t.Errorf("history out of order at %d: %v after %v", i, h[i].Time, h[i-1].Time)
		}
	}
	if h[0].Command != HoldShort {
		t.Errorf("earliest = %v, want HOLD_SHORT", h[0].Command)
	}
}

func TestForAircraft(t *testing.T) {
	b := NewBook()
	at := func(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

	b.Add(Clearance{Aircraft: "A", Command: HoldShort, Reference: "H", Time: at(10)})
	b.Add(Clearance{Aircraft: "A", Command: ClearToCross, Reference: "H", Time: at(50)})
	b.Add(Clearance{Aircraft: "B", Command: Taxi, Time: at(20)})

	got := b.ForAircraft("A", at(30))
	if len(got) != 1 || got[0].Command != HoldShort {
		t.Errorf("ForAircraft(A, 30) = %+v", got)
	}

	got = b.ForAircraft("A", at(60))
	if len(got) != 2 {
		t.Errorf("ForAircraft(A, 60) = %+v", got)
	}

	if b.HasHistory("C") {
		t.Error("C should have no history")
	}
	if !b.HasHistory("B") {
		t.Error("B should have history")
	}
}
