package core

import (
	"testing"
	"time"
)

func TestSessionValidate(t *testing.T) {
	good := Session{StartTime: 1000, EndTime: 2000}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		s    Session
		ok   bool
	}{
		{"zero start", Session{StartTime: 0, EndTime: 1}, false},
		{"end before start", Session{StartTime: 2000, EndTime: 1000}, false},
		{"end before start but ongoing", Session{StartTime: 2000, EndTime: 1000, Ongoing: true}, true},
		{"negative count", Session{StartTime: 1, EndTime: 2, Drinks: DrinksList{1: {Beer: -1}}}, false},
	}
	for _, tc := range cases {
		err := tc.s.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: expected ok, got %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestNewEmptySession(t *testing.T) {
	now := time.UnixMilli(5000)
	s := NewEmptySession("abc", now, true)
	if s.ID != "abc" || !s.Ongoing {
		t.Fatalf("got %+v", s)
	}
	if s.StartTime != 5000 || s.EndTime != 5000 {
		t.Errorf("timestamps: %d %d", s.StartTime, s.EndTime)
	}
	// The placeholder entry keeps the ledger non-nil but sums to zero.
	if SumAllDrinks(s.Drinks) != 0 {
		t.Errorf("placeholder ledger should sum to 0")
	}
	if len(s.Drinks) != 1 {
		t.Errorf("expected one placeholder entry, got %d", len(s.Drinks))
	}
}

func TestSessionIsExpired(t *testing.T) {
	now := time.Now()
	fresh := Session{StartTime: now.Add(-time.Hour).UnixMilli()}
	if fresh.IsExpired(now) {
		t.Error("hour-old session should not be expired")
	}
	stale := Session{StartTime: now.Add(-SessionExpiry - time.Hour).UnixMilli()}
	if !stale.IsExpired(now) {
		t.Error("day-old session should be expired")
	}
}

func TestSessionLength(t *testing.T) {
	s := Session{StartTime: 1000, EndTime: 61_000}
	if got := s.Length(); got != time.Minute {
		t.Fatalf("got %v", got)
	}
	ongoing := Session{StartTime: 1000, EndTime: 1000, Ongoing: true}
	if ongoing.Length() != 0 {
		t.Error("ongoing session length should be 0")
	}
}

func TestSessionClone(t *testing.T) {
	s := Session{StartTime: 1, EndTime: 2, Drinks: DrinksList{1: {Beer: 1}}}
	c := s.Clone()
	c.Drinks[1][Beer] = 99
	if s.Drinks[1][Beer] != 1 {
		t.Fatal("clone shares ledger with original")
	}
}

func TestFindOngoingSession(t *testing.T) {
	sessions := map[string]Session{
		"a": {ID: "a", StartTime: 1},
		"b": {ID: "b", StartTime: 2, Ongoing: true},
	}
	got, ok := FindOngoingSession(sessions)
	if !ok || got.ID != "b" {
		t.Fatalf("got (%q, %v)", got.ID, ok)
	}
	if id := OngoingSessionID(sessions); id != "b" {
		t.Errorf("id: got %q", id)
	}

	if _, ok := FindOngoingSession(map[string]Session{"a": {ID: "a"}}); ok {
		t.Error("no ongoing session expected")
	}
	if id := OngoingSessionID(nil); id != "" {
		t.Errorf("nil list: got %q", id)
	}
}

func TestLastStartedSession(t *testing.T) {
	sessions := map[string]Session{
		"a": {ID: "a", StartTime: 100},
		"b": {ID: "b", StartTime: 300},
		"c": {ID: "c", StartTime: 200},
	}
	got, ok := LastStartedSession(sessions)
	if !ok || got.ID != "b" {
		t.Fatalf("got (%q, %v)", got.ID, ok)
	}
	if _, ok := LastStartedSession(nil); ok {
		t.Error("empty list should report not found")
	}
}

func TestIsDrinkKey(t *testing.T) {
	if !IsDrinkKey("beer") || !IsDrinkKey("small_beer") {
		t.Error("known keys rejected")
	}
	if IsDrinkKey("whiskey") || IsDrinkKey("") {
		t.Error("unknown keys accepted")
	}
}
