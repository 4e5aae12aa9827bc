package core

import (
	"testing"
	"time"
)

func TestSumAllDrinks(t *testing.T) {
	cases := []struct {
		name string
		dl   DrinksList
		want float64
	}{
		{"nil ledger", nil, 0},
		{"empty ledger", DrinksList{}, 0},
		{"single entry", DrinksList{1: {Beer: 2, Wine: 1}}, 3},
		{"multiple entries", DrinksList{1: {Beer: 4, Cocktail: 2}, 2: {Beer: 3}}, 9},
		{"fractional counts", DrinksList{1: {Wine: 0.5}, 2: {Wine: 1.5}}, 2},
		{"zero counts", DrinksList{1: {Other: 0}}, 0},
	}
	for _, tc := range cases {
		if got := SumAllDrinks(tc.dl); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSumDrinksOfType(t *testing.T) {
	dl := DrinksList{1: {Beer: 4, Cocktail: 2}, 2: {Beer: 3}}
	if got := SumDrinksOfType(dl, Beer); got != 7 {
		t.Errorf("beer: got %v, want 7", got)
	}
	if got := SumDrinksOfType(dl, Wine); got != 0 {
		t.Errorf("absent type should sum to 0, got %v", got)
	}
	if got := SumDrinksOfType(nil, Beer); got != 0 {
		t.Errorf("nil ledger should sum to 0, got %v", got)
	}
}

func TestTotalUnits(t *testing.T) {
	// A drink type without a weight entry contributes nothing, no matter
	// how many drinks of it were logged.
	dl := DrinksList{1: {Beer: 2, Cocktail: 1}}
	weights := DrinksToUnits{Beer: 5}
	if got := TotalUnits(dl, weights); got != 10 {
		t.Fatalf("got %v, want 10", got)
	}

	if got := TotalUnits(dl, nil); got != 0 {
		t.Errorf("nil weights: got %v, want 0", got)
	}
	if got := TotalUnits(nil, weights); got != 0 {
		t.Errorf("nil ledger: got %v, want 0", got)
	}

	fractional := DrinksList{1: {WeakShot: 3}}
	if got := TotalUnits(fractional, DrinksToUnits{WeakShot: 0.5}); got != 1.5 {
		t.Errorf("fractional weight: got %v, want 1.5", got)
	}
}

func TestLastDrinkAddedTime(t *testing.T) {
	if _, ok := LastDrinkAddedTime(nil); ok {
		t.Fatal("nil ledger should report no last drink")
	}
	dl := DrinksList{100: {Beer: 1}, 300: {Wine: 1}, 200: {Beer: 1}}
	ts, ok := LastDrinkAddedTime(dl)
	if !ok || ts != 300 {
		t.Fatalf("got (%d, %v), want (300, true)", ts, ok)
	}
}

func TestAddDrinks(t *testing.T) {
	now := time.UnixMilli(1000)
	dl := DrinksList{500: {Beer: 1}}

	got := AddDrinks(dl, Drinks{Wine: 2}, now)

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[1000][Wine] != 2 {
		t.Errorf("new entry missing, got %v", got[1000])
	}
	if got[500][Beer] != 1 {
		t.Errorf("prior entry changed: %v", got[500])
	}
	if len(dl) != 1 {
		t.Errorf("input ledger mutated: %v", dl)
	}

	// sumAll(addDrinks(L, D)) == sumAll(L) + sumDrinks(D)
	if SumAllDrinks(got) != SumAllDrinks(dl)+SumDrinks(Drinks{Wine: 2}) {
		t.Error("sum invariant violated")
	}
}

func TestAddDrinksTimestampCollision(t *testing.T) {
	now := time.UnixMilli(1000)
	dl := DrinksList{1000: {Beer: 1}, 1001: {Beer: 1}}

	got := AddDrinks(dl, Drinks{Wine: 1}, now)

	if len(got) != 3 {
		t.Fatalf("expected 3 entries after disambiguation, got %d", len(got))
	}
	if got[1002][Wine] != 1 {
		t.Errorf("expected disambiguated entry at 1002, got %v", got)
	}
}

func TestAddDrinksToNilLedger(t *testing.T) {
	got := AddDrinks(nil, Drinks{Beer: 1}, time.UnixMilli(42))
	if got[42][Beer] != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestAddDrinksPreservesZeroCounts(t *testing.T) {
	// A zero count must round-trip rather than crash downstream sums.
	got := AddDrinks(nil, Drinks{Other: 0}, time.UnixMilli(1))
	if _, ok := got[1][Other]; !ok {
		t.Fatal("zero count dropped")
	}
	if SumAllDrinks(got) != 0 {
		t.Fatalf("sum of zero tally should be 0, got %v", SumAllDrinks(got))
	}
}

func TestRemoveDrinksMostRecentFirst(t *testing.T) {
	// Consuming 5 beers eats the newest entry's 3 first, then 2 of the
	// older entry's 4. The cocktail next to them is untouched.
	dl := DrinksList{
		1: {Beer: 4, Cocktail: 2},
		2: {Beer: 3},
	}

	got := RemoveDrinks(dl, Beer, 5)

	if _, ok := got[2][Beer]; ok {
		t.Errorf("newest entry's beer should be deleted, got %v", got[2])
	}
	if got[1][Beer] != 2 {
		t.Errorf("older entry should hold 2 beers, got %v", got[1][Beer])
	}
	if got[1][Cocktail] != 2 {
		t.Errorf("cocktail should be untouched, got %v", got[1][Cocktail])
	}
	if len(got) != 2 {
		t.Errorf("entries must not be deleted by removal, got %d", len(got))
	}
	if dl[2][Beer] != 3 {
		t.Errorf("input ledger mutated: %v", dl)
	}
}

func TestRemoveDrinksClampsAtZero(t *testing.T) {
	dl := DrinksList{1: {Beer: 2}, 2: {Beer: 1}}

	got := RemoveDrinks(dl, Beer, 100)

	if s := SumDrinksOfType(got, Beer); s != 0 {
		t.Fatalf("over-removal should clamp to 0, got %v", s)
	}
	for ts, tally := range got {
		for k, v := range tally {
			if v < 0 {
				t.Fatalf("negative count %v for %s at %d", v, k, ts)
			}
		}
	}
}

func TestRemoveDrinksExactTotal(t *testing.T) {
	dl := DrinksList{1: {Beer: 4}, 2: {Beer: 3}}
	total := SumDrinksOfType(dl, Beer)

	got := RemoveDrinks(dl, Beer, total)

	if s := SumDrinksOfType(got, Beer); s != 0 {
		t.Fatalf("removing the full total should leave 0, got %v", s)
	}
}

func TestRemoveDrinksNoOp(t *testing.T) {
	dl := DrinksList{1: {Beer: 2}}
	for _, count := range []float64{0, -1} {
		got := RemoveDrinks(dl, Beer, count)
		if got[1][Beer] != 2 {
			t.Errorf("count=%v should be a no-op, got %v", count, got)
		}
	}
	if got := RemoveDrinks(nil, Beer, 1); len(got) != 0 {
		t.Errorf("nil ledger should produce empty ledger, got %v", got)
	}
}

func TestRemoveDrinksFractional(t *testing.T) {
	dl := DrinksList{1: {Wine: 1.5}}
	got := RemoveDrinks(dl, Wine, 0.5)
	if got[1][Wine] != 1 {
		t.Fatalf("got %v, want 1", got[1][Wine])
	}
}

func TestStripEmptyDrinks(t *testing.T) {
	s := Session{
		StartTime: 1,
		EndTime:   2,
		Note:      "n",
		Blackout:  true,
		Drinks: DrinksList{
			1: {Beer: 1, Wine: 0},
			2: {Other: 0},
			3: {},
		},
	}

	got := StripEmptyDrinks(s)

	if len(got.Drinks) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got.Drinks))
	}
	if got.Drinks[1][Wine] != 0 {
		t.Error("zero counts inside a kept entry must survive verbatim")
	}
	if got.Note != "n" || !got.Blackout || got.StartTime != 1 || got.EndTime != 2 {
		t.Error("non-ledger fields must be untouched")
	}

	// Idempotent.
	again := StripEmptyDrinks(got)
	if len(again.Drinks) != len(got.Drinks) {
		t.Error("stripping twice should equal stripping once")
	}
}

func TestAvailableUnits(t *testing.T) {
	dl := DrinksList{1: {Beer: 10}}
	weights := DrinksToUnits{Beer: 2}
	if got := AvailableUnits(dl, weights); got != MaxAllowedUnits-20 {
		t.Fatalf("got %v", got)
	}
}

func TestShiftSessionTimestamps(t *testing.T) {
	s := Session{
		StartTime: 100_000,
		EndTime:   200_000,
		Drinks:    DrinksList{150_000: {Beer: 1}, 160_000: {Wine: 1}},
	}
	got := ShiftSessionTimestamps(s, 10*time.Second)
	if got.StartTime != 90_000 || got.EndTime != 190_000 {
		t.Fatalf("times not shifted: %d %d", got.StartTime, got.EndTime)
	}
	if got.Drinks[140_000][Beer] != 1 || got.Drinks[150_000][Wine] != 1 {
		t.Fatalf("ledger not shifted: %v", got.Drinks)
	}
	if len(got.Drinks) != 2 {
		t.Fatalf("entry count changed: %d", len(got.Drinks))
	}

	same := ShiftSessionTimestamps(s, 0)
	if same.StartTime != s.StartTime {
		t.Error("zero delta should return the session unchanged")
	}
}

func TestMostCommonDrink(t *testing.T) {
	cases := []struct {
		name   string
		drinks DrinksList
		want   DrinkKey
		ok     bool
	}{
		{"empty", nil, "", false},
		{"all zero", DrinksList{1: {Other: 0}}, "", false},
		{"clear winner", DrinksList{1: {Beer: 3, Wine: 1}}, Beer, true},
		{"across entries", DrinksList{1: {Wine: 2}, 2: {Wine: 2, Beer: 3}}, Wine, true},
		{"tie resolves to other", DrinksList{1: {Beer: 2, Wine: 2}}, Other, true},
	}
	for _, tc := range cases {
		got, ok := MostCommonDrink(Session{Drinks: tc.drinks})
		if ok != tc.ok || got != tc.want {
			t.Errorf("%s: got (%q, %v), want (%q, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRemoveThenSumProperty(t *testing.T) {
	// sumOfType(removeDrinks(L, k, sumOfType(L, k)), k) == 0 for a few
	// representative ledgers.
	ledgers := []DrinksList{
		{1: {Beer: 4, Cocktail: 2}, 2: {Beer: 3}},
		{1: {Beer: 0.5}, 2: {Beer: 0.25}, 3: {Wine: 9}},
		{},
	}
	for i, dl := range ledgers {
		total := SumDrinksOfType(dl, Beer)
		got := RemoveDrinks(dl, Beer, total)
		if s := SumDrinksOfType(got, Beer); s != 0 {
			t.Errorf("ledger %d: residual %v", i, s)
		}
	}
}
