// Package core holds the session domain model and the pure functions that
// aggregate and mutate the per-session drink ledger.
//
// All aggregation treats absent keys as zero, returns unrounded floats and
// never fails on out-of-range numeric input: removals clamp, additions
// append. Rounding for display is a presentation concern.
package core

import (
	"sort"
	"time"
)

// SumAllDrinks sums every count across every ledger entry regardless of
// drink type. An empty or nil ledger sums to zero.
func SumAllDrinks(dl DrinksList) float64 {
	total := 0.0
	for _, tally := range dl {
		total += SumDrinks(tally)
	}
	return total
}

// SumDrinksOfType sums one drink key's counts across all ledger entries.
func SumDrinksOfType(dl DrinksList, key DrinkKey) float64 {
	total := 0.0
	for _, tally := range dl {
		total += tally[key]
	}
	return total
}

// SumDrinks sums the counts within a single tally.
func SumDrinks(tally Drinks) float64 {
	total := 0.0
	for _, count := range tally {
		total += count
	}
	return total
}

// TotalUnits converts a ledger to its point-weighted unit total. A drink
// key missing from weights contributes zero no matter how many drinks of
// that type were logged; unweighted drinks intentionally do not count.
func TotalUnits(dl DrinksList, weights DrinksToUnits) float64 {
	if weights == nil {
		return 0
	}
	total := 0.0
	for _, tally := range dl {
		for key, count := range tally {
			total += count * weights[key]
		}
	}
	return total
}

// AvailableUnits returns how many more units fit under the session cap.
func AvailableUnits(dl DrinksList, weights DrinksToUnits) float64 {
	return MaxAllowedUnits - TotalUnits(dl, weights)
}

// LastDrinkAddedTime returns the greatest timestamp key in the ledger, or
// false when the ledger is empty.
func LastDrinkAddedTime(dl DrinksList) (int64, bool) {
	var max int64
	found := false
	for ts := range dl {
		if !found || ts > max {
			max = ts
			found = true
		}
	}
	return max, found
}

// AddDrinks appends one new ledger entry holding exactly tally, keyed by
// now in unix milliseconds. When that key already exists the timestamp is
// bumped forward millisecond by millisecond until unique, so existing
// entries are never merged into or mutated. The input ledger is copied.
func AddDrinks(dl DrinksList, tally Drinks, now time.Time) DrinksList {
	out := dl.Clone()
	if out == nil {
		out = make(DrinksList)
	}
	ts := now.UnixMilli()
	for {
		if _, taken := out[ts]; !taken {
			break
		}
		ts++
	}
	entry := make(Drinks, len(tally))
	for k, v := range tally {
		entry[k] = v
	}
	out[ts] = entry
	return out
}

// RemoveDrinks removes count drinks of the given key, consuming from the
// most recently added entries first. When an entry's count for the key is
// exhausted the key is deleted from that entry's tally; other keys in the
// entry are untouched and the entry itself is kept even if it becomes
// empty (see StripEmptyDrinks). Requests exceeding the total available
// clamp at zero, and count <= 0 is a no-op. The input ledger is copied.
func RemoveDrinks(dl DrinksList, key DrinkKey, count float64) DrinksList {
	out := dl.Clone()
	if out == nil {
		return DrinksList{}
	}
	if count <= 0 {
		return out
	}

	timestamps := make([]int64, 0, len(out))
	for ts := range out {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] > timestamps[j] })

	remaining := count
	for _, ts := range timestamps {
		tally := out[ts]
		available := tally[key]
		if available <= 0 {
			continue
		}
		removed := min(remaining, available)
		tally[key] = available - removed
		remaining -= removed
		if tally[key] == 0 {
			delete(tally, key)
		}
		if remaining <= 0 {
			break
		}
	}
	return out
}

// StripEmptyDrinks drops every ledger entry whose tally sums to zero,
// keeping entries with at least one non-zero count verbatim. It is applied
// once when a session is finalized, to discard the placeholder entry and
// anything fully emptied by RemoveDrinks. Idempotent; only the ledger is
// touched.
func StripEmptyDrinks(s Session) Session {
	out := s
	out.Drinks = make(DrinksList, len(s.Drinks))
	for ts, tally := range s.Drinks {
		if SumDrinks(tally) == 0 {
			continue
		}
		kept := make(Drinks, len(tally))
		for k, v := range tally {
			kept[k] = v
		}
		out.Drinks[ts] = kept
	}
	return out
}

// ShiftSessionTimestamps moves every timestamp in the session backwards by
// delta, preserving ledger key uniqueness by bumping colliding keys. Used
// when a session is re-dated to another calendar day.
func ShiftSessionTimestamps(s Session, delta time.Duration) Session {
	if delta == 0 {
		return s
	}
	ms := delta.Milliseconds()
	out := s
	out.StartTime = s.StartTime - ms
	if s.EndTime != 0 {
		out.EndTime = s.EndTime - ms
	}
	if len(s.Drinks) == 0 {
		return out
	}
	shifted := make(DrinksList, len(s.Drinks))
	for ts, tally := range s.Drinks {
		nts := ts - ms
		for {
			if _, taken := shifted[nts]; !taken {
				break
			}
			nts++
		}
		shifted[nts] = tally
	}
	out.Drinks = shifted
	return out
}
