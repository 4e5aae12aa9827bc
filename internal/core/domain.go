package core

import (
	"errors"
	"strings"
	"time"
)

// Drink keys form a closed set. A Drinks tally maps these to counts;
// a missing key is equivalent to a zero count.
const (
	SmallBeer  DrinkKey = "small_beer"
	Beer       DrinkKey = "beer"
	Wine       DrinkKey = "wine"
	Cocktail   DrinkKey = "cocktail"
	WeakShot   DrinkKey = "weak_shot"
	StrongShot DrinkKey = "strong_shot"
	Other      DrinkKey = "other"
)

// MaxAllowedUnits caps the point-weighted total a single session may reach.
const MaxAllowedUnits = 99

// SessionExpiry is how long after its start a live session is considered stale.
const SessionExpiry = 24 * time.Hour

type (
	DrinkKey string

	// Drinks is a per-timestamp tally of drink counts. Counts may be
	// fractional and are never negative.
	Drinks map[DrinkKey]float64

	// DrinksList is the session ledger: unix-millisecond insertion
	// timestamp to the tally recorded at that moment. Keys are unique.
	DrinksList map[int64]Drinks

	// Session is one tracked drinking episode. While Ongoing is true,
	// EndTime is a placeholder and summary logic must ignore it.
	Session struct {
		ID        string     `json:"id"`
		StartTime int64      `json:"start_time"` // unix milliseconds
		EndTime   int64      `json:"end_time"`   // unix milliseconds
		Blackout  bool       `json:"blackout"`
		Note      string     `json:"note,omitempty"`
		Drinks    DrinksList `json:"drinks"`
		Ongoing   bool       `json:"ongoing"`
	}

	// DrinksToUnits maps each drink key to its unit weight. A key with
	// no entry weighs zero and never contributes to unit totals.
	DrinksToUnits map[DrinkKey]float64

	// UnitsToColors holds the calendar bucketing thresholds.
	UnitsToColors struct {
		Yellow float64 `json:"yellow"`
		Orange float64 `json:"orange"`
	}

	// Preferences are consumed by the core, not owned by it. They are
	// passed into aggregation explicitly to keep the functions pure.
	Preferences struct {
		FirstDayOfWeek string        `json:"first_day_of_week"`
		DrinksToUnits  DrinksToUnits `json:"drinks_to_units"`
		UnitsToColors  UnitsToColors `json:"units_to_colors"`
	}
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionOngoing  = errors.New("another session is already ongoing")
	ErrInvalidSession  = errors.New("invalid session")
	ErrEmptyUserID     = errors.New("empty user id")
	ErrTooManyUnits    = errors.New("unit limit exceeded")
)

// AllDrinkKeys returns the closed set of drink keys in a stable order.
func AllDrinkKeys() []DrinkKey {
	return []DrinkKey{SmallBeer, Beer, Wine, Cocktail, WeakShot, StrongShot, Other}
}

// IsDrinkKey reports whether s names one of the known drink keys.
func IsDrinkKey(s string) bool {
	for _, k := range AllDrinkKeys() {
		if string(k) == s {
			return true
		}
	}
	return false
}

// NewEmptySession builds a session starting now with a placeholder ledger
// entry, so that an opened-but-untouched session round-trips through the
// store. The placeholder is stripped again on finalization.
func NewEmptySession(id string, now time.Time, ongoing bool) Session {
	ts := now.UnixMilli()
	return Session{
		ID:        id,
		StartTime: ts,
		EndTime:   ts,
		Blackout:  false,
		Note:      "",
		Drinks:    DrinksList{ts: Drinks{Other: 0}},
		Ongoing:   ongoing,
	}
}

// Validate checks session invariants. Ongoing sessions may carry a
// placeholder end time, so the end >= start rule applies only once closed.
func (s Session) Validate() error {
	if s.StartTime <= 0 {
		return ErrInvalidSession
	}
	if !s.Ongoing && s.EndTime < s.StartTime {
		return ErrInvalidSession
	}
	if len(strings.TrimSpace(s.Note)) > 1000 {
		return errors.New("note too long (max 1000 characters)")
	}
	for _, tally := range s.Drinks {
		for _, count := range tally {
			if count < 0 {
				return errors.New("negative drink count")
			}
		}
	}
	return nil
}

// IsExpired reports whether a live session started longer than the expiry
// window before now.
func (s Session) IsExpired(now time.Time) bool {
	return s.StartTime < now.Add(-SessionExpiry).UnixMilli()
}

// Length returns the session duration, zero while the session is ongoing.
func (s Session) Length() time.Duration {
	if s.Ongoing || s.EndTime < s.StartTime {
		return 0
	}
	return time.Duration(s.EndTime-s.StartTime) * time.Millisecond
}

// Clone returns a deep copy of the session so that callers can hand out
// snapshots without sharing ledger maps.
func (s Session) Clone() Session {
	out := s
	out.Drinks = s.Drinks.Clone()
	return out
}

// Clone returns a deep copy of the ledger.
func (dl DrinksList) Clone() DrinksList {
	if dl == nil {
		return nil
	}
	out := make(DrinksList, len(dl))
	for ts, tally := range dl {
		t := make(Drinks, len(tally))
		for k, v := range tally {
			t[k] = v
		}
		out[ts] = t
	}
	return out
}

// FindOngoingSession returns the first ongoing session in the list, or
// false when none is.
func FindOngoingSession(sessions map[string]Session) (Session, bool) {
	for _, s := range sessions {
		if s.Ongoing {
			return s, true
		}
	}
	return Session{}, false
}

// OngoingSessionID returns the id of an ongoing session in the list, or
// empty when none is.
func OngoingSessionID(sessions map[string]Session) string {
	for id, s := range sessions {
		if s.Ongoing {
			return id
		}
	}
	return ""
}

// LastStartedSession returns the session with the greatest start time.
func LastStartedSession(sessions map[string]Session) (Session, bool) {
	var best Session
	found := false
	for _, s := range sessions {
		if !found || s.StartTime > best.StartTime {
			best = s
			found = true
		}
	}
	return best, found
}

// MostCommonDrink returns the drink key with the highest summed count in
// the session ledger. A tie between leaders resolves to Other. Returns
// false for a session with no recorded drinks.
func MostCommonDrink(s Session) (DrinkKey, bool) {
	counts := make(Drinks)
	for _, tally := range s.Drinks {
		for k, v := range tally {
			if v > 0 {
				counts[k] += v
			}
		}
	}
	var winner DrinkKey
	highest := 0.0
	tie := false
	for _, k := range AllDrinkKeys() {
		c := counts[k]
		if c == 0 {
			continue
		}
		if c > highest {
			highest = c
			winner = k
			tie = false
		} else if c == highest {
			tie = true
		}
	}
	if highest == 0 {
		return "", false
	}
	if tie {
		return Other, true
	}
	return winner, true
}
