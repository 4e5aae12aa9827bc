package core

import "time"

// CalendarColor classifies one calendar day's consumption for the month
// grid. Black is reserved for blackout days and overrides the thresholds.
type CalendarColor string

const (
	ColorGreen  CalendarColor = "green"
	ColorYellow CalendarColor = "yellow"
	ColorOrange CalendarColor = "orange"
	ColorRed    CalendarColor = "red"
	ColorBlack  CalendarColor = "black"
)

// DayAggregate folds all of one calendar day's sessions into a single
// total. Blackout is true when any contributing session was a blackout.
type DayAggregate struct {
	Date       CalendarDate
	TotalUnits float64
	Blackout   bool
}

// DayMarking is what the month grid renders for one day.
type DayMarking struct {
	Units     float64       `json:"units"`
	Color     CalendarColor `json:"color"`
	TextColor CalendarColor `json:"textColor"`
}

// ColorForUnits buckets a unit total against the preference thresholds:
// at or below zero green, then yellow and orange up to their respective
// thresholds, red beyond.
func ColorForUnits(units float64, thresholds UnitsToColors) CalendarColor {
	switch {
	case units <= 0:
		return ColorGreen
	case units <= thresholds.Yellow:
		return ColorYellow
	case units <= thresholds.Orange:
		return ColorOrange
	default:
		return ColorRed
	}
}

// TextColorFor returns the contrasting text color for a day cell: white on
// the dark backgrounds (red, green, black), black on the light ones. The
// rule is derived here so a new background color picks a side explicitly.
func TextColorFor(c CalendarColor) CalendarColor {
	switch c {
	case ColorRed, ColorGreen, ColorBlack:
		return "white"
	default:
		return "black"
	}
}

// AggregateByDay folds sessions sharing a calendar day into one aggregate
// per day, summing unit totals and OR-ing blackout flags.
func AggregateByDay(sessions []Session, weights DrinksToUnits) map[CalendarDate]DayAggregate {
	out := make(map[CalendarDate]DayAggregate)
	for _, s := range sessions {
		day := SessionDay(s)
		agg := out[day]
		agg.Date = day
		agg.TotalUnits += TotalUnits(s.Drinks, weights)
		agg.Blackout = agg.Blackout || s.Blackout
		out[day] = agg
	}
	return out
}

// MonthMarkings produces the month grid for the month of d: sessions are
// filtered to that month up to today, folded per day, and classified. A
// day whose folded blackout flag is set is marked black regardless of its
// unit total. Keys are YYYY-MM-DD strings.
func MonthMarkings(d CalendarDate, sessions []Session, prefs Preferences, now time.Time) map[string]DayMarking {
	monthSessions := FilterByMonth(d, sessions, now, true)
	out := make(map[string]DayMarking, len(monthSessions))
	for day, agg := range AggregateByDay(monthSessions, prefs.DrinksToUnits) {
		color := ColorForUnits(agg.TotalUnits, prefs.UnitsToColors)
		if agg.Blackout {
			color = ColorBlack
		}
		out[day.String()] = DayMarking{
			Units:     agg.TotalUnits,
			Color:     color,
			TextColor: TextColorFor(color),
		}
	}
	return out
}
