package core

import (
	"fmt"
	"time"
)

// CalendarDate is a year/month/day triple with a 1-based month, the unit
// the calendar views navigate by.
type CalendarDate struct {
	Year  int `json:"year"`
	Month int `json:"month"` // 1-12
	Day   int `json:"day"`
}

// NewCalendarDate normalizes the triple through time.Date, so out-of-range
// components roll over the way the time package defines.
func NewCalendarDate(year, month, day int) CalendarDate {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return CalendarDate{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// CalendarDateOf converts a wall-clock time to its calendar date.
func CalendarDateOf(t time.Time) CalendarDate {
	return CalendarDate{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// String formats the date as YYYY-MM-DD, the key format of the month grid.
func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Midnight returns the first instant of the date in UTC.
func (d CalendarDate) Midnight() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth returns the date with the day set to 1.
func (d CalendarDate) FirstOfMonth() CalendarDate {
	return CalendarDate{Year: d.Year, Month: d.Month, Day: 1}
}

// DaysInMonth returns the number of days in the date's month.
func (d CalendarDate) DaysInMonth() int {
	// Day zero of the next month is the last day of this one.
	return time.Date(d.Year, time.Month(d.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextMonth moves the date one month forward, preserving the day-of-month
// when the target month has that many days and clamping to the target
// month's last day otherwise (31 Jan -> 28/29 Feb). The year rolls over at
// the December boundary.
func (d CalendarDate) NextMonth() CalendarDate {
	year, month := d.Year, d.Month+1
	if month > 12 {
		month = 1
		year++
	}
	return clampDay(year, month, d.Day)
}

// PreviousMonth moves the date one month back with the same day-clamping
// rule as NextMonth, rolling the year over at the January boundary.
func (d CalendarDate) PreviousMonth() CalendarDate {
	year, month := d.Year, d.Month-1
	if month < 1 {
		month = 12
		year--
	}
	return clampDay(year, month, d.Day)
}

func clampDay(year, month, day int) CalendarDate {
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return CalendarDate{Year: year, Month: month, Day: day}
}

// AdjacentMonths returns 2n+1 dates: n months before d, d itself, and n
// months after, in chronological order. Used to pre-compute calendar pages
// around the one being viewed.
func AdjacentMonths(d CalendarDate, n int) []CalendarDate {
	out := make([]CalendarDate, 0, 2*n+1)
	prev := d
	for i := 0; i < n; i++ {
		prev = prev.PreviousMonth()
		out = append([]CalendarDate{prev}, out...)
	}
	out = append(out, d)
	next := d
	for i := 0; i < n; i++ {
		next = next.NextMonth()
		out = append(out, next)
	}
	return out
}

// FilterByDay returns the sessions whose start time falls within
// [midnight(d), midnight(d)+24h). The boundary is half-open: a session
// starting exactly at the next midnight is excluded.
func FilterByDay(d CalendarDate, sessions []Session) []Session {
	lo := d.Midnight().UnixMilli()
	hi := d.Midnight().Add(24 * time.Hour).UnixMilli()
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.StartTime >= lo && s.StartTime < hi {
			out = append(out, s)
		}
	}
	return out
}

// FilterByMonth returns the sessions whose start time falls within
// [first of month, first of next month). When untilToday is set the upper
// bound is clamped to min(first of next month, midnight(now)+24h), so
// future-dated sessions inside the current month drop out. now is the real
// wall clock, passed explicitly to keep the filter testable.
func FilterByMonth(d CalendarDate, sessions []Session, now time.Time, untilToday bool) []Session {
	lo := d.FirstOfMonth().Midnight().UnixMilli()
	hi := d.FirstOfMonth().NextMonth().Midnight().UnixMilli()
	if untilToday {
		endOfToday := CalendarDateOf(now).Midnight().Add(24 * time.Hour).UnixMilli()
		if endOfToday < hi {
			hi = endOfToday
		}
	}
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.StartTime >= lo && s.StartTime < hi {
			out = append(out, s)
		}
	}
	return out
}

// SessionDay returns the calendar date a session belongs to, derived from
// its start time in UTC.
func SessionDay(s Session) CalendarDate {
	return CalendarDateOf(time.UnixMilli(s.StartTime).UTC())
}
