// Package export turns finalized sessions into summary rows for outbound
// destinations such as a spreadsheet archive.
package export

import (
	"context"
	"time"

	"kiroku/internal/core"
)

// Row is one finalized session flattened for an append-only archive.
type Row struct {
	UserID    string
	SessionID string
	Date      string // YYYY-MM-DD of the session start
	StartTime int64
	EndTime   int64
	Drinks    float64
	Units     float64
	Blackout  bool
	Note      string
	TopDrink  core.DrinkKey
}

// RowWriter appends a session row and returns a destination reference.
type RowWriter interface {
	Append(ctx context.Context, r Row) (rowRef string, err error)
}

// NewRow flattens a finalized session using the user's drink weights.
func NewRow(userID string, s core.Session, weights core.DrinksToUnits) Row {
	r := Row{
		UserID:    userID,
		SessionID: s.ID,
		Date:      core.SessionDay(s).String(),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Drinks:    core.SumAllDrinks(s.Drinks),
		Units:     core.TotalUnits(s.Drinks, weights),
		Blackout:  s.Blackout,
		Note:      s.Note,
	}
	if top, ok := core.MostCommonDrink(s); ok {
		r.TopDrink = top
	}
	return r
}

// Length is the session duration the archive row represents.
func (r Row) Length() time.Duration {
	return time.Duration(r.EndTime-r.StartTime) * time.Millisecond
}
