// Package store defines the persistence ports for sessions and
// preferences, plus the adapters that implement them.
package store

import (
	"context"

	"kiroku/internal/core"
)

// UserStatus mirrors the "latest session" document kept next to the
// session collection, refreshed atomically with every live-session write.
type UserStatus struct {
	LastOnline      int64 // unix milliseconds
	LatestSessionID string
}

// Ports for outbound adapters.
type (
	SessionReader interface {
		// GetSession returns core.ErrSessionNotFound when the id is unknown.
		GetSession(ctx context.Context, userID, sessionID string) (core.Session, error)

		// ListSessions returns all of a user's sessions keyed by id.
		ListSessions(ctx context.Context, userID string) (map[string]core.Session, error)
	}

	SessionWriter interface {
		// UpsertSession writes the session document and, when the session
		// is live, refreshes the user's status document in the same atomic
		// update, so readers never observe one without the other.
		UpsertSession(ctx context.Context, userID string, s core.Session) error
	}

	SessionDeleter interface {
		// DeleteSession removes the session and clears the user status
		// when it pointed at the deleted session.
		DeleteSession(ctx context.Context, userID, sessionID string) error
	}

	StatusReader interface {
		GetUserStatus(ctx context.Context, userID string) (UserStatus, error)
	}

	PreferencesStore interface {
		// GetPreferences returns defaults when the user has none saved.
		GetPreferences(ctx context.Context, userID string) (core.Preferences, error)
		SavePreferences(ctx context.Context, userID string, p core.Preferences) error
	}

	KeyGenerator interface {
		// NewSessionID mints an id unique within the user's namespace.
		NewSessionID(ctx context.Context, userID string) (string, error)
	}
)

// Store bundles every port a full backend implements.
type Store interface {
	SessionReader
	SessionWriter
	SessionDeleter
	StatusReader
	PreferencesStore
	KeyGenerator
}

// DefaultPreferences returns the conversion weights and thresholds used
// until a user saves their own.
func DefaultPreferences() core.Preferences {
	return core.Preferences{
		FirstDayOfWeek: "Monday",
		DrinksToUnits: core.DrinksToUnits{
			core.SmallBeer:  0.5,
			core.Beer:       1,
			core.Wine:       1,
			core.Cocktail:   1.5,
			core.WeakShot:   0.5,
			core.StrongShot: 1,
			core.Other:      1,
		},
		UnitsToColors: core.UnitsToColors{Yellow: 3, Orange: 5},
	}
}
