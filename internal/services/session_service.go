// Package services orchestrates session operations across the store,
// the event stream, and the per-user live synchronizers.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kiroku/internal/cache"
	"kiroku/internal/core"
	"kiroku/internal/store"
)

// EventPublisher pushes session lifecycle events to interested consumers.
type EventPublisher interface {
	PublishSessionFinalized(ctx context.Context, userID string, s core.Session) error
	PublishSessionDeleted(ctx context.Context, userID, sessionID string) error
}

// DayOverview is one calendar day's sessions with their combined totals.
type DayOverview struct {
	Date        core.CalendarDate `json:"date"`
	Sessions    []core.Session    `json:"sessions"`
	TotalDrinks float64           `json:"total_drinks"`
	TotalUnits  float64           `json:"total_units"`
}

// MonthStatistics summarizes a whole calendar month.
type MonthStatistics struct {
	Year            int           `json:"year"`
	Month           int           `json:"month"`
	SessionCount    int           `json:"session_count"`
	TotalDrinks     float64       `json:"total_drinks"`
	TotalUnits      float64       `json:"total_units"`
	MostCommonDrink core.DrinkKey `json:"most_common_drink,omitempty"`
}

// SessionService orchestrates session operations. Ongoing sessions are
// mutated through a per-user LiveSync so writes reach the store debounced;
// closed sessions are written directly.
type SessionService struct {
	store    store.Store
	events   EventPublisher
	calendar cache.Cache[map[string]core.DayMarking]
	syncCfg  LiveSyncConfig

	mu   sync.Mutex
	live map[string]*LiveSync
}

func NewSessionService(st store.Store, events EventPublisher, calendar cache.Cache[map[string]core.DayMarking], syncCfg LiveSyncConfig) *SessionService {
	return &SessionService{
		store:    st,
		events:   events,
		calendar: calendar,
		syncCfg:  syncCfg,
		live:     make(map[string]*LiveSync),
	}
}

// StartLiveSession opens a new ongoing session seeded with the placeholder
// ledger and starts its synchronizer. At most one ongoing session per user.
func (s *SessionService) StartLiveSession(ctx context.Context, userID string) (core.Session, error) {
	if userID == "" {
		return core.Session{}, core.ErrEmptyUserID
	}

	sessions, err := s.store.ListSessions(ctx, userID)
	if err != nil {
		return core.Session{}, fmt.Errorf("list sessions: %w", err)
	}
	if stale, ok := core.FindOngoingSession(sessions); ok {
		if !stale.IsExpired(time.Now()) {
			return core.Session{}, core.ErrSessionOngoing
		}
		// An abandoned live session past the expiry window is closed in
		// place instead of blocking new ones.
		if _, err := s.FinalizeSession(ctx, userID, stale.ID); err != nil {
			return core.Session{}, fmt.Errorf("close expired session: %w", err)
		}
		slog.WarnContext(ctx, "Closed expired live session",
			"user_id", userID, "session_id", stale.ID)
	}

	id, err := s.store.NewSessionID(ctx, userID)
	if err != nil {
		return core.Session{}, fmt.Errorf("new session id: %w", err)
	}

	sess := core.NewEmptySession(id, time.Now(), true)
	if err := s.store.UpsertSession(ctx, userID, sess); err != nil {
		return core.Session{}, fmt.Errorf("save session: %w", err)
	}

	ls := NewLiveSync(s.store, userID, s.syncCfg)
	if err := ls.Start(ctx); err != nil {
		return core.Session{}, fmt.Errorf("start live sync: %w", err)
	}
	ls.Record(sess)

	s.mu.Lock()
	s.live[userID] = ls
	s.mu.Unlock()

	s.invalidateCalendar(userID)

	slog.InfoContext(ctx, "Live session started",
		"user_id", userID, "session_id", id)
	return sess, nil
}

// GetSession prefers the synchronizer's local snapshot for the ongoing
// session, which may be ahead of the store between debounces.
func (s *SessionService) GetSession(ctx context.Context, userID, sessionID string) (core.Session, error) {
	if ls := s.liveSync(userID); ls != nil {
		if snap, ok := ls.Snapshot(); ok && snap.ID == sessionID {
			return snap, nil
		}
	}
	return s.store.GetSession(ctx, userID, sessionID)
}

// AddDrinks appends a tally to the session's ledger. The write is rejected
// when it would push the session past the unit cap.
func (s *SessionService) AddDrinks(ctx context.Context, userID, sessionID string, tally core.Drinks) (core.Session, error) {
	return s.mutate(ctx, userID, sessionID, func(sess *core.Session, prefs core.Preferences) error {
		next := core.AddDrinks(sess.Drinks, tally, time.Now())
		if core.TotalUnits(next, prefs.DrinksToUnits) > core.MaxAllowedUnits {
			return core.ErrTooManyUnits
		}
		sess.Drinks = next
		return nil
	})
}

// RemoveDrinks takes count drinks of the given kind off the ledger,
// most recent entries first.
func (s *SessionService) RemoveDrinks(ctx context.Context, userID, sessionID string, key core.DrinkKey, count float64) (core.Session, error) {
	return s.mutate(ctx, userID, sessionID, func(sess *core.Session, _ core.Preferences) error {
		sess.Drinks = core.RemoveDrinks(sess.Drinks, key, count)
		return nil
	})
}

func (s *SessionService) SetBlackout(ctx context.Context, userID, sessionID string, blackout bool) (core.Session, error) {
	return s.mutate(ctx, userID, sessionID, func(sess *core.Session, _ core.Preferences) error {
		sess.Blackout = blackout
		return nil
	})
}

func (s *SessionService) SetNote(ctx context.Context, userID, sessionID, note string) (core.Session, error) {
	return s.mutate(ctx, userID, sessionID, func(sess *core.Session, _ core.Preferences) error {
		sess.Note = note
		return nil
	})
}

// mutate loads the freshest copy of the session, applies fn, and routes the
// write through the synchronizer for ongoing sessions or straight to the
// store for closed ones.
func (s *SessionService) mutate(ctx context.Context, userID, sessionID string, fn func(*core.Session, core.Preferences) error) (core.Session, error) {
	sess, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return core.Session{}, err
	}
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return core.Session{}, fmt.Errorf("get preferences: %w", err)
	}

	if err := fn(&sess, prefs); err != nil {
		return core.Session{}, err
	}
	if err := sess.Validate(); err != nil {
		return core.Session{}, err
	}

	if sess.Ongoing {
		if ls := s.liveSync(userID); ls != nil {
			ls.Record(sess)
			s.invalidateCalendar(userID)
			return sess, nil
		}
	}

	if err := s.store.UpsertSession(ctx, userID, sess); err != nil {
		return core.Session{}, fmt.Errorf("save session: %w", err)
	}
	s.invalidateCalendar(userID)
	return sess, nil
}

// FinalizeSession waits out any in-flight sync, strips empty ledger
// entries, closes the session, and publishes the finalized event.
func (s *SessionService) FinalizeSession(ctx context.Context, userID, sessionID string) (core.Session, error) {
	sess, err := s.retireLiveSync(ctx, userID, sessionID)
	if err != nil {
		return core.Session{}, err
	}

	sess = core.StripEmptyDrinks(sess)
	sess.Ongoing = false
	if sess.EndTime < sess.StartTime {
		sess.EndTime = sess.StartTime
	}
	if sess.EndTime == sess.StartTime {
		// Prefer the last recorded drink over the wall clock so sessions
		// closed long after the fact keep a sensible length.
		if last, ok := core.LastDrinkAddedTime(sess.Drinks); ok && last > sess.StartTime {
			sess.EndTime = last
		} else {
			sess.EndTime = time.Now().UnixMilli()
		}
	}

	if err := s.store.UpsertSession(ctx, userID, sess); err != nil {
		return core.Session{}, fmt.Errorf("save session: %w", err)
	}
	s.invalidateCalendar(userID)

	if s.events != nil {
		if err := s.events.PublishSessionFinalized(ctx, userID, sess); err != nil {
			slog.ErrorContext(ctx, "Failed to publish finalized event",
				"user_id", userID, "session_id", sessionID, "error", err)
			// The session is closed locally either way.
		}
	}

	slog.InfoContext(ctx, "Session finalized",
		"user_id", userID, "session_id", sessionID)
	return sess, nil
}

// DiscardSession abandons an ongoing session without keeping it.
func (s *SessionService) DiscardSession(ctx context.Context, userID, sessionID string) error {
	if _, err := s.retireLiveSync(ctx, userID, sessionID); err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, userID, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.invalidateCalendar(userID)

	slog.InfoContext(ctx, "Session discarded",
		"user_id", userID, "session_id", sessionID)
	return nil
}

// DeleteSession removes a closed session and publishes the deleted event.
func (s *SessionService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if err := s.store.DeleteSession(ctx, userID, sessionID); err != nil {
		return err
	}
	s.invalidateCalendar(userID)

	if s.events != nil {
		if err := s.events.PublishSessionDeleted(ctx, userID, sessionID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish deleted event",
				"user_id", userID, "session_id", sessionID, "error", err)
		}
	}
	return nil
}

// retireLiveSync waits until the user's synchronizer is quiescent, stops
// it, and returns the freshest snapshot of the session.
func (s *SessionService) retireLiveSync(ctx context.Context, userID, sessionID string) (core.Session, error) {
	ls := s.liveSync(userID)
	if ls == nil {
		return s.store.GetSession(ctx, userID, sessionID)
	}

	if err := ls.Wait(ctx); err != nil {
		return core.Session{}, fmt.Errorf("wait for sync: %w", err)
	}

	snap, ok := ls.Snapshot()
	if !ok || snap.ID != sessionID {
		// Synchronizer belongs to a different session; leave it alone.
		return s.store.GetSession(ctx, userID, sessionID)
	}

	if err := ls.Stop(ctx); err != nil {
		return core.Session{}, fmt.Errorf("stop live sync: %w", err)
	}
	s.mu.Lock()
	delete(s.live, userID)
	s.mu.Unlock()

	return snap, nil
}

// SyncState reports the state of the user's live synchronizer, or idle
// when no session is ongoing.
func (s *SessionService) SyncState(userID string) SyncState {
	if ls := s.liveSync(userID); ls != nil {
		return ls.State()
	}
	return SyncIdle
}

// DayOverview lists a day's sessions with combined drink and unit totals.
func (s *SessionService) DayOverview(ctx context.Context, userID string, day core.CalendarDate) (DayOverview, error) {
	sessions, prefs, err := s.sessionsAndPrefs(ctx, userID)
	if err != nil {
		return DayOverview{}, err
	}

	daySessions := core.FilterByDay(day, sessions)
	overview := DayOverview{Date: day, Sessions: daySessions}
	for _, sess := range daySessions {
		overview.TotalDrinks += core.SumAllDrinks(sess.Drinks)
		overview.TotalUnits += core.TotalUnits(sess.Drinks, prefs.DrinksToUnits)
	}
	return overview, nil
}

// CalendarMonth returns the month's day markings, cached per user+month
// and invalidated on every write.
func (s *SessionService) CalendarMonth(ctx context.Context, userID string, month core.CalendarDate) (map[string]core.DayMarking, error) {
	key := calendarKey(userID, month)
	if s.calendar != nil {
		if markings, ok := s.calendar.Get(key); ok {
			return markings, nil
		}
	}

	sessions, prefs, err := s.sessionsAndPrefs(ctx, userID)
	if err != nil {
		return nil, err
	}

	markings := core.MonthMarkings(month, sessions, prefs, time.Now())
	if s.calendar != nil {
		s.calendar.Set(key, markings)
	}
	return markings, nil
}

// MonthStatistics totals the whole month, including days still to come.
func (s *SessionService) MonthStatistics(ctx context.Context, userID string, month core.CalendarDate) (MonthStatistics, error) {
	sessions, prefs, err := s.sessionsAndPrefs(ctx, userID)
	if err != nil {
		return MonthStatistics{}, err
	}

	monthSessions := core.FilterByMonth(month, sessions, time.Now(), false)
	stats := MonthStatistics{
		Year:         month.Year,
		Month:        month.Month,
		SessionCount: len(monthSessions),
	}

	counts := make(core.Drinks)
	for _, sess := range monthSessions {
		stats.TotalDrinks += core.SumAllDrinks(sess.Drinks)
		stats.TotalUnits += core.TotalUnits(sess.Drinks, prefs.DrinksToUnits)
		for _, tally := range sess.Drinks {
			for key, count := range tally {
				counts[key] += count
			}
		}
	}

	if len(counts) > 0 {
		probe := core.Session{Drinks: core.DrinksList{0: counts}}
		if key, ok := core.MostCommonDrink(probe); ok {
			stats.MostCommonDrink = key
		}
	}
	return stats, nil
}

// Preferences returns the user's saved preferences, or the defaults.
func (s *SessionService) Preferences(ctx context.Context, userID string) (core.Preferences, error) {
	return s.store.GetPreferences(ctx, userID)
}

// SavePreferences persists the preferences. Weights and thresholds feed
// the calendar markings, so the user's cached months are dropped.
func (s *SessionService) SavePreferences(ctx context.Context, userID string, p core.Preferences) error {
	if err := s.store.SavePreferences(ctx, userID, p); err != nil {
		return err
	}
	s.invalidateCalendar(userID)
	return nil
}

// Close stops every live synchronizer without flushing.
func (s *SessionService) Close(ctx context.Context) error {
	s.mu.Lock()
	syncs := make([]*LiveSync, 0, len(s.live))
	for _, ls := range s.live {
		syncs = append(syncs, ls)
	}
	s.live = make(map[string]*LiveSync)
	s.mu.Unlock()

	var firstErr error
	for _, ls := range syncs {
		if err := ls.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *SessionService) liveSync(userID string) *LiveSync {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[userID]
}

// sessionsAndPrefs loads the user's sessions with the live snapshot
// overlaid, so read models see unsynced mutations too.
func (s *SessionService) sessionsAndPrefs(ctx context.Context, userID string) ([]core.Session, core.Preferences, error) {
	byID, err := s.store.ListSessions(ctx, userID)
	if err != nil {
		return nil, core.Preferences{}, fmt.Errorf("list sessions: %w", err)
	}
	if ls := s.liveSync(userID); ls != nil {
		if snap, ok := ls.Snapshot(); ok {
			byID[snap.ID] = snap
		}
	}
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, core.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}

	sessions := make([]core.Session, 0, len(byID))
	for _, sess := range byID {
		sessions = append(sessions, sess)
	}
	return sessions, prefs, nil
}

func (s *SessionService) invalidateCalendar(userID string) {
	if s.calendar == nil {
		return
	}
	// A write can move units into any cached month, so drop them all for
	// the user rather than guessing which months it touched.
	s.calendar.DeletePrefix(userID + "/")
}

func calendarKey(userID string, month core.CalendarDate) string {
	return fmt.Sprintf("%s/%04d-%02d", userID, month.Year, month.Month)
}
