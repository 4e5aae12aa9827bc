// Package sqlite implements the store ports on a local SQLite database.
// The ledger is stored as a JSON column; the session row and the user
// status row are written in one transaction, which is what gives the
// multi-document update its atomicity.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"kiroku/internal/core"
	"kiroku/internal/store"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

var _ store.Store = (*Repository)(nil)

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, userID, sessionID string) (core.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, start_time, end_time, blackout, note, ongoing, drinks
		 FROM sessions WHERE user_id = ? AND id = ?`, userID, sessionID)
	return scanSession(row)
}

func (r *Repository) ListSessions(ctx context.Context, userID string) (map[string]core.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, start_time, end_time, blackout, note, ongoing, drinks
		 FROM sessions WHERE user_id = ? ORDER BY start_time`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]core.Session)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out[sess.ID] = sess
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (r *Repository) UpsertSession(ctx context.Context, userID string, s core.Session) error {
	if userID == "" {
		return core.ErrEmptyUserID
	}
	if err := s.Validate(); err != nil {
		return err
	}

	drinksJSON, err := json.Marshal(marshalLedger(s.Drinks))
	if err != nil {
		return fmt.Errorf("marshal drinks: %w", err)
	}

	now := time.Now().UnixMilli()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (user_id, id, start_time, end_time, blackout, note, ongoing, drinks, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, id) DO UPDATE SET
		   start_time = excluded.start_time,
		   end_time   = excluded.end_time,
		   blackout   = excluded.blackout,
		   note       = excluded.note,
		   ongoing    = excluded.ongoing,
		   drinks     = excluded.drinks,
		   updated_at = excluded.updated_at`,
		userID, s.ID, s.StartTime, s.EndTime, boolToInt(s.Blackout), s.Note,
		boolToInt(s.Ongoing), string(drinksJSON), now)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if s.Ongoing {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_status (user_id, last_online, latest_session_id)
			 VALUES (?, ?, ?)
			 ON CONFLICT (user_id) DO UPDATE SET
			   last_online = excluded.last_online,
			   latest_session_id = excluded.latest_session_id`,
			userID, now, s.ID)
		if err != nil {
			return fmt.Errorf("refresh user status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	slog.DebugContext(ctx, "Session saved",
		"user_id", userID, "session_id", s.ID, "ongoing", s.Ongoing)
	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, userID, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ? AND id = ?`, userID, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return core.ErrSessionNotFound
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE user_status SET latest_session_id = '', last_online = ?
		 WHERE user_id = ? AND latest_session_id = ?`,
		time.Now().UnixMilli(), userID, sessionID)
	if err != nil {
		return fmt.Errorf("clear user status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (r *Repository) GetUserStatus(ctx context.Context, userID string) (store.UserStatus, error) {
	var st store.UserStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT last_online, latest_session_id FROM user_status WHERE user_id = ?`,
		userID).Scan(&st.LastOnline, &st.LatestSessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.UserStatus{}, nil
	}
	if err != nil {
		return store.UserStatus{}, fmt.Errorf("get user status: %w", err)
	}
	return st, nil
}

func (r *Repository) GetPreferences(ctx context.Context, userID string) (core.Preferences, error) {
	var (
		firstDay    string
		weightsJSON string
		colorsJSON  string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT first_day_of_week, drinks_to_units, units_to_colors
		 FROM preferences WHERE user_id = ?`, userID).
		Scan(&firstDay, &weightsJSON, &colorsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DefaultPreferences(), nil
	}
	if err != nil {
		return core.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}

	p := core.Preferences{FirstDayOfWeek: firstDay}
	if err := json.Unmarshal([]byte(weightsJSON), &p.DrinksToUnits); err != nil {
		return core.Preferences{}, fmt.Errorf("unmarshal drink weights: %w", err)
	}
	if err := json.Unmarshal([]byte(colorsJSON), &p.UnitsToColors); err != nil {
		return core.Preferences{}, fmt.Errorf("unmarshal color thresholds: %w", err)
	}
	return p, nil
}

func (r *Repository) SavePreferences(ctx context.Context, userID string, p core.Preferences) error {
	if userID == "" {
		return core.ErrEmptyUserID
	}
	weightsJSON, err := json.Marshal(p.DrinksToUnits)
	if err != nil {
		return fmt.Errorf("marshal drink weights: %w", err)
	}
	colorsJSON, err := json.Marshal(p.UnitsToColors)
	if err != nil {
		return fmt.Errorf("marshal color thresholds: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO preferences (user_id, first_day_of_week, drinks_to_units, units_to_colors)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   first_day_of_week = excluded.first_day_of_week,
		   drinks_to_units   = excluded.drinks_to_units,
		   units_to_colors   = excluded.units_to_colors`,
		userID, p.FirstDayOfWeek, string(weightsJSON), string(colorsJSON))
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (r *Repository) NewSessionID(_ context.Context, userID string) (string, error) {
	if userID == "" {
		return "", core.ErrEmptyUserID
	}
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (core.Session, error) {
	var (
		s          core.Session
		blackout   int64
		ongoing    int64
		drinksJSON string
	)
	err := row.Scan(&s.ID, &s.StartTime, &s.EndTime, &blackout, &s.Note, &ongoing, &drinksJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, core.ErrSessionNotFound
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("scan session: %w", err)
	}
	s.Blackout = blackout != 0
	s.Ongoing = ongoing != 0

	var raw map[string]core.Drinks
	if err := json.Unmarshal([]byte(drinksJSON), &raw); err != nil {
		return core.Session{}, fmt.Errorf("unmarshal drinks: %w", err)
	}
	s.Drinks = unmarshalLedger(raw)
	return s, nil
}

// JSON object keys are strings, so the int64 ledger keys go through a
// decimal string form on the way in and out of the database.
func marshalLedger(dl core.DrinksList) map[string]core.Drinks {
	out := make(map[string]core.Drinks, len(dl))
	for ts, tally := range dl {
		out[strconv.FormatInt(ts, 10)] = tally
	}
	return out
}

func unmarshalLedger(raw map[string]core.Drinks) core.DrinksList {
	out := make(core.DrinksList, len(raw))
	for k, tally := range raw {
		ts, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		out[ts] = tally
	}
	return out
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
