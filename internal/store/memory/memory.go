// Package memory implements the store ports with in-process maps. It is
// the default backend for development and the fixture for tests.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"kiroku/internal/core"
	"kiroku/internal/store"
)

type Store struct {
	mu       sync.Mutex
	sessions map[string]map[string]core.Session // userID -> sessionID -> session
	status   map[string]store.UserStatus
	prefs    map[string]core.Preferences
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		sessions: make(map[string]map[string]core.Session),
		status:   make(map[string]store.UserStatus),
		prefs:    make(map[string]core.Preferences),
	}
}

func (s *Store) GetSession(_ context.Context, userID, sessionID string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID][sessionID]
	if !ok {
		return core.Session{}, core.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *Store) ListSessions(_ context.Context, userID string) (map[string]core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]core.Session, len(s.sessions[userID]))
	for id, sess := range s.sessions[userID] {
		out[id] = sess.Clone()
	}
	return out, nil
}

func (s *Store) UpsertSession(_ context.Context, userID string, sess core.Session) error {
	if userID == "" {
		return core.ErrEmptyUserID
	}
	if err := sess.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[userID] == nil {
		s.sessions[userID] = make(map[string]core.Session)
	}
	s.sessions[userID][sess.ID] = sess.Clone()
	if sess.Ongoing {
		s.status[userID] = store.UserStatus{
			LastOnline:      time.Now().UnixMilli(),
			LatestSessionID: sess.ID,
		}
	}
	return nil
}

func (s *Store) DeleteSession(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userID][sessionID]; !ok {
		return core.ErrSessionNotFound
	}
	delete(s.sessions[userID], sessionID)
	if st, ok := s.status[userID]; ok && st.LatestSessionID == sessionID {
		s.status[userID] = store.UserStatus{LastOnline: time.Now().UnixMilli()}
	}
	return nil
}

func (s *Store) GetUserStatus(_ context.Context, userID string) (store.UserStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[userID], nil
}

func (s *Store) GetPreferences(_ context.Context, userID string) (core.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prefs[userID]; ok {
		return p, nil
	}
	return store.DefaultPreferences(), nil
}

func (s *Store) SavePreferences(_ context.Context, userID string, p core.Preferences) error {
	if userID == "" {
		return core.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = p
	return nil
}

func (s *Store) NewSessionID(_ context.Context, userID string) (string, error) {
	if userID == "" {
		return "", core.ErrEmptyUserID
	}
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
