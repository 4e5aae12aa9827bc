package amqp

import (
	"encoding/json"
	"time"

	"kiroku/internal/core"
)

// SessionEvent is published when a session reaches a terminal state.
// Finalized events carry the full session snapshot so consumers do not
// need read access to the store; deleted events carry only the ids.
type SessionEvent struct {
	Kind      string        `json:"kind"` // "finalized" or "deleted"
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id"`
	Session   *core.Session `json:"session,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const (
	EventSessionFinalized = "finalized"
	EventSessionDeleted   = "deleted"
)

func NewFinalizedEvent(userID string, s core.Session) *SessionEvent {
	snap := s.Clone()
	return &SessionEvent{
		Kind:      EventSessionFinalized,
		UserID:    userID,
		SessionID: s.ID,
		Session:   &snap,
		Timestamp: time.Now(),
	}
}

func NewDeletedEvent(userID, sessionID string) *SessionEvent {
	return &SessionEvent{
		Kind:      EventSessionDeleted,
		UserID:    userID,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

func (m *SessionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SessionEventFromJSON(data []byte) (*SessionEvent, error) {
	var msg SessionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
