package session

import (
	"context"
	"fmt"
	"time"
)

// Session maps a (user, conversation scope) pair to the agent's session id.
type Session struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
	MessageCount   int       `json:"message_count"`
}

// Stats summarizes a backend for health and admin endpoints.
type Stats struct {
	Type           string `json:"type"`
	ActiveSessions int    `json:"active_sessions"`
	Connected      *bool  `json:"connected,omitempty"`
	TTLHours       int    `json:"ttl_hours,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Store keeps conversation continuity between webhook calls.
// Get bumps MessageCount and LastActivity on a hit. Set is an upsert.
type Store interface {
	Get(ctx context.Context, userID, scope string) (*Session, error)
	Set(ctx context.Context, userID, scope, sessionID string) error
	Delete(ctx context.Context, userID, scope string) (bool, error)
	ListAll(ctx context.Context) ([]Session, error)
	ClearAll(ctx context.Context) (int, error)
	Stats(ctx context.Context) Stats
}

// StoreError wraps a backend failure. Callers treat it as non-fatal.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newSession(userID, scope, sessionID string, now time.Time) Session {
	return Session{
		SessionID:      sessionID,
		UserID:         userID,
		ConversationID: scope,
		CreatedAt:      now,
		LastActivity:   now,
		MessageCount:   1,
	}
}
