package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Entries live until deleted or
// the process exits.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func memoryKey(userID, scope string) string {
	return userID + ":" + scope
}

func (s *MemoryStore) Get(_ context.Context, userID, scope string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[memoryKey(userID, scope)]
	if !ok {
		return nil, nil
	}
	sess.LastActivity = s.now()
	sess.MessageCount++
	out := *sess
	return &out, nil
}

func (s *MemoryStore) Set(_ context.Context, userID, scope, sessionID string) error {
	sess := newSession(userID, scope, sessionID, s.now())
	s.mu.Lock()
	s.sessions[memoryKey(userID, scope)] = &sess
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, scope string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(userID, scope)
	if _, ok := s.sessions[key]; !ok {
		return false, nil
	}
	delete(s.sessions, key)
	return true, nil
}

// ListAll returns a snapshot ordered by most recent activity.
func (s *MemoryStore) ListAll(_ context.Context) ([]Session, error) {
	s.mu.Lock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	s.mu.Unlock()
	sortByActivity(out)
	return out, nil
}

func (s *MemoryStore) ClearAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sessions)
	s.sessions = make(map[string]*Session)
	return n, nil
}

func (s *MemoryStore) Stats(_ context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Type: "memory", ActiveSessions: len(s.sessions)}
}

func sortByActivity(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
}
