package store

import (
	"context"
	"sync"
	"time"

	"memtest-go/internal/session"
)

// Memory keeps sessions in process memory. Idle sessions are listed by Idle
// and removed through session.Manager.Sweep.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*session.Session)}
}

func (m *Memory) Get(_ context.Context, id string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) Save(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Idle returns the IDs of sessions not updated since idleSince. The manager
// deletes them under its per-session lock.
func (m *Memory) Idle(_ context.Context, idleSince time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(idleSince) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Len returns the number of stored sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
