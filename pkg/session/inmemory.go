// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore implements Store with in-memory storage.
// Suitable for development, testing, and single-instance deployments.
// Data is lost on restart.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewInMemoryStore creates a new in-memory session store.
// A zero ttl means sessions never expire.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *InMemoryStore) expiry(from time.Time) time.Time {
	if s.ttl == 0 {
		return time.Time{}
	}
	return from.Add(s.ttl)
}

// getLocked returns the live session for id, creating a fresh one if the id
// is unseen or expired. Callers must hold the write lock.
func (s *InMemoryStore) getLocked(id string) *Session {
	now := s.now()
	if sess, ok := s.sessions[id]; ok {
		if sess.ExpiresAt.IsZero() || sess.ExpiresAt.After(now) {
			return sess
		}
	}
	sess := &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: s.expiry(now),
	}
	s.sessions[id] = sess
	return sess
}

// Get returns the session, creating it if absent or expired.
func (s *InMemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(sessionID)
	out := *sess
	out.Turns = make([]Turn, len(sess.Turns))
	copy(out.Turns, sess.Turns)
	out.LastTriage = append([]string(nil), sess.LastTriage...)
	return &out, nil
}

// Append adds turns to the session history and refreshes its expiry.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(sessionID)
	now := s.now()
	for _, turn := range turns {
		if turn.ID == "" {
			turn.ID = uuid.New().String()
		}
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = now
		}
		sess.Turns = append(sess.Turns, turn)
	}
	sess.ExpiresAt = s.expiry(now)
	return nil
}

// SetLastTriage records the module names last selected for the session.
func (s *InMemoryStore) SetLastTriage(_ context.Context, sessionID string, modules []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(sessionID)
	sess.LastTriage = append([]string(nil), modules...)
	return nil
}

// Reset clears history but preserves identity and the expiry clock.
func (s *InMemoryStore) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(sessionID)
	sess.Turns = nil
	sess.LastTriage = nil
	return nil
}

// Sweep evicts sessions past their expiry.
func (s *InMemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, sess := range s.sessions {
		if !sess.ExpiresAt.IsZero() && !sess.ExpiresAt.After(now) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted, nil
}

// Len returns the number of live sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ Store = (*InMemoryStore)(nil)
