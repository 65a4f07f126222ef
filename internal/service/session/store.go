package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/pollinator-bot/backend/internal/model/conversation"
)

var ErrSessionNotFound = errors.New("session not found")

// Store keeps conversation sessions in memory keyed by user id.
// Sessions are stored by value and replaced wholesale on every Put.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]conversation.Session

	locksMu sync.Mutex
	locks   map[string]*userLock

	now func() time.Time
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore bootstraps an empty in-memory session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]conversation.Session),
		locks:    make(map[string]*userLock),
		now:      time.Now,
	}
}

// Lock serializes work for one user and returns the matching unlock func.
// Locks for different users never contend.
func (s *Store) Lock(userID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.locksMu.Unlock()
	}
}

// Get returns a copy of the user's session.
func (s *Store) Get(_ context.Context, userID string) (conversation.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return conversation.Session{}, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Put replaces the user's session with a copy of sess.
func (s *Store) Put(_ context.Context, sess conversation.Session) {
	stored := sess.Clone()
	stored.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	s.sessions[sess.UserID] = stored
	s.mu.Unlock()
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictIdle removes sessions untouched for longer than ttl and returns how many were dropped.
func (s *Store) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().UTC().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(ttl); n > 0 {
				log.Printf("[session] evicted %d idle sessions", n)
			}
		}
	}
}
