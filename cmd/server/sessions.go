package main

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/soundmatch/pkg/soundmatch"
)

type sessionEntry struct {
	mu       sync.Mutex // serializes chunks of one stream
	session  *soundmatch.RealtimeSession
	lastSeen time.Time
	closed   bool // set under mu once the entry left the store
}

// sessionStore holds the open realtime sessions by id.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	now      func() time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
}

func (s *sessionStore) Open(session *soundmatch.RealtimeSession) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &sessionEntry{session: session, lastSeen: s.now()}
	return id
}

// Do runs fn with exclusive access to session id. It reports false when the
// session does not exist or was removed while Do waited for it.
func (s *sessionStore) Do(id string, fn func(*soundmatch.RealtimeSession)) bool {
	entry, ok := s.touch(id)
	if !ok {
		return false
	}
	return entry.run(fn)
}

func (s *sessionStore) touch(id string) (*sessionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if ok {
		entry.lastSeen = s.now()
	}
	return entry, ok
}

func (e *sessionEntry) run(fn func(*soundmatch.RealtimeSession)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	fn(e.session)
	return true
}

func (s *sessionStore) Remove(id string) (*soundmatch.RealtimeSession, bool) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	// wait for a chunk still in flight
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.closed = true
	return entry.session, true
}

// Expire removes the sessions idle for longer than idle and returns them by
// id.
func (s *sessionStore) Expire(idle time.Duration) map[string]*soundmatch.RealtimeSession {
	cutoff := s.now().Add(-idle)
	return s.removeWhere(func(e *sessionEntry) bool { return e.lastSeen.Before(cutoff) })
}

// RemoveAll removes every session and returns them by id.
func (s *sessionStore) RemoveAll() map[string]*soundmatch.RealtimeSession {
	return s.removeWhere(func(*sessionEntry) bool { return true })
}

func (s *sessionStore) removeWhere(match func(*sessionEntry) bool) map[string]*soundmatch.RealtimeSession {
	s.mu.Lock()
	var stale []string
	for id, entry := range s.sessions {
		if match(entry) {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	expired := make(map[string]*soundmatch.RealtimeSession, len(stale))
	for _, id := range stale {
		if session, ok := s.Remove(id); ok {
			expired[id] = session
		}
	}
	return expired
}

func (s *sessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
