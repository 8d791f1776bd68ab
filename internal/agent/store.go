package agent

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/p-n-ai/pai-titulos/internal/study"
)

// StudySession binds a study session to the chat user that owns it.
type StudySession struct {
	ID        string
	Channel   string
	UserID    string
	Session   *study.Session
	StartedAt time.Time
}

// SessionKey identifies a user on a channel.
func SessionKey(channel, userID string) string {
	return channel + ":" + userID
}

// SessionStore keeps the live study sessions. Sessions live only in
// memory and are lost on restart.
type SessionStore interface {
	Get(key string) (*StudySession, bool)
	// GetOrCreate returns the session under key, calling create and storing
	// its result when there is none. The bool reports whether create ran.
	GetOrCreate(key string, create func() (*StudySession, error)) (*StudySession, bool, error)
	Put(key string, s *StudySession)
	// End removes and closes the session under key.
	End(key string) bool
	Len() int
}

// MemoryStore is an in-memory implementation of SessionStore.
type MemoryStore struct {
	sessions map[string]*StudySession
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*StudySession),
	}
}

func (s *MemoryStore) Get(key string) (*StudySession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	return sess, ok
}

func (s *MemoryStore) GetOrCreate(key string, create func() (*StudySession, error)) (*StudySession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return sess, false, nil
	}
	sess, err := create()
	if err != nil {
		return nil, false, err
	}
	s.sessions[key] = sess
	return sess, true, nil
}

// Put stores sess under key, closing any session it replaces.
func (s *MemoryStore) Put(key string, sess *StudySession) {
	s.mu.Lock()
	old := s.sessions[key]
	s.sessions[key] = sess
	s.mu.Unlock()

	if old != nil && old != sess {
		old.Session.Close()
	}
}

func (s *MemoryStore) End(key string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	if ok {
		sess.Session.Close()
	}
	return ok
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func generateID() string {
	b := make([]byte, 16)
	rand.Read(b) // never fails since Go 1.24
	return fmt.Sprintf("%x", b)
}
