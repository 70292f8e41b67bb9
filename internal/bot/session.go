package bot

import (
	"sync"
	"time"

	"igrelay/pkg/instagram"
)

// chatSession tracks one chat's Instagram login state. Passwords never land
// here: a login either completes into a live client or dies with the attempt.
type chatSession struct {
	mu sync.Mutex

	// client is the chat's logged-in Instagram client, nil until /login
	// succeeds
	client *instagram.Client

	// igUsername is the Instagram account the chat is (or is becoming)
	// logged in as
	igUsername string

	// Pending verification challenge, zero when no login is in flight
	pendingClient     *instagram.Client
	pendingIdentifier string
	pendingExpiry     time.Time
}

// pending reports whether a verification code is awaited and still valid
func (s *chatSession) pending() bool {
	return s.pendingClient != nil && time.Now().Before(s.pendingExpiry)
}

// pendingExpired reports whether a challenge was issued but timed out
func (s *chatSession) pendingExpired() bool {
	return s.pendingClient != nil && !time.Now().Before(s.pendingExpiry)
}

// clearPending drops any in-flight challenge
func (s *chatSession) clearPending() {
	s.pendingClient = nil
	s.pendingIdentifier = ""
	s.pendingExpiry = time.Time{}
}

// sessionStore holds per-chat sessions
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*chatSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[int64]*chatSession)}
}

// get returns the session for a chat, creating it on first use
func (s *sessionStore) get(chatID int64) *chatSession {
	s.mu.RLock()
	session, ok := s.sessions[chatID]
	s.mu.RUnlock()
	if ok {
		return session
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok = s.sessions[chatID]; ok {
		return session
	}
	session = &chatSession{}
	s.sessions[chatID] = session
	return session
}
