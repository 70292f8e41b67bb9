package instagram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"igrelay/pkg/logger"
)

// Session is the on-disk form of a logged-in client's cookies. Reusing a
// saved session avoids repeated logins, which is what usually triggers
// Instagram's verification challenges.
type Session struct {
	Username  string          `json:"username"`
	UserAgent string          `json:"user_agent"`
	Cookies   []SessionCookie `json:"cookies"`
	SavedAt   time.Time       `json:"saved_at"`
}

// SessionCookie is a persisted cookie
type SessionCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SessionStore persists sessions as one JSON file per username
type SessionStore struct {
	dir    string
	logger logger.Logger
}

// NewSessionStore creates a session store rooted at dir
func NewSessionStore(dir string, log logger.Logger) *SessionStore {
	return &SessionStore{dir: dir, logger: log}
}

// Save writes the client's current cookies to the store
func (s *SessionStore) Save(c *Client) error {
	if c.Username() == "" {
		return fmt.Errorf("cannot save session for anonymous client")
	}

	session := Session{
		Username:  c.Username(),
		UserAgent: c.headers["User-Agent"],
		SavedAt:   time.Now(),
	}
	for _, cookie := range c.Cookies() {
		session.Cookies = append(session.Cookies, SessionCookie{
			Name:  cookie.Name,
			Value: cookie.Value,
		})
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := s.path(session.Username)
	tmpPath := path + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize session file: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugWithFields("session saved", map[string]interface{}{
			"username": session.Username,
			"cookies":  len(session.Cookies),
		})
	}
	return nil
}

// Load reads a saved session for username, or nil if none exists
func (s *SessionStore) Load(username string) (*Session, error) {
	data, err := os.ReadFile(s.path(username))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &session, nil
}

// Restore applies a saved session to a client. Returns false when no saved
// session exists for the username.
func (s *SessionStore) Restore(c *Client, username string) (bool, error) {
	session, err := s.Load(username)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}

	cookies := make([]*http.Cookie, 0, len(session.Cookies))
	for _, sc := range session.Cookies {
		cookies = append(cookies, &http.Cookie{Name: sc.Name, Value: sc.Value})
	}
	c.SetCookies(cookies)
	c.username = session.Username

	if session.UserAgent != "" {
		c.SetHeader("User-Agent", session.UserAgent)
	}

	if s.logger != nil {
		s.logger.DebugWithFields("session restored", map[string]interface{}{
			"username": username,
			"saved_at": session.SavedAt,
		})
	}
	return true, nil
}

// Delete removes a saved session
func (s *SessionStore) Delete(username string) error {
	err := os.Remove(s.path(username))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// Exists reports whether a saved session is on disk for the username
func (s *SessionStore) Exists(username string) bool {
	_, err := os.Stat(s.path(username))
	return err == nil
}

// path returns the session file path for a username
func (s *SessionStore) path(username string) string {
	// Usernames only allow letters, digits, periods and underscores, but
	// sanitize anyway before touching the filesystem.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		default:
			return '_'
		}
	}, username)
	return filepath.Join(s.dir, fmt.Sprintf("session_%s.json", safe))
}
