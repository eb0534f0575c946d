package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName is the name of the session cookie.
const CookieName = "painel_session"

// Session is the authenticated state of one interactive client.
type Session struct {
	ID            string
	UserID        string
	Authenticated bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Valid reports whether the session is authenticated and not expired.
// A nil session is never valid.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || !s.Authenticated {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// SessionStore keeps sessions in memory. They do not survive a restart.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a store signing cookie values with secret.
// A zero ttl means sessions never expire.
func NewSessionStore(secret []byte, ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		secret:   secret,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create opens a new authenticated session for userID.
func (s *SessionStore) Create(userID string) *Session {
	now := s.now()
	sess := &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		Authenticated: true,
		CreatedAt:     now,
	}
	if s.ttl > 0 {
		sess.ExpiresAt = now.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns a live session by id.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if !sess.Valid(s.now()) {
		delete(s.sessions, id)
		return nil, false
	}
	copied := *sess
	return &copied, true
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// TTL returns the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

func (s *SessionStore) pruneLocked(now time.Time) {
	for id, sess := range s.sessions {
		if !sess.Valid(now) {
			delete(s.sessions, id)
		}
	}
}

// Sign produces the cookie value for a session id: "<id>.<mac>".
func (s *SessionStore) Sign(id string) string {
	return id + "." + s.mac(id)
}

// Resolve verifies a cookie value and returns its live session.
// Tampered or unknown values yield no session.
func (s *SessionStore) Resolve(cookieValue string) (*Session, bool) {
	id, mac, ok := strings.Cut(cookieValue, ".")
	if !ok || id == "" {
		return nil, false
	}
	if !hmac.Equal([]byte(mac), []byte(s.mac(id))) {
		return nil, false
	}
	return s.Get(id)
}

func (s *SessionStore) mac(id string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
