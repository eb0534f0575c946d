// Package auth implements the login gate in front of the dashboard: password
// checks against salted bcrypt hashes and an in-process session store.
package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	applog "painel/internal/log"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong
	// password. The two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotAuthenticated is returned when an action needs a session and
	// there is none, or it expired.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// dummyHash is compared for unknown usernames so both failure paths cost one
// bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("painel-dummy-password"), bcrypt.DefaultCost)

// Credentials resolves a username to its stored bcrypt hash.
type Credentials interface {
	Lookup(username string) (hash []byte, ok bool)
}

// StaticCredentials is a fixed username -> bcrypt hash mapping.
type StaticCredentials map[string]string

// SingleAccount returns credentials holding exactly one account.
func SingleAccount(username, passwordHash string) StaticCredentials {
	return StaticCredentials{username: passwordHash}
}

// Lookup implements Credentials.
func (c StaticCredentials) Lookup(username string) ([]byte, bool) {
	h, ok := c[username]
	if !ok || h == "" {
		return nil, false
	}
	return []byte(h), true
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Gate checks credentials and guards actions that need a session.
type Gate struct {
	creds    Credentials
	sessions *SessionStore
	now      func() time.Time
}

// NewGate builds a gate over the given credentials and session store.
func NewGate(creds Credentials, sessions *SessionStore) *Gate {
	return &Gate{creds: creds, sessions: sessions, now: time.Now}
}

// Login verifies the password and opens a session on success.
func (g *Gate) Login(ctx context.Context, username, password string) (*Session, error) {
	hash, ok := g.creds.Lookup(username)
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		authLogger(ctx).WarnContext(ctx, "Login failed", applog.FieldOperation, applog.OpLogin, "reason", "unknown_user")
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		authLogger(ctx).WarnContext(ctx, "Login failed", applog.FieldOperation, applog.OpLogin, "reason", "wrong_password")
		return nil, ErrInvalidCredentials
	}

	sess := g.sessions.Create(username)
	authLogger(ctx).InfoContext(ctx, "Login succeeded", applog.FieldOperation, applog.OpLogin, "user_id", username)
	return sess, nil
}

// Logout destroys the session. Unknown ids are ignored.
func (g *Gate) Logout(ctx context.Context, sess *Session) {
	if sess == nil {
		return
	}
	g.sessions.Delete(sess.ID)
	authLogger(ctx).InfoContext(ctx, "Logged out", applog.FieldOperation, applog.OpLogout, "user_id", sess.UserID)
}

// RequireAuthenticated fails with ErrNotAuthenticated unless sess is a live,
// authenticated session that the store still holds. A session kept after
// Logout is rejected.
func (g *Gate) RequireAuthenticated(sess *Session) error {
	if !sess.Valid(g.now()) {
		return ErrNotAuthenticated
	}
	stored, ok := g.sessions.Get(sess.ID)
	if !ok || stored.UserID != sess.UserID {
		return ErrNotAuthenticated
	}
	return nil
}

// Sessions exposes the session store for cookie resolution.
func (g *Gate) Sessions() *SessionStore {
	return g.sessions
}

func authLogger(ctx context.Context) *applog.Logger {
	return applog.FromContext(ctx).WithComponent(applog.ComponentAuth)
}
