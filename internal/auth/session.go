// Package auth issues and validates the opaque session tokens gating every
// facade operation. Sessions are in-memory only: a process restart
// invalidates all of them.
package auth

import (
	"fmt"
	"sync"
	"time"

	"camwatch/internal/core"
	"camwatch/internal/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RoleReader reports the role of a user; satisfied by the tenant store.
type RoleReader interface {
	Role(username string) (store.Role, error)
}

type session struct {
	username string
	expires  time.Time
}

// SessionManager maps opaque tokens to (username, expiry). Expiry is
// checked lazily on validation; there is no background sweep.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]session
	ttl      time.Duration
	roles    RoleReader
	now      func() time.Time
}

func NewSessionManager(ttl time.Duration, roles RoleReader) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]session),
		ttl:      ttl,
		roles:    roles,
		now:      time.Now,
	}
}

// CreateSession issues a fresh token for username. A user may hold any
// number of concurrent sessions.
func (m *SessionManager) CreateSession(username string) string {
	token := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = session{
		username: username,
		expires:  m.now().Add(m.ttl),
	}
	return token
}

// Validate returns the username owning the token, or ErrAuth if the token
// is unknown or past its expiry. Expired tokens are removed on sight.
func (m *SessionManager) Validate(token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return "", core.ErrAuth
	}
	if m.now().After(s.expires) {
		delete(m.sessions, token)
		return "", core.ErrAuth
	}
	return s.username, nil
}

// ValidateAdmin is Validate plus a role check against the tenant store.
func (m *SessionManager) ValidateAdmin(token string) (string, error) {
	username, err := m.Validate(token)
	if err != nil {
		return "", err
	}
	role, err := m.roles.Role(username)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrAuth, err)
	}
	if role != store.RoleAdmin {
		return "", core.ErrForbidden
	}
	return username, nil
}

// Invalidate removes the token. Unknown tokens are a no-op.
func (m *SessionManager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword compares a stored hash against a plaintext candidate.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
