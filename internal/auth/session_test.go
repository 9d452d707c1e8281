package auth

import (
	"testing"
	"time"

	"camwatch/internal/core"
	"camwatch/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoles struct {
	roles map[string]store.Role
}

func (f *fakeRoles) Role(username string) (store.Role, error) {
	role, ok := f.roles[username]
	if !ok {
		return "", core.ErrNotFound
	}
	return role, nil
}

func newManager(ttl time.Duration) (*SessionManager, *fakeRoles) {
	roles := &fakeRoles{roles: map[string]store.Role{
		"alice": store.RoleUser,
		"root":  store.RoleAdmin,
	}}
	return NewSessionManager(ttl, roles), roles
}

func TestValidateWithinTTL(t *testing.T) {
	m, _ := newManager(time.Hour)

	token := m.CreateSession("alice")
	username, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestValidateUnknownToken(t *testing.T) {
	m, _ := newManager(time.Hour)

	_, err := m.Validate("no-such-token")
	assert.ErrorIs(t, err, core.ErrAuth)
}

func TestValidateExpiredToken(t *testing.T) {
	m, _ := newManager(time.Hour)

	token := m.CreateSession("alice")

	// Move the clock past the expiry; lazy validation must reject and
	// drop the session.
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := m.Validate(token)
	assert.ErrorIs(t, err, core.ErrAuth)

	m.mu.Lock()
	_, stillThere := m.sessions[token]
	m.mu.Unlock()
	assert.False(t, stillThere)
}

func TestInvalidate(t *testing.T) {
	m, _ := newManager(time.Hour)

	token := m.CreateSession("alice")
	m.Invalidate(token)

	_, err := m.Validate(token)
	assert.ErrorIs(t, err, core.ErrAuth)
}

func TestConcurrentSessionsPerUser(t *testing.T) {
	m, _ := newManager(time.Hour)

	t1 := m.CreateSession("alice")
	t2 := m.CreateSession("alice")
	require.NotEqual(t, t1, t2)

	for _, token := range []string{t1, t2} {
		username, err := m.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "alice", username)
	}

	m.Invalidate(t1)
	_, err := m.Validate(t1)
	assert.ErrorIs(t, err, core.ErrAuth)
	_, err = m.Validate(t2)
	assert.NoError(t, err)
}

func TestValidateAdmin(t *testing.T) {
	m, _ := newManager(time.Hour)

	adminToken := m.CreateSession("root")
	username, err := m.ValidateAdmin(adminToken)
	require.NoError(t, err)
	assert.Equal(t, "root", username)

	userToken := m.CreateSession("alice")
	_, err = m.ValidateAdmin(userToken)
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestValidateAdminUnknownUser(t *testing.T) {
	m, _ := newManager(time.Hour)

	token := m.CreateSession("ghost")
	_, err := m.ValidateAdmin(token)
	assert.ErrorIs(t, err, core.ErrAuth)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	require.NotEqual(t, "hunter2", hash)

	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
}
