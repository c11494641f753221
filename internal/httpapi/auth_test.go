package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurantintel/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: "admin", Active: true},
		},
	}

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "Admin", Password: "admin123"})
	require.NoError(t, err)
	assert.Equal(t, "admin", resp.Role)

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.NotEqual(t, "admin123", users[0].Password)
	assert.True(t, isPasswordHash(users[0].Password))
	assert.Equal(t, 1, store.updates)
}

func TestAuthManagerRejectsBadPasswordAndInactiveAccount(t *testing.T) {
	hash, err := hashPassword("analyst-pass")
	require.NoError(t, err)
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"viewer": {Username: "viewer", Password: hash, Role: "analyst", Active: false},
			"admin":  {Username: "admin", Password: hash, Role: "admin", Active: true},
		},
	}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, errInvalidCredentials)

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "viewer", Password: "analyst-pass"})
	assert.EqualError(t, err, "account is inactive")

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "analyst-pass"})
	assert.ErrorIs(t, err, errInvalidCredentials)
}

func TestParseTokenRoundTripAndExpiry(t *testing.T) {
	hash, err := hashPassword("pw-123456")
	require.NoError(t, err)
	store := &userStoreStub{users: map[string]domain.UserAccount{
		"admin": {Username: "admin", Password: hash, Role: "admin", Active: true},
	}}

	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)
	manager.now = func() time.Time { return now }

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "pw-123456"})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-15T13:00:00Z", resp.ExpiresAt)

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{Username: "admin", Role: "admin"}, actor)

	other := NewAuthManager(context.Background(), "another-secret", time.Hour, nil)
	other.now = manager.now
	_, err = other.ParseToken(resp.AccessToken)
	assert.Error(t, err)

	now = now.Add(2 * time.Hour)
	_, err = manager.ParseToken(resp.AccessToken)
	assert.Error(t, err)
}
