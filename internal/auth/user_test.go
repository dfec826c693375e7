// Copyright (c) 2026 Venlock. All rights reserved.

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venlock/venlock/internal/platform/apperr"
)

func newTestUser(status UserStatus) *User {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &User{
		ID:        "user-1",
		Username:  "testuser",
		Email:     "test@example.com",
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestUser_Verify(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("from unverified", func(t *testing.T) {
		user := newTestUser(StatusUnverified)
		assert.True(t, user.Verify(now))
		assert.Equal(t, StatusVerified, user.Status)
		require.NotNil(t, user.VerifiedAt)
		assert.Equal(t, now, *user.VerifiedAt)
		assert.Equal(t, now, user.UpdatedAt)
	})

	t.Run("from blocked", func(t *testing.T) {
		user := newTestUser(StatusBlocked)
		blockedAt := now.Add(-time.Hour)
		user.BlockedAt = &blockedAt

		assert.True(t, user.Verify(now))
		assert.Equal(t, StatusVerified, user.Status)
		assert.Nil(t, user.BlockedAt)
	})

	t.Run("idempotent on verified and active", func(t *testing.T) {
		for _, status := range []UserStatus{StatusVerified, StatusActive} {
			user := newTestUser(status)
			assert.False(t, user.Verify(now))
			assert.Equal(t, status, user.Status)
			assert.Nil(t, user.VerifiedAt)
		}
	})
}

func TestUser_Activate(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("from unverified and verified", func(t *testing.T) {
		for _, status := range []UserStatus{StatusUnverified, StatusVerified} {
			user := newTestUser(status)
			require.NoError(t, user.Activate(now))
			assert.Equal(t, StatusActive, user.Status)
		}
	})

	t.Run("fails from blocked", func(t *testing.T) {
		user := newTestUser(StatusBlocked)
		err := user.Activate(now)
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "ACCOUNT_BLOCKED"))
		assert.Equal(t, StatusBlocked, user.Status)
	})
}

func TestUser_BlockUnblock(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("block from any non-blocked state", func(t *testing.T) {
		for _, status := range []UserStatus{StatusUnverified, StatusVerified, StatusActive} {
			user := newTestUser(status)
			assert.True(t, user.Block(now))
			assert.Equal(t, StatusBlocked, user.Status)
			require.NotNil(t, user.BlockedAt)
			assert.Equal(t, now, *user.BlockedAt)
		}
	})

	t.Run("block preserves original blockedAt", func(t *testing.T) {
		user := newTestUser(StatusActive)
		first := now
		require.True(t, user.Block(first))

		assert.False(t, user.Block(now.Add(time.Hour)))
		assert.Equal(t, first, *user.BlockedAt)
	})

	t.Run("unblock returns to active", func(t *testing.T) {
		user := newTestUser(StatusActive)
		require.True(t, user.Block(now))

		later := now.Add(time.Hour)
		assert.True(t, user.Unblock(later))
		assert.Equal(t, StatusActive, user.Status)
		assert.Nil(t, user.BlockedAt)
		assert.Equal(t, later, user.UpdatedAt)
	})

	t.Run("unblock is a no-op elsewhere", func(t *testing.T) {
		for _, status := range []UserStatus{StatusUnverified, StatusVerified, StatusActive} {
			user := newTestUser(status)
			assert.False(t, user.Unblock(now))
			assert.Equal(t, status, user.Status)
		}
	})
}

func TestUserStatus_IsValid(t *testing.T) {
	assert.True(t, StatusActive.IsValid())
	assert.True(t, StatusBlocked.IsValid())
	assert.False(t, UserStatus("suspended").IsValid())
}

func TestUser_CanLogin(t *testing.T) {
	assert.True(t, newTestUser(StatusActive).CanLogin())
	assert.False(t, newTestUser(StatusUnverified).CanLogin())
	assert.False(t, newTestUser(StatusVerified).CanLogin())
	assert.False(t, newTestUser(StatusBlocked).CanLogin())
}
