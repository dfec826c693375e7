// Copyright (c) 2026 Venlock. All rights reserved.

package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venlock/venlock/internal/audit"
	"github.com/venlock/venlock/internal/cache"
	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/sec"
)

// # Test Doubles

// memoryUsers is an in-memory UserRepository for service tests.
type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]*User)}
}

func (repo *memoryUsers) Create(_ context.Context, user *User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	clone := *user
	repo.users[user.ID] = &clone
	return nil
}

func (repo *memoryUsers) FindByID(_ context.Context, id string) (*User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if user, found := repo.users[id]; found {
		clone := *user
		return &clone, nil
	}
	return nil, apperr.NotFound("User")
}

func (repo *memoryUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, user := range repo.users {
		if sec.NormalizeEmail(user.Email) == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (repo *memoryUsers) FindByUsername(_ context.Context, username string) (*User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, user := range repo.users {
		if sec.NormalizeUsername(user.Username) == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (repo *memoryUsers) Update(_ context.Context, user *User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	clone := *user
	repo.users[user.ID] = &clone
	return nil
}

func (repo *memoryUsers) UpdateStatus(_ context.Context, user *User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if stored, found := repo.users[user.ID]; found {
		stored.Status = user.Status
		stored.VerifiedAt = user.VerifiedAt
		stored.BlockedAt = user.BlockedAt
		stored.UpdatedAt = user.UpdatedAt
	}
	return nil
}

func (repo *memoryUsers) UpdatePassword(_ context.Context, userID, newHash string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if stored, found := repo.users[userID]; found {
		stored.PasswordHash = newHash
	}
	return nil
}

func (repo *memoryUsers) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if stored, found := repo.users[userID]; found {
		stored.LastLoginAt = &at
	}
	return nil
}

func (repo *memoryUsers) List(_ context.Context, limit, offset int) ([]User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	var users []User
	for _, user := range repo.users {
		users = append(users, *user)
	}
	return users, nil
}

func (repo *memoryUsers) Count(_ context.Context) (int64, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return int64(len(repo.users)), nil
}

// recordingMailer counts queued emails instead of sending them.
type recordingMailer struct {
	mu            sync.Mutex
	verifications []string // tokens
	resets        []string
}

func (mailer *recordingMailer) SendVerification(recipient, token string) {
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	mailer.verifications = append(mailer.verifications, token)
}

func (mailer *recordingMailer) SendPasswordReset(recipient, token string) {
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	mailer.resets = append(mailer.resets, token)
}

// recordingAuditor keeps entries in memory.
type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (auditor *recordingAuditor) Record(_ context.Context, entry audit.Entry) error {
	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	auditor.entries = append(auditor.entries, entry)
	return nil
}

func (auditor *recordingAuditor) actions() []string {
	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	var actions []string
	for _, entry := range auditor.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

// # Fixture

type serviceFixture struct {
	service *Service
	users   *memoryUsers
	tokens  *TokenManager
	mailer  *recordingMailer
	auditor *recordingAuditor
	reset   ResetTokenRepository
	verify  VerificationTokenRepository
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	store := cache.NewMemoryStore()
	sessions := NewSessionStore(store)
	users := newMemoryUsers()
	tokens := NewTokenManager(&stubSigner{}, sessions, 15*time.Minute, time.Hour)
	mailer := &recordingMailer{}
	auditor := &recordingAuditor{}
	resetRepo := NewResetTokenRepository(store)
	verifyRepo := NewVerificationTokenRepository(store)

	return &serviceFixture{
		service: NewService(users, tokens, resetRepo, verifyRepo, mailer, auditor),
		users:   users,
		tokens:  tokens,
		mailer:  mailer,
		auditor: auditor,
		reset:   resetRepo,
		verify:  verifyRepo,
	}
}

func (fixture *serviceFixture) seedUser(t *testing.T, username, password string, status UserStatus) *User {
	t.Helper()

	hash, err := sec.HashPassword(password)
	require.NoError(t, err)

	user := &User{
		ID:           "user-" + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         sec.RoleUser,
		Status:       status,
	}
	require.NoError(t, fixture.users.Create(context.Background(), user))
	return user
}

// # Tests

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedUser(t, "testuser", "ValidPass@123", StatusActive)

		session, err := fixture.service.Login(ctx, LoginInput{
			Username: "testuser",
			Password: "ValidPass@123",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, session.Tokens.AccessToken)
		assert.NotEmpty(t, session.Tokens.RefreshToken)

		// lastLogin was recorded
		stored, err := fixture.users.FindByID(ctx, session.User.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.LastLoginAt)

		assert.Contains(t, fixture.auditor.actions(), audit.ActionLogin)
	})

	t.Run("unknown user and wrong password are indistinguishable", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedUser(t, "testuser", "ValidPass@123", StatusActive)

		_, missingErr := fixture.service.Login(ctx, LoginInput{Username: "nobody", Password: "x"})
		_, wrongErr := fixture.service.Login(ctx, LoginInput{Username: "testuser", Password: "wrong"})

		require.Error(t, missingErr)
		require.Error(t, wrongErr)
		assert.Equal(t, apperr.As(missingErr).Code, apperr.As(wrongErr).Code)
		assert.Equal(t, apperr.As(missingErr).Message, apperr.As(wrongErr).Message)
	})

	t.Run("blocked account", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedUser(t, "blocked", "ValidPass@123", StatusBlocked)

		_, err := fixture.service.Login(ctx, LoginInput{Username: "blocked", Password: "ValidPass@123"})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "ACCOUNT_BLOCKED"))
	})

	t.Run("verified account is promoted to active", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedUser(t, "fresh", "ValidPass@123", StatusVerified)

		session, err := fixture.service.Login(ctx, LoginInput{Username: "fresh", Password: "ValidPass@123"})
		require.NoError(t, err)
		assert.Equal(t, StatusActive, session.User.Status)

		stored, err := fixture.users.FindByID(ctx, session.User.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, stored.Status)
	})

	t.Run("presented refresh cookie is revoked first", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedUser(t, "testuser", "ValidPass@123", StatusActive)

		first, err := fixture.service.Login(ctx, LoginInput{Username: "testuser", Password: "ValidPass@123"})
		require.NoError(t, err)

		_, err = fixture.service.Login(ctx, LoginInput{
			Username:             "testuser",
			Password:             "ValidPass@123",
			ExistingRefreshToken: first.Tokens.RefreshToken,
		})
		require.NoError(t, err)

		// The first session is gone
		_, err = fixture.service.Refresh(ctx, first.Tokens.RefreshToken)
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "TOKEN_NOT_FOUND"))
	})
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		fixture := newServiceFixture(t)

		user, err := fixture.service.Register(ctx, RegisterInput{
			Username: "newuser",
			Email:    "new@example.com",
			Password: "ValidPass@123",
		})
		require.NoError(t, err)
		assert.Equal(t, StatusUnverified, user.Status)
		assert.NotEqual(t, "ValidPass@123", user.PasswordHash)

		// Verification email was queued with a usable token
		require.Len(t, fixture.mailer.verifications, 1)
		token := fixture.mailer.verifications[0]
		userID, err := fixture.verify.Get(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, userID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedUser(t, "existing", "ValidPass@123", StatusActive)

		_, err := fixture.service.Register(ctx, RegisterInput{
			Username: "someoneelse",
			Email:    "EXISTING@example.com", // normalization catches case variants
			Password: "ValidPass@123",
		})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "CONFLICT"))
	})

	t.Run("duplicate username", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedUser(t, "existing", "ValidPass@123", StatusActive)

		_, err := fixture.service.Register(ctx, RegisterInput{
			Username: "Existing",
			Email:    "other@example.com",
			Password: "ValidPass@123",
		})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "CONFLICT"))
	})
}

func TestService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes every session", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedUser(t, "testuser", "OldPass@123", StatusActive)

		first, err := fixture.service.Login(ctx, LoginInput{Username: "testuser", Password: "OldPass@123"})
		require.NoError(t, err)
		second, err := fixture.service.Login(ctx, LoginInput{Username: "testuser", Password: "OldPass@123"})
		require.NoError(t, err)

		require.NoError(t, fixture.service.ChangePassword(ctx, first.User.ID, "OldPass@123", "NewPass@456"))

		for _, token := range []string{first.Tokens.RefreshToken, second.Tokens.RefreshToken} {
			_, err := fixture.service.Refresh(ctx, token)
			require.Error(t, err)
		}

		// The new password works, the old one does not
		_, err = fixture.service.Login(ctx, LoginInput{Username: "testuser", Password: "OldPass@123"})
		assert.True(t, apperr.IsCode(err, "INVALID_CREDENTIALS"))
		_, err = fixture.service.Login(ctx, LoginInput{Username: "testuser", Password: "NewPass@456"})
		assert.NoError(t, err)
	})

	t.Run("wrong current password", func(t *testing.T) {
		fixture := newServiceFixture(t)
		user := fixture.seedUser(t, "testuser", "OldPass@123", StatusActive)

		err := fixture.service.ChangePassword(ctx, user.ID, "nope", "NewPass@456")
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "INVALID_CREDENTIALS"))
	})
}

func TestService_VerifyEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		fixture := newServiceFixture(t)

		user, err := fixture.service.Register(ctx, RegisterInput{
			Username: "newuser",
			Email:    "new@example.com",
			Password: "ValidPass@123",
		})
		require.NoError(t, err)
		token := fixture.mailer.verifications[0]

		require.NoError(t, fixture.service.VerifyEmail(ctx, token))

		stored, err := fixture.users.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusVerified, stored.Status)
		assert.NotNil(t, stored.VerifiedAt)

		// Token is single-use
		err = fixture.service.VerifyEmail(ctx, token)
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "NOT_FOUND"))
	})

	t.Run("unknown token", func(t *testing.T) {
		fixture := newServiceFixture(t)
		err := fixture.service.VerifyEmail(ctx, "bogus")
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "NOT_FOUND"))
	})

	t.Run("already verified", func(t *testing.T) {
		fixture := newServiceFixture(t)
		user := fixture.seedUser(t, "verified", "ValidPass@123", StatusActive)
		require.NoError(t, fixture.verify.Set(ctx, "tok", user.ID, time.Hour))

		err := fixture.service.VerifyEmail(ctx, "tok")
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "CONFLICT"))
	})
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("full flow revokes sessions and consumes token", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedUser(t, "testuser", "OldPass@123", StatusActive)

		session, err := fixture.service.Login(ctx, LoginInput{Username: "testuser", Password: "OldPass@123"})
		require.NoError(t, err)

		require.NoError(t, fixture.service.ForgotPassword(ctx, "testuser@example.com"))
		require.Len(t, fixture.mailer.resets, 1)
		token := fixture.mailer.resets[0]

		require.NoError(t, fixture.service.ResetPassword(ctx, token, "NewPass@456"))

		// Old session is dead
		_, err = fixture.service.Refresh(ctx, session.Tokens.RefreshToken)
		require.Error(t, err)

		// Token cannot be replayed
		err = fixture.service.ResetPassword(ctx, token, "Another@789")
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "NOT_FOUND"))

		// New password authenticates
		_, err = fixture.service.Login(ctx, LoginInput{Username: "testuser", Password: "NewPass@456"})
		assert.NoError(t, err)
	})

	t.Run("unknown email raises not found for the transport to swallow", func(t *testing.T) {
		fixture := newServiceFixture(t)
		err := fixture.service.ForgotPassword(ctx, "ghost@example.com")
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "NOT_FOUND"))
		assert.Empty(t, fixture.mailer.resets)
	})
}

func TestService_BlockUser(t *testing.T) {
	ctx := context.Background()
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "victim", "ValidPass@123", StatusActive)

	session, err := fixture.service.Login(ctx, LoginInput{Username: "victim", Password: "ValidPass@123"})
	require.NoError(t, err)

	require.NoError(t, fixture.service.BlockUser(ctx, "admin-1", session.User.ID))

	// Sessions are gone and login is refused
	_, err = fixture.service.Refresh(ctx, session.Tokens.RefreshToken)
	require.Error(t, err)

	_, err = fixture.service.Login(ctx, LoginInput{Username: "victim", Password: "ValidPass@123"})
	assert.True(t, apperr.IsCode(err, "ACCOUNT_BLOCKED"))

	// Unblock restores access
	require.NoError(t, fixture.service.UnblockUser(ctx, "admin-1", session.User.ID))
	_, err = fixture.service.Login(ctx, LoginInput{Username: "victim", Password: "ValidPass@123"})
	assert.NoError(t, err)
}
