// Copyright (c) 2026 Venlock. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/venlock/venlock/internal/audit"
	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/sec"
)

// # Contracts & Types

// Mailer delivers account emails. Implementations send asynchronously with
// their own timeout; a failed delivery never fails the request that queued it.
type Mailer interface {
	// SendVerification queues the email-confirmation message carrying the token link.
	SendVerification(recipient, token string)

	// SendPasswordReset queues the forgot-password message carrying the token link.
	SendPasswordReset(recipient, token string)
}

// Service implements user authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, registration,
// or login logic must be reviewed by the security team.
type Service struct {
	users        UserRepository
	tokens       *TokenManager
	resetTokens  ResetTokenRepository
	verifyTokens VerificationTokenRepository
	mailer       Mailer
	auditor      audit.Recorder
}

// NewService constructs the authentication [Service] with its dependencies.
func NewService(
	users UserRepository,
	tokens *TokenManager,
	resetTokens ResetTokenRepository,
	verifyTokens VerificationTokenRepository,
	mailer Mailer,
	auditor audit.Recorder,
) *Service {
	return &Service{
		users:        users,
		tokens:       tokens,
		resetTokens:  resetTokens,
		verifyTokens: verifyTokens,
		mailer:       mailer,
		auditor:      auditor,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
}

/*
Register validates, hashes, and persists a brand new user account.

Description: Enrolls a new account in the Unverified state, hashes the
password, and queues the verification email before returning.

Parameters:
  - context: context.Context
  - input: RegisterInput (already validated at the transport layer)

Returns:
  - *User: Created entity
  - error: apperr.Conflict when the identity exists, storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*User, error) {

	// Uniqueness pre-checks against the normalized forms. The unique indexes
	// are the real guarantee; these produce friendlier errors.
	if _, err := service.users.FindByEmail(context, sec.NormalizeEmail(input.Email)); err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}
	if _, err := service.users.FindByUsername(context, sec.NormalizeUsername(input.Username)); err == nil {
		return nil, apperr.Conflict("Username is already taken")
	}

	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	user := &User{
		ID:            uuid.NewString(),
		Username:      input.Username,
		Email:         input.Email,
		PasswordHash:  hashedPassword,
		FullName:      input.FullName,
		Role:          sec.RoleUser,
		Status:        StatusUnverified,
		Notifications: DefaultNotificationPreferences(),
	}

	if err := service.users.Create(context, user); err != nil {
		return nil, err
	}

	// Queue the verification email. Token storage failures are swallowed; the
	// user can always request a resend.
	if token, err := sec.GenerateSecureToken(VerificationTokenLength); err == nil {
		if err := service.verifyTokens.Set(context, token, user.ID, VerificationTokenTTL); err == nil {
			service.mailer.SendVerification(user.Email, token)
		}
	}

	_ = service.auditor.Record(context, audit.Entry{
		ActorID:    user.ID,
		Action:     audit.ActionRegister,
		TargetType: "user",
		TargetID:   user.ID,
	})

	return user, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Username  string
	Password  string
	UserAgent string
	IPAddress string

	// ExistingRefreshToken is the refresh cookie presented alongside the login,
	// if any. Its session is revoked before a new one is issued so one browser
	// never accumulates live sessions.
	ExistingRefreshToken string
}

// LoginSession represents a successfully established user session.
type LoginSession struct {
	Tokens *TokenPair
	User   *User
}

/*
Login validates user credentials and issues a token pair.

Description: Revokes any presented refresh session, verifies the password with
a constant-time comparison, rejects blocked accounts, promotes the account to
Active, and mints a fresh session.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session credentials
  - error: apperr.InvalidCredentials, apperr.AccountBlocked, internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {

	// Single-browser rule: kill the session behind any cookie that rode in.
	if input.ExistingRefreshToken != "" {
		_ = service.tokens.RevokeByRefreshToken(context, input.ExistingRefreshToken)
	}

	user, err := service.users.FindByUsername(context, sec.NormalizeUsername(input.Username))
	if err != nil {
		// Missing user and wrong password produce the identical response, so
		// the endpoint cannot be used to enumerate accounts.
		_ = service.auditor.Record(context, audit.Entry{
			Action:    audit.ActionLoginFailed,
			IPAddress: input.IPAddress,
			Metadata:  map[string]any{"reason": "unknown_user"},
		})
		return nil, apperr.InvalidCredentials()
	}

	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		_ = service.auditor.Record(context, audit.Entry{
			ActorID:   user.ID,
			Action:    audit.ActionLoginFailed,
			IPAddress: input.IPAddress,
			Metadata:  map[string]any{"reason": "bad_password"},
		})
		return nil, apperr.InvalidCredentials()
	}

	if user.IsBlocked() {
		return nil, apperr.AccountBlocked()
	}

	// First successful login promotes the account to Active.
	if user.Status != StatusActive {
		now := time.Now().UTC()
		if err := user.Activate(now); err != nil {
			return nil, err
		}
		if err := service.users.UpdateStatus(context, user); err != nil {
			return nil, err
		}
	}

	pair, err := service.tokens.Issue(context, user, input.UserAgent, input.IPAddress)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	_ = service.users.UpdateLastLogin(context, user.ID, now)

	_ = service.auditor.Record(context, audit.Entry{
		ActorID:   user.ID,
		Action:    audit.ActionLogin,
		IPAddress: input.IPAddress,
	})

	return &LoginSession{Tokens: pair, User: user}, nil
}

/*
Refresh implements the refresh-token rotation mechanism.

Description: Resolves the presented token to its session, re-checks the
account status, and rotates the pair. A token belonging to a blocked user is
revoked on the spot.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - *LoginSession: Rotated credentials
  - error: apperr.TokenNotFound, apperr.TokenRevoked, apperr.TokenExpired,
    apperr.AccountBlocked
*/
func (service *Service) Refresh(context context.Context, refreshToken string) (*LoginSession, error) {
	session, err := service.tokens.Resolve(context, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := service.users.FindByID(context, session.UserID)
	if err != nil {
		_ = service.tokens.RevokeSession(context, session.UserID, session.JTI)
		return nil, apperr.TokenInvalid()
	}

	if user.IsBlocked() {
		_ = service.tokens.RevokeSession(context, session.UserID, session.JTI)
		return nil, apperr.AccountBlocked()
	}

	pair, err := service.tokens.Rotate(context, user, session)
	if err != nil {
		return nil, err
	}

	return &LoginSession{Tokens: pair, User: user}, nil
}

/*
Logout revokes the session behind the presented refresh token.

Description: Idempotent; an already-dead token still yields success.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - error: Storage failures only
*/
func (service *Service) Logout(context context.Context, refreshToken string) error {
	return service.tokens.RevokeByRefreshToken(context, refreshToken)
}

/*
LogoutAll revokes every session of the user.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - int: Number of sessions revoked
  - error: Storage failures
*/
func (service *Service) LogoutAll(context context.Context, userID string) (int, error) {
	revoked, err := service.tokens.RevokeAllSessions(context, userID)
	if err != nil {
		return 0, err
	}

	_ = service.auditor.Record(context, audit.Entry{
		ActorID:  userID,
		Action:   audit.ActionLogoutAll,
		Metadata: map[string]any{"sessions_revoked": revoked},
	})

	return revoked, nil
}

// # Password Management

/*
ChangePassword updates the credentials of an authenticated user.

Description: Verifies the current password, writes the new hash, and revokes
EVERY session so the new password is required on all devices immediately.

Parameters:
  - context: context.Context
  - userID: string
  - currentPassword: string
  - newPassword: string

Returns:
  - error: apperr.InvalidCredentials when current is wrong, apperr.NotFound,
    storage failures
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return apperr.InvalidCredentials()
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	if err := service.users.UpdatePassword(context, userID, hashedPassword); err != nil {
		return err
	}

	if _, err := service.tokens.RevokeAllSessions(context, userID); err != nil {
		return err
	}

	_ = service.auditor.Record(context, audit.Entry{
		ActorID:    userID,
		Action:     audit.ActionPasswordChange,
		TargetType: "user",
		TargetID:   userID,
	})

	return nil
}

/*
ForgotPassword initiates the password recovery flow.

Description: Generates a single-use token and queues the email. Raises
NotFound for unknown addresses; the transport layer swallows that so the
outward response never reveals whether the address exists.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: apperr.NotFound or storage failures
*/
func (service *Service) ForgotPassword(context context.Context, email string) error {
	user, err := service.users.FindByEmail(context, sec.NormalizeEmail(email))
	if err != nil {
		return err
	}

	token, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		return fmt.Errorf("auth_service_generate_reset_token_failed: %w", err)
	}

	if err := service.resetTokens.Set(context, token, user.ID, ResetTokenTTL); err != nil {
		return err
	}

	service.mailer.SendPasswordReset(user.Email, token)
	return nil
}

/*
ResetPassword completes the password recovery flow.

Description: Consumes the token, rehashes, and revokes every session.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: apperr.NotFound for unknown tokens, storage failures
*/
func (service *Service) ResetPassword(context context.Context, token, newPassword string) error {
	userID, err := service.resetTokens.Get(context, token)
	if err != nil {
		return err
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_password_hash_failed: %w", err)
	}

	if err := service.users.UpdatePassword(context, userID, hashedPassword); err != nil {
		return err
	}

	// Security cleanup: the token is single-use and all sessions die.
	_, _ = service.tokens.RevokeAllSessions(context, userID)
	_ = service.resetTokens.Delete(context, token)

	_ = service.auditor.Record(context, audit.Entry{
		ActorID:    userID,
		Action:     audit.ActionPasswordReset,
		TargetType: "user",
		TargetID:   userID,
	})

	return nil
}

// # Email Verification

/*
VerifyEmail confirms an account's email address using a single-use token.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: apperr.NotFound for unknown tokens, apperr.Conflict when already
    verified, storage failures
*/
func (service *Service) VerifyEmail(context context.Context, token string) error {
	userID, err := service.verifyTokens.Get(context, token)
	if err != nil {
		return err
	}

	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}

	if !user.Verify(time.Now().UTC()) {
		return apperr.Conflict("Email address is already verified")
	}

	if err := service.users.UpdateStatus(context, user); err != nil {
		return err
	}

	_ = service.verifyTokens.Delete(context, token)

	_ = service.auditor.Record(context, audit.Entry{
		ActorID:    userID,
		Action:     audit.ActionEmailVerified,
		TargetType: "user",
		TargetID:   userID,
	})

	return nil
}

/*
ResendVerification issues a fresh verification token for an unverified account.

Description: Like ForgotPassword, unknown addresses raise NotFound and the
transport layer hides it.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: apperr.NotFound, apperr.Conflict when already verified
*/
func (service *Service) ResendVerification(context context.Context, email string) error {
	user, err := service.users.FindByEmail(context, sec.NormalizeEmail(email))
	if err != nil {
		return err
	}

	if user.Status != StatusUnverified {
		return apperr.Conflict("Email address is already verified")
	}

	token, err := sec.GenerateSecureToken(VerificationTokenLength)
	if err != nil {
		return fmt.Errorf("auth_service_generate_verify_token_failed: %w", err)
	}

	if err := service.verifyTokens.Set(context, token, user.ID, VerificationTokenTTL); err != nil {
		return err
	}

	service.mailer.SendVerification(user.Email, token)
	return nil
}

// # Profile

// ProfileInput holds the mutable profile fields.
type ProfileInput struct {
	FullName string
}

/*
GetProfile returns the caller's own account record.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *User: Hydrated entity
  - error: apperr.NotFound or retrieval failures
*/
func (service *Service) GetProfile(context context.Context, userID string) (*User, error) {
	return service.users.FindByID(context, userID)
}

/*
UpdateProfile persists changes to the caller's profile fields.

Parameters:
  - context: context.Context
  - userID: string
  - input: ProfileInput

Returns:
  - *User: Updated entity
  - error: apperr.NotFound or storage failures
*/
func (service *Service) UpdateProfile(context context.Context, userID string, input ProfileInput) (*User, error) {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	user.FullName = input.FullName
	if err := service.users.Update(context, user); err != nil {
		return nil, err
	}

	return user, nil
}

/*
UpdateNotifications replaces the caller's notification preferences.

Parameters:
  - context: context.Context
  - userID: string
  - preferences: NotificationPreferences

Returns:
  - *User: Updated entity
  - error: apperr.NotFound or storage failures
*/
func (service *Service) UpdateNotifications(context context.Context, userID string, preferences NotificationPreferences) (*User, error) {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	user.Notifications = preferences
	if err := service.users.Update(context, user); err != nil {
		return nil, err
	}

	return user, nil
}

// # Administration

/*
ListUsers returns a page of accounts for the admin surface.

Parameters:
  - context: context.Context
  - limit: int (clamped to 1..100)
  - offset: int

Returns:
  - []User: Page of accounts
  - int64: Total account count
  - error: Retrieval failures
*/
func (service *Service) ListUsers(context context.Context, limit, offset int) ([]User, int64, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := service.users.List(context, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := service.users.Count(context)
	if err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

/*
BlockUser suspends an account and revokes every one of its sessions.

Parameters:
  - context: context.Context
  - actorID: string (administrator performing the block)
  - userID: string (account being blocked)

Returns:
  - error: apperr.NotFound or storage failures
*/
func (service *Service) BlockUser(context context.Context, actorID, userID string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}

	if user.Block(time.Now().UTC()) {
		if err := service.users.UpdateStatus(context, user); err != nil {
			return err
		}
	}

	// A blocked user holds no live sessions.
	_, _ = service.tokens.RevokeAllSessions(context, userID)

	_ = service.auditor.Record(context, audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionUserBlocked,
		TargetType: "user",
		TargetID:   userID,
	})

	return nil
}

/*
UnblockUser lifts an account suspension.

Parameters:
  - context: context.Context
  - actorID: string
  - userID: string

Returns:
  - error: apperr.NotFound or storage failures
*/
func (service *Service) UnblockUser(context context.Context, actorID, userID string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}

	if user.Unblock(time.Now().UTC()) {
		if err := service.users.UpdateStatus(context, user); err != nil {
			return err
		}
	}

	_ = service.auditor.Record(context, audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionUserUnblocked,
		TargetType: "user",
		TargetID:   userID,
	})

	return nil
}
