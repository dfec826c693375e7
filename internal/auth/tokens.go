// Copyright (c) 2026 Venlock. All rights reserved.

package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/sec"
)

// # Token Issuance and Rotation

// AccessTokenSigner abstracts the JWT signing service so the rotation logic
// can be tested without real keys.
type AccessTokenSigner interface {
	GenerateAccessToken(userID, email, role, sessionID string, timeToLive time.Duration) (string, error)
}

// TokenPair is the result of a login or a refresh rotation.
type TokenPair struct {
	AccessToken           string    `json:"-"`
	RefreshToken          string    `json:"-"`
	JTI                   string    `json:"-"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"-"`
}

// TokenManager owns the refresh-token lifecycle: issuing a session on login,
// rotating it on refresh, and revoking it on logout.
//
// # Rotation Contract
//
// A session keeps its jti for its entire life; only the opaque refresh token
// rotates. On refresh the new token pair is fully persisted BEFORE the old
// reverse-index entry is deleted, so a crash mid-rotation can never leave the
// client with zero valid tokens.
type TokenManager struct {
	signer     AccessTokenSigner
	sessions   *SessionStore
	accessTTL  time.Duration
	refreshTTL time.Duration

	// Now is the clock. Tests overwrite it to exercise expiry boundaries.
	Now func() time.Time
}

// NewTokenManager wires a TokenManager.
func NewTokenManager(signer AccessTokenSigner, sessions *SessionStore, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		signer:     signer,
		sessions:   sessions,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		Now:        time.Now,
	}
}

/*
Issue creates a brand-new session for a successful login.

Description: Generates a fresh jti, signs an access token bound to it, mints
an opaque refresh token, and persists the session record under both indexes.

Parameters:
  - context: context.Context
  - user: *User (authenticated account)
  - userAgent: string
  - ipAddress: string

Returns:
  - *TokenPair: Signed access token plus opaque refresh token
  - error: Signing or persistence failures
*/
func (manager *TokenManager) Issue(context context.Context, user *User, userAgent, ipAddress string) (*TokenPair, error) {
	jti := uuid.NewString()
	return manager.mint(context, user, jti, userAgent, ipAddress)
}

/*
Resolve validates a presented refresh token and returns its session.

Description: Hashes the token, walks the reverse index, and applies a strict
expiry check on top of the store TTL. An expired record is revoked eagerly so
the reverse index cannot outlive the session by clock drift.

Parameters:
  - context: context.Context
  - refreshToken: string (opaque value from the cookie)

Returns:
  - *Session: Live session record
  - error: apperr.TokenNotFound, apperr.TokenRevoked, apperr.TokenExpired
*/
func (manager *TokenManager) Resolve(context context.Context, refreshToken string) (*Session, error) {
	session, err := manager.sessions.FindByTokenHash(context, sec.HashToken(refreshToken))
	if err != nil {
		return nil, err
	}

	if !manager.Now().Before(session.ExpiresAt) {
		_ = manager.sessions.Revoke(context, session.UserID, session.JTI)
		return nil, apperr.TokenExpired()
	}

	return session, nil
}

/*
Rotate exchanges a resolved session for a fresh token pair.

Description: The jti is carried over from the old session. Persistence order
is new-forward, new-reverse, then delete-old-reverse; the forward record is a
plain overwrite because the key is jti-stable.

Parameters:
  - context: context.Context
  - user: *User (owner of the session, already status-checked)
  - session: *Session (resolved by [TokenManager.Resolve])

Returns:
  - *TokenPair: New access and refresh tokens
  - error: Signing or persistence failures
*/
func (manager *TokenManager) Rotate(context context.Context, user *User, session *Session) (*TokenPair, error) {
	oldTokenHash := session.TokenHash

	pair, err := manager.mint(context, user, session.JTI, session.UserAgent, session.IPAddress)
	if err != nil {
		return nil, err
	}

	// The new pair is durable; only now does the old token die.
	if err := manager.sessions.store.Remove(context, tokenIndexKey(oldTokenHash)); err != nil {
		return nil, apperr.CacheUnavailable(err)
	}

	return pair, nil
}

/*
RevokeByRefreshToken terminates the session that owns the presented token.

Description: Logout path. Unknown tokens are not an error so logout stays
idempotent.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - error: apperr.CacheUnavailable on storage failures
*/
func (manager *TokenManager) RevokeByRefreshToken(context context.Context, refreshToken string) error {
	session, err := manager.sessions.FindByTokenHash(context, sec.HashToken(refreshToken))
	if err != nil {
		if apperr.IsCode(err, "TOKEN_NOT_FOUND") || apperr.IsCode(err, "TOKEN_REVOKED") {
			return nil
		}
		return err
	}

	return manager.sessions.Revoke(context, session.UserID, session.JTI)
}

/*
RevokeSession terminates one session by its (userID, jti) pair.

Parameters:
  - context: context.Context
  - userID: string
  - jti: string

Returns:
  - error: apperr.CacheUnavailable on storage failures
*/
func (manager *TokenManager) RevokeSession(context context.Context, userID, jti string) error {
	return manager.sessions.Revoke(context, userID, jti)
}

/*
RevokeAllSessions terminates every session of a user.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - int: Number of sessions revoked
  - error: apperr.CacheUnavailable on storage failures
*/
func (manager *TokenManager) RevokeAllSessions(context context.Context, userID string) (int, error) {
	return manager.sessions.RevokeAll(context, userID)
}

// mint signs an access token for jti and persists a session record carrying a
// freshly generated refresh token.
func (manager *TokenManager) mint(context context.Context, user *User, jti, userAgent, ipAddress string) (*TokenPair, error) {
	accessToken, err := manager.signer.GenerateAccessToken(
		user.ID, user.Email, string(user.Role), jti, manager.accessTTL,
	)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	refreshToken, err := sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := manager.Now().UTC()
	session := &Session{
		JTI:       jti,
		UserID:    user.ID,
		TokenHash: sec.HashToken(refreshToken),
		UserAgent: userAgent,
		IPAddress: ipAddress,
		CreatedAt: now,
		ExpiresAt: now.Add(manager.refreshTTL),
	}

	if err := manager.sessions.Save(context, session); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		JTI:                   jti,
		AccessTokenExpiresAt:  now.Add(manager.accessTTL),
		RefreshTokenExpiresAt: session.ExpiresAt,
	}, nil
}
