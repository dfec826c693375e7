// Copyright (c) 2026 Venlock. All rights reserved.

package auth

import (
	"context"
	"time"

	"github.com/venlock/venlock/internal/cache"
	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/constants"
)

// # Reset Token Repository

// CacheResetTokenRepository implements ResetTokenRepository over the shared
// key-value store.
type CacheResetTokenRepository struct {
	store cache.Store
}

// NewResetTokenRepository creates a new cache-backed ResetTokenRepository.
func NewResetTokenRepository(store cache.Store) *CacheResetTokenRepository {
	return &CacheResetTokenRepository{store: store}
}

/*
Set stores a reset token with its associated userID and TTL.

Parameters:
  - context: context.Context
  - token: string
  - userID: string
  - ttl: time.Duration

Returns:
  - error: Storage failures
*/
func (repository *CacheResetTokenRepository) Set(context context.Context, token string, userID string, ttl time.Duration) error {
	return repository.store.Set(context, constants.RedisPrefixResetToken+token, userID, ttl)
}

/*
Get retrieves the userID for a given token.

Description: Returns apperr.NotFound if the token is absent or expired.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - string: Original UserID
  - error: apperr.NotFound or connectivity errors
*/
func (repository *CacheResetTokenRepository) Get(context context.Context, token string) (string, error) {
	var userID string
	found, err := repository.store.Get(context, constants.RedisPrefixResetToken+token, &userID)
	if err != nil {
		return "", apperr.CacheUnavailable(err)
	}
	if !found {
		return "", apperr.NotFound("Reset token")
	}
	return userID, nil
}

/*
Delete removes the token after successful use.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: Deletion failures
*/
func (repository *CacheResetTokenRepository) Delete(context context.Context, token string) error {
	return repository.store.Remove(context, constants.RedisPrefixResetToken+token)
}

// # Verification Token Repository

// CacheVerificationTokenRepository implements VerificationTokenRepository over
// the shared key-value store.
type CacheVerificationTokenRepository struct {
	store cache.Store
}

// NewVerificationTokenRepository creates a new cache-backed VerificationTokenRepository.
func NewVerificationTokenRepository(store cache.Store) *CacheVerificationTokenRepository {
	return &CacheVerificationTokenRepository{store: store}
}

/*
Set stores a verification token with its associated userID and TTL.

Parameters:
  - context: context.Context
  - token: string
  - userID: string
  - ttl: time.Duration

Returns:
  - error: Storage failures
*/
func (repository *CacheVerificationTokenRepository) Set(context context.Context, token string, userID string, ttl time.Duration) error {
	return repository.store.Set(context, constants.RedisPrefixVerifyToken+token, userID, ttl)
}

/*
Get retrieves the userID for a given token.

Description: Returns apperr.NotFound if the token is not present.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - string: UserID
  - error: apperr.NotFound or connectivity errors
*/
func (repository *CacheVerificationTokenRepository) Get(context context.Context, token string) (string, error) {
	var userID string
	found, err := repository.store.Get(context, constants.RedisPrefixVerifyToken+token, &userID)
	if err != nil {
		return "", apperr.CacheUnavailable(err)
	}
	if !found {
		return "", apperr.NotFound("Verification token")
	}
	return userID, nil
}

/*
Delete removes the token after successful use.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: Deletion failures
*/
func (repository *CacheVerificationTokenRepository) Delete(context context.Context, token string) error {
	return repository.store.Remove(context, constants.RedisPrefixVerifyToken+token)
}
