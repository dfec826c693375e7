// Copyright (c) 2026 Venlock. All rights reserved.

package auth

import (
	"context"
	"time"

	"github.com/venlock/venlock/internal/cache"
	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/constants"
)

// # Session Entity

// Session is the server-side record of one refresh-token login.
//
// Sessions live exclusively in the volatile store under two keys:
//
//	session:{userID}:{jti}       -> the JSON-encoded record (forward index)
//	tokenindex:{tokenHash}       -> the forward key (reverse index)
//
// The forward index makes "every session of user X" a single prefix scan; the
// reverse index resolves an incoming refresh token in one read. Both keys
// carry the same TTL so they expire together. Session records are never
// serialized into API responses.
type Session struct {
	JTI       string    `json:"jti"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Key returns the forward index key for this session.
func (session *Session) Key() string {
	return sessionKey(session.UserID, session.JTI)
}

func sessionKey(userID, jti string) string {
	return constants.RedisPrefixSession + userID + ":" + jti
}

func tokenIndexKey(tokenHash string) string {
	return constants.RedisPrefixTokenIndex + tokenHash
}

// # Session Store

// SessionStore manages the dual-index session records in the volatile store.
type SessionStore struct {
	store cache.Store
}

// NewSessionStore creates a SessionStore on top of the shared key-value store.
func NewSessionStore(store cache.Store) *SessionStore {
	return &SessionStore{store: store}
}

/*
Save writes both indexes for a session.

Description: The forward record is written first, then the reverse index.
Should the second write fail, the reverse entry is simply absent and the
token resolves to nothing, which fails closed.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: apperr.CacheUnavailable on storage failures
*/
func (sessions *SessionStore) Save(context context.Context, session *Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return apperr.TokenExpired()
	}

	if err := sessions.store.Set(context, session.Key(), session, ttl); err != nil {
		return apperr.CacheUnavailable(err)
	}
	if err := sessions.store.Set(context, tokenIndexKey(session.TokenHash), session.Key(), ttl); err != nil {
		return apperr.CacheUnavailable(err)
	}

	return nil
}

/*
FindByTokenHash resolves a refresh token hash into its session record.

Description: Walks reverse index then forward index. A dangling reverse entry
(forward record already revoked or expired) reports the token as revoked
rather than unknown so clients can distinguish rotation races from garbage
tokens.

Parameters:
  - context: context.Context
  - tokenHash: string (SHA-256 of the presented token)

Returns:
  - *Session: Hydrated session record
  - error: apperr.TokenNotFound, apperr.TokenRevoked, or apperr.CacheUnavailable
*/
func (sessions *SessionStore) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	var forwardKey string
	found, err := sessions.store.Get(context, tokenIndexKey(tokenHash), &forwardKey)
	if err != nil {
		return nil, apperr.CacheUnavailable(err)
	}
	if !found {
		return nil, apperr.TokenNotFound()
	}

	session := &Session{}
	found, err = sessions.store.Get(context, forwardKey, session)
	if err != nil {
		return nil, apperr.CacheUnavailable(err)
	}
	if !found {
		return nil, apperr.TokenRevoked()
	}

	return session, nil
}

/*
Find returns the session record for a (userID, jti) pair.

Parameters:
  - context: context.Context
  - userID: string
  - jti: string

Returns:
  - *Session: Hydrated session record
  - error: apperr.TokenNotFound or apperr.CacheUnavailable
*/
func (sessions *SessionStore) Find(context context.Context, userID, jti string) (*Session, error) {
	session := &Session{}
	found, err := sessions.store.Get(context, sessionKey(userID, jti), session)
	if err != nil {
		return nil, apperr.CacheUnavailable(err)
	}
	if !found {
		return nil, apperr.TokenNotFound()
	}
	return session, nil
}

/*
Exists reports whether the (userID, jti) session is live.

Parameters:
  - context: context.Context
  - userID: string
  - jti: string

Returns:
  - bool: true when the forward record is present
  - error: apperr.CacheUnavailable on storage failures
*/
func (sessions *SessionStore) Exists(context context.Context, userID, jti string) (bool, error) {
	alive, err := sessions.store.Exists(context, sessionKey(userID, jti))
	if err != nil {
		return false, apperr.CacheUnavailable(err)
	}
	return alive, nil
}

/*
Revoke deletes both indexes of a single session.

Description: The reverse index goes first so that a crash between the two
deletes can only leave a forward record without a resolvable token, never a
usable token pointing at a deleted record. Revoking an absent session is a
no-op.

Parameters:
  - context: context.Context
  - userID: string
  - jti: string

Returns:
  - error: apperr.CacheUnavailable on storage failures
*/
func (sessions *SessionStore) Revoke(context context.Context, userID, jti string) error {
	session := &Session{}
	found, err := sessions.store.Get(context, sessionKey(userID, jti), session)
	if err != nil {
		return apperr.CacheUnavailable(err)
	}
	if !found {
		return nil
	}

	if err := sessions.store.Remove(context, tokenIndexKey(session.TokenHash)); err != nil {
		return apperr.CacheUnavailable(err)
	}
	if err := sessions.store.Remove(context, session.Key()); err != nil {
		return apperr.CacheUnavailable(err)
	}

	return nil
}

/*
RevokeAll deletes every session belonging to a user.

Description: Prefix-scans the forward index and revokes each hit. Used on
password changes and administrative blocks.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - int: Number of sessions revoked
  - error: apperr.CacheUnavailable on storage failures
*/
func (sessions *SessionStore) RevokeAll(context context.Context, userID string) (int, error) {
	keys, err := sessions.store.SearchKeys(context, constants.RedisPrefixSession+userID+":*")
	if err != nil {
		return 0, apperr.CacheUnavailable(err)
	}

	revoked := 0
	for _, key := range keys {
		session := &Session{}
		found, err := sessions.store.Get(context, key, session)
		if err != nil {
			return revoked, apperr.CacheUnavailable(err)
		}
		if !found {
			continue
		}

		if err := sessions.store.Remove(context, tokenIndexKey(session.TokenHash)); err != nil {
			return revoked, apperr.CacheUnavailable(err)
		}
		if err := sessions.store.Remove(context, key); err != nil {
			return revoked, apperr.CacheUnavailable(err)
		}
		revoked++
	}

	// Best-effort broadcast so other nodes drop any locally cached sessions.
	_ = sessions.store.PublishInvalidation(context, constants.RedisPrefixSession+userID+":*")

	return revoked, nil
}

/*
ListByUser returns every live session of a user, for the "active devices" view.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []Session: Live sessions, unordered
  - error: apperr.CacheUnavailable on storage failures
*/
func (sessions *SessionStore) ListByUser(context context.Context, userID string) ([]Session, error) {
	keys, err := sessions.store.SearchKeys(context, constants.RedisPrefixSession+userID+":*")
	if err != nil {
		return nil, apperr.CacheUnavailable(err)
	}

	result := make([]Session, 0, len(keys))
	for _, key := range keys {
		session := Session{}
		found, err := sessions.store.Get(context, key, &session)
		if err != nil {
			return nil, apperr.CacheUnavailable(err)
		}
		if found {
			result = append(result, session)
		}
	}

	return result, nil
}
