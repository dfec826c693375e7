// Copyright (c) 2026 Venlock. All rights reserved.

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via the [auth.AccessTokenSigner] interface.
package sec

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// minSigningKeyBytes is the minimum length of the HMAC secret. HS512 output is
// 512 bits; a 64-byte key saturates the security of the construction.
const minSigningKeyBytes = 64

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// # Why custom claims?
//
// By embedding the Email and Role directly inside the JWT, the authentication
// middleware can reconstruct the active user context WITHOUT querying the
// database on every single API request. The registered `jti` claim links the
// access token to its server-side session record, which is what makes
// immediate revocation possible.
type AuthClaims struct {
	jwt.RegisteredClaims

	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserID returns the subject claim (the account ID).
func (claims *AuthClaims) UserID() string { return claims.Subject }

// SessionID returns the jti claim binding this token to a session record.
func (claims *AuthClaims) SessionID() string { return claims.ID }

// TokenService handles generation and verification of JWT tokens using HS512.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
}

// NewTokenService creates a new TokenService from a symmetric signing key.
//
// It rejects keys shorter than 64 bytes at startup so a weak secret can never
// reach production silently.
func NewTokenService(signingKey []byte, issuer, audience string) (*TokenService, error) {
	if len(signingKey) < minSigningKeyBytes {
		return nil, fmt.Errorf("sec: signing key must be at least %d bytes, got %d", minSigningKeyBytes, len(signingKey))
	}

	return &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
	}, nil
}

// GenerateAccessToken creates a new signed JWT access token.
//
// # Parameters
//   - userID: The subject (account ID).
//   - email: The account email, embedded as a custom claim.
//   - role: The account role, embedded as a custom claim.
//   - sessionID: The jti claim tying the token to its session record.
//   - timeToLive: The duration before the token expires.
func (service *TokenService) GenerateAccessToken(userID, email, role, sessionID string, timeToLive time.Duration) (string, error) {
	currentTime := time.Now().UTC()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        sessionID,
			Issuer:    service.issuer,
			Audience:  jwt.ClaimStrings{service.audience},
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		Email: email,
		Role:  role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(service.signingKey)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// VerifyToken checks the signature and validity of a JWT string.
//
// # Clock Skew
//
// No leeway is allowed. A token presented exactly at its `exp` instant is
// already rejected.
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&AuthClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
			}
			return service.signingKey, nil
		},
		jwt.WithIssuer(service.issuer),
		jwt.WithAudience(service.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("sec: invalid token claims")
	}

	// The library treats now == exp as still valid; the boundary contract here
	// is strict expiry.
	if claims.ExpiresAt == nil || !time.Now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("sec: token is expired")
	}

	return claims, nil
}
