// Copyright (c) 2026 Venlock. All rights reserved.

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, key prefixes, and cross-cutting identifiers that are
shared between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Security: Token issuers and cookie configuration.
  - Cache Taxonomy: Redis key prefixes for sessions, throttling, and volatile tokens.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "venlock-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Backstop Rate Limiting
//
// The in-process token bucket sits ahead of the Redis throttle engine. It
// sheds extreme load even when the cache is degraded; the real admission
// policy lives in internal/throttle.

const (
	// BackstopRateLimitRPS is the requests per second allowed per IP.
	BackstopRateLimitRPS = 100.0

	// BackstopRateLimitBurst is the maximum burst allowed for the backstop limiter.
	BackstopRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Authentication

const (
	// AccessTokenCookieName is the name of the cookie that stores the JWT access token.
	AccessTokenCookieName = "accessToken"

	// AccessTokenCookiePath is the scoped path for the access token cookie.
	AccessTokenCookiePath = "/api/v1"

	// RefreshTokenCookieName is the name of the cookie that stores the refresh token.
	RefreshTokenCookieName = "refreshToken"

	// RefreshTokenCookiePath is the scoped path for the refresh token cookie.
	RefreshTokenCookiePath = "/api/v1/auth"
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
	HeaderRetryAfter    = "Retry-After"

	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderThrottleDelay      = "X-Throttle-Delay"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	// RedisPrefixSession is the forward session index: session:{userID}:{jti}.
	RedisPrefixSession = "session:"

	// RedisPrefixTokenIndex is the reverse index: tokenindex:{tokenHash} -> forward key.
	RedisPrefixTokenIndex = "tokenindex:"

	// RedisPrefixThrottle is the root of the throttle counter namespace.
	RedisPrefixThrottle = "throttle:"

	// RedisPrefixResetToken stores password reset tokens: password_reset:{token}.
	RedisPrefixResetToken = "password_reset:"

	// RedisPrefixVerifyToken stores email verification tokens: email_verify:{token}.
	RedisPrefixVerifyToken = "email_verify:"
)
