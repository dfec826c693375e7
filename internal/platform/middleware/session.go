// Copyright (c) 2026 Venlock. All rights reserved.

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/constants"
	"github.com/venlock/venlock/internal/platform/respond"
)

// SessionChecker answers whether the session behind a (userID, jti) pair is
// still live. Satisfied by the auth session store.
type SessionChecker interface {
	Exists(ctx context.Context, userID, jti string) (bool, error)
}

// sessionGuardBypass lists path suffixes the guard never inspects. Login and
// refresh mint or rotate the session themselves; checking the old state there
// would be circular.
var sessionGuardBypass = []string{
	"/auth/login",
	"/auth/register",
	"/auth/refresh",
}

/*
SessionGuard rejects access tokens whose server-side session has been revoked.

A JWT is self-contained and stays cryptographically valid until exp; this
filter is what makes logout, logout-all, password changes, and admin blocks
take effect immediately. It sits between [Authenticate] and the handlers: for
every authenticated request it looks up session:{sub}:{jti} and fails with 401
(clearing both auth cookies) when the record is gone.

Anonymous requests pass through untouched; RequireAuth decides whether they
may proceed.
*/
func SessionGuard(sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := GetUser(request.Context())
			if claims == nil || guardBypassed(request.URL.Path) {
				next.ServeHTTP(writer, request)
				return
			}

			alive, err := sessions.Exists(request.Context(), claims.UserID(), claims.SessionID())
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			if !alive {
				clearAuthCookies(writer)
				respond.Error(writer, request, apperr.TokenRevoked())
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// guardBypassed reports whether the path is one of the session-minting endpoints.
func guardBypassed(path string) bool {
	for _, suffix := range sessionGuardBypass {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// clearAuthCookies expires both token cookies on rejection so a browser with
// a revoked session does not keep replaying dead credentials.
func clearAuthCookies(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.AccessTokenCookieName,
		Value:    "",
		Path:     constants.AccessTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
