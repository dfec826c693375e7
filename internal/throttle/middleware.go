// Copyright (c) 2026 Venlock. All rights reserved.

package throttle

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/constants"
	"github.com/venlock/venlock/internal/platform/middleware"
	"github.com/venlock/venlock/internal/platform/respond"
)

// blockedResponse is the 429 body. It deliberately does not use the standard
// envelope: desktop clients parse this shape to drive their retry timers.
type blockedResponse struct {
	StatusCode              int    `json:"statusCode"`
	Message                 string `json:"message"`
	RemainingAttempts       int    `json:"remainingAttempts"`
	NextAttemptInSeconds    int    `json:"nextAttemptInSeconds"`
	PenaltyRemainingSeconds int    `json:"penaltyRemainingSeconds,omitempty"`
	InPenalty               bool   `json:"inPenalty"`
}

/*
Middleware evaluates the three throttle tiers for every request.

Order is Global (by IP), then User (by account, authenticated requests only),
then Auth (by IP and path, auth endpoints only). The first Blocked verdict
short-circuits with 429. Throttled verdicts accumulate: the request proceeds
after the largest delay any tier demanded, honoring request cancellation.
*/
func Middleware(engine *Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			ip := middleware.RealIP(request)

			evaluations := []struct {
				tier    Tier
				subject string
			}{
				{TierGlobal, ip},
			}
			if claims := middleware.GetUser(request.Context()); claims != nil {
				evaluations = append(evaluations, struct {
					tier    Tier
					subject string
				}{TierUser, claims.UserID()})
			}
			if isAuthEndpoint(request.URL.Path) {
				evaluations = append(evaluations, struct {
					tier    Tier
					subject string
				}{TierAuth, ip + ":" + request.URL.Path})
			}

			var maxDelay time.Duration
			var throttled *Decision

			for _, evaluation := range evaluations {
				decision, err := engine.Evaluate(request.Context(), evaluation.tier, evaluation.subject)
				if err != nil {
					// Admission control cannot run without its store. Failing
					// open here would disable brute-force protection exactly
					// when an attacker manages to degrade the cache.
					respond.Error(writer, request, apperr.CacheUnavailable(err))
					return
				}

				switch decision.Outcome {
				case Blocked:
					writeBlocked(writer, decision)
					return
				case Throttled:
					if decision.Delay > maxDelay {
						maxDelay = decision.Delay
						throttled = decision
					}
				}
			}

			if throttled != nil {
				writer.Header().Set(constants.HeaderRateLimitLimit, strconv.Itoa(throttled.Limit))
				writer.Header().Set(constants.HeaderRateLimitRemaining, strconv.Itoa(throttled.Remaining))
				writer.Header().Set(constants.HeaderThrottleDelay, strconv.FormatInt(maxDelay.Milliseconds(), 10))

				select {
				case <-time.After(maxDelay):
				case <-request.Context().Done():
					return
				}
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// writeBlocked renders the 429 verdict with its retry metadata.
func writeBlocked(writer http.ResponseWriter, decision *Decision) {
	writer.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(decision.RetryAfterSeconds))

	respond.JSON(writer, http.StatusTooManyRequests, blockedResponse{
		StatusCode:              http.StatusTooManyRequests,
		Message:                 "Too many requests. Please slow down.",
		RemainingAttempts:       decision.RemainingAttempts,
		NextAttemptInSeconds:    decision.RetryAfterSeconds,
		PenaltyRemainingSeconds: decision.PenaltyRemainingSeconds,
		InPenalty:               decision.InPenalty,
	})
}

// isAuthEndpoint reports whether the path belongs to the credential surface
// the tight Auth tier protects. Refresh is deliberately excluded: it already
// requires possession of a valid refresh token.
func isAuthEndpoint(path string) bool {
	return strings.HasSuffix(path, "/auth/login") || strings.HasSuffix(path, "/auth/register")
}
