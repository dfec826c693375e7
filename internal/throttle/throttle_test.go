// Copyright (c) 2026 Venlock. All rights reserved.

package throttle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venlock/venlock/internal/cache"
	"github.com/venlock/venlock/internal/platform/config"
)

// testClock lets tests walk the engine and the store through penalty minutes
// in lockstep.
type testClock struct {
	now time.Time
}

func (clock *testClock) Now() time.Time {
	return clock.now
}

func (clock *testClock) Advance(delta time.Duration) {
	clock.now = clock.now.Add(delta)
}

// tightTier mirrors the production auth tier: throttle above 3, block above 5.
func tightTier() config.TierConfig {
	return config.TierConfig{
		ThrottleThreshold:    3,
		MaxRequestsPerMinute: 5,
		WindowSeconds:        60,
		MaxDelayMs:           5000,
		PenaltySeconds:       300,
	}
}

func newTestEngine(t *testing.T) (*Engine, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}

	store := cache.NewMemoryStore()
	store.Now = clock.Now

	engine := NewEngine(store, config.ThrottleConfig{
		Global: tightTier(),
		User:   tightTier(),
		Auth:   tightTier(),
	})
	engine.Now = clock.Now

	return engine, clock
}

// drive runs count evaluations and returns the last decision.
func drive(t *testing.T, engine *Engine, count int) *Decision {
	t.Helper()

	var last *Decision
	for i := 0; i < count; i++ {
		decision, err := engine.Evaluate(context.Background(), TierAuth, "10.0.0.1:/api/v1/auth/login")
		require.NoError(t, err)
		last = decision
	}
	return last
}

func TestEngine_NormalEscalation(t *testing.T) {
	engine, _ := newTestEngine(t)

	// Requests 1..3 are free.
	for i := 1; i <= 3; i++ {
		decision := drive(t, engine, 1)
		assert.Equal(t, Allowed, decision.Outcome, "request %d", i)
		assert.Zero(t, decision.Delay)
	}

	// Request 4 is halfway between threshold and limit: quadratic delay.
	decision := drive(t, engine, 1)
	assert.Equal(t, Throttled, decision.Outcome)
	assert.Equal(t, 1250*time.Millisecond, decision.Delay)
	assert.Equal(t, 1, decision.Remaining)

	// Request 5 sits on the hard limit: still throttled, maximum delay.
	decision = drive(t, engine, 1)
	assert.Equal(t, Throttled, decision.Outcome)
	assert.Equal(t, 5000*time.Millisecond, decision.Delay)
	assert.Equal(t, 0, decision.Remaining)

	// Request 6 crosses the limit and opens a penalty window.
	decision = drive(t, engine, 1)
	assert.Equal(t, Blocked, decision.Outcome)
	assert.True(t, decision.InPenalty)
	assert.Equal(t, 60, decision.RetryAfterSeconds)
	assert.Equal(t, 300, decision.PenaltyRemainingSeconds)
}

func TestEngine_WindowDecay(t *testing.T) {
	engine, clock := newTestEngine(t)

	decision := drive(t, engine, 4)
	require.Equal(t, Throttled, decision.Outcome)

	// Let the counter window lapse; the slate is clean again.
	clock.Advance(61 * time.Second)

	decision = drive(t, engine, 1)
	assert.Equal(t, Allowed, decision.Outcome)
}

func TestEngine_PenaltyFirstMinute(t *testing.T) {
	engine, clock := newTestEngine(t)

	require.Equal(t, Blocked, drive(t, engine, 6).Outcome)

	// Hammering within the first minute blocks without restarting the clock.
	clock.Advance(30 * time.Second)

	decision := drive(t, engine, 1)
	assert.Equal(t, Blocked, decision.Outcome)
	assert.True(t, decision.InPenalty)
	assert.Equal(t, 30, decision.RetryAfterSeconds)
	assert.Equal(t, 270, decision.PenaltyRemainingSeconds)

	// The penalty start did not move: a full minute from the original block
	// still releases an attempt.
	clock.Advance(31 * time.Second)

	decision = drive(t, engine, 1)
	assert.Equal(t, Allowed, decision.Outcome)
	assert.True(t, decision.InPenalty)
	assert.Equal(t, 0, decision.RemainingAttempts)
}

func TestEngine_PenaltyReleaseAndReset(t *testing.T) {
	engine, clock := newTestEngine(t)

	require.Equal(t, Blocked, drive(t, engine, 6).Outcome)

	// One minute in: exactly one attempt is released.
	clock.Advance(61 * time.Second)

	decision := drive(t, engine, 1)
	require.Equal(t, Allowed, decision.Outcome)
	assert.Equal(t, 0, decision.RemainingAttempts)
	assert.Equal(t, 239, decision.PenaltyRemainingSeconds)

	// A second attempt in the same minute exhausts the release and restarts
	// the penalty clock from scratch.
	decision = drive(t, engine, 1)
	require.Equal(t, Blocked, decision.Outcome)
	assert.Equal(t, 60, decision.RetryAfterSeconds)
	assert.Equal(t, 300, decision.PenaltyRemainingSeconds)

	// The restart is real: 30 seconds later we are back in the first minute.
	clock.Advance(30 * time.Second)

	decision = drive(t, engine, 1)
	assert.Equal(t, Blocked, decision.Outcome)
	assert.Equal(t, 30, decision.RetryAfterSeconds)
}

func TestEngine_PenaltyAccruesOneAttemptPerMinute(t *testing.T) {
	engine, clock := newTestEngine(t)

	require.Equal(t, Blocked, drive(t, engine, 6).Outcome)

	// Three full minutes of silence bank three attempts.
	clock.Advance(3*time.Minute + 5*time.Second)

	for want := 2; want >= 0; want-- {
		decision := drive(t, engine, 1)
		require.Equal(t, Allowed, decision.Outcome)
		assert.Equal(t, want, decision.RemainingAttempts)
	}

	// The fourth attempt overdraws the bank and resets the penalty.
	decision := drive(t, engine, 1)
	assert.Equal(t, Blocked, decision.Outcome)
	assert.Equal(t, 60, decision.RetryAfterSeconds)
}

func TestEngine_TiersAreIndependent(t *testing.T) {
	engine, _ := newTestEngine(t)

	require.Equal(t, Blocked, drive(t, engine, 6).Outcome)

	// A different subject on the same tier is untouched.
	decision, err := engine.Evaluate(context.Background(), TierAuth, "10.9.9.9:/api/v1/auth/login")
	require.NoError(t, err)
	assert.Equal(t, Allowed, decision.Outcome)

	// The same subject on another tier is untouched too.
	decision, err = engine.Evaluate(context.Background(), TierGlobal, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, Allowed, decision.Outcome)
}

func TestEngine_Disabled(t *testing.T) {
	engine := Disabled()

	for i := 0; i < 100; i++ {
		decision, err := engine.Evaluate(context.Background(), TierAuth, "10.0.0.1:/x")
		require.NoError(t, err)
		assert.Equal(t, Allowed, decision.Outcome)
	}
}

func TestMiddleware_BlocksAuthEndpoint(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}

	store := cache.NewMemoryStore()
	store.Now = clock.Now

	// Wide-open global tier, tight auth tier, tiny delays so the test does
	// not actually sleep for seconds.
	tight := tightTier()
	tight.MaxDelayMs = 2
	loose := config.TierConfig{
		ThrottleThreshold:    1000,
		MaxRequestsPerMinute: 2000,
		WindowSeconds:        60,
		MaxDelayMs:           2,
		PenaltySeconds:       300,
	}

	engine := NewEngine(store, config.ThrottleConfig{Global: loose, User: loose, Auth: tight})
	engine.Now = clock.Now

	handler := Middleware(engine)(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
	}))

	hit := func() *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		request.RemoteAddr = "198.51.100.7:54321"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit().Code)
	}

	// Throttled band: request passes but carries the rate headers.
	recorder := hit()
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "5", recorder.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", recorder.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, recorder.Header().Get("X-Throttle-Delay"))

	hit()

	// Over the limit: 429 with the retry metadata body.
	recorder = hit()
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, "60", recorder.Header().Get("Retry-After"))

	var body blockedResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, http.StatusTooManyRequests, body.StatusCode)
	assert.True(t, body.InPenalty)
	assert.Equal(t, 60, body.NextAttemptInSeconds)
	assert.Equal(t, 300, body.PenaltyRemainingSeconds)
}

func TestMiddleware_NonAuthPathSkipsAuthTier(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}

	store := cache.NewMemoryStore()
	store.Now = clock.Now

	tight := tightTier()
	loose := config.TierConfig{
		ThrottleThreshold:    1000,
		MaxRequestsPerMinute: 2000,
		WindowSeconds:        60,
		MaxDelayMs:           2,
		PenaltySeconds:       300,
	}

	engine := NewEngine(store, config.ThrottleConfig{Global: loose, User: loose, Auth: tight})
	engine.Now = clock.Now

	handler := Middleware(engine)(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
	}))

	// Far past the auth tier's limit, but these are not auth endpoints.
	for i := 0; i < 20; i++ {
		request := httptest.NewRequest(http.MethodGet, "/api/v1/licenses", nil)
		request.RemoteAddr = "198.51.100.7:54321"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		require.Equal(t, http.StatusOK, recorder.Code)
	}
}
