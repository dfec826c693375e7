// Copyright (c) 2026 Venlock. All rights reserved.

/*
Package throttle implements the adaptive three-tier admission engine.

Every request is scored against up to three independent tiers (Global by IP,
User by account, Auth by IP+path). Each tier keeps a per-key counter in the
volatile store and escalates through three outcomes:

  - Allowed: under the soft threshold, no cost.
  - Throttled: between threshold and hard limit, the request proceeds after a
    deliberate, quadratically growing delay.
  - Blocked: over the hard limit, the key enters a penalty window during which
    one attempt per elapsed minute is released.

The penalty bookkeeping is intentionally pessimistic: exhausting the released
attempts after the first minute restarts the penalty clock from scratch.

State layout per key:

	{key}                -> request counter, TTL = windowSeconds
	{key}:penalty        -> unix second the penalty began, TTL = penaltySeconds
	{key}:penalty_used   -> released attempts consumed, TTL = penaltySeconds
*/
package throttle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/venlock/venlock/internal/cache"
	"github.com/venlock/venlock/internal/platform/config"
	"github.com/venlock/venlock/internal/platform/constants"
)

// # Tiers

// Tier identifies one of the three independent throttle dimensions.
type Tier string

const (
	TierGlobal Tier = "global"
	TierUser   Tier = "user"
	TierAuth   Tier = "auth"
)

// Key builds the store key for a tier and its subject (IP, user ID, or IP+path).
func (tier Tier) Key(subject string) string {
	return constants.RedisPrefixThrottle + string(tier) + ":" + subject
}

// # Decisions

// Outcome is the verdict of one tier evaluation.
type Outcome int

const (
	Allowed Outcome = iota
	Throttled
	Blocked
)

// Decision carries the verdict plus everything the transport layer needs to
// render headers and the 429 body.
type Decision struct {
	Outcome Outcome
	Tier    Tier

	// Delay is the deliberate pause for Throttled requests.
	Delay time.Duration

	// Limit and Remaining feed the X-RateLimit-* headers.
	Limit     int
	Remaining int

	// RetryAfterSeconds feeds the Retry-After header on Blocked.
	RetryAfterSeconds int

	// InPenalty reports whether the key is inside a penalty window.
	InPenalty bool

	// PenaltyRemainingSeconds is the time left in the penalty window.
	PenaltyRemainingSeconds int

	// RemainingAttempts is the number of released attempts left this penalty
	// minute (penalty mode only).
	RemainingAttempts int
}

// # Engine

// Engine evaluates tier admission against the shared key-value store.
type Engine struct {
	store    cache.Store
	tiers    map[Tier]config.TierConfig
	disabled bool

	// Now is the clock. Tests overwrite it to walk through penalty minutes.
	Now func() time.Time
}

// NewEngine wires an Engine with per-tier configuration.
func NewEngine(store cache.Store, settings config.ThrottleConfig) *Engine {
	return &Engine{
		store: store,
		tiers: map[Tier]config.TierConfig{
			TierGlobal: settings.Global,
			TierUser:   settings.User,
			TierAuth:   settings.Auth,
		},
		Now: time.Now,
	}
}

// Disabled returns an engine that admits everything. Injected instead of the
// real engine when integration tests need deterministic traffic.
func Disabled() *Engine {
	return &Engine{disabled: true, Now: time.Now}
}

/*
Evaluate scores one request against one tier.

Parameters:
  - context: context.Context
  - tier: Tier
  - subject: string (IP, user ID, or IP+path depending on the tier)

Returns:
  - *Decision: Verdict with transport metadata
  - error: Store connectivity failures wrapping cache.ErrUnavailable
*/
func (engine *Engine) Evaluate(context context.Context, tier Tier, subject string) (*Decision, error) {
	if engine.disabled {
		return &Decision{Outcome: Allowed, Tier: tier}, nil
	}

	settings, configured := engine.tiers[tier]
	if !configured {
		return &Decision{Outcome: Allowed, Tier: tier}, nil
	}

	key := tier.Key(subject)

	// Penalty mode takes precedence over counting.
	inPenalty, penaltyStart, err := engine.penaltyStart(context, key)
	if err != nil {
		return nil, err
	}
	if inPenalty {
		return engine.evaluatePenalty(context, tier, key, settings, penaltyStart)
	}

	return engine.evaluateNormal(context, tier, key, settings)
}

// evaluateNormal applies the counter escalation below the penalty ceiling.
func (engine *Engine) evaluateNormal(context context.Context, tier Tier, key string, settings config.TierConfig) (*Decision, error) {
	window := time.Duration(settings.WindowSeconds) * time.Second

	count, err := engine.store.Increment(context, key, window)
	if err != nil {
		return nil, fmt.Errorf("throttle: counter increment failed: %w", err)
	}

	remaining := settings.MaxRequestsPerMinute - count
	if remaining < 0 {
		remaining = 0
	}

	decision := &Decision{
		Tier:      tier,
		Limit:     int(settings.MaxRequestsPerMinute),
		Remaining: int(remaining),
	}

	switch {
	case count <= settings.ThrottleThreshold:
		decision.Outcome = Allowed

	case count <= settings.MaxRequestsPerMinute:
		decision.Outcome = Throttled
		decision.Delay = progressiveDelay(count, settings)

	default:
		// Over the hard limit: open a penalty window.
		now := engine.Now().Unix()
		penaltyTTL := time.Duration(settings.PenaltySeconds) * time.Second
		if err := engine.store.Set(context, key+":penalty", now, penaltyTTL); err != nil {
			return nil, fmt.Errorf("throttle: penalty open failed: %w", err)
		}

		decision.Outcome = Blocked
		decision.InPenalty = true
		decision.RetryAfterSeconds = settings.WindowSeconds
		decision.PenaltyRemainingSeconds = settings.PenaltySeconds
	}

	return decision, nil
}

// evaluatePenalty applies the one-attempt-per-minute release schedule.
func (engine *Engine) evaluatePenalty(context context.Context, tier Tier, key string, settings config.TierConfig, penaltyStart int64) (*Decision, error) {
	now := engine.Now().Unix()
	elapsed := now - penaltyStart
	if elapsed < 0 {
		elapsed = 0
	}
	elapsedMinutes := elapsed / 60

	used, err := engine.penaltyUsed(context, key)
	if err != nil {
		return nil, err
	}

	penaltyTTL := time.Duration(settings.PenaltySeconds) * time.Second
	decision := &Decision{
		Tier:      tier,
		Limit:     int(settings.MaxRequestsPerMinute),
		InPenalty: true,
	}

	if used >= elapsedMinutes {
		if elapsedMinutes > 0 {
			// Released attempts were consumed and the caller keeps pushing:
			// restart the penalty clock from scratch.
			if err := engine.store.Set(context, key+":penalty", now, penaltyTTL); err != nil {
				return nil, fmt.Errorf("throttle: penalty reset failed: %w", err)
			}
			if err := engine.store.Remove(context, key+":penalty_used"); err != nil {
				return nil, fmt.Errorf("throttle: penalty counter reset failed: %w", err)
			}

			decision.Outcome = Blocked
			decision.RetryAfterSeconds = 60
			decision.PenaltyRemainingSeconds = settings.PenaltySeconds
			return decision, nil
		}

		// First-minute hit: block without advancing the penalty start.
		decision.Outcome = Blocked
		decision.RetryAfterSeconds = int(60 - elapsed%60)
		decision.PenaltyRemainingSeconds = settings.PenaltySeconds - int(elapsed)
		return decision, nil
	}

	// An attempt has been released for this minute: consume it.
	newUsed, err := engine.store.Increment(context, key+":penalty_used", penaltyTTL)
	if err != nil {
		return nil, fmt.Errorf("throttle: penalty consume failed: %w", err)
	}

	decision.Outcome = Allowed
	decision.RemainingAttempts = int(elapsedMinutes - newUsed)
	if decision.RemainingAttempts < 0 {
		decision.RemainingAttempts = 0
	}
	decision.PenaltyRemainingSeconds = settings.PenaltySeconds - int(elapsed)
	return decision, nil
}

// penaltyStart reads the penalty marker. Returns (false, 0, nil) when absent.
func (engine *Engine) penaltyStart(context context.Context, key string) (bool, int64, error) {
	var start int64
	found, err := engine.store.Get(context, key+":penalty", &start)
	if err != nil {
		return false, 0, fmt.Errorf("throttle: penalty read failed: %w", err)
	}
	return found, start, nil
}

// penaltyUsed reads the released-attempt counter, defaulting to zero.
func (engine *Engine) penaltyUsed(context context.Context, key string) (int64, error) {
	var used int64
	found, err := engine.store.Get(context, key+":penalty_used", &used)
	if err != nil {
		return 0, fmt.Errorf("throttle: penalty counter read failed: %w", err)
	}
	if !found {
		return 0, nil
	}
	return used, nil
}

// progressiveDelay computes the deterministic quadratic backoff for the
// Throttled band: ratio of the way from threshold to limit, squared, scaled
// to maxDelayMs.
func progressiveDelay(count int64, settings config.TierConfig) time.Duration {
	span := settings.MaxRequestsPerMinute - settings.ThrottleThreshold
	if span <= 0 {
		return time.Duration(settings.MaxDelayMs) * time.Millisecond
	}

	ratio := float64(count-settings.ThrottleThreshold) / float64(span)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	delayMs := math.Round(float64(settings.MaxDelayMs) * ratio * ratio)
	if delayMs < 0 {
		delayMs = 0
	}
	if delayMs > float64(settings.MaxDelayMs) {
		delayMs = float64(settings.MaxDelayMs)
	}

	return time.Duration(delayMs) * time.Millisecond
}
