// Copyright (c) 2026 Venlock. All rights reserved.

package license

import (
	"context"
	"log/slog"
	"time"

	"github.com/venlock/venlock/internal/audit"
)

// Sweeper is the background worker that transitions overdue Active licenses
// to Expired.
//
// The transition is monotonic and the batched update is idempotent, so
// multiple nodes can run sweepers concurrently without coordination.
type Sweeper struct {
	licenses Repository
	auditor  audit.Recorder
	logger   *slog.Logger
	interval time.Duration

	// Now is the clock. Tests overwrite it to move the expiry horizon.
	Now func() time.Time
}

// NewSweeper wires the expiration worker.
func NewSweeper(licenses Repository, auditor audit.Recorder, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		licenses: licenses,
		auditor:  auditor,
		logger:   logger,
		interval: interval,
		Now:      time.Now,
	}
}

// Run sweeps once immediately, then on every interval tick until the context
// is cancelled. Intended to run on its own goroutine.
func (sweeper *Sweeper) Run(ctx context.Context) {
	if _, err := sweeper.Sweep(ctx); err != nil {
		sweeper.logger.ErrorContext(ctx, "license_sweep_failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := sweeper.Sweep(ctx); err != nil {
				sweeper.logger.ErrorContext(ctx, "license_sweep_failed", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			return
		}
	}
}

/*
Sweep runs one expiration pass.

Parameters:
  - ctx: context.Context

Returns:
  - int64: Number of licenses transitioned to Expired
  - error: Persistence failures
*/
func (sweeper *Sweeper) Sweep(ctx context.Context) (int64, error) {
	expired, err := sweeper.licenses.ExpireDue(ctx, sweeper.Now())
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		sweeper.logger.InfoContext(ctx, "licenses_expired", slog.Int64("count", expired))

		if sweeper.auditor != nil {
			_ = sweeper.auditor.Record(ctx, audit.Entry{
				Action:     audit.ActionLicenseExpired,
				TargetType: "license",
				Metadata:   map[string]any{"count": expired},
			})
		}
	}

	return expired, nil
}
