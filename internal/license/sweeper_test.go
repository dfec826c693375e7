// Copyright (c) 2026 Venlock. All rights reserved.

package license

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venlock/venlock/internal/audit"
)

func TestSweeper_Sweep(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	overdue := fixture.issue(t, "user-1", time.Hour, 1)
	fresh := fixture.issue(t, "user-2", 48*time.Hour, 1)
	revoked := fixture.issue(t, "user-3", time.Hour, 1)
	_, err := fixture.service.Revoke(ctx, "admin-1", revoked.ID)
	require.NoError(t, err)

	sweeper := NewSweeper(fixture.licenses, fixture.auditor, slog.Default(), time.Hour)
	sweeper.Now = func() time.Time { return fixture.now }

	// Nothing is due yet.
	count, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	fixture.advance(2 * time.Hour)

	// Only the overdue Active license transitions; Revoked stays Revoked.
	count, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Contains(t, fixture.auditor.actions(), audit.ActionLicenseExpired)

	expired, err := fixture.service.Get(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)

	untouched, err := fixture.service.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, untouched.Status)

	still, err := fixture.service.Get(ctx, revoked.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, still.Status)

	// A second pass finds nothing: the sweep is idempotent.
	count, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
