// Copyright (c) 2026 Venlock. All rights reserved.

package license

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venlock/venlock/internal/audit"
	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/config"
)

// # In-Memory Stores

type memoryLicenses struct {
	mu   sync.Mutex
	rows map[string]*License
}

func newMemoryLicenses() *memoryLicenses {
	return &memoryLicenses{rows: make(map[string]*License)}
}

func (store *memoryLicenses) Create(_ context.Context, license *License) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if license.ID == "" {
		license.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if license.CreatedAt.IsZero() {
		license.CreatedAt = now
	}
	license.UpdatedAt = now

	clone := *license
	store.rows[license.ID] = &clone
	return nil
}

func (store *memoryLicenses) FindByID(_ context.Context, id string) (*License, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	row, found := store.rows[id]
	if !found {
		return nil, apperr.NotFound("License")
	}
	clone := *row
	return &clone, nil
}

func (store *memoryLicenses) FindByKey(_ context.Context, key string) (*License, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, row := range store.rows {
		if row.Key == key {
			clone := *row
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("License")
}

func (store *memoryLicenses) ListByUser(_ context.Context, userID string) ([]License, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var out []License
	for _, row := range store.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (store *memoryLicenses) List(_ context.Context, limit, offset int) ([]License, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var out []License
	for _, row := range store.rows {
		out = append(out, *row)
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (store *memoryLicenses) Update(_ context.Context, license *License) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, found := store.rows[license.ID]; !found {
		return apperr.NotFound("License")
	}
	clone := *license
	store.rows[license.ID] = &clone
	return nil
}

func (store *memoryLicenses) Delete(_ context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, found := store.rows[id]; !found {
		return apperr.NotFound("License")
	}
	delete(store.rows, id)
	return nil
}

func (store *memoryLicenses) RevokeBatch(_ context.Context, ids []string, now time.Time) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var revoked int64
	utc := now.UTC()
	for _, id := range ids {
		row, found := store.rows[id]
		if !found || row.Status == StatusRevoked {
			continue
		}
		row.Status = StatusRevoked
		row.RevokedAt = &utc
		row.UpdatedAt = utc
		revoked++
	}
	return revoked, nil
}

func (store *memoryLicenses) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var expired int64
	for _, row := range store.rows {
		if row.Expire(now) {
			expired++
		}
	}
	return expired, nil
}

func (store *memoryLicenses) CountByStatus(_ context.Context) (map[Status]int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	counts := make(map[Status]int64)
	for _, row := range store.rows {
		counts[row.Status]++
	}
	return counts, nil
}

func (store *memoryLicenses) HasActiveForUser(_ context.Context, userID string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, row := range store.rows {
		if row.UserID == userID && row.Status == StatusActive {
			return true, nil
		}
	}
	return false, nil
}

type memoryActivations struct {
	mu   sync.Mutex
	rows []*Activation
}

func (store *memoryActivations) Activate(_ context.Context, license *License, fingerprint string, hostname, ipAddress *string, now time.Time) (*Activation, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	utc := now.UTC()
	if live := store.live(license.ID, fingerprint); live != nil {
		live.Touch(utc, hostname, ipAddress)
		clone := *live
		return &clone, false, nil
	}

	if license.MaxActivations > 0 && store.countLive(license.ID) >= license.MaxActivations {
		return nil, false, apperr.ActivationLimitReached(license.MaxActivations)
	}

	activation := &Activation{
		ID:          uuid.NewString(),
		LicenseID:   license.ID,
		Fingerprint: fingerprint,
		Hostname:    hostname,
		IPAddress:   ipAddress,
		ActivatedAt: utc,
		LastSeenAt:  utc,
	}
	store.rows = append(store.rows, activation)

	clone := *activation
	return &clone, true, nil
}

func (store *memoryActivations) FindLive(_ context.Context, licenseID, fingerprint string) (*Activation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if live := store.live(licenseID, fingerprint); live != nil {
		clone := *live
		return &clone, nil
	}
	return nil, apperr.NotFound("Activation")
}

func (store *memoryActivations) ListByLicense(_ context.Context, licenseID string) ([]Activation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var out []Activation
	for _, row := range store.rows {
		if row.LicenseID == licenseID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (store *memoryActivations) CountLive(_ context.Context, licenseID string) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.countLive(licenseID), nil
}

func (store *memoryActivations) Heartbeat(_ context.Context, licenseID, fingerprint string, hostname, ipAddress *string, now time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	live := store.live(licenseID, fingerprint)
	if live == nil {
		return apperr.NotFound("Activation")
	}
	live.Touch(now.UTC(), hostname, ipAddress)
	return nil
}

func (store *memoryActivations) Deactivate(_ context.Context, licenseID, fingerprint string, now time.Time) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	live := store.live(licenseID, fingerprint)
	if live == nil {
		return false, nil
	}
	utc := now.UTC()
	live.DeactivatedAt = &utc
	return true, nil
}

func (store *memoryActivations) live(licenseID, fingerprint string) *Activation {
	for _, row := range store.rows {
		if row.LicenseID == licenseID && row.Fingerprint == fingerprint && row.IsLive() {
			return row
		}
	}
	return nil
}

func (store *memoryActivations) countLive(licenseID string) int {
	count := 0
	for _, row := range store.rows {
		if row.LicenseID == licenseID && row.IsLive() {
			count++
		}
	}
	return count
}

// # Fixture

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (auditor *recordingAuditor) Record(_ context.Context, entry audit.Entry) error {
	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	auditor.entries = append(auditor.entries, entry)
	return nil
}

func (auditor *recordingAuditor) actions() []string {
	auditor.mu.Lock()
	defer auditor.mu.Unlock()

	out := make([]string, len(auditor.entries))
	for i, entry := range auditor.entries {
		out[i] = entry.Action
	}
	return out
}

type serviceFixture struct {
	service     *Service
	licenses    *memoryLicenses
	activations *memoryActivations
	auditor     *recordingAuditor
	now         time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	fixture := &serviceFixture{
		licenses:    newMemoryLicenses(),
		activations: &memoryActivations{},
		auditor:     &recordingAuditor{},
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	fixture.service = NewService(fixture.licenses, fixture.activations, fixture.auditor, config.LicenseConfig{})
	fixture.service.Now = func() time.Time { return fixture.now }
	return fixture
}

func (fixture *serviceFixture) advance(delta time.Duration) {
	fixture.now = fixture.now.Add(delta)
}

func (fixture *serviceFixture) issue(t *testing.T, userID string, ttl time.Duration, maxActivations int) *License {
	t.Helper()

	license, err := fixture.service.Create(context.Background(), "admin-1", CreateInput{
		UserID:         userID,
		ExpiresAt:      fixture.now.Add(ttl),
		MaxActivations: maxActivations,
	})
	require.NoError(t, err)
	return license
}

func str(value string) *string { return &value }

// # Tests

func TestService_Create(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	t.Run("issues an active license with a well-formed key", func(t *testing.T) {
		license := fixture.issue(t, "user-1", 30*24*time.Hour, 3)

		assert.Regexp(t, keyFormat, license.Key)
		assert.Equal(t, StatusActive, license.Status)
		assert.Equal(t, 3, license.MaxActivations)
		assert.Contains(t, fixture.auditor.actions(), audit.ActionLicenseCreated)

		loaded, err := fixture.service.Get(ctx, license.ID)
		require.NoError(t, err)
		assert.Equal(t, license.Key, loaded.Key)
	})

	t.Run("rejects an expiry that is not in the future", func(t *testing.T) {
		_, err := fixture.service.Create(ctx, "admin-1", CreateInput{
			UserID:    "user-1",
			ExpiresAt: fixture.now,
		})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "VALIDATION_ERROR"))
	})

	t.Run("enforces the single active license policy when enabled", func(t *testing.T) {
		fixture.service.enforceSingleActive = true
		defer func() { fixture.service.enforceSingleActive = false }()

		_, err := fixture.service.Create(ctx, "admin-1", CreateInput{
			UserID:    "user-1",
			ExpiresAt: fixture.now.Add(time.Hour),
		})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "CONFLICT"))
	})
}

func TestService_RenewAndRevoke(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	license := fixture.issue(t, "user-1", time.Hour, 1)

	t.Run("renew brings an expired license back to active", func(t *testing.T) {
		fixture.advance(2 * time.Hour)
		_, err := fixture.licenses.ExpireDue(ctx, fixture.now)
		require.NoError(t, err)

		renewed, err := fixture.service.Renew(ctx, "admin-1", license.ID, fixture.now.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, StatusActive, renewed.Status)
		assert.Contains(t, fixture.auditor.actions(), audit.ActionLicenseRenewed)
	})

	t.Run("renew rejects a past expiry", func(t *testing.T) {
		_, err := fixture.service.Renew(ctx, "admin-1", license.ID, fixture.now.Add(-time.Minute))
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "VALIDATION_ERROR"))
	})

	t.Run("revoke is terminal", func(t *testing.T) {
		revoked, err := fixture.service.Revoke(ctx, "admin-1", license.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusRevoked, revoked.Status)
		require.NotNil(t, revoked.RevokedAt)

		_, err = fixture.service.Revoke(ctx, "admin-1", license.ID)
		assert.True(t, apperr.IsCode(err, "CONFLICT"))

		_, err = fixture.service.Renew(ctx, "admin-1", license.ID, fixture.now.Add(24*time.Hour))
		assert.True(t, apperr.IsCode(err, "CONFLICT"))
	})
}

func TestService_BulkRevoke(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	first := fixture.issue(t, "user-1", time.Hour, 1)
	second := fixture.issue(t, "user-2", time.Hour, 1)

	_, err := fixture.service.Revoke(ctx, "admin-1", first.ID)
	require.NoError(t, err)

	// One already revoked, one live, one unknown: only the live one counts.
	revoked, err := fixture.service.BulkRevoke(ctx, "admin-1", []string{first.ID, second.ID, uuid.NewString()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), revoked)

	_, err = fixture.service.BulkRevoke(ctx, "admin-1", nil)
	assert.True(t, apperr.IsCode(err, "VALIDATION_ERROR"))
}

func TestService_Activate(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	license := fixture.issue(t, "user-1", 24*time.Hour, 2)

	t.Run("first activation takes a seat", func(t *testing.T) {
		activation, err := fixture.service.Activate(ctx, ActivateInput{
			Key:         license.Key,
			Fingerprint: "machine-aaaa",
			Hostname:    str("workstation-1"),
			IPAddress:   str("203.0.113.9"),
		})
		require.NoError(t, err)
		assert.True(t, activation.IsLive())
		assert.Contains(t, fixture.auditor.actions(), audit.ActionLicenseActivated)
	})

	t.Run("repeat activation is a heartbeat, not a second seat", func(t *testing.T) {
		fixture.advance(10 * time.Minute)

		activation, err := fixture.service.Activate(ctx, ActivateInput{
			Key:         license.Key,
			Fingerprint: "machine-aaaa",
			IPAddress:   str("203.0.113.50"),
		})
		require.NoError(t, err)

		// Hostname survives a heartbeat that omits it; the IP does not.
		require.NotNil(t, activation.Hostname)
		assert.Equal(t, "workstation-1", *activation.Hostname)
		require.NotNil(t, activation.IPAddress)
		assert.Equal(t, "203.0.113.50", *activation.IPAddress)
		assert.Equal(t, fixture.now, activation.LastSeenAt)

		count, err := fixture.activations.CountLive(ctx, license.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("the cap rejects one machine too many", func(t *testing.T) {
		_, err := fixture.service.Activate(ctx, ActivateInput{Key: license.Key, Fingerprint: "machine-bbbb"})
		require.NoError(t, err)

		_, err = fixture.service.Activate(ctx, ActivateInput{Key: license.Key, Fingerprint: "machine-cccc"})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "ACTIVATION_LIMIT"))
	})

	t.Run("zero max activations means unlimited", func(t *testing.T) {
		unlimited := fixture.issue(t, "user-2", 24*time.Hour, 0)

		for i := 0; i < 10; i++ {
			_, err := fixture.service.Activate(ctx, ActivateInput{
				Key:         unlimited.Key,
				Fingerprint: "machine-" + uuid.NewString(),
			})
			require.NoError(t, err)
		}
	})

	t.Run("an expired license cannot activate", func(t *testing.T) {
		short := fixture.issue(t, "user-3", time.Minute, 1)
		fixture.advance(time.Minute)

		_, err := fixture.service.Activate(ctx, ActivateInput{Key: short.Key, Fingerprint: "machine-dddd"})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, "CONFLICT"))
	})

	t.Run("an unknown key is not found", func(t *testing.T) {
		_, err := fixture.service.Activate(ctx, ActivateInput{Key: "AAAAA-BBBBB-CCCCC-DDDDD-EEEEE", Fingerprint: "machine-eeee"})
		assert.True(t, apperr.IsCode(err, "NOT_FOUND"))
	})
}

func TestService_Validate(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	license := fixture.issue(t, "user-1", time.Hour, 1)
	_, err := fixture.service.Activate(ctx, ActivateInput{Key: license.Key, Fingerprint: "machine-aaaa"})
	require.NoError(t, err)

	t.Run("an activated machine is entitled and leaves a sighting", func(t *testing.T) {
		fixture.advance(5 * time.Minute)

		verdict, err := fixture.service.Validate(ctx, license.Key, "machine-aaaa")
		require.NoError(t, err)
		assert.True(t, verdict.Valid)
		assert.Equal(t, StatusActive, verdict.Status)

		seat, err := fixture.activations.FindLive(ctx, license.ID, "machine-aaaa")
		require.NoError(t, err)
		assert.Equal(t, fixture.now, seat.LastSeenAt)
	})

	t.Run("a machine without a seat is not entitled", func(t *testing.T) {
		verdict, err := fixture.service.Validate(ctx, license.Key, "machine-zzzz")
		require.NoError(t, err)
		assert.False(t, verdict.Valid)
		assert.Equal(t, ReasonNotActivated, verdict.Reason)
	})

	t.Run("expiry at the exact instant counts as expired", func(t *testing.T) {
		boundary := fixture.issue(t, "user-2", 10*time.Minute, 1)
		_, err := fixture.service.Activate(ctx, ActivateInput{Key: boundary.Key, Fingerprint: "machine-bbbb"})
		require.NoError(t, err)

		fixture.advance(10 * time.Minute)

		verdict, err := fixture.service.Validate(ctx, boundary.Key, "machine-bbbb")
		require.NoError(t, err)
		assert.False(t, verdict.Valid)
		assert.Equal(t, StatusExpired, verdict.Status)
		assert.Equal(t, ReasonExpired, verdict.Reason)
	})

	t.Run("a revoked license is never valid", func(t *testing.T) {
		_, err := fixture.service.Revoke(ctx, "admin-1", license.ID)
		require.NoError(t, err)

		verdict, err := fixture.service.Validate(ctx, license.Key, "machine-aaaa")
		require.NoError(t, err)
		assert.False(t, verdict.Valid)
		assert.Equal(t, ReasonRevoked, verdict.Reason)
	})

	t.Run("an unknown key is not found", func(t *testing.T) {
		_, err := fixture.service.Validate(ctx, "AAAAA-BBBBB-CCCCC-DDDDD-EEEEE", "machine-aaaa")
		assert.True(t, apperr.IsCode(err, "NOT_FOUND"))
	})
}

func TestService_DeactivateAndHeartbeat(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	license := fixture.issue(t, "user-1", time.Hour, 1)
	_, err := fixture.service.Activate(ctx, ActivateInput{Key: license.Key, Fingerprint: "machine-aaaa"})
	require.NoError(t, err)

	t.Run("heartbeat refreshes the seat", func(t *testing.T) {
		fixture.advance(time.Minute)

		err := fixture.service.Heartbeat(ctx, ActivateInput{
			Key:         license.Key,
			Fingerprint: "machine-aaaa",
			IPAddress:   str("198.51.100.4"),
		})
		require.NoError(t, err)

		seat, err := fixture.activations.FindLive(ctx, license.ID, "machine-aaaa")
		require.NoError(t, err)
		assert.Equal(t, fixture.now, seat.LastSeenAt)
	})

	t.Run("deactivate frees the seat for another machine", func(t *testing.T) {
		require.NoError(t, fixture.service.Deactivate(ctx, license.Key, "machine-aaaa"))
		assert.Contains(t, fixture.auditor.actions(), audit.ActionLicenseDeactivated)

		// Blind repeat is a no-op, not an error.
		require.NoError(t, fixture.service.Deactivate(ctx, license.Key, "machine-aaaa"))

		// The freed seat can be taken by a different fingerprint.
		_, err := fixture.service.Activate(ctx, ActivateInput{Key: license.Key, Fingerprint: "machine-bbbb"})
		require.NoError(t, err)
	})

	t.Run("heartbeat without a seat is not found", func(t *testing.T) {
		err := fixture.service.Heartbeat(ctx, ActivateInput{Key: license.Key, Fingerprint: "machine-gone"})
		assert.True(t, apperr.IsCode(err, "NOT_FOUND"))
	})
}
