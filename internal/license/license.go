// Copyright (c) 2026 Venlock. All rights reserved.

/*
Package license implements issuance, activation, and validation of software
license keys.

A License belongs to one user and carries an expiry and a machine activation
cap. Activations bind a license to a machine fingerprint; a fingerprint holds
at most one live activation per license. Validation is the hot path desktop
clients call on startup: it answers whether (license, fingerprint) is entitled
to run right now.

State machine:

	create -> Active -> Revoked        (terminal)
	          Active -> Expired        (expiry sweep)
	          Expired -> Active        (renew)

Revoked never transitions out except by admin delete.
*/
package license

import (
	"time"

	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/validate"
)

// # License States

// Status is the lifecycle state of a license.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// IsValid reports whether the status is one of the known states.
func (status Status) IsValid() bool {
	switch status {
	case StatusActive, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// # Entities

// License is the issued entitlement record.
type License struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	UserID string `json:"user_id"`

	// MaxActivations caps live machine activations. Zero means unlimited.
	MaxActivations int `json:"max_activations"`

	Status    Status     `json:"status"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Activation binds a license to one machine fingerprint.
type Activation struct {
	ID        string `json:"id"`
	LicenseID string `json:"license_id"`

	// Fingerprint is the client-computed machine identity, 8 to 256 characters.
	Fingerprint string  `json:"fingerprint"`
	Hostname    *string `json:"hostname,omitempty"`
	IPAddress   *string `json:"ip_address,omitempty"`

	ActivatedAt   time.Time  `json:"activated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	LastSeenAt    time.Time  `json:"last_seen_at"`
}

// IsLive reports whether the activation still occupies a seat.
func (activation *Activation) IsLive() bool {
	return activation.DeactivatedAt == nil
}

// Touch records a heartbeat. The IP is always overwritten; the hostname is
// kept when the client did not report one, because many clients only send it
// on first activation.
func (activation *Activation) Touch(now time.Time, hostname, ipAddress *string) {
	activation.LastSeenAt = now
	activation.IPAddress = ipAddress
	if hostname != nil {
		activation.Hostname = hostname
	}
}

// # State Transitions

// IsExpired reports whether the license expiry has passed. A license expiring
// exactly now is expired.
func (license *License) IsExpired(now time.Time) bool {
	return !now.Before(license.ExpiresAt)
}

// EffectiveStatus folds real-time expiry into the stored status, so callers
// between sweeps still see Expired.
func (license *License) EffectiveStatus(now time.Time) Status {
	if license.Status == StatusActive && license.IsExpired(now) {
		return StatusExpired
	}
	return license.Status
}

/*
Renew extends the license to a new expiry and returns it to Active.

Parameters:
  - newExpiresAt: time.Time (must be in the future)
  - now: time.Time

Returns:
  - error: apperr.Conflict when Revoked, validation error when the new expiry
    is not in the future
*/
func (license *License) Renew(newExpiresAt, now time.Time) error {
	if license.Status == StatusRevoked {
		return apperr.Conflict("License is revoked and cannot be renewed")
	}
	if !newExpiresAt.After(now) {
		return validate.RequiredError(FieldExpiresAt, "Must be in the future")
	}

	license.ExpiresAt = newExpiresAt.UTC()
	license.Status = StatusActive
	license.UpdatedAt = now.UTC()
	return nil
}

/*
Revoke permanently disables the license.

Returns:
  - error: apperr.Conflict when already Revoked
*/
func (license *License) Revoke(now time.Time) error {
	if license.Status == StatusRevoked {
		return apperr.Conflict("License is already revoked")
	}

	utc := now.UTC()
	license.Status = StatusRevoked
	license.RevokedAt = &utc
	license.UpdatedAt = utc
	return nil
}

// Expire transitions an overdue Active license to Expired. Reports whether a
// transition happened.
func (license *License) Expire(now time.Time) bool {
	if license.Status != StatusActive || !license.IsExpired(now) {
		return false
	}
	license.Status = StatusExpired
	license.UpdatedAt = now.UTC()
	return true
}

// # Validation Verdicts

// Verdict reason codes returned to clients. Stable strings, not prose.
const (
	ReasonExpired      = "license_expired"
	ReasonRevoked      = "license_revoked"
	ReasonNotActivated = "not_activated_on_this_machine"
)

// Verdict is the answer to a client validation call.
type Verdict struct {
	Valid     bool      `json:"valid"`
	Status    Status    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason,omitempty"`
}

// # Field Names

// Validation field identifiers shared by the transport layer.
const (
	FieldUserID         = "user_id"
	FieldLicenseKey     = "license_key"
	FieldExpiresAt      = "expires_at"
	FieldMaxActivations = "max_activations"
	FieldFingerprint    = "fingerprint"
	FieldIDs            = "ids"
)
