// Copyright (c) 2026 Venlock. All rights reserved.

package license

import (
	"context"
	"time"

	"github.com/venlock/venlock/internal/audit"
	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/config"
	"github.com/venlock/venlock/internal/platform/validate"
)

// Service orchestrates license lifecycle and machine activations.
//
// Admin operations (create, renew, revoke, delete) audit with the acting
// admin's ID; client operations (activate, deactivate) audit anonymously
// since the key itself is the credential.
type Service struct {
	licenses    Repository
	activations ActivationRepository
	auditor     audit.Recorder

	// enforceSingleActive pre-checks the one-active-license-per-user policy
	// before insert. The partial unique index backs it either way.
	enforceSingleActive bool

	// Now is the clock. Tests overwrite it to cross expiry boundaries.
	Now func() time.Time
}

// NewService wires the license service.
func NewService(licenses Repository, activations ActivationRepository, auditor audit.Recorder, policy config.LicenseConfig) *Service {
	return &Service{
		licenses:            licenses,
		activations:         activations,
		auditor:             auditor,
		enforceSingleActive: policy.EnforceSingleActive,
		Now:                 time.Now,
	}
}

// # Admin Lifecycle

// CreateInput carries the parameters for issuing a license.
type CreateInput struct {
	UserID         string
	ExpiresAt      time.Time
	MaxActivations int
}

/*
Create issues a new license for a user.

Parameters:
  - context: context.Context
  - actorID: string (admin performing the issuance)
  - input: CreateInput

Returns:
  - *License: The issued license including its key
  - error: Validation failures, apperr.Conflict on single-active violation
*/
func (service *Service) Create(context context.Context, actorID string, input CreateInput) (*License, error) {
	now := service.Now().UTC()

	if !input.ExpiresAt.After(now) {
		return nil, validate.RequiredError(FieldExpiresAt, "Must be in the future")
	}
	if input.MaxActivations < 0 {
		return nil, validate.RequiredError(FieldMaxActivations, "Must not be negative")
	}

	if service.enforceSingleActive {
		held, err := service.licenses.HasActiveForUser(context, input.UserID)
		if err != nil {
			return nil, err
		}
		if held {
			return nil, apperr.Conflict("User already holds an active license")
		}
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	license := &License{
		Key:            key,
		UserID:         input.UserID,
		MaxActivations: input.MaxActivations,
		Status:         StatusActive,
		ExpiresAt:      input.ExpiresAt.UTC(),
	}

	if err := service.licenses.Create(context, license); err != nil {
		return nil, err
	}

	service.record(context, audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionLicenseCreated,
		TargetType: "license",
		TargetID:   license.ID,
		Metadata:   map[string]any{"user_id": license.UserID, "expires_at": license.ExpiresAt},
	})

	return license, nil
}

// Get returns a license by ID.
func (service *Service) Get(context context.Context, id string) (*License, error) {
	return service.licenses.FindByID(context, id)
}

// ListByUser returns every license owned by a user.
func (service *Service) ListByUser(context context.Context, userID string) ([]License, error) {
	return service.licenses.ListByUser(context, userID)
}

// List returns a page of licenses across all users.
func (service *Service) List(context context.Context, limit, offset int) ([]License, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return service.licenses.List(context, limit, offset)
}

// Activations returns the activation history of a license.
func (service *Service) Activations(context context.Context, licenseID string) ([]Activation, error) {
	if _, err := service.licenses.FindByID(context, licenseID); err != nil {
		return nil, err
	}
	return service.activations.ListByLicense(context, licenseID)
}

/*
Renew extends a license to a new expiry, returning an Expired license to
Active. Renewing a Revoked license is forbidden.

Parameters:
  - context: context.Context
  - actorID: string
  - id: string
  - newExpiresAt: time.Time

Returns:
  - *License: The renewed license
  - error: apperr.NotFound, apperr.Conflict when Revoked, validation failures
*/
func (service *Service) Renew(context context.Context, actorID, id string, newExpiresAt time.Time) (*License, error) {
	license, err := service.licenses.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	if err := license.Renew(newExpiresAt, service.Now()); err != nil {
		return nil, err
	}
	if err := service.licenses.Update(context, license); err != nil {
		return nil, err
	}

	service.record(context, audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionLicenseRenewed,
		TargetType: "license",
		TargetID:   license.ID,
		Metadata:   map[string]any{"expires_at": license.ExpiresAt},
	})

	return license, nil
}

/*
Revoke permanently disables a license.

Parameters:
  - context: context.Context
  - actorID: string
  - id: string

Returns:
  - *License: The revoked license
  - error: apperr.NotFound, apperr.Conflict when already revoked
*/
func (service *Service) Revoke(context context.Context, actorID, id string) (*License, error) {
	license, err := service.licenses.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	if err := license.Revoke(service.Now()); err != nil {
		return nil, err
	}
	if err := service.licenses.Update(context, license); err != nil {
		return nil, err
	}

	service.record(context, audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionLicenseRevoked,
		TargetType: "license",
		TargetID:   license.ID,
	})

	return license, nil
}

/*
BulkRevoke marks every non-revoked license in ids as Revoked. Already-revoked
entries are skipped, not errors.

Parameters:
  - context: context.Context
  - actorID: string
  - ids: []string

Returns:
  - int64: Number of licenses actually revoked
  - error: Validation or persistence failures
*/
func (service *Service) BulkRevoke(context context.Context, actorID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, validate.RequiredError(FieldIDs, "This field is required")
	}

	revoked, err := service.licenses.RevokeBatch(context, ids, service.Now())
	if err != nil {
		return 0, err
	}

	service.record(context, audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionLicenseRevoked,
		TargetType: "license",
		Metadata:   map[string]any{"requested": len(ids), "revoked": revoked},
	})

	return revoked, nil
}

/*
Delete removes a license and its activation history. This is the only way out
of Revoked.

Parameters:
  - context: context.Context
  - actorID: string
  - id: string

Returns:
  - error: apperr.NotFound
*/
func (service *Service) Delete(context context.Context, actorID, id string) error {
	if err := service.licenses.Delete(context, id); err != nil {
		return err
	}

	service.record(context, audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionLicenseDeleted,
		TargetType: "license",
		TargetID:   id,
	})

	return nil
}

// # Client Operations

// ActivateInput carries a client activation or heartbeat request.
type ActivateInput struct {
	Key         string
	Fingerprint string
	Hostname    *string
	IPAddress   *string
}

/*
Activate binds a machine to a license, or refreshes the binding when the
machine already holds a seat.

Parameters:
  - context: context.Context
  - input: ActivateInput

Returns:
  - *Activation: The live activation
  - error: apperr.NotFound, apperr.Conflict on revoked/expired licenses,
    apperr.ActivationLimitReached when all seats are taken
*/
func (service *Service) Activate(context context.Context, input ActivateInput) (*Activation, error) {
	license, err := service.licenses.FindByKey(context, input.Key)
	if err != nil {
		return nil, err
	}

	now := service.Now()
	if err := service.guardUsable(license, now); err != nil {
		return nil, err
	}

	activation, created, err := service.activations.Activate(context, license, input.Fingerprint, input.Hostname, input.IPAddress, now)
	if err != nil {
		return nil, err
	}

	if created {
		service.record(context, audit.Entry{
			Action:     audit.ActionLicenseActivated,
			TargetType: "license",
			TargetID:   license.ID,
			IPAddress:  stringValue(input.IPAddress),
			Metadata:   map[string]any{"fingerprint": input.Fingerprint},
		})
	}

	return activation, nil
}

/*
Validate answers whether (license, fingerprint) is entitled to run right now,
and refreshes the seat's lastSeenAt when it is.

Parameters:
  - context: context.Context
  - key: string
  - fingerprint: string

Returns:
  - *Verdict: Valid flag, effective status, expiry, and a reason when invalid
  - error: apperr.NotFound when the key is unknown
*/
func (service *Service) Validate(context context.Context, key, fingerprint string) (*Verdict, error) {
	license, err := service.licenses.FindByKey(context, key)
	if err != nil {
		return nil, err
	}

	now := service.Now()
	verdict := &Verdict{
		Status:    license.EffectiveStatus(now),
		ExpiresAt: license.ExpiresAt,
	}

	switch verdict.Status {
	case StatusRevoked:
		verdict.Reason = ReasonRevoked
		return verdict, nil
	case StatusExpired:
		verdict.Reason = ReasonExpired
		return verdict, nil
	}

	activation, err := service.activations.FindLive(context, license.ID, fingerprint)
	if err != nil {
		if apperr.IsCode(err, "NOT_FOUND") {
			verdict.Reason = ReasonNotActivated
			return verdict, nil
		}
		return nil, err
	}

	// Entitled. Record the sighting without touching network identity.
	if err := service.activations.Heartbeat(context, license.ID, fingerprint, activation.Hostname, activation.IPAddress, now); err != nil {
		return nil, err
	}

	verdict.Valid = true
	return verdict, nil
}

/*
Heartbeat refreshes the liveness and network identity of an existing seat.
It is validation without a verdict: the same entitlement guards apply.

Parameters:
  - context: context.Context
  - input: ActivateInput

Returns:
  - error: apperr.NotFound when the key is unknown or the machine holds no
    seat, apperr.Conflict on revoked/expired licenses
*/
func (service *Service) Heartbeat(context context.Context, input ActivateInput) error {
	license, err := service.licenses.FindByKey(context, input.Key)
	if err != nil {
		return err
	}

	now := service.Now()
	if err := service.guardUsable(license, now); err != nil {
		return err
	}

	return service.activations.Heartbeat(context, license.ID, input.Fingerprint, input.Hostname, input.IPAddress, now)
}

/*
Deactivate releases the seat held by a machine. Releasing a seat that does
not exist is a no-op, so clients can deactivate blindly during uninstall.

Parameters:
  - context: context.Context
  - key: string
  - fingerprint: string

Returns:
  - error: apperr.NotFound when the key is unknown
*/
func (service *Service) Deactivate(context context.Context, key, fingerprint string) error {
	license, err := service.licenses.FindByKey(context, key)
	if err != nil {
		return err
	}

	released, err := service.activations.Deactivate(context, license.ID, fingerprint, service.Now())
	if err != nil {
		return err
	}

	if released {
		service.record(context, audit.Entry{
			Action:     audit.ActionLicenseDeactivated,
			TargetType: "license",
			TargetID:   license.ID,
			Metadata:   map[string]any{"fingerprint": fingerprint},
		})
	}

	return nil
}

// # Helpers

// guardUsable rejects operations on licenses that cannot serve clients.
func (service *Service) guardUsable(license *License, now time.Time) error {
	switch license.EffectiveStatus(now) {
	case StatusRevoked:
		return apperr.Conflict("License is revoked")
	case StatusExpired:
		return apperr.Conflict("License has expired")
	}
	return nil
}

// record writes an audit entry, best-effort.
func (service *Service) record(context context.Context, entry audit.Entry) {
	if service.auditor == nil {
		return
	}
	_ = service.auditor.Record(context, entry)
}

// stringValue dereferences an optional string.
func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
