// Copyright (c) 2026 Venlock. All rights reserved.

package license

import (
	"context"
	"time"
)

// Repository is the persistence contract for licenses.
type Repository interface {

	/*
		Create persists a new license.

		Parameters:
		  - context: context.Context
		  - license: *License (ID may be empty; implementations assign one)

		Returns:
		  - error: apperr.Conflict on duplicate key or single-active violation
	*/
	Create(context context.Context, license *License) error

	// FindByID loads a license by ID. Returns apperr.NotFound when absent.
	FindByID(context context.Context, id string) (*License, error)

	// FindByKey loads a license by its key. Returns apperr.NotFound when absent.
	FindByKey(context context.Context, key string) (*License, error)

	// ListByUser returns all licenses owned by a user, newest first.
	ListByUser(context context.Context, userID string) ([]License, error)

	// List returns a page of licenses across all users, newest first.
	List(context context.Context, limit, offset int) ([]License, error)

	// Update persists mutated license fields (status, expiry, revocation).
	Update(context context.Context, license *License) error

	// Delete removes a license and cascades to its activations.
	Delete(context context.Context, id string) error

	/*
		RevokeBatch marks every non-revoked license in ids as Revoked.

		Returns:
		  - int64: Number of licenses actually transitioned
		  - error: Persistence failures
	*/
	RevokeBatch(context context.Context, ids []string, now time.Time) (int64, error)

	/*
		ExpireDue transitions every Active license with expiresAt <= now to
		Expired in one batched write. Idempotent; safe to run on multiple
		nodes concurrently.

		Returns:
		  - int64: Number of licenses transitioned
		  - error: Persistence failures
	*/
	ExpireDue(context context.Context, now time.Time) (int64, error)

	// CountByStatus returns license counts grouped by status.
	CountByStatus(context context.Context) (map[Status]int64, error)

	// HasActiveForUser reports whether the user already holds an Active license.
	HasActiveForUser(context context.Context, userID string) (bool, error)
}

// ActivationRepository is the persistence contract for machine activations.
type ActivationRepository interface {

	/*
		Activate runs the seat assignment for (license, fingerprint) inside a
		per-license critical section:

		  1. If a live activation exists for the fingerprint, record a
		     heartbeat on it and return it.
		  2. Otherwise count live activations; at or over the license cap,
		     fail with apperr.ActivationLimitReached.
		  3. Otherwise insert a new activation.

		Two machines racing on the same license cannot both pass the cap
		check: implementations serialize on the license row.

		Parameters:
		  - context: context.Context
		  - license: *License (already verified Active and unexpired)
		  - fingerprint: string
		  - hostname: *string (optional client-reported hostname)
		  - ipAddress: *string (optional observed client IP)
		  - now: time.Time

		Returns:
		  - *Activation: The live activation (new or refreshed)
		  - bool: True when a new seat was taken, false on heartbeat
		  - error: apperr.ActivationLimitReached or persistence failures
	*/
	Activate(context context.Context, license *License, fingerprint string, hostname, ipAddress *string, now time.Time) (*Activation, bool, error)

	// FindLive returns the live activation for (licenseID, fingerprint), or
	// apperr.NotFound when the machine holds no seat.
	FindLive(context context.Context, licenseID, fingerprint string) (*Activation, error)

	// ListByLicense returns all activations of a license, live first.
	ListByLicense(context context.Context, licenseID string) ([]Activation, error)

	// CountLive returns the number of live activations for a license.
	CountLive(context context.Context, licenseID string) (int, error)

	/*
		Heartbeat refreshes lastSeenAt and network identity on the live
		activation for (licenseID, fingerprint). The hostname is preserved
		when the new value is nil; the IP is always overwritten.

		Returns:
		  - error: apperr.NotFound when the machine holds no live seat
	*/
	Heartbeat(context context.Context, licenseID, fingerprint string, hostname, ipAddress *string, now time.Time) error

	/*
		Deactivate releases the seat for (licenseID, fingerprint).

		Returns:
		  - bool: True when a live activation was released, false when there
		    was none (releasing an absent seat is not an error)
		  - error: Persistence failures
	*/
	Deactivate(context context.Context, licenseID, fingerprint string, now time.Time) (bool, error)
}
