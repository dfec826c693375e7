// Copyright (c) 2026 Venlock. All rights reserved.

package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/dberr"
)

// # License Repository

// PostgresRepository implements the Repository interface using pgx.
//
// The licensing.license table carries two unique constraints: the key itself,
// and a partial unique index on (userid) WHERE status = 'active' that backs
// the single-active-license policy.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const licenseColumns = `
	id, key, userid, maxactivations, status, expiresat, revokedat, createdat, updatedat`

// scanLicense hydrates a License from a row carrying licenseColumns.
func scanLicense(row pgx.Row) (*License, error) {
	license := &License{}
	err := row.Scan(
		&license.ID,
		&license.Key,
		&license.UserID,
		&license.MaxActivations,
		&license.Status,
		&license.ExpiresAt,
		&license.RevokedAt,
		&license.CreatedAt,
		&license.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return license, nil
}

/*
Create persists a new license into the licensing.license table.

Parameters:
  - context: context.Context
  - license: *License (ID assigned here when empty)

Returns:
  - error: apperr.Conflict on key collision or single-active violation
*/
func (repository *PostgresRepository) Create(context context.Context, license *License) error {
	const query = `
		INSERT INTO licensing.license (
			id, key, userid, maxactivations, status, expiresat, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	now := time.Now().UTC()
	if license.ID == "" {
		license.ID = uuid.NewString()
	}
	if license.CreatedAt.IsZero() {
		license.CreatedAt = now
	}
	license.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		license.ID,
		license.Key,
		license.UserID,
		license.MaxActivations,
		license.Status,
		license.ExpiresAt.UTC(),
		license.CreatedAt,
		license.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "User already holds an active license")
	}

	return nil
}

/*
FindByID retrieves a license by its unique ID.

Parameters:
  - context: context.Context
  - id: string (UUID)

Returns:
  - *License: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*License, error) {
	const query = `
		SELECT ` + licenseColumns + `
		FROM licensing.license
		WHERE id = $1`

	license, err := scanLicense(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("License")
		}
		return nil, fmt.Errorf("postgres_license_repo_find_by_id_failed: %w", err)
	}

	return license, nil
}

/*
FindByKey retrieves a license by its key.

Parameters:
  - context: context.Context
  - key: string

Returns:
  - *License: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRepository) FindByKey(context context.Context, key string) (*License, error) {
	const query = `
		SELECT ` + licenseColumns + `
		FROM licensing.license
		WHERE key = $1`

	license, err := scanLicense(repository.pool.QueryRow(context, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("License")
		}
		return nil, fmt.Errorf("postgres_license_repo_find_by_key_failed: %w", err)
	}

	return license, nil
}

/*
ListByUser returns every license owned by a user, newest first.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []License: Owned licenses
  - error: Retrieval failures
*/
func (repository *PostgresRepository) ListByUser(context context.Context, userID string) ([]License, error) {
	const query = `
		SELECT ` + licenseColumns + `
		FROM licensing.license
		WHERE userid = $1
		ORDER BY createdat DESC`

	rows, err := repository.pool.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_license_repo_list_by_user_failed: %w", err)
	}
	defer rows.Close()

	return collectLicenses(rows)
}

/*
List returns a page of licenses across all users, newest first.

Parameters:
  - context: context.Context
  - limit: int
  - offset: int

Returns:
  - []License: Page of licenses
  - error: Retrieval failures
*/
func (repository *PostgresRepository) List(context context.Context, limit, offset int) ([]License, error) {
	const query = `
		SELECT ` + licenseColumns + `
		FROM licensing.license
		ORDER BY createdat DESC
		LIMIT $1 OFFSET $2`

	rows, err := repository.pool.Query(context, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres_license_repo_list_failed: %w", err)
	}
	defer rows.Close()

	return collectLicenses(rows)
}

// collectLicenses drains a row set into a slice.
func collectLicenses(rows pgx.Rows) ([]License, error) {
	var licenses []License
	for rows.Next() {
		license, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_license_repo_scan_failed: %w", err)
		}
		licenses = append(licenses, *license)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_license_repo_rows_failed: %w", err)
	}

	return licenses, nil
}

/*
Update persists the mutable lifecycle fields of a license.

Parameters:
  - context: context.Context
  - license: *License (status, expiresat, revokedat, updatedat already mutated)

Returns:
  - error: apperr.Conflict when renewal violates the single-active policy
*/
func (repository *PostgresRepository) Update(context context.Context, license *License) error {
	const query = `
		UPDATE licensing.license
		SET status = $2, expiresat = $3, revokedat = $4, updatedat = $5
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query,
		license.ID,
		license.Status,
		license.ExpiresAt.UTC(),
		license.RevokedAt,
		license.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "User already holds an active license")
	}

	return nil
}

/*
Delete removes a license. Activations go with it via ON DELETE CASCADE.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: apperr.NotFound when the license does not exist
*/
func (repository *PostgresRepository) Delete(context context.Context, id string) error {
	const query = "DELETE FROM licensing.license WHERE id = $1"

	tag, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres_license_repo_delete_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("License")
	}

	return nil
}

/*
RevokeBatch marks every non-revoked license in ids as Revoked.

Parameters:
  - context: context.Context
  - ids: []string
  - now: time.Time

Returns:
  - int64: Number of licenses transitioned
  - error: Execution errors
*/
func (repository *PostgresRepository) RevokeBatch(context context.Context, ids []string, now time.Time) (int64, error) {
	const query = `
		UPDATE licensing.license
		SET status = 'revoked', revokedat = $2, updatedat = $2
		WHERE id = ANY($1) AND status <> 'revoked'`

	tag, err := repository.pool.Exec(context, query, ids, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres_license_repo_revoke_batch_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

/*
ExpireDue transitions every overdue Active license to Expired in one write.

Parameters:
  - context: context.Context
  - now: time.Time

Returns:
  - int64: Number of licenses transitioned
  - error: Execution errors
*/
func (repository *PostgresRepository) ExpireDue(context context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE licensing.license
		SET status = 'expired', updatedat = $1
		WHERE status = 'active' AND expiresat <= $1`

	tag, err := repository.pool.Exec(context, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres_license_repo_expire_due_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

/*
CountByStatus returns license counts grouped by status.

Parameters:
  - context: context.Context

Returns:
  - map[Status]int64: Counts keyed by status
  - error: Retrieval failures
*/
func (repository *PostgresRepository) CountByStatus(context context.Context) (map[Status]int64, error) {
	const query = "SELECT status, COUNT(*) FROM licensing.license GROUP BY status"

	rows, err := repository.pool.Query(context, query)
	if err != nil {
		return nil, fmt.Errorf("postgres_license_repo_count_by_status_failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var status Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("postgres_license_repo_count_scan_failed: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_license_repo_count_rows_failed: %w", err)
	}

	return counts, nil
}

/*
HasActiveForUser reports whether the user already holds an Active license.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - bool: True when an Active license exists
  - error: Retrieval failures
*/
func (repository *PostgresRepository) HasActiveForUser(context context.Context, userID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM licensing.license
			WHERE userid = $1 AND status = 'active'
		)`

	var exists bool
	if err := repository.pool.QueryRow(context, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres_license_repo_has_active_failed: %w", err)
	}

	return exists, nil
}

// # Activation Repository

// PostgresActivationRepository implements the ActivationRepository interface.
//
// The licensing.activation table enforces at most one live row per
// (licenseid, fingerprint) through a partial unique index WHERE
// deactivatedat IS NULL.
type PostgresActivationRepository struct {
	pool *pgxpool.Pool
}

// NewActivationRepository creates a new PostgreSQL ActivationRepository.
func NewActivationRepository(pool *pgxpool.Pool) *PostgresActivationRepository {
	return &PostgresActivationRepository{pool: pool}
}

const activationColumns = `
	id, licenseid, fingerprint, hostname, ipaddress, activatedat, deactivatedat, lastseenat`

// scanActivation hydrates an Activation from a row carrying activationColumns.
func scanActivation(row pgx.Row) (*Activation, error) {
	activation := &Activation{}
	err := row.Scan(
		&activation.ID,
		&activation.LicenseID,
		&activation.Fingerprint,
		&activation.Hostname,
		&activation.IPAddress,
		&activation.ActivatedAt,
		&activation.DeactivatedAt,
		&activation.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	return activation, nil
}

/*
Activate runs the seat assignment inside a transaction that locks the license
row, serializing concurrent activations of the same license.

Parameters:
  - context: context.Context
  - license: *License
  - fingerprint: string
  - hostname: *string
  - ipAddress: *string
  - now: time.Time

Returns:
  - *Activation: The live activation (new or refreshed)
  - bool: True when a new seat was taken
  - error: apperr.ActivationLimitReached or execution errors
*/
func (repository *PostgresActivationRepository) Activate(context context.Context, license *License, fingerprint string, hostname, ipAddress *string, now time.Time) (*Activation, bool, error) {
	tx, err := repository.pool.BeginTx(context, pgx.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("postgres_activation_repo_begin_failed: %w", err)
	}
	defer func() { _ = tx.Rollback(context) }()

	// Serialize on the license row so two machines cannot both pass the cap
	// check.
	const lockQuery = "SELECT id FROM licensing.license WHERE id = $1 FOR UPDATE"
	var lockedID string
	if err := tx.QueryRow(context, lockQuery, license.ID).Scan(&lockedID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, apperr.NotFound("License")
		}
		return nil, false, fmt.Errorf("postgres_activation_repo_lock_failed: %w", err)
	}

	// Heartbeat path: this machine already holds a live seat.
	const liveQuery = `
		SELECT ` + activationColumns + `
		FROM licensing.activation
		WHERE licenseid = $1 AND fingerprint = $2 AND deactivatedat IS NULL`

	activation, err := scanActivation(tx.QueryRow(context, liveQuery, license.ID, fingerprint))
	if err == nil {
		activation.Touch(now.UTC(), hostname, ipAddress)

		const touchQuery = `
			UPDATE licensing.activation
			SET lastseenat = $2, hostname = $3, ipaddress = $4
			WHERE id = $1`
		if _, err := tx.Exec(context, touchQuery, activation.ID, activation.LastSeenAt, activation.Hostname, activation.IPAddress); err != nil {
			return nil, false, fmt.Errorf("postgres_activation_repo_touch_failed: %w", err)
		}
		if err := tx.Commit(context); err != nil {
			return nil, false, fmt.Errorf("postgres_activation_repo_commit_failed: %w", err)
		}
		return activation, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("postgres_activation_repo_live_lookup_failed: %w", err)
	}

	// Cap check under the lock.
	const countQuery = `
		SELECT COUNT(*) FROM licensing.activation
		WHERE licenseid = $1 AND deactivatedat IS NULL`

	var live int
	if err := tx.QueryRow(context, countQuery, license.ID).Scan(&live); err != nil {
		return nil, false, fmt.Errorf("postgres_activation_repo_count_failed: %w", err)
	}
	if license.MaxActivations > 0 && live >= license.MaxActivations {
		return nil, false, apperr.ActivationLimitReached(license.MaxActivations)
	}

	utc := now.UTC()
	activation = &Activation{
		ID:          uuid.NewString(),
		LicenseID:   license.ID,
		Fingerprint: fingerprint,
		Hostname:    hostname,
		IPAddress:   ipAddress,
		ActivatedAt: utc,
		LastSeenAt:  utc,
	}

	const insertQuery = `
		INSERT INTO licensing.activation (
			id, licenseid, fingerprint, hostname, ipaddress, activatedat, lastseenat
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := tx.Exec(context, insertQuery,
		activation.ID,
		activation.LicenseID,
		activation.Fingerprint,
		activation.Hostname,
		activation.IPAddress,
		activation.ActivatedAt,
		activation.LastSeenAt,
	); err != nil {
		return nil, false, fmt.Errorf("postgres_activation_repo_insert_failed: %w", err)
	}

	if err := tx.Commit(context); err != nil {
		return nil, false, fmt.Errorf("postgres_activation_repo_commit_failed: %w", err)
	}

	return activation, true, nil
}

/*
FindLive returns the live activation for (licenseID, fingerprint).

Parameters:
  - context: context.Context
  - licenseID: string
  - fingerprint: string

Returns:
  - *Activation: The live seat
  - error: apperr.NotFound when the machine holds no seat
*/
func (repository *PostgresActivationRepository) FindLive(context context.Context, licenseID, fingerprint string) (*Activation, error) {
	const query = `
		SELECT ` + activationColumns + `
		FROM licensing.activation
		WHERE licenseid = $1 AND fingerprint = $2 AND deactivatedat IS NULL`

	activation, err := scanActivation(repository.pool.QueryRow(context, query, licenseID, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Activation")
		}
		return nil, fmt.Errorf("postgres_activation_repo_find_live_failed: %w", err)
	}

	return activation, nil
}

/*
ListByLicense returns all activations of a license, live rows first.

Parameters:
  - context: context.Context
  - licenseID: string

Returns:
  - []Activation: Activation history
  - error: Retrieval failures
*/
func (repository *PostgresActivationRepository) ListByLicense(context context.Context, licenseID string) ([]Activation, error) {
	const query = `
		SELECT ` + activationColumns + `
		FROM licensing.activation
		WHERE licenseid = $1
		ORDER BY (deactivatedat IS NULL) DESC, activatedat DESC`

	rows, err := repository.pool.Query(context, query, licenseID)
	if err != nil {
		return nil, fmt.Errorf("postgres_activation_repo_list_failed: %w", err)
	}
	defer rows.Close()

	var activations []Activation
	for rows.Next() {
		activation, err := scanActivation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_activation_repo_list_scan_failed: %w", err)
		}
		activations = append(activations, *activation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_activation_repo_list_rows_failed: %w", err)
	}

	return activations, nil
}

/*
CountLive returns the number of live activations for a license.

Parameters:
  - context: context.Context
  - licenseID: string

Returns:
  - int: Live seat count
  - error: Retrieval failures
*/
func (repository *PostgresActivationRepository) CountLive(context context.Context, licenseID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM licensing.activation
		WHERE licenseid = $1 AND deactivatedat IS NULL`

	var count int
	if err := repository.pool.QueryRow(context, query, licenseID).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres_activation_repo_count_live_failed: %w", err)
	}

	return count, nil
}

/*
Heartbeat refreshes lastSeenAt and network identity on the live activation.
The hostname is preserved when the new value is nil.

Parameters:
  - context: context.Context
  - licenseID: string
  - fingerprint: string
  - hostname: *string
  - ipAddress: *string
  - now: time.Time

Returns:
  - error: apperr.NotFound when the machine holds no live seat
*/
func (repository *PostgresActivationRepository) Heartbeat(context context.Context, licenseID, fingerprint string, hostname, ipAddress *string, now time.Time) error {
	const query = `
		UPDATE licensing.activation
		SET lastseenat = $3, ipaddress = $4, hostname = COALESCE($5, hostname)
		WHERE licenseid = $1 AND fingerprint = $2 AND deactivatedat IS NULL`

	tag, err := repository.pool.Exec(context, query, licenseID, fingerprint, now.UTC(), ipAddress, hostname)
	if err != nil {
		return fmt.Errorf("postgres_activation_repo_heartbeat_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Activation")
	}

	return nil
}

/*
Deactivate releases the live seat for (licenseID, fingerprint).

Parameters:
  - context: context.Context
  - licenseID: string
  - fingerprint: string
  - now: time.Time

Returns:
  - bool: True when a live activation was released
  - error: Execution errors
*/
func (repository *PostgresActivationRepository) Deactivate(context context.Context, licenseID, fingerprint string, now time.Time) (bool, error) {
	const query = `
		UPDATE licensing.activation
		SET deactivatedat = $3
		WHERE licenseid = $1 AND fingerprint = $2 AND deactivatedat IS NULL`

	tag, err := repository.pool.Exec(context, query, licenseID, fingerprint, now.UTC())
	if err != nil {
		return false, fmt.Errorf("postgres_activation_repo_deactivate_failed: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
