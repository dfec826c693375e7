// Copyright (c) 2026 Venlock. All rights reserved.

/*
Package audit records security-relevant events to durable storage.

Every authentication event, administrative action, and license transition
leaves an immutable entry. Recording is best-effort from the caller's point of
view: services log failures but never fail a request because the audit write
failed.
*/
package audit

import (
	"context"
	"time"
)

// # Actions

// Auditable action identifiers. One constant per event kind so the admin
// surface can filter without free-text matching.
const (
	ActionLogin              = "auth.login"
	ActionLoginFailed        = "auth.login_failed"
	ActionLogout             = "auth.logout"
	ActionLogoutAll          = "auth.logout_all"
	ActionRegister           = "auth.register"
	ActionPasswordChange     = "auth.password_change"
	ActionPasswordReset      = "auth.password_reset"
	ActionEmailVerified      = "auth.email_verified"
	ActionUserBlocked        = "user.blocked"
	ActionUserUnblocked      = "user.unblocked"
	ActionLicenseCreated     = "license.created"
	ActionLicenseRenewed     = "license.renewed"
	ActionLicenseRevoked     = "license.revoked"
	ActionLicenseActivated   = "license.activated"
	ActionLicenseDeactivated = "license.deactivated"
	ActionLicenseExpired     = "license.expired"
	ActionLicenseDeleted     = "license.deleted"
)

// # Entities

// Entry is one immutable audit record.
type Entry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id,omitempty"` // empty for anonymous events
	Action     string         `json:"action"`
	TargetType string         `json:"target_type,omitempty"`
	TargetID   string         `json:"target_id,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter narrows an audit query. Zero values mean "no constraint".
type Filter struct {
	ActorID string
	Action  string
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

// Stats is the aggregate view served on the admin dashboard.
type Stats struct {
	TotalEntries  int64            `json:"total_entries"`
	EntriesByKind map[string]int64 `json:"entries_by_kind"`
	Since         time.Time        `json:"since"`
}

// # Contracts

// Recorder accepts audit entries. Implementations must be safe for concurrent use.
type Recorder interface {

	/*
		Record persists one audit entry.

		Parameters:
		  - context: context.Context
		  - entry: Entry (ID and CreatedAt filled by the implementation if zero)

		Returns:
		  - error: Persistence failures
	*/
	Record(context context.Context, entry Entry) error
}

// Repository extends Recorder with the admin read surface.
type Repository interface {
	Recorder

	/*
		List returns entries matching the filter, newest first.

		Parameters:
		  - context: context.Context
		  - filter: Filter

		Returns:
		  - []Entry: Matching page
		  - error: Retrieval failures
	*/
	List(context context.Context, filter Filter) ([]Entry, error)

	/*
		Stats aggregates entry counts per action since the given instant.

		Parameters:
		  - context: context.Context
		  - since: time.Time

		Returns:
		  - *Stats: Aggregate counts
		  - error: Retrieval failures
	*/
	Stats(context context.Context, since time.Time) (*Stats, error)
}
