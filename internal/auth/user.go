// Copyright (c) 2026 Venlock. All rights reserved.

/*
Package auth implements the user identity and session management layer.

It defines the core domain entities (User, Session) and logic for
authentication, token rotation, and account lifecycle.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to user identity. The
account lifecycle is a guarded state machine: every transition is a method on
[User], and invalid transitions fail fast instead of silently corrupting state.
*/
package auth

import (
	"time"

	"github.com/venlock/venlock/internal/platform/apperr"
	"github.com/venlock/venlock/internal/platform/sec"
)

// # Account Lifecycle

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	// StatusUnverified is the initial state after registration; the email
	// address has not been confirmed yet.
	StatusUnverified UserStatus = "unverified"

	// StatusVerified means the email is confirmed but the account has not
	// been activated for login.
	StatusVerified UserStatus = "verified"

	// StatusActive is the normal operating state.
	StatusActive UserStatus = "active"

	// StatusBlocked means an administrator suspended the account. Blocked
	// accounts cannot log in and all their sessions are revoked.
	StatusBlocked UserStatus = "blocked"
)

// IsValid reports whether the status is one of the known lifecycle states.
func (status UserStatus) IsValid() bool {
	switch status {
	case StatusUnverified, StatusVerified, StatusActive, StatusBlocked:
		return true
	}
	return false
}

// # Domain Entities

// User represents a registered account on the Venlock platform.
type User struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"` // Explicitly omitted from JSON for security.
	FullName     string       `json:"full_name,omitempty"`
	Role         sec.UserRole `json:"role"`
	Status       UserStatus   `json:"status"`

	Notifications NotificationPreferences `json:"notifications"`

	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	BlockedAt   *time.Time `json:"blocked_at,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NotificationPreferences controls which account emails the user receives.
// Security notices (password changes, new logins) are always sent.
type NotificationPreferences struct {
	LicenseExpiry   bool `json:"license_expiry"`
	ProductUpdates  bool `json:"product_updates"`
	SecurityAlerts  bool `json:"security_alerts"`
	MarketingEmails bool `json:"marketing_emails"`
}

// DefaultNotificationPreferences returns the opt-in defaults applied at
// registration.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		LicenseExpiry:  true,
		SecurityAlerts: true,
	}
}

// # State Machine

/*
Verify marks the account's email address as confirmed.

Allowed from Unverified and Blocked (a blocked user may still confirm their
address; the block itself is lifted separately). Verifying an already Verified
or Active account is a no-op so repeated clicks on a verification link stay
idempotent.

Returns:
  - bool: true when the transition actually happened
*/
func (user *User) Verify(now time.Time) bool {
	switch user.Status {
	case StatusUnverified, StatusBlocked:
		user.Status = StatusVerified
		user.VerifiedAt = &now
		user.BlockedAt = nil
		user.UpdatedAt = now
		return true
	default:
		return false
	}
}

/*
Activate promotes the account to the Active state.

Allowed from Unverified and Verified. Fails from Blocked: an administrator
suspension cannot be escaped by re-running the activation flow.

Returns:
  - error: apperr.AccountBlocked when the account is Blocked, nil otherwise
*/
func (user *User) Activate(now time.Time) error {
	switch user.Status {
	case StatusBlocked:
		return apperr.AccountBlocked()
	case StatusUnverified, StatusVerified:
		user.Status = StatusActive
		user.UpdatedAt = now
	}
	return nil
}

// Block suspends the account from any non-Blocked state. Blocking an already
// Blocked account is a no-op and preserves the original blockedAt.
func (user *User) Block(now time.Time) bool {
	if user.Status == StatusBlocked {
		return false
	}
	user.Status = StatusBlocked
	user.BlockedAt = &now
	user.UpdatedAt = now
	return true
}

// Unblock lifts a suspension, returning the account to Active. A no-op on any
// state other than Blocked.
func (user *User) Unblock(now time.Time) bool {
	if user.Status != StatusBlocked {
		return false
	}
	user.Status = StatusActive
	user.BlockedAt = nil
	user.UpdatedAt = now
	return true
}

// CanLogin reports whether the account may authenticate right now.
func (user *User) CanLogin() bool {
	return user.Status == StatusActive
}

// IsBlocked reports whether the account is suspended.
func (user *User) IsBlocked() bool {
	return user.Status == StatusBlocked
}

// # Field Identifiers

// Global field names for validation and identity mapping in the
// authentication domain.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldFullName        = "full_name"
	FieldLogin           = "login"
	FieldToken           = "token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldStatus          = "status"
	FieldUser            = "user"
	FieldMessage         = "message"
)
