// Copyright (c) 2026 Venlock. All rights reserved.

package sec

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// # Identity Normalization
//
// Usernames and emails are unique case-insensitively. Normalization happens
// once at the service boundary; repositories only ever see canonical values,
// so the database unique indexes operate on normalized text.

var foldCaser = cases.Fold()

// NormalizeUsername performs case-insensitive canonicalization of a username.
//
// NFKC folds visually-equivalent Unicode sequences to a single form before
// case folding, which closes the trivial confusable-registration hole
// (e.g. a full-width "ＡＤＭＩＮ" colliding with "admin").
func NormalizeUsername(username string) string {
	return foldCaser.String(norm.NFKC.String(strings.TrimSpace(username)))
}

// NormalizeEmail performs case-insensitive canonicalization of an email address.
func NormalizeEmail(email string) string {
	return foldCaser.String(norm.NFKC.String(strings.TrimSpace(email)))
}
