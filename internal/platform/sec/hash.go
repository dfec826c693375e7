// Copyright (c) 2026 Venlock. All rights reserved.

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// # Password Hashing

// passwordHashCost is the bcrypt work factor. The minimum accepted for new
// hashes is 10; DefaultCost currently matches that floor.
const passwordHashCost = bcrypt.DefaultCost

// HashPassword hashes a plain-text password using the bcrypt algorithm.
func HashPassword(plainTextPassword string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), passwordHashCost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckPasswordHash compares a plain-text password with its hashed version.
// The comparison is constant-time within the bcrypt library.
func CheckPasswordHash(plainTextPassword, existingHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	return err == nil
}

// # Token Hashing

// HashToken computes the one-way fingerprint of an opaque token.
//
// # Contract
//
// SHA-256 over the UTF-8 bytes, standard base64. Deterministic and pure: the
// output doubles as the session-record token hash and the key component of the
// reverse index, so the encoding must never change between releases.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(digest[:])
}

// # Secure Token Generation

// GenerateSecureToken returns a URL-safe random token of byteLength random bytes.
//
// The output is base64url without padding, so a 32-byte token yields a
// 43-character string carrying 256 bits of entropy.
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
