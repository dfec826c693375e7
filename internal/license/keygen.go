// Copyright (c) 2026 Venlock. All rights reserved.

package license

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// keyAlphabet is the 36-symbol set license keys are drawn from. Uppercase and
// digits only so keys survive being read over the phone.
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	keyGroupLength = 5
	keyGroupCount  = 5
)

/*
GenerateKey produces a license key of five dash-separated groups of five
characters, e.g. "7KQ2M-XXJ91-AB0CD-55FGH-ZZT0P".

Each character is drawn uniformly from the 36-symbol alphabet using the system
CSPRNG with rejection sampling, so no symbol is favored. At 36^25 possible
keys, collisions are not checked against the database.

Returns:
  - string: The generated key
  - error: CSPRNG read failures
*/
func GenerateKey() (string, error) {
	groups := make([]string, keyGroupCount)
	group := make([]byte, keyGroupLength)

	for i := range groups {
		for j := range group {
			symbol, err := randomSymbol()
			if err != nil {
				return "", err
			}
			group[j] = symbol
		}
		groups[i] = string(group)
	}

	return strings.Join(groups, "-"), nil
}

// randomSymbol draws one unbiased character from the alphabet.
//
// Bytes >= 252 are rejected: 252 is the largest multiple of 36 below 256, so
// accepting only [0, 252) keeps the modulo uniform.
func randomSymbol() (byte, error) {
	const limit = 252

	buf := make([]byte, 1)
	for {
		if _, err := rand.Read(buf); err != nil {
			return 0, fmt.Errorf("license: key generation failed: %w", err)
		}
		if buf[0] < limit {
			return keyAlphabet[int(buf[0])%len(keyAlphabet)], nil
		}
	}
}
