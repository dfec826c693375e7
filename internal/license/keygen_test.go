// Copyright (c) 2026 Venlock. All rights reserved.

package license

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keyFormat = regexp.MustCompile(`^[A-Z0-9]{5}(-[A-Z0-9]{5}){4}$`)

func TestGenerateKey_Format(t *testing.T) {
	for i := 0; i < 200; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		assert.Regexp(t, keyFormat, key)
	}
}

func TestGenerateKey_Unique(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		require.False(t, seen[key], "duplicate key generated: %s", key)
		seen[key] = true
	}
}
