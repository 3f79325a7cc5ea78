// internal/game/codegen_test.go
package game

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		code, err := RandomCode()
		require.NoError(t, err)
		require.Len(t, code, CodeLength)
		for _, ch := range code {
			require.True(t, strings.ContainsRune(CodeAlphabet, ch), "unexpected symbol %q", ch)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 490)
}

func TestNormalizeCode(t *testing.T) {
	code, err := NormalizeCode(" c7x9qz ")
	require.NoError(t, err)
	assert.Equal(t, "C7X9QZ", code)

	for _, bad := range []string{"", "C7X9Q", "C7X9QZZ", "C7X 9Q", "C7X9Q!"} {
		_, err := NormalizeCode(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}
