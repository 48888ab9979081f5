package random_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybi/grade-proxy/internal/random"
)

func TestString(t *testing.T) {
	charset := "ABC123"
	str, err := random.String(256, charset)
	require.NoError(t, err)
	assert.Len(t, str, 256)
	for _, c := range str {
		assert.True(t, strings.ContainsRune(charset, c), "unexpected character %q", c)
	}
}

func TestStringZeroLength(t *testing.T) {
	str, err := random.String(0, "abc")
	require.NoError(t, err)
	assert.Empty(t, str)
}

func TestStringEmptyCharset(t *testing.T) {
	_, err := random.String(4, "")
	assert.ErrorIs(t, err, random.ErrEmptyCharset)
}
