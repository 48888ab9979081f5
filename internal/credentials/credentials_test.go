package credentials_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybi/grade-proxy/internal/credentials"
)

func TestNew(t *testing.T) {
	t.Run("trims the identifier but not the secret", func(t *testing.T) {
		creds, err := credentials.New("  2110301234 ", " pass word ")
		require.NoError(t, err)
		assert.Equal(t, "2110301234", creds.Identifier)
		assert.Equal(t, " pass word ", creds.Secret)
	})

	t.Run("missing identifier", func(t *testing.T) {
		_, err := credentials.New(" \t", "secret")
		assert.ErrorIs(t, err, credentials.ErrMissingIdentifier)
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := credentials.New("2110301234", "")
		assert.ErrorIs(t, err, credentials.ErrMissingSecret)
	})
}

func TestFormattingRedactsSecret(t *testing.T) {
	creds, err := credentials.New("2110301234", "hunter2")
	require.NoError(t, err)

	for _, verb := range []string{"%v", "%+v", "%s", "%#v"} {
		out := fmt.Sprintf(verb, creds)
		assert.NotContains(t, out, "hunter2", verb)
		assert.Contains(t, out, "2110301234", verb)
	}
}
