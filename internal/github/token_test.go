package github

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(vals map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vals[key]
		return v, ok
	}
}

func TestResolveAuthToken(t *testing.T) {
	t.Run("env token used and trimmed", func(t *testing.T) {
		tok, err := ResolveAuthToken(envOf(map[string]string{EnvToken: " ghp_abc \n"}))
		require.NoError(t, err)
		assert.Equal(t, "ghp_abc", tok)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := ResolveAuthToken(envOf(nil))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingToken))
	})

	t.Run("blank token counts as missing", func(t *testing.T) {
		_, err := ResolveAuthToken(envOf(map[string]string{EnvToken: "   "}))
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("token with inner whitespace rejected", func(t *testing.T) {
		_, err := ResolveAuthToken(envOf(map[string]string{EnvToken: "ghp abc"}))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMissingToken)
		assert.NotContains(t, err.Error(), "ghp")
	})

	t.Run("nil lookup reads the process environment", func(t *testing.T) {
		t.Setenv(EnvToken, "from-env")
		tok, err := ResolveAuthToken(nil)
		require.NoError(t, err)
		assert.Equal(t, "from-env", tok)
	})
}
