package cli

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	SetBuildInfo("1.2.3", "abc123", "2026-01-01")

	t.Run("full", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newVersionCommand()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{})

		require.NoError(t, cmd.Execute())

		for _, want := range []string{"templatesync 1.2.3", "commit: abc123", "built:  2026-01-01", runtime.Version()} {
			assert.Contains(t, out.String(), want)
		}
	})

	t.Run("short", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newVersionCommand()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--short"})

		require.NoError(t, cmd.Execute())

		assert.Equal(t, "1.2.3\n", out.String())
	})

	t.Run("root version flag", func(t *testing.T) {
		assert.Equal(t, "1.2.3 (abc123) 2026-01-01", rootCmd.Version)
	})
}
