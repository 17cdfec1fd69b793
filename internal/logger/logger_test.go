package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("writes json to out", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "info", Out: &buf})
		require.NoError(t, err)
		defer l.Close()

		l.Info().Str("node", "h1").Msg("started")
		l.Debug().Msg("hidden")

		assert.Contains(t, buf.String(), `"node":"h1"`)
		assert.Contains(t, buf.String(), `"message":"started"`)
		assert.NotContains(t, buf.String(), "hidden")
	})

	t.Run("writes to file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "nodemux.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)
		l.Debug().Msg("test message")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "test message")
	})

	t.Run("pretty output", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "info", Pretty: true, Out: &buf})
		require.NoError(t, err)

		l.Info().Msg("hello")
		assert.Contains(t, buf.String(), "hello")
		assert.NotContains(t, buf.String(), `"message"`)
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		l, err := New(Config{Level: "loud", Out: &bytes.Buffer{}})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
	})
}
