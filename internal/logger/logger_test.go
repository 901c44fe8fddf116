package logger

import (
	"os"
	"path/filepath"
	"testing"

	"discord_web/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNewWritesToFile(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	path := filepath.Join(t.TempDir(), "nested", "app.log")
	log, err := New(config.LogConfig{Level: "debug", Output: "file", FilePath: path})
	require.NoError(t, err)

	bridge := Component(log, "bridge")
	bridge.Info().Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"bridge"`)
	assert.Contains(t, string(data), `"message":"hello"`)
}
