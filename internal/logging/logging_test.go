package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virusdefender/duckdb-ui/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "watcher").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"component":"watcher"`)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestNewRejectsBadSettings(t *testing.T) {
	tests := []config.LogConfig{
		{Level: "loud"},
		{Format: "xml"},
	}
	for _, cfg := range tests {
		_, err := New(cfg, &bytes.Buffer{})
		assert.Error(t, err, "%+v", cfg)
	}
}
