package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAttachesService(t *testing.T) {
	t.Setenv("SCREENREC_DEBUG", "")
	var buf bytes.Buffer
	l := build(Config{Level: "warn", Output: &buf, Service: "rec-test"})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	l.Info().Msg("hidden")
	l.Warn().Str("component", "x").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "rec-test", entry["service"])
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "x", entry["component"])
}

func TestDebugSwitchForcesDebugLevel(t *testing.T) {
	t.Setenv("SCREENREC_DEBUG", "1")
	var buf bytes.Buffer
	l := build(Config{Level: "error", Output: &buf})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	assert.True(t, DebugEnabled())
	l.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}
