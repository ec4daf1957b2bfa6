package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	setup(&buf, "debug", "json")
	t.Cleanup(func() { setup(&bytes.Buffer{}, "info", "console") })

	log.Debug().Str("component", "api").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "api", line["component"])
	assert.Equal(t, "hello", line["message"])
}

func TestSetup_LevelFallback(t *testing.T) {
	setup(&bytes.Buffer{}, "loud", "json")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	setup(&bytes.Buffer{}, "WARN", "json")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
