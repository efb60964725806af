package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "warn"}, "newsroom", &buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Str("broadcast_id", "b-1").Msg("visible")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "visible", line["message"])
	assert.Equal(t, "newsroom", line["service"])
	assert.Equal(t, "b-1", line["broadcast_id"])
	assert.Contains(t, line, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "DEBUG", Format: "console"}, "", &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())

	log.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		cfg     Config
		wantErr string
	}{
		{Config{}, ""},
		{Config{Level: "Warning", Format: "JSON"}, ""},
		{Config{Level: "loud"}, `unknown log level "loud"`},
		{Config{Format: "xml"}, `unknown log format "xml"`},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if tt.wantErr == "" {
			assert.NoError(t, err)
			continue
		}
		assert.EqualError(t, err, tt.wantErr)

		_, err = New(tt.cfg, "", &bytes.Buffer{})
		assert.EqualError(t, err, tt.wantErr)
	}
}
