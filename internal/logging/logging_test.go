package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw    string
		want   zerolog.Level
		wantOK bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{" WARNING ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"none", zerolog.Disabled, true},
		{"disabled", zerolog.Disabled, true},
		{"Error", zerolog.ErrorLevel, true},
		{"fatal", zerolog.FatalLevel, true},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
		assert.Equal(t, tt.wantOK, ok, tt.raw)
	}
}

func TestNewJSON(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogFormat, "")

	var buf bytes.Buffer
	logger := New("vowsock", Config{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("ip", "1.2.3.4").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "vowsock", line["app"])
	assert.Equal(t, "1.2.3.4", line["ip"])
	assert.NotContains(t, line, "time")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogFormat, "json")

	var buf bytes.Buffer
	logger := New("vowsock", DefaultConfig(), &buf)
	logger.Debug().Msg("visible")

	assert.Contains(t, buf.String(), `"message":"visible"`)
	assert.Contains(t, buf.String(), `"time"`)
}
