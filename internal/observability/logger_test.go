package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("info", FormatJSON, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.With("slug", "solar-kiosk").Info("run finished", "iterations", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run finished", line["msg"])
	assert.Equal(t, "solar-kiosk", line["slug"])
	assert.Equal(t, float64(2), line["iterations"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("debug", "", &buf)
	require.NoError(t, err)

	logger.Debug("invoking agent", "agent", "reviewer")
	assert.Contains(t, buf.String(), "agent=reviewer")
}

func TestNewLogger_UnknownFormat(t *testing.T) {
	_, err := NewLogger("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}
