package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input    string
		expected Mode
		wantErr  bool
	}{
		{"analyze", ModeAnalyze, false},
		{"analyze-only", ModeAnalyze, false},
		{"review", ModeReview, false},
		{"analyze-and-review", ModeReview, false},
		{"factcheck", ModeFactCheck, false},
		{"fact-check", ModeFactCheck, false},
		{"bogus", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParseMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestMode_Flags(t *testing.T) {
	assert.False(t, ModeAnalyze.ReviewEnabled())
	assert.False(t, ModeAnalyze.FactCheckEnabled())
	assert.True(t, ModeReview.ReviewEnabled())
	assert.False(t, ModeReview.FactCheckEnabled())
	assert.True(t, ModeFactCheck.ReviewEnabled())
	assert.True(t, ModeFactCheck.FactCheckEnabled())
}

func TestStatus_Successful(t *testing.T) {
	assert.True(t, StatusAccepted.Successful())
	assert.True(t, StatusCompleted.Successful())
	assert.True(t, StatusMaxIterationsReached.Successful())
	assert.False(t, StatusAgentFailure.Successful())
	assert.False(t, StatusInterrupted.Successful())
	assert.False(t, StatusError.Successful())
}

func TestNewRunID(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, "20250314_092653", NewRunID(ts))
}

func TestRunType_Valid(t *testing.T) {
	assert.True(t, RunTypeTest.Valid())
	assert.True(t, RunTypeProduction.Valid())
	assert.False(t, RunType("staging").Valid())
}
