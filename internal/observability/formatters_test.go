package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/idea-forge/internal/archive"
	"github.com/jonathan/idea-forge/internal/types"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "héllo", Truncate("héllo", 5))
}

func TestPrintFeedback(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintFeedback(2, &types.Feedback{
		Recommendation: types.RecommendationReject,
		Summary:        "Needs market data",
		CriticalIssues: []json.RawMessage{json.RawMessage(`"no TAM"`)},
	})
	output := buf.String()

	assert.Contains(t, output, "REVIEWER FEEDBACK (iteration 2)")
	assert.Contains(t, output, "reject")
	assert.Contains(t, output, "Needs market data")
	assert.Contains(t, output, "Critical issues:   1")
}

func TestPrintFeedback_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintFeedback(1, nil)
	assert.Empty(t, buf.String())
}

func TestPrintFactCheck(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	fc := &types.FactCheck{
		Recommendation: types.RecommendationReject,
		Statistics:     types.FactCheckStatistics{TotalClaims: 9, VerifiedClaims: 2, UnverifiedClaims: 6, FalseClaims: 1},
	}
	for i := 0; i < 7; i++ {
		fc.Issues = append(fc.Issues, types.FactCheckIssue{Claim: "claim", Severity: types.SeverityHigh})
	}
	p.PrintFactCheck(1, fc)
	output := buf.String()

	assert.Contains(t, output, "FACT CHECK (iteration 1)")
	assert.Contains(t, output, "9 total, 2 verified, 6 unverified, 1 false")
	assert.Contains(t, output, "[High] claim")
	assert.Contains(t, output, "... and 2 more")
}

func TestPrintRunReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRunReport(RunReport{
		Slug:       "solar-kiosk",
		Status:     types.StatusAgentFailure,
		Iterations: 1,
		Error:      "quota exceeded",
		Duration:   3 * time.Second,
	})
	output := buf.String()

	assert.Contains(t, output, "❌ RUN AGENT_FAILURE")
	assert.Contains(t, output, "solar-kiosk")
	assert.Contains(t, output, "quota exceeded")
	assert.NotContains(t, output, "Cost:")
}

func TestPrintBatchSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	longErr := strings.Repeat("x", 100)
	p.PrintBatchSummary([]BatchRow{
		{Title: "Solar Kiosk", Status: types.StatusAccepted, Success: true, Iterations: 2, Duration: time.Minute},
		{Title: "Tool Library", Status: types.StatusAgentFailure, Iterations: 1, Error: longErr},
	}, 90*time.Second)
	output := buf.String()

	assert.Contains(t, output, "IDEA")
	assert.Contains(t, output, "Solar Kiosk")
	assert.Contains(t, output, "agent_failure")
	assert.Contains(t, output, strings.Repeat("x", 57)+"...")
	assert.NotContains(t, output, strings.Repeat("x", 58))
	assert.Contains(t, output, "1 succeeded, 1 failed in 1m30s")
}

func TestPrintArchives(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintArchives("solar-kiosk", nil)
	assert.Contains(t, buf.String(), "No archives for solar-kiosk")

	buf.Reset()
	p.PrintArchives("solar-kiosk", []archive.Entry{{
		Name:       "test_002_20250101_120000",
		RunType:    types.RunTypeTest,
		RunNumber:  2,
		ArchivedAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Files:      []string{"analysis.md", "metadata.json"},
	}})
	output := buf.String()
	assert.Contains(t, output, "test_002_20250101_120000")
	assert.Contains(t, output, "002")
}
