package schemas

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reviewerSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewRegistry("").Get(TypeReviewer)
	require.NoError(t, err)
	return s
}

func factCheckerSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewRegistry("").Get(TypeFactChecker)
	require.NoError(t, err)
	return s
}

func TestDerive_RequiredAndArrayFields(t *testing.T) {
	s := reviewerSchema(t)
	assert.Equal(t, []string{"recommendation"}, s.Required)
	assert.Equal(t, []string{"critical_issues", "improvements", "minor_suggestions", "strengths"}, s.ArrayFields)

	fc := factCheckerSchema(t)
	assert.Equal(t, []string{"recommendation"}, fc.Required)
	assert.Equal(t, []string{"issues"}, fc.ArrayFields)

	doc, err := s.JSONSchema()
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"enum"`)
}

func TestDerive_InvalidTemplate(t *testing.T) {
	_, err := Derive("broken", []byte(`{not json`))
	require.Error(t, err)

	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestValidate(t *testing.T) {
	s := reviewerSchema(t)

	tests := []struct {
		name      string
		data      map[string]any
		valid     bool
		reasonHas string
	}{
		{
			name: "complete feedback",
			data: map[string]any{
				"recommendation":    "approve",
				"summary":           "solid",
				"critical_issues":   []any{},
				"improvements":      []any{"add pricing"},
				"minor_suggestions": []any{},
				"strengths":         []any{map[string]any{"point": "clear"}},
			},
			valid: true,
		},
		{
			name: "leftover TODO",
			data: map[string]any{
				"recommendation":    "TODO: approve or reject",
				"critical_issues":   []any{},
				"improvements":      []any{},
				"minor_suggestions": []any{},
				"strengths":         []any{},
			},
			reasonHas: "recommendation: unresolved TODO placeholder",
		},
		{
			name: "nested TODO path reported",
			data: map[string]any{
				"recommendation":    "reject",
				"critical_issues":   []any{"real", "TODO fill in"},
				"improvements":      []any{},
				"minor_suggestions": []any{},
				"strengths":         []any{},
			},
			reasonHas: "critical_issues[1]",
		},
		{
			name: "missing recommendation",
			data: map[string]any{
				"critical_issues":   []any{},
				"improvements":      []any{},
				"minor_suggestions": []any{},
				"strengths":         []any{},
			},
			reasonHas: "recommendation: required field is missing",
		},
		{
			name:  "absent arrays allowed",
			data:  map[string]any{"recommendation": "approve"},
			valid: true,
		},
		{
			name:      "number where string expected",
			data:      map[string]any{"recommendation": "approve", "summary": 42},
			reasonHas: "summary",
		},
		{
			name:      "sentinel inside text",
			data:      map[string]any{"recommendation": "approve", "summary": "pricing is TODO"},
			reasonHas: "summary: unresolved TODO placeholder",
		},
		{
			name: "array where string expected",
			data: map[string]any{
				"recommendation":    "approve",
				"summary":           []any{"a", "b"},
				"critical_issues":   []any{},
				"improvements":      []any{},
				"minor_suggestions": []any{},
				"strengths":         []any{},
			},
			reasonHas: "summary",
		},
		{
			name: "string where array expected",
			data: map[string]any{
				"recommendation":    "approve",
				"critical_issues":   "none",
				"improvements":      []any{},
				"minor_suggestions": []any{},
				"strengths":         []any{},
			},
			reasonHas: "critical_issues",
		},
		{
			name: "unknown recommendation value",
			data: map[string]any{
				"recommendation":    "maybe",
				"critical_issues":   []any{},
				"improvements":      []any{},
				"minor_suggestions": []any{},
				"strengths":         []any{},
			},
			reasonHas: "recommendation",
		},
		{
			name: "extra keys allowed",
			data: map[string]any{
				"recommendation":    "reject",
				"critical_issues":   []any{},
				"improvements":      []any{},
				"minor_suggestions": []any{},
				"strengths":         []any{},
				"confidence":        0.8,
			},
			valid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := s.Validate(tt.data)
			assert.Equal(t, tt.valid, ok, "reason: %s", reason)
			if tt.reasonHas != "" {
				assert.Contains(t, reason, tt.reasonHas)
			}
		})
	}
}

func TestValidate_FactCheckShape(t *testing.T) {
	s := factCheckerSchema(t)

	ok, reason := s.Validate(map[string]any{
		"recommendation": "reject",
		"issues": []any{
			map[string]any{"claim": "market is $5B", "severity": "High"},
		},
		"statistics": map[string]any{"total_claims": 3},
	})
	assert.True(t, ok, reason)

	ok, reason = s.Validate(map[string]any{
		"recommendation": "reject",
		"issues":         []any{"just a string"},
	})
	assert.False(t, ok)
	assert.Contains(t, reason, "issues")

	ok, reason = s.Validate(map[string]any{
		"recommendation": "reject",
		"issues":         []any{map[string]any{"claim": 42}},
		"statistics":     map[string]any{"total_claims": "5"},
	})
	assert.False(t, ok)
	assert.Contains(t, reason, "claim")

	ok, reason = s.Validate(map[string]any{
		"recommendation": "approve",
		"statistics":     map[string]any{"total_claims": 2.5},
	})
	assert.False(t, ok)
	assert.Contains(t, reason, "total_claims")
}

func TestValidate_NilDocument(t *testing.T) {
	ok, reason := reviewerSchema(t).Validate(nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "document is empty")
}

func TestRegistry_OverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	custom := `{"recommendation": "TODO", "risks": [], "owner": "TODO: name"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewer.json"), []byte(custom), 0o644))

	reg := NewRegistry(dir)
	s, err := reg.Get(TypeReviewer)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner", "recommendation"}, s.Required)
	assert.Equal(t, []string{"risks"}, s.ArrayFields)

	// Types without an override fall back to the embedded template.
	fc, err := reg.Get(TypeFactChecker)
	require.NoError(t, err)
	assert.Equal(t, []string{"issues"}, fc.ArrayFields)
}

func TestRegistry_CachesSchema(t *testing.T) {
	reg := NewRegistry("")
	first, err := reg.Get(TypeReviewer)
	require.NoError(t, err)
	second, err := reg.Get(TypeReviewer)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRegistry_UnknownType(t *testing.T) {
	_, err := NewRegistry("").Get("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown schema type")
}

func TestRegistry_Types(t *testing.T) {
	reg := NewRegistry("")
	require.NoError(t, reg.Register("market_scan", []byte(`{"recommendation":"TODO"}`)))
	assert.Equal(t, []string{"fact_checker", "market_scan", "reviewer"}, reg.Types())
}
