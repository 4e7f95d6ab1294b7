package types

import "encoding/json"

// Recommendation is a reviewer's verdict on an analysis.
type Recommendation string

const (
	RecommendationApprove Recommendation = "approve"
	RecommendationReject  Recommendation = "reject"
)

// Severity grades a fact-check issue.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Feedback is the reviewer's structured critique after validation and repair.
// Array fields are always present once repaired; element shapes are left to the agent.
type Feedback struct {
	Recommendation   Recommendation    `json:"recommendation"`
	Summary          string            `json:"summary,omitempty"`
	CriticalIssues   []json.RawMessage `json:"critical_issues"`
	Improvements     []json.RawMessage `json:"improvements"`
	MinorSuggestions []json.RawMessage `json:"minor_suggestions"`
	Strengths        []json.RawMessage `json:"strengths"`
}

// Rejects reports whether the feedback asks for another iteration.
func (f *Feedback) Rejects() bool {
	return f != nil && f.Recommendation == RecommendationReject
}

// FactCheckIssue is one claim the fact-checker flagged.
type FactCheckIssue struct {
	Claim       string   `json:"claim"`
	Section     string   `json:"section,omitempty"`
	Severity    Severity `json:"severity"`
	Explanation string   `json:"explanation,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// FactCheckStatistics summarizes claim verification counts.
type FactCheckStatistics struct {
	TotalClaims      int `json:"total_claims"`
	VerifiedClaims   int `json:"verified_claims"`
	UnverifiedClaims int `json:"unverified_claims"`
	FalseClaims      int `json:"false_claims"`
}

// FactCheck is the fact-checker's structured output after validation and repair.
type FactCheck struct {
	Recommendation Recommendation      `json:"recommendation"`
	Issues         []FactCheckIssue    `json:"issues"`
	Statistics     FactCheckStatistics `json:"statistics"`
	Summary        string              `json:"summary,omitempty"`
}

// Rejects reports whether the fact-check asks for another iteration.
func (f *FactCheck) Rejects() bool {
	return f != nil && f.Recommendation == RecommendationReject
}

// HighSeverityCount returns the number of issues graded High.
func (f *FactCheck) HighSeverityCount() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, issue := range f.Issues {
		if issue.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// DecodeFeedback converts a repaired generic document into Feedback.
func DecodeFeedback(data map[string]any) (*Feedback, error) {
	var fb Feedback
	if err := remarshal(data, &fb); err != nil {
		return nil, err
	}
	return &fb, nil
}

// DecodeFactCheck converts a repaired generic document into FactCheck.
func DecodeFactCheck(data map[string]any) (*FactCheck, error) {
	var fc FactCheck
	if err := remarshal(data, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

func remarshal(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
