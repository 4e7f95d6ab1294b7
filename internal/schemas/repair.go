package schemas

import (
	"math"
	"strconv"
	"strings"
)

// Keys agents commonly use in place of "recommendation".
var recommendationSynonyms = []string{"iteration_recommendation", "decision", "verdict"}

var recommendationValues = map[string]string{
	"accept":         "approve",
	"accepted":       "approve",
	"approve":        "approve",
	"approved":       "approve",
	"pass":           "approve",
	"ok":             "approve",
	"reject":         "reject",
	"rejected":       "reject",
	"fail":           "reject",
	"revise":         "reject",
	"needs_revision": "reject",
	"needs revision": "reject",
}

var severityValues = map[string]string{
	"critical": "High",
	"major":    "High",
	"high":     "High",
	"moderate": "Medium",
	"medium":   "Medium",
	"minor":    "Low",
	"low":      "Low",
	"info":     "Low",
}

// FixCommonIssues returns a repaired copy of data. The input is not modified and
// applying the function to its own output changes nothing.
func (s *Schema) FixCommonIssues(data map[string]any) map[string]any {
	fixed, _ := deepCopy(data).(map[string]any)
	if fixed == nil {
		fixed = map[string]any{}
	}

	_, hasRecommendation := s.template[recommendationField]
	if hasRecommendation {
		renameRecommendation(fixed)
	}

	stripped, _ := stripTODOs(fixed).(map[string]any)
	fixed = stripped

	ensureArrays(fixed, s.template)
	fixed, _ = coerceScalars(fixed, s.template).(map[string]any)
	if hasRecommendation {
		if v, ok := fixed[recommendationField].(string); ok {
			fixed[recommendationField] = normalizeRecommendation(v)
		}
	}
	normalizeSeverity(fixed)
	return fixed
}

// ValidateAndRepair validates data, applies FixCommonIssues once if needed and
// validates again. It returns the document to persist and whether it was repaired.
// Valid documents are returned as a copy with absent array fields filled in.
func (s *Schema) ValidateAndRepair(data map[string]any) (map[string]any, bool, error) {
	if verr := s.Check(data); verr == nil {
		out, _ := deepCopy(data).(map[string]any)
		ensureArrays(out, s.template)
		return out, false, nil
	}

	fixed := s.FixCommonIssues(data)
	if verr := s.Check(fixed); verr != nil {
		return fixed, true, &RepairError{
			SchemaType: s.Type,
			Message:    verr.summary(),
			Errors:     verr.Errors,
		}
	}
	return fixed, true, nil
}

func renameRecommendation(data map[string]any) {
	for _, key := range recommendationSynonyms {
		value, ok := data[key]
		if !ok {
			continue
		}
		current, has := data[recommendationField]
		if !has || current == nil || current == "" || isTODO(current) {
			data[recommendationField] = value
		}
		delete(data, key)
	}
}

func normalizeRecommendation(v string) string {
	key := strings.ToLower(strings.TrimSpace(v))
	if mapped, ok := recommendationValues[key]; ok {
		return mapped
	}
	return v
}

// stripTODOs blanks TODO strings inside objects and drops them from arrays.
func stripTODOs(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for key, child := range t {
			if isTODO(child) {
				t[key] = ""
				continue
			}
			t[key] = stripTODOs(child)
		}
		return t
	case []any:
		out := make([]any, 0, len(t))
		for _, child := range t {
			if isTODO(child) {
				continue
			}
			out = append(out, stripTODOs(child))
		}
		return out
	default:
		return v
	}
}

// ensureArrays makes every array-typed template field an array in data.
// Missing or null values become empty arrays, blank strings become empty arrays and
// single values are wrapped. Nested objects are walked alongside the template.
func ensureArrays(data map[string]any, template map[string]any) {
	for key, tv := range template {
		switch tt := tv.(type) {
		case []any:
			data[key] = coerceArray(data[key])
			if len(tt) > 0 {
				if itemTmpl, ok := tt[0].(map[string]any); ok {
					for _, item := range data[key].([]any) {
						if obj, ok := item.(map[string]any); ok {
							ensureArrays(obj, itemTmpl)
						}
					}
				}
			}
		case map[string]any:
			if obj, ok := data[key].(map[string]any); ok {
				ensureArrays(obj, tt)
			}
		}
	}
}

// coerceScalars converts scalar leaves to the kind the template holds at the
// same position. Numbers and booleans become strings, numeric strings become
// numbers (rounded where the template number is integral) and "true" or
// "false" become booleans. Values that do not convert are left for Check.
func coerceScalars(v, template any) any {
	switch tt := template.(type) {
	case map[string]any:
		obj, ok := v.(map[string]any)
		if !ok {
			return v
		}
		for key, child := range obj {
			if ct, known := tt[key]; known {
				obj[key] = coerceScalars(child, ct)
			}
		}
		return obj
	case []any:
		arr, ok := v.([]any)
		if !ok || len(tt) == 0 {
			return v
		}
		for i, item := range arr {
			arr[i] = coerceScalars(item, tt[0])
		}
		return arr
	case string:
		switch x := v.(type) {
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(x)
		}
	case float64:
		f, ok := v.(float64)
		if str, isString := v.(string); isString {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
			f, ok = parsed, err == nil
		}
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return v
		}
		if tt == math.Trunc(tt) {
			return math.Round(f)
		}
		return f
	case bool:
		if str, ok := v.(string); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(str)); err == nil {
				return b
			}
		}
	}
	return v
}

func coerceArray(v any) []any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case []any:
		return t
	case string:
		if strings.TrimSpace(t) == "" {
			return []any{}
		}
		return []any{t}
	default:
		return []any{t}
	}
}

func normalizeSeverity(v any) {
	switch t := v.(type) {
	case map[string]any:
		for key, child := range t {
			if key == "severity" {
				if s, ok := child.(string); ok {
					t[key] = canonicalSeverity(s)
					continue
				}
			}
			normalizeSeverity(child)
		}
	case []any:
		for _, child := range t {
			normalizeSeverity(child)
		}
	}
}

// canonicalSeverity maps free-form severities onto Low, Medium or High.
// Unrecognized values are graded Medium.
func canonicalSeverity(s string) string {
	if mapped, ok := severityValues[strings.ToLower(strings.TrimSpace(s))]; ok {
		return mapped
	}
	return "Medium"
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, child := range t {
			out[key] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
