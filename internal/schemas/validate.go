package schemas

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// TODOSentinel marks template values the agent must replace.
const TODOSentinel = "TODO"

// recommendationField is the verdict key, constrained to approve or reject wherever
// the template declares it.
const recommendationField = "recommendation"

// Schema is the validation contract derived from one template.
type Schema struct {
	Type string
	// Required holds the top-level keys whose template subtree carries a TODO sentinel.
	Required []string
	// ArrayFields holds the top-level keys that are arrays in the template.
	ArrayFields []string

	template map[string]any
	document map[string]any
	compiled *gojsonschema.Schema
}

// Derive builds a Schema from template bytes.
func Derive(schemaType string, template []byte) (*Schema, error) {
	tmpl, err := parseTemplate(template)
	if err != nil {
		return nil, &SchemaLoadError{Path: schemaType, Message: "template is not valid JSON", Cause: err}
	}

	s := &Schema{Type: schemaType, template: tmpl}
	for key, value := range tmpl {
		if containsTODO(value) {
			s.Required = append(s.Required, key)
		}
		if _, ok := value.([]any); ok {
			s.ArrayFields = append(s.ArrayFields, key)
		}
	}
	sort.Strings(s.Required)
	sort.Strings(s.ArrayFields)

	s.document = compileShape(tmpl, true)
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(s.document))
	if err != nil {
		return nil, &SchemaLoadError{Path: schemaType, Message: "derived schema did not compile", Cause: err}
	}
	s.compiled = compiled
	return s, nil
}

// JSONSchema returns the derived JSON Schema document.
func (s *Schema) JSONSchema() ([]byte, error) {
	return json.MarshalIndent(s.document, "", "  ")
}

// Template returns the template document as indented JSON, for handing to agents.
func (s *Schema) Template() string {
	data, err := json.MarshalIndent(s.template, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Validate reports whether data satisfies the schema and, if not, a one-line reason.
func (s *Schema) Validate(data map[string]any) (bool, string) {
	if err := s.Check(data); err != nil {
		return false, err.summary()
	}
	return true, ""
}

// Check validates data and returns the structured failure, or nil.
// Checks run in order: leftover TODO placeholders, missing required fields,
// then shape and scalar-kind divergence at keys the template knows about.
// Absent array fields are allowed; FixCommonIssues fills them in.
func (s *Schema) Check(data map[string]any) *ValidationError {
	if data == nil {
		return &ValidationError{Errors: []FieldError{{Field: "(root)", Message: "document is empty"}}}
	}

	if todos := findTODOs(data, ""); len(todos) > 0 {
		verr := &ValidationError{}
		for _, path := range todos {
			verr.Errors = append(verr.Errors, FieldError{Field: path, Message: "unresolved TODO placeholder"})
		}
		return verr
	}

	verr := &ValidationError{}
	for _, key := range s.Required {
		if _, ok := data[key]; !ok {
			verr.Errors = append(verr.Errors, FieldError{Field: key, Message: "required field is missing"})
		}
	}
	if len(verr.Errors) > 0 {
		return verr
	}

	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return &ValidationError{Errors: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	if result.Valid() {
		return nil
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		verr.Errors = append(verr.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return verr
}

// compileShape turns a template value into a JSON Schema fragment.
// Scalars keep the template's kind and also accept null, integral template
// numbers require integers, null leaves are unconstrained, and arrays take
// their item shape from the first template element.
func compileShape(value any, root bool) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		props := make(map[string]any, len(v))
		for key, child := range v {
			props[key] = compileShape(child, false)
			if key == recommendationField {
				props[key] = map[string]any{"enum": []any{"approve", "reject"}}
			}
		}
		doc := map[string]any{
			"type":       "object",
			"properties": props,
		}
		if root {
			doc["$schema"] = "http://json-schema.org/draft-07/schema#"
			if _, ok := v[recommendationField]; ok {
				doc["required"] = []any{recommendationField}
			}
		}
		return doc
	case []any:
		doc := map[string]any{"type": "array"}
		if len(v) > 0 {
			doc["items"] = compileShape(v[0], false)
		}
		return doc
	case nil:
		return map[string]any{}
	case string:
		return map[string]any{"type": []any{"string", "null"}}
	case bool:
		return map[string]any{"type": []any{"boolean", "null"}}
	case float64:
		if v == math.Trunc(v) {
			return map[string]any{"type": []any{"integer", "null"}}
		}
		return map[string]any{"type": []any{"number", "null"}}
	default:
		return map[string]any{"not": map[string]any{"type": []any{"object", "array"}}}
	}
}

// isTODO reports whether v is a string holding the sentinel anywhere.
func isTODO(v any) bool {
	s, ok := v.(string)
	return ok && strings.Contains(s, TODOSentinel)
}

func containsTODO(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if containsTODO(child) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if containsTODO(child) {
				return true
			}
		}
	default:
		return isTODO(v)
	}
	return false
}

// findTODOs returns the sorted paths of every TODO leaf below v.
func findTODOs(v any, path string) []string {
	var found []string
	switch t := v.(type) {
	case map[string]any:
		for key, child := range t {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			found = append(found, findTODOs(child, childPath)...)
		}
	case []any:
		for i, child := range t {
			found = append(found, findTODOs(child, fmt.Sprintf("%s[%d]", path, i))...)
		}
	default:
		if isTODO(v) {
			found = append(found, path)
		}
	}
	sort.Strings(found)
	return found
}
