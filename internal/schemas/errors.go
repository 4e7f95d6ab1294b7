package schemas

import (
	"fmt"
	"strings"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// summary joins the field errors into a single line.
func (ve *ValidationError) summary() string {
	parts := make([]string, 0, len(ve.Errors))
	for _, err := range ve.Errors {
		parts = append(parts, err.Field+": "+err.Message)
	}
	return strings.Join(parts, "; ")
}

// SchemaLoadError represents errors loading or deriving a schema from its template
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// RepairError is returned when a document is still invalid after the repair pass.
type RepairError struct {
	SchemaType string
	Message    string
	Errors     []FieldError
}

func (e *RepairError) Error() string {
	return fmt.Sprintf("%s output invalid after repair: %s", e.SchemaType, e.Message)
}
