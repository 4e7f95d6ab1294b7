package archive

import "fmt"

// Error is returned when archiving fails. The run must not proceed after one.
type Error struct {
	Op    string
	Path  string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("archive error: %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
