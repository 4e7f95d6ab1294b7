package artifacts

import "fmt"

// Error is returned when a filesystem operation on an artifact fails.
type Error struct {
	Op    string
	Path  string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
