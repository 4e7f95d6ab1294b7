package server

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound indicates a missing run, artifact or batch.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrUnavailable indicates a feature whose backend is not configured.
type ErrUnavailable struct {
	Feature string
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("%s is not configured on this server", e.Feature)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound    *ErrNotFound
		validation  *ErrValidation
		unavailable *ErrUnavailable
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
