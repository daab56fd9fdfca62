// Package apperr defines the error kinds shared by the adapters, the
// orchestrator and the dispatch server.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTool        = errors.New("unknown tool")
	ErrEntityNotFound     = errors.New("entity not found")
	ErrEndpointNotFound   = errors.New("relationship endpoint not found")
	ErrNoteNotFound       = errors.New("note not found")
	ErrServiceUnreachable = errors.New("service unreachable")
	ErrServiceError       = errors.New("service returned an error status")
	ErrUnexpectedResponse = errors.New("unexpected response shape")
	ErrNoEmbedding        = errors.New("no embedding returned")
	ErrValidation         = errors.New("validation failed")
	ErrBackendDisabled    = errors.New("backend disabled")
)

// StatusError is returned when a backend answered with a non-2xx status.
// It matches ErrServiceError.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Is reports whether target is ErrServiceError.
func (e *StatusError) Is(target error) bool {
	return target == ErrServiceError
}

// Kind returns the short name of the taxonomy entry err belongs to, or
// "internal" when it matches none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownTool):
		return "UnknownTool"
	case errors.Is(err, ErrEntityNotFound):
		return "EntityNotFound"
	case errors.Is(err, ErrEndpointNotFound):
		return "EndpointNotFound"
	case errors.Is(err, ErrNoteNotFound):
		return "NoteNotFound"
	case errors.Is(err, ErrServiceUnreachable):
		return "ServiceUnreachable"
	case errors.Is(err, ErrServiceError):
		return "ServiceError"
	case errors.Is(err, ErrUnexpectedResponse):
		return "UnexpectedResponseShape"
	case errors.Is(err, ErrNoEmbedding):
		return "NoEmbeddingReturned"
	case errors.Is(err, ErrValidation):
		return "ValidationFailure"
	case errors.Is(err, ErrBackendDisabled):
		return "BackendDisabled"
	default:
		return "internal"
	}
}
