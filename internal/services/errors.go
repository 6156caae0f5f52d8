package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrMissingDependency = fmt.Errorf("%w: missing dependency", ErrValidation)
	ErrCollaborator      = errors.New("collaborator error")
	ErrStorage           = errors.New("storage error")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrTimeout           = errors.New("timeout")
	ErrTransient         = errors.New("transient failure")
)

// Wrap builds an error message that includes step context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether resubmitting the same request can succeed without
// changing its inputs.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyExists):
		return false
	default:
		return true
	}
}

// Reason returns the short failure reason recorded on a step.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown error"
	}
	return msg
}

// Error classes persisted next to a failure reason so a failure read back
// from storage classifies the same way as the original error.
const (
	ClassValidation        = "validation"
	ClassMissingDependency = "missing_dependency"
	ClassCollaborator      = "collaborator"
	ClassStorage           = "storage"
	ClassConfiguration     = "configuration"
	ClassNotFound          = "not_found"
	ClassAlreadyExists     = "already_exists"
	ClassTimeout           = "timeout"
	ClassTransient         = "transient"
)

var classMarkers = []struct {
	class  string
	marker error
}{
	{ClassMissingDependency, ErrMissingDependency},
	{ClassValidation, ErrValidation},
	{ClassTimeout, ErrTimeout},
	{ClassConfiguration, ErrConfiguration},
	{ClassNotFound, ErrNotFound},
	{ClassAlreadyExists, ErrAlreadyExists},
	{ClassStorage, ErrStorage},
	{ClassCollaborator, ErrCollaborator},
	{ClassTransient, ErrTransient},
}

// Class names the marker err carries. Unmarked errors are transient, except
// deadline expiry which is a timeout.
func Class(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range classMarkers {
		if errors.Is(err, c.marker) {
			return c.class
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	return ClassTransient
}

// FromClass rebuilds an error carrying the marker for class. An unknown or
// empty class yields a collaborator error.
func FromClass(class, step, reason string) error {
	marker := ErrCollaborator
	for _, c := range classMarkers {
		if c.class == class {
			marker = c.marker
			break
		}
	}
	return Wrap(marker, step, "", reason, nil)
}

// HTTPStatus maps an error to the response code used by the gateway.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrCollaborator):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
