// Package errors renders API failures as RFC 7807 Problem Details.
package errors

import (
	"fmt"
	"net/http"
)

// ProblemDetail is the body of every error response.
// See: https://www.rfc-editor.org/rfc/rfc7807
type ProblemDetail struct {
	// Type is a URI reference identifying the kind of problem.
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	// Detail explains this occurrence. It never carries storage messages
	// for internal failures.
	Detail string `json:"detail,omitempty"`
	// Instance defaults to the request path.
	Instance   string         `json:"instance,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (p ProblemDetail) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return p.Title + ": " + p.Detail
}

// WithDetail returns a copy carrying detail.
func (p ProblemDetail) WithDetail(detail string) ProblemDetail {
	p.Detail = detail
	return p
}

// WithExtension returns a copy with key set in the extension members. The
// receiver's map is never shared with the copy.
func (p ProblemDetail) WithExtension(key string, value any) ProblemDetail {
	ext := make(map[string]any, len(p.Extensions)+1)
	for k, v := range p.Extensions {
		ext[k] = v
	}
	ext[key] = value
	p.Extensions = ext
	return p
}

// Problem type URIs, relative to the responder's base URI.
const (
	TypeValidation  = "/problems/validation-error"
	TypeNotFound    = "/problems/not-found"
	TypeConflict    = "/problems/conflict"
	TypeInternal    = "/problems/internal-error"
	TypeUnavailable = "/problems/service-unavailable"
)

func template(kind, title string, status int) ProblemDetail {
	return ProblemDetail{Type: kind, Title: title, Status: status}
}

var (
	ErrNotFound    = template(TypeNotFound, "Resource Not Found", http.StatusNotFound)
	ErrValidation  = template(TypeValidation, "Validation Error", http.StatusBadRequest)
	ErrConflict    = template(TypeConflict, "Conflict", http.StatusConflict)
	ErrInternal    = template(TypeInternal, "Internal Server Error", http.StatusInternalServerError)
	ErrUnavailable = template(TypeUnavailable, "Service Unavailable", http.StatusServiceUnavailable)
)

// GenericInternalDetail is the only detail sent for unexpected failures.
const GenericInternalDetail = "an unexpected error occurred"

// NewValidationProblem reports offending input fields under extensions.fields.
func NewValidationProblem(fields map[string]string) ProblemDetail {
	return ErrValidation.WithExtension("fields", fields)
}

// NewNotFoundProblem reports a missing row. The identifier is echoed as
// given, never a storage message.
func NewNotFoundProblem(resourceType string, identifier any) ProblemDetail {
	return ErrNotFound.
		WithDetail(fmt.Sprintf("%s with identifier '%v' not found", resourceType, identifier)).
		WithExtension("resourceType", resourceType).
		WithExtension("identifier", identifier)
}

// NewConflictProblem reports a violated integrity rule.
func NewConflictProblem(detail string) ProblemDetail {
	return ErrConflict.WithDetail(detail)
}

// NewUnavailableProblem reports an unreachable dependency.
func NewUnavailableProblem(dependency string) ProblemDetail {
	return ErrUnavailable.WithDetail(dependency + " unavailable")
}
