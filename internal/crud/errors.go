package crud

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound signals that no live row matches the identifier.
	ErrNotFound = errors.New("record not found")
	// ErrIntegrity signals a violated storage invariant such as a duplicate id
	// or a dangling foreign key.
	ErrIntegrity = errors.New("integrity violation")
	// ErrUnavailable signals a connection or transport failure of the store.
	ErrUnavailable = errors.New("storage unavailable")
)

// ValidationError enumerates offending input fields.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// Add records a field violation.
func (e *ValidationError) Add(field, reason string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = reason
}

// OrNil returns nil when no field was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func notFound(name string, id fmt.Stringer) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, name, id)
}
