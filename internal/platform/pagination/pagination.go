// Package pagination implements limit/offset windows with exact totals.
package pagination

import (
	"context"
	"fmt"
)

const (
	// DefaultLimit applies when the caller does not ask for a page size.
	DefaultLimit = 50
	// MaxLimit caps a single page.
	MaxLimit = 100
)

// Window is a validated limit/offset pair.
type Window struct {
	Limit  int
	Offset int
}

// WindowError reports an out-of-range window parameter.
type WindowError struct {
	Field  string
	Reason string
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DefaultWindow is the first page with the default size.
func DefaultWindow() Window {
	return Window{Limit: DefaultLimit}
}

// NewWindow applies defaults to missing values and validates the rest.
func NewWindow(limit, offset *int) (Window, error) {
	w := DefaultWindow()
	if limit != nil {
		if *limit < 1 || *limit > MaxLimit {
			return Window{}, &WindowError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxLimit)}
		}
		w.Limit = *limit
	}
	if offset != nil {
		if *offset < 0 {
			return Window{}, &WindowError{Field: "offset", Reason: "must be greater than or equal to 0"}
		}
		w.Offset = *offset
	}
	return w, nil
}

// Page is one window of an ordered result set plus the total matching rows.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// Source is a filtered, ordered base query.
type Source[T any] interface {
	Count(ctx context.Context) (int64, error)
	Find(ctx context.Context, limit, offset int) ([]T, error)
}

// Paginate counts the matching rows and loads the rows inside the window.
// The count is a separate COUNT query, never a scan of the full result set.
func Paginate[T any](ctx context.Context, src Source[T], w Window) (Page[T], error) {
	if w.Limit < 1 {
		w.Limit = DefaultLimit
	}
	if w.Offset < 0 {
		w.Offset = 0
	}
	total, err := src.Count(ctx)
	if err != nil {
		return Page[T]{}, err
	}
	items := make([]T, 0)
	if int64(w.Offset) < total {
		found, err := src.Find(ctx, w.Limit, w.Offset)
		if err != nil {
			return Page[T]{}, err
		}
		items = append(items, found...)
	}
	return Page[T]{Items: items, Total: total, Limit: w.Limit, Offset: w.Offset}, nil
}

// Map converts the items of a page, keeping the window and total.
func Map[T, R any](page Page[T], convert func([]T) ([]R, error)) (Page[R], error) {
	items, err := convert(page.Items)
	if err != nil {
		return Page[R]{}, err
	}
	if items == nil {
		items = make([]R, 0)
	}
	return Page[R]{Items: items, Total: page.Total, Limit: page.Limit, Offset: page.Offset}, nil
}
