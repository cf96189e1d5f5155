package storefront

import (
	"errors"
	"fmt"
)

// ErrInvalidRegion is returned when a region switch names an unknown region.
var ErrInvalidRegion = errors.New("invalid region")

// ValidationError rejects a request before any state changes.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
