package masking

import (
	"errors"
	"fmt"
)

// ErrInvalidPattern is matched by every ValidationError raised for a pattern.
var ErrInvalidPattern = errors.New("invalid secret pattern")

// ValidationError reports a registration the base Engine refuses. It never
// carries the rejected value.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPattern && e.Field == "pattern"
}
