package core

import (
	"errors"
	"fmt"
)

// ErrConnection reports that the record store could not be reached or
// rejected the statement. Callers show a generic failure and abort.
var ErrConnection = errors.New("store unavailable")

// ValidationError describes malformed mutation input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
