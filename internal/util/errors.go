package util

import (
	"fmt"

	"github.com/hupe1980/kbagent/core"
)

// ValidationError reports a rejected argument or input. It matches
// core.ErrValidation with errors.Is.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}

	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Is matches core.ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == core.ErrValidation }
