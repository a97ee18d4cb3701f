package wizard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrFinalized is returned when a step is submitted after the wizard has
// handed the configuration to provisioning.
var ErrFinalized = errors.New("wizard already finalized")

// ValidationError rejects a step submission. Nothing is persisted when it is returned.
type ValidationError struct {
	Step   int               `json:"step"`
	Fields map[string]string `json:"errors"`
	Err    error             `json:"-"`
}

func newValidationError(step int, field, message string) *ValidationError {
	return &ValidationError{Step: step, Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s", name, e.Fields[name]))
	}
	return fmt.Sprintf("step %d invalid: %s", e.Step, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
