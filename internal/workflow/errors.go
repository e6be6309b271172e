package workflow

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors of this package.
var (
	ErrDuplicateStepName = errors.New("duplicate step name")
	ErrInvalidMerge      = errors.New("invalid step options")
)

// DuplicateStepNameError reports a second step registered under one name.
type DuplicateStepNameError struct {
	Name         string
	ExistingType string
	Type         string
}

func (e *DuplicateStepNameError) Error() string {
	return fmt.Sprintf("step %q is already declared (as %s); cannot declare it again as %s", e.Name, e.ExistingType, e.Type)
}

func (e *DuplicateStepNameError) Is(target error) bool { return target == ErrDuplicateStepName }

// MergeError reports an option or connection override the step type does
// not accept.
type MergeError struct {
	Step   string
	Field  string
	Reason string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("step %q: field %q: %s", e.Step, e.Field, e.Reason)
}

func (e *MergeError) Is(target error) bool { return target == ErrInvalidMerge }
