package registry

import (
	"errors"
	"fmt"
)

// ErrUnknownStepType is matched by *UnknownStepTypeError.
var ErrUnknownStepType = errors.New("unknown step type")

// UnknownStepTypeError reports a step type that resolves neither as
// module.Type, a registered name nor an alias.
type UnknownStepTypeError struct {
	Step string
	Type string
}

func (e *UnknownStepTypeError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("unknown step type %q", e.Type)
	}
	return fmt.Sprintf("step %q: unknown step type %q", e.Step, e.Type)
}

func (e *UnknownStepTypeError) Is(target error) bool { return target == ErrUnknownStepType }
