package dsistudio

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrInvalidOption       = errors.New("invalid option")
	ErrConflictingOption   = errors.New("conflicting options")
	ErrRegionCountMismatch = errors.New("region count mismatch")
)

// InvalidOptionError reports a missing, mistyped or unresolvable option.
type InvalidOptionError struct {
	Step   string
	Action Action
	Option string
	Reason string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("%sinvalid option %q for action %q: %s", stepPrefix(e.Step), e.Option, e.Action, e.Reason)
}

func (e *InvalidOptionError) Is(target error) bool { return target == ErrInvalidOption }

// ConflictingOptionError reports two mutually exclusive options that are both set.
type ConflictingOptionError struct {
	Step   string
	Action Action
	Option string
	Other  string
}

func (e *ConflictingOptionError) Error() string {
	return fmt.Sprintf("%soptions %q and %q are mutually exclusive for action %q", stepPrefix(e.Step), e.Option, e.Other, e.Action)
}

func (e *ConflictingOptionError) Is(target error) bool { return target == ErrConflictingOption }

// RegionCountMismatchError reports a region action list whose length differs
// from its substituted region list.
type RegionCountMismatchError struct {
	Step    string
	Option  string
	Regions int
	Actions int
}

func (e *RegionCountMismatchError) Error() string {
	return fmt.Sprintf("%s%q has %d regions but %d action lists", stepPrefix(e.Step), e.Option, e.Regions, e.Actions)
}

func (e *RegionCountMismatchError) Is(target error) bool { return target == ErrRegionCountMismatch }

// AttachStep records the step name on any resolver error so the caller's
// message names the offending step. Other errors pass through untouched.
func AttachStep(err error, step string) error {
	var (
		inv *InvalidOptionError
		con *ConflictingOptionError
		reg *RegionCountMismatchError
	)
	switch {
	case errors.As(err, &inv):
		inv.Step = step
	case errors.As(err, &con):
		con.Step = step
	case errors.As(err, &reg):
		reg.Step = step
	}
	return err
}

func stepPrefix(step string) string {
	if step == "" {
		return ""
	}
	return fmt.Sprintf("step %q: ", step)
}

func invalid(action Action, option, format string, args ...any) *InvalidOptionError {
	return &InvalidOptionError{Action: action, Option: option, Reason: fmt.Sprintf(format, args...)}
}
