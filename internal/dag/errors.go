package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAmbiguousConnection  = errors.New("ambiguous connection")
	ErrUnresolvedConnection = errors.New("unresolved connection source")
	ErrInvalidGraph         = errors.New("invalid workflow graph")
	ErrCycleFound           = errors.New("cycle detected")
	ErrIteration            = errors.New("invalid iteration")
)

// AmbiguousConnectionError reports a source naming a step type that more
// than one step instance uses.
type AmbiguousConnectionError struct {
	Step       string
	Field      string
	Type       string
	Candidates []string
}

func (e *AmbiguousConnectionError) Error() string {
	return fmt.Sprintf("step %q: input %q: source type %s is used by %s; connect one of them by name",
		e.Step, e.Field, e.Type, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousConnectionError) Is(target error) bool { return target == ErrAmbiguousConnection }

// UnresolvedConnectionSourceError reports a source that names no step,
// step type or setup field.
type UnresolvedConnectionSourceError struct {
	Step   string
	Field  string
	Source string
	Reason string
}

func (e *UnresolvedConnectionSourceError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "no step, step type or setup field has that name"
	}
	return fmt.Sprintf("step %q: input %q: cannot resolve source %q: %s", e.Step, e.Field, e.Source, reason)
}

func (e *UnresolvedConnectionSourceError) Is(target error) bool {
	return target == ErrUnresolvedConnection
}

// GraphError wraps structural failures found while assembling.
type GraphError struct {
	Kind error
	Step string
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.Step != "" {
		msg = fmt.Sprintf("step %q: %s", e.Step, msg)
	}
	return msg
}

func (e *GraphError) Unwrap() error { return e.Kind }

func iterationf(step, format string, args ...any) error {
	return &GraphError{Kind: ErrIteration, Step: step, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []string) error {
	msg := "cycle"
	if len(path) > 0 {
		msg = "cycle: " + strings.Join(path, " -> ")
	}
	return &GraphError{Kind: ErrCycleFound, Msg: msg}
}
