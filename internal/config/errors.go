package config

import (
	"errors"
	"fmt"
)

// Sentinels for load-time failures.
var (
	ErrInvalidConfig       = errors.New("invalid pipeline config")
	ErrMalformedConnection = errors.New("malformed connection spec")
)

// Error locates a config problem.
type Error struct {
	Kind  error
	Path  string
	Field string
	Msg   string
}

func (e *Error) Error() string {
	loc := e.Field
	if e.Path != "" {
		loc = e.Path + ": " + loc
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, loc, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func invalidf(field, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidConfig, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func malformedf(field, format string, args ...any) *Error {
	return &Error{Kind: ErrMalformedConnection, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// WithPath stamps the file path on a config error.
func WithPath(err error, path string) error {
	var ce *Error
	if errors.As(err, &ce) && ce.Path == "" {
		ce.Path = path
	}
	return err
}
