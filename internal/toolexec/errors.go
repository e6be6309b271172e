package toolexec

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExternalTool is matched by *ExternalToolFailure.
var ErrExternalTool = errors.New("external tool failed")

// ExternalToolFailure reports a tool that exited non-zero, could not be
// started, or finished without leaving its expected output.
type ExternalToolFailure struct {
	Step     string
	Tool     string
	ExitCode int
	// Output is set when the process succeeded but its output is missing.
	Output string
	Stderr string
	Err    error
}

func (e *ExternalToolFailure) Error() string {
	var msg string
	switch {
	case e.Output != "":
		msg = fmt.Sprintf("step %q: %s finished but output %s is missing", e.Step, e.Tool, e.Output)
	case e.ExitCode < 0:
		msg = fmt.Sprintf("step %q: %s could not be run", e.Step, e.Tool)
	default:
		msg = fmt.Sprintf("step %q: %s exited with code %d", e.Step, e.Tool, e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if tail := lastLines(e.Stderr, 5); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

func (e *ExternalToolFailure) Unwrap() error { return e.Err }

func (e *ExternalToolFailure) Is(target error) bool { return target == ErrExternalTool }

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
