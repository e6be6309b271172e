// Package toolexec runs external imaging tools as subprocesses and moves
// their outputs to the paths the pipeline expects.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/dsipipe/internal/ctxlog"
)

// Invocation is one tool run.
type Invocation struct {
	Step   string
	Binary string
	Args   []string
	// Dir is the working directory; relative scraped paths resolve against it.
	Dir string
	Env []string
	// Output is where the caller expects the result. Empty when the tool
	// produces no single file.
	Output string
	// Scrape, when set, finds the path the tool reports on stdout. The
	// reported file is renamed to Output.
	Scrape func(stdout string) (string, bool)
}

// Result describes a finished run.
type Result struct {
	Output   string
	ExitCode int
	PID      int
	Stdout   string
	Stderr   string
	Started  time.Time
	Finished time.Time
}

// Observer is told about tool processes started under a context.
type Observer interface {
	Started(step string, pid int)
	Finished(step string, res *Result)
}

type observerKey struct{}

// WithObserver returns a context whose tool runs report to o.
func WithObserver(ctx context.Context, o Observer) context.Context {
	return context.WithValue(ctx, observerKey{}, o)
}

func observerFrom(ctx context.Context) Observer {
	o, _ := ctx.Value(observerKey{}).(Observer)
	return o
}

// Runner starts tool processes. The zero value is ready to use.
type Runner struct{}

// Run executes inv and waits for it. Runs are not cancelled mid-process;
// ctx only carries the logger.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("step", inv.Step, "tool", filepath.Base(inv.Binary))

	cmd := exec.Command(inv.Binary, inv.Args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if inv.Output != "" {
		if err := os.MkdirAll(filepath.Dir(inv.Output), 0o755); err != nil {
			return nil, fmt.Errorf("step %q: creating output directory: %w", inv.Step, err)
		}
	}

	res := &Result{Started: time.Now(), ExitCode: -1}
	logger.Info("Starting external tool.", "args", inv.Args)
	if err := cmd.Start(); err != nil {
		return nil, &ExternalToolFailure{Step: inv.Step, Tool: inv.Binary, ExitCode: -1, Err: err}
	}
	res.PID = cmd.Process.Pid
	obs := observerFrom(ctx)
	if obs != nil {
		obs.Started(inv.Step, res.PID)
		defer obs.Finished(inv.Step, res)
	}

	err := cmd.Wait()
	res.Finished = time.Now()
	res.Stdout, res.Stderr = stdout.String(), stderr.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	logger.Debug("External tool finished.", "exit_code", res.ExitCode, "elapsed", res.Finished.Sub(res.Started))
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, &ExternalToolFailure{Step: inv.Step, Tool: inv.Binary, ExitCode: -1, Stderr: res.Stderr, Err: err}
		}
		return res, &ExternalToolFailure{Step: inv.Step, Tool: inv.Binary, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	if inv.Output == "" {
		return res, nil
	}
	if inv.Scrape != nil {
		reported, ok := inv.Scrape(res.Stdout)
		if !ok {
			return res, &ExternalToolFailure{Step: inv.Step, Tool: inv.Binary, ExitCode: res.ExitCode, Output: inv.Output,
				Err: errors.New("tool did not report an output file")}
		}
		if !filepath.IsAbs(reported) && inv.Dir != "" {
			reported = filepath.Join(inv.Dir, reported)
		}
		if reported != inv.Output {
			logger.Debug("Moving reported output into place.", "from", reported, "to", inv.Output)
			if err := MoveFile(reported, inv.Output); err != nil {
				return res, &ExternalToolFailure{Step: inv.Step, Tool: inv.Binary, ExitCode: res.ExitCode, Output: inv.Output, Err: err}
			}
		}
	}
	if _, err := os.Stat(inv.Output); err != nil {
		return res, &ExternalToolFailure{Step: inv.Step, Tool: inv.Binary, ExitCode: res.ExitCode, Output: inv.Output, Err: err}
	}
	res.Output = inv.Output
	logger.Info("External tool succeeded.", "output", res.Output)
	return res, nil
}

// ScrapeSuffix returns a scraper that picks the last whitespace-separated
// token on stdout ending in suffix.
func ScrapeSuffix(suffix string) func(string) (string, bool) {
	return func(stdout string) (string, bool) {
		fields := strings.Fields(stdout)
		for i := len(fields) - 1; i >= 0; i-- {
			tok := fields[i]
			if _, after, ok := strings.Cut(tok, "="); ok {
				tok = after
			}
			tok = strings.Trim(tok, `"':,;`)
			if strings.HasSuffix(tok, suffix) && len(tok) > len(suffix) {
				return tok, true
			}
		}
		return "", false
	}
}

// MoveFile renames src to dst. Across filesystems it copies into a
// temporary file next to dst and renames that, so dst is either complete
// or untouched and src is only removed once dst is in place.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if _, statErr := os.Stat(src); statErr != nil {
		return fmt.Errorf("moving %s: %w", src, statErr)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Remove(src)
}
