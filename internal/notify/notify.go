// Package notify reports pipeline progress on side channels. Notification
// failures are logged by callers and never fail a run.
package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Kind tells what an Event reports.
type Kind string

const (
	RunStarted   Kind = "run_started"
	StepFinished Kind = "step_finished"
	RunFinished  Kind = "run_finished"
)

// Event is one status report.
type Event struct {
	Kind     Kind     `json:"kind"`
	Pipeline string   `json:"pipeline"`
	RunID    int64    `json:"run_id,omitempty"`
	Node     string   `json:"node,omitempty"`
	Step     string   `json:"step,omitempty"`
	State    string   `json:"state,omitempty"`
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	Executed []string `json:"executed,omitempty"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Multi delivers every event to all of its notifiers concurrently and
// returns their joined errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, n := range m {
		g.Go(func() error {
			if err := n.Notify(ctx, ev); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
