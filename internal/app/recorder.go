package app

import (
	"context"
	"sync"
	"time"

	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/ctyconv"
	"github.com/vk/dsipipe/internal/dag"
	"github.com/vk/dsipipe/internal/executor"
	"github.com/vk/dsipipe/internal/ledger"
	"github.com/vk/dsipipe/internal/notify"
	"github.com/vk/dsipipe/internal/toolexec"
)

// recorder mirrors executor progress into the ledger and the notifiers.
// Both are optional. Recording failures are logged and never fail a node.
type recorder struct {
	store    *ledger.Store
	notifier notify.Notifier
	runID    int64
	pipeline string

	mu       sync.Mutex
	executed []string
}

var _ executor.Observer = (*recorder)(nil)

func (r *recorder) NodeStarted(ctx context.Context, n *dag.Node) {
	if r.store == nil {
		return
	}
	exec := &ledger.StepExecution{
		RunID:    r.runID,
		Node:     n.ID,
		Step:     n.Step(),
		StepType: n.Instance.Type.QualifiedName(),
	}
	if n.Plan != nil {
		exec.Command = n.Plan.Command
	}
	if _, err := r.store.StartStep(ctx, exec); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to record step start.", "node", n.ID, "error", err)
	}
}

func (r *recorder) NodeFinished(ctx context.Context, n *dag.Node, st executor.NodeStatus) {
	logger := ctxlog.FromContext(ctx)
	if st.State == executor.Done.String() {
		r.mu.Lock()
		r.executed = append(r.executed, n.ID)
		r.mu.Unlock()
	}
	if r.store != nil {
		exec := &ledger.StepExecution{
			RunID:    r.runID,
			Node:     n.ID,
			Step:     n.Step(),
			StepType: n.Instance.Type.QualifiedName(),
			Status:   stepStatus(st.State),
			Error:    st.Error,
		}
		if len(st.Outputs) > 0 {
			exec.Outputs = make(map[string]any, len(st.Outputs))
			for field, v := range st.Outputs {
				exec.Outputs[field] = ctyconv.ToGo(v)
			}
		}
		if err := r.store.FinishStep(ctx, exec); err != nil {
			logger.Warn("Failed to record step result.", "node", n.ID, "error", err)
		}
	}
	r.notify(ctx, notify.Event{
		Kind:    notify.StepFinished,
		Node:    n.ID,
		Step:    n.Step(),
		State:   st.State,
		Success: st.State == executor.Done.String(),
		Error:   st.Error,
	})
}

func (r *recorder) notify(ctx context.Context, ev notify.Event) {
	if r.notifier == nil {
		return
	}
	ev.Pipeline = r.pipeline
	ev.RunID = r.runID
	if err := r.notifier.Notify(ctx, ev); err != nil {
		ctxlog.FromContext(ctx).Warn("Notification failed.", "kind", ev.Kind, "error", err)
	}
}

// Executed lists the nodes that finished successfully, in completion order.
func (r *recorder) Executed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.executed...)
}

// nodeContext lets the tool runner report process IDs and exit codes of
// node n to the ledger.
func (r *recorder) nodeContext(ctx context.Context, n *dag.Node) context.Context {
	if r.store == nil {
		return ctx
	}
	return toolexec.WithObserver(ctx, &toolRecorder{ctx: ctx, store: r.store, runID: r.runID, node: n.ID})
}

type toolRecorder struct {
	ctx   context.Context
	store *ledger.Store
	runID int64
	node  string
}

func (t *toolRecorder) Started(step string, pid int) {
	if err := t.store.UpdateStepPID(t.ctx, t.runID, t.node, pid); err != nil {
		ctxlog.FromContext(t.ctx).Warn("Failed to record tool pid.", "step", step, "error", err)
	}
}

func (t *toolRecorder) Finished(step string, res *toolexec.Result) {
	if err := t.store.UpdateStepExitCode(t.ctx, t.runID, t.node, res.ExitCode); err != nil {
		ctxlog.FromContext(t.ctx).Warn("Failed to record tool exit code.", "step", step, "error", err)
	}
	ctxlog.FromContext(t.ctx).Debug("Tool finished.", "step", step, "exit_code", res.ExitCode, "elapsed", res.Finished.Sub(res.Started).Round(time.Millisecond))
}

func stepStatus(state string) ledger.StepStatus {
	switch state {
	case executor.Done.String():
		return ledger.StepStatusComplete
	case executor.Skipped.String():
		return ledger.StepStatusSkipped
	case executor.Failed.String():
		return ledger.StepStatusFailed
	}
	return ledger.StepStatusRunning
}
