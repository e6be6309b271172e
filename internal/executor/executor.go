// Package executor runs an assembled graph on a pool of workers. A failed
// node skips only the nodes that depend on it; independent branches keep
// running.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/dag"
	"github.com/vk/dsipipe/internal/registry"
)

// Observer is told when nodes start and finish. Calls come from several
// workers concurrently.
type Observer interface {
	NodeStarted(ctx context.Context, n *dag.Node)
	NodeFinished(ctx context.Context, n *dag.Node, status NodeStatus)
}

// Options configure an Executor.
type Options struct {
	Workers  int
	Observer Observer
	// NodeContext decorates the context each node runs under.
	NodeContext func(ctx context.Context, n *dag.Node) context.Context
}

// Executor runs one graph once.
type Executor struct {
	graph      *dag.Graph
	numWorkers int
	observer   Observer
	nodeCtx    func(context.Context, *dag.Node) context.Context

	states map[*dag.Node]*nodeState
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates an executor for g.
func New(g *dag.Graph, opts Options) *Executor {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	e := &Executor{
		graph:      g,
		numWorkers: workers,
		observer:   opts.Observer,
		nodeCtx:    opts.NodeContext,
		states:     make(map[*dag.Node]*nodeState, g.Len()),
	}
	for _, n := range g.Nodes() {
		st := &nodeState{}
		st.depCount.Store(int32(len(n.Deps())))
		e.states[n] = st
	}
	return e
}

// Run executes the graph and returns the joined root-cause errors of every
// failed node. Skipped nodes are not root causes.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	nodes := e.graph.Nodes()
	readyChan := make(chan *dag.Node, len(nodes))

	logger.Debug("Initializing executor, finding root nodes...")
	rootNodeCount := 0
	for _, n := range nodes {
		if e.states[n].depCount.Load() == 0 {
			logger.Debug("Found root node.", "nodeID", n.ID)
			readyChan <- n
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	e.wg.Add(len(nodes))
	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, readyChan, i)
	}

	logger.Info("Waiting for all nodes to complete...", "nodes", len(nodes))
	e.wg.Wait()
	close(readyChan)
	logger.Info("All nodes completed.")

	var errs []error
	for _, n := range nodes {
		st := e.states[n]
		if st.load() == Failed {
			errs = append(errs, fmt.Errorf("%s: %w", n.ID, st.err))
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *dag.Node, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", n.ID)
		st := e.states[n]

		if ctx.Err() != nil {
			e.skip(ctx, n, ctx.Err())
			continue
		}

		workerLogger.Debug("Worker picked up node for execution.")
		st.store(Running)
		if e.observer != nil {
			e.observer.NodeStarted(ctx, n)
		}

		err := e.runNode(ctx, n)
		if err != nil {
			workerLogger.Error("Node execution failed.", "error", err)
			e.setErr(st, err)
			st.store(Failed)
			e.finished(ctx, n)
			e.skipDependents(ctx, n)
			e.wg.Done()
			continue
		}

		workerLogger.Info("Node execution succeeded.")
		st.store(Done)
		e.finished(ctx, n)

		for _, dependent := range n.Dependents() {
			if e.states[dependent].depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent node.", "dependentID", dependent.ID)
				readyChan <- dependent
			}
		}
		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

func (e *Executor) runNode(ctx context.Context, n *dag.Node) error {
	nodeCtx := ctxlog.With(ctx, "step", n.Step(), "node", n.ID)
	if e.nodeCtx != nil {
		nodeCtx = e.nodeCtx(nodeCtx, n)
	}

	e.mu.Lock()
	results := make(map[string]registry.Outputs, len(n.Deps()))
	for _, dep := range n.Deps() {
		results[dep.ID] = e.states[dep].outputs
	}
	e.mu.Unlock()

	in, err := n.Inputs(results)
	if err != nil {
		return err
	}
	out, err := n.Instance.Step.Run(nodeCtx, in)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.states[n].outputs = out
	e.mu.Unlock()
	return nil
}

// skip marks a node and everything downstream of it skipped, each node
// exactly once.
func (e *Executor) skip(ctx context.Context, n *dag.Node, cause error) {
	st := e.states[n]
	st.skipOnce.Do(func() {
		ctxlog.FromContext(ctx).Warn("Skipping node.", "nodeID", n.ID, "reason", cause)
		e.setErr(st, cause)
		st.store(Skipped)
		e.finished(ctx, n)
		e.wg.Done()
		e.skipDependents(ctx, n)
	})
}

// skipDependents marks all downstream nodes of n as skipped.
func (e *Executor) skipDependents(ctx context.Context, n *dag.Node) {
	for _, dependent := range n.Dependents() {
		e.skip(ctx, dependent, fmt.Errorf("skipped due to upstream failure of '%s'", n.ID))
	}
}

func (e *Executor) setErr(st *nodeState, err error) {
	e.mu.Lock()
	st.err = err
	e.mu.Unlock()
}

func (e *Executor) finished(ctx context.Context, n *dag.Node) {
	if e.observer != nil {
		e.observer.NodeFinished(ctx, n, e.status(n))
	}
}

func (e *Executor) status(n *dag.Node) NodeStatus {
	st := e.states[n]
	s := NodeStatus{ID: n.ID, Step: n.Step(), Type: n.Instance.Type.Name, State: st.load().String()}
	e.mu.Lock()
	s.Outputs = st.outputs
	err := st.err
	e.mu.Unlock()
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// Snapshot reports the state of every node in graph order. It is safe to
// call while Run is in progress.
func (e *Executor) Snapshot() []NodeStatus {
	nodes := e.graph.Nodes()
	out := make([]NodeStatus, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, e.status(n))
	}
	return out
}
