package executor

import (
	"sync"
	"sync/atomic"

	"github.com/vk/dsipipe/internal/registry"
)

// State is the lifecycle state of one node in a run.
type State int32

const (
	Pending State = iota
	Running
	Done
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// nodeState is the run state of a node. The graph itself stays immutable.
type nodeState struct {
	state    atomic.Int32
	depCount atomic.Int32
	skipOnce sync.Once
	err      error
	outputs  registry.Outputs
}

func (s *nodeState) load() State   { return State(s.state.Load()) }
func (s *nodeState) store(v State) { s.state.Store(int32(v)) }

// NodeStatus is a point-in-time view of one node.
type NodeStatus struct {
	ID      string           `json:"id"`
	Step    string           `json:"step"`
	Type    string           `json:"type"`
	State   string           `json:"state"`
	Error   string           `json:"error,omitempty"`
	Outputs registry.Outputs `json:"-"`
}
