package dag

import (
	"fmt"

	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/workflow"
	"github.com/zclconf/go-cty/cty"
)

// Graph is an assembled pipeline. It is not modified after Assemble
// returns; run state lives with the executor.
type Graph struct {
	table *workflow.Table
	nodes []*Node
	byID  map[string]*Node
}

// Node is one executable unit: a step instance, or one element of an
// iterated step instance.
type Node struct {
	ID       string
	Instance *workflow.Instance
	// Index is the iteration index, or -1 for a step that does not iterate.
	Index int
	// Static holds option values and setup-bound inputs.
	Static registry.Inputs
	Edges  []*Edge
	// Plan is the step's description of its run, computed during assembly.
	Plan *registry.Plan

	deps       []*Node
	dependents []*Node
}

// Edge feeds one input field of a node from producer outputs.
type Edge struct {
	Field     string
	FromField string
	// Sources has exactly one node unless Join is set, in which case it
	// lists every iteration of the producer in index order.
	Sources []*Node
	Join    bool
}

// Nodes returns every node in a topological order.
func (g *Graph) Nodes() []*Node { return append([]*Node(nil), g.nodes...) }

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Len is the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Table returns the step table the graph was assembled from.
func (g *Graph) Table() *workflow.Table { return g.table }

// Step is the name of the step instance the node belongs to.
func (n *Node) Step() string { return n.Instance.Name }

// Deps returns the nodes this node consumes from.
func (n *Node) Deps() []*Node { return append([]*Node(nil), n.deps...) }

// Dependents returns the nodes that consume this node.
func (n *Node) Dependents() []*Node { return append([]*Node(nil), n.dependents...) }

// Inputs merges the node's static inputs with the outputs of its
// producers as recorded in results. Every producer must have a result
// carrying the connected field.
func (n *Node) Inputs(results map[string]registry.Outputs) (registry.Inputs, error) {
	return n.inputs(func(p *Node) (registry.Outputs, bool) {
		out, ok := results[p.ID]
		return out, ok
	}, true)
}

// planned builds inputs from producer plans; outputs a plan cannot
// predict are unknown.
func (n *Node) planned() registry.Inputs {
	in, _ := n.inputs(func(p *Node) (registry.Outputs, bool) {
		if p.Plan == nil {
			return nil, false
		}
		return p.Plan.Outputs, true
	}, false)
	return in
}

func (n *Node) inputs(lookup func(*Node) (registry.Outputs, bool), strict bool) (registry.Inputs, error) {
	in := make(registry.Inputs, len(n.Static)+len(n.Edges))
	for k, v := range n.Static {
		in[k] = v
	}
	for _, e := range n.Edges {
		vals := make([]cty.Value, 0, len(e.Sources))
		for _, src := range e.Sources {
			v := cty.DynamicVal
			out, ok := lookup(src)
			if fv, has := out[e.FromField]; ok && has && fv != cty.NilVal {
				v = fv
			} else if strict {
				return nil, fmt.Errorf("node %s: input %q: producer %s has no output %q", n.ID, e.Field, src.ID, e.FromField)
			}
			vals = append(vals, v)
		}
		switch {
		case e.Join && len(vals) == 0:
			in[e.Field] = cty.EmptyTupleVal
		case e.Join:
			in[e.Field] = cty.TupleVal(vals)
		default:
			in[e.Field] = vals[0]
		}
	}
	return in, nil
}
