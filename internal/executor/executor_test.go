package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dsipipe/internal/config"
	"github.com/vk/dsipipe/internal/dag"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/testutil"
	"github.com/vk/dsipipe/internal/workflow"
	"github.com/zclconf/go-cty/cty"
)

var errBoom = errors.New("boom")

// appendStep appends its name to its input at run time.
type appendStep struct {
	name string
	fail bool
}

func (s appendStep) Prepare(context.Context, registry.Inputs) (*registry.Plan, error) {
	return &registry.Plan{}, nil
}

func (s appendStep) Run(_ context.Context, in registry.Inputs) (registry.Outputs, error) {
	if s.fail {
		return nil, errBoom
	}
	prefix := ""
	if v, ok := in["in"]; ok {
		prefix = v.AsString() + ">"
	}
	return registry.Outputs{"out": cty.StringVal(prefix + s.name)}, nil
}

type collectStep struct{}

func (collectStep) Prepare(context.Context, registry.Inputs) (*registry.Plan, error) {
	return &registry.Plan{}, nil
}

func (collectStep) Run(_ context.Context, in registry.Inputs) (registry.Outputs, error) {
	return registry.Outputs{"all": in["items"]}, nil
}

type testModule struct{}

func (testModule) Register(b *registry.Builder) {
	b.Register(&registry.StepType{
		Name: "Append", Module: "test",
		Inputs:  []string{"in"},
		Outputs: []string{"out"},
		Accepts: func(o string) bool { return o == "fail" },
		New: func(name string, opts map[string]cty.Value) (registry.Step, error) {
			v, ok := opts["fail"]
			return appendStep{name: name, fail: ok && v.True()}, nil
		},
	})
	b.Register(&registry.StepType{
		Name: "Each", Module: "test",
		Inputs:      []string{"item"},
		Outputs:     []string{"out"},
		Iterables:   []string{"item"},
		Connections: map[string]registry.Source{"item": {Key: "setup", Field: "included_ids"}},
		New: func(string, map[string]cty.Value) (registry.Step, error) {
			return eachStep{}, nil
		},
	})
	b.Register(&registry.StepType{
		Name: "Collect", Module: "test",
		Inputs:      []string{"items"},
		Outputs:     []string{"all"},
		Joins:       []string{"items"},
		Connections: map[string]registry.Source{"items": {Key: "Each", Field: "out"}},
		New: func(string, map[string]cty.Value) (registry.Step, error) {
			return collectStep{}, nil
		},
	})
}

type eachStep struct{}

func (eachStep) Prepare(context.Context, registry.Inputs) (*registry.Plan, error) {
	return &registry.Plan{}, nil
}

func (eachStep) Run(_ context.Context, in registry.Inputs) (registry.Outputs, error) {
	return registry.Outputs{"out": cty.StringVal("seen:" + in["item"].AsString())}, nil
}

func buildGraph(t *testing.T, model *config.Model) *dag.Graph {
	t.Helper()
	ctx := testutil.Context()
	reg, err := registry.New(nil, testModule{})
	require.NoError(t, err)
	table, err := workflow.Build(ctx, reg, model)
	require.NoError(t, err)
	g, err := dag.Assemble(ctx, table)
	require.NoError(t, err)
	return g
}

func chain(field, key string) *config.StepMethod {
	return &config.StepMethod{Connect: map[string]config.Connection{field: {Key: key, Field: "out"}}}
}

type recorder struct {
	mu       sync.Mutex
	started  []string
	finished map[string]NodeStatus
}

func (r *recorder) NodeStarted(_ context.Context, n *dag.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, n.ID)
}

func (r *recorder) NodeFinished(_ context.Context, n *dag.Node, s NodeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = map[string]NodeStatus{}
	}
	r.finished[n.ID] = s
}

func TestExecutor_FailureSkipsOnlyDependents(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	// A -> B(fails) -> C -> E ; A -> D
	g := buildGraph(t, &config.Model{
		Steps: []config.StepDecl{
			{Name: "A", Type: "Append"}, {Name: "B", Type: "Append"}, {Name: "C", Type: "Append"},
			{Name: "D", Type: "Append"}, {Name: "E", Type: "Append"},
		},
		Methods: map[string]*config.StepMethod{
			"B": {Inputs: map[string]cty.Value{"fail": cty.True}, Connect: chain("in", "A").Connect},
			"C": chain("in", "B"),
			"D": chain("in", "A"),
			"E": chain("in", "C"),
		},
	})
	rec := &recorder{}
	e := New(g, Options{Workers: 3, Observer: rec})

	// --- Act ---
	err := e.Run(testutil.Context())

	// --- Assert ---
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "B: boom")
	assert.NotContains(t, err.Error(), "C:", "skipped nodes are not root causes")

	states := map[string]string{}
	for _, s := range e.Snapshot() {
		states[s.ID] = s.State
	}
	assert.Equal(t, map[string]string{"A": "done", "B": "failed", "C": "skipped", "D": "done", "E": "skipped"}, states)
	assert.Len(t, rec.finished, 5)
	assert.Equal(t, cty.StringVal("A>D"), rec.finished["D"].Outputs["out"])
	assert.Contains(t, rec.finished["E"].Error, "upstream failure of 'C'")
	assert.NotContains(t, rec.started, "C")
}

func TestExecutor_JoinPreservesIterationOrder(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ids := cty.ListVal([]cty.Value{cty.StringVal("s2"), cty.StringVal("s0"), cty.StringVal("s1")})
	g := buildGraph(t, &config.Model{
		Steps: []config.StepDecl{{Name: "Each", Type: "Each"}, {Name: "Collect", Type: "Collect"}},
		Setup: map[string]cty.Value{"included_ids": ids},
	})
	rec := &recorder{}

	// --- Act ---
	err := New(g, Options{Workers: 4, Observer: rec}).Run(testutil.Context())

	// --- Assert ---
	require.NoError(t, err)
	want := cty.TupleVal([]cty.Value{cty.StringVal("seen:s2"), cty.StringVal("seen:s0"), cty.StringVal("seen:s1")})
	assert.True(t, want.RawEquals(rec.finished["Collect"].Outputs["all"]), "%#v", rec.finished["Collect"].Outputs["all"])
}

func TestExecutor_CanceledContextSkipsEverything(t *testing.T) {
	t.Parallel()
	g := buildGraph(t, &config.Model{
		Steps:   []config.StepDecl{{Name: "A", Type: "Append"}, {Name: "B", Type: "Append"}},
		Methods: map[string]*config.StepMethod{"B": chain("in", "A")},
	})
	ctx, cancel := context.WithCancel(testutil.Context())
	cancel()
	e := New(g, Options{Workers: 2})

	err := e.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	for _, s := range e.Snapshot() {
		assert.Equal(t, Skipped.String(), s.State, s.ID)
	}
}

func TestExecutor_NodeContext(t *testing.T) {
	t.Parallel()
	g := buildGraph(t, &config.Model{Steps: []config.StepDecl{{Name: "A", Type: "Append"}}})
	var seen []string
	var mu sync.Mutex

	err := New(g, Options{NodeContext: func(ctx context.Context, n *dag.Node) context.Context {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, n.ID)
		return ctx
	}}).Run(testutil.Context())

	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, seen)
}
