package integration_tests

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/dsipipe/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// counterModule registers three in-process step types: Emit fans out over
// included_ids, Upper transforms each value and Gather joins them back.
// Every Run is recorded so tests can inspect ordering and skips.
type counterModule struct {
	mu       sync.Mutex
	ran      []string
	gathered []string
}

func (m *counterModule) Register(b *registry.Builder) {
	b.Register(&registry.StepType{
		Name: "Emit", Module: "counter",
		Inputs:      []string{"id"},
		Outputs:     []string{"value"},
		Connections: map[string]registry.Source{"id": {Key: "setup", Field: "included_ids"}},
		Iterables:   []string{"id"},
		New:         m.newStep(emit),
	})
	b.Register(&registry.StepType{
		Name: "Upper", Module: "counter",
		Inputs:      []string{"value"},
		Outputs:     []string{"value"},
		Connections: map[string]registry.Source{"value": {Key: "Emit", Field: "value"}},
		New:         m.newStep(upper),
	})
	b.Register(&registry.StepType{
		Name: "Gather", Module: "counter",
		Inputs:      []string{"values"},
		Outputs:     []string{"count"},
		Connections: map[string]registry.Source{"values": {Key: "Upper", Field: "value"}},
		Joins:       []string{"values"},
		New:         m.newStep(m.gather),
	})
}

func (m *counterModule) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ran = append(m.ran, name)
}

func (m *counterModule) Ran() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ran...)
}

type runFunc func(in registry.Inputs) (registry.Outputs, error)

type funcStep struct {
	name string
	mod  *counterModule
	run  runFunc
}

func (m *counterModule) newStep(run runFunc) registry.Constructor {
	return func(name string, _ map[string]cty.Value) (registry.Step, error) {
		return &funcStep{name: name, mod: m, run: run}, nil
	}
}

func (s *funcStep) Prepare(context.Context, registry.Inputs) (*registry.Plan, error) {
	return &registry.Plan{}, nil
}

func (s *funcStep) Run(_ context.Context, in registry.Inputs) (registry.Outputs, error) {
	s.mod.record(s.name)
	return s.run(in)
}

func emit(in registry.Inputs) (registry.Outputs, error) {
	id := in["id"].AsString()
	if strings.HasPrefix(id, "bad") {
		return nil, fmt.Errorf("cannot emit %q", id)
	}
	return registry.Outputs{"value": cty.StringVal(id)}, nil
}

func upper(in registry.Inputs) (registry.Outputs, error) {
	return registry.Outputs{"value": cty.StringVal(strings.ToUpper(in["value"].AsString()))}, nil
}

func (m *counterModule) gather(in registry.Inputs) (registry.Outputs, error) {
	var got []string
	for it := in["values"].ElementIterator(); it.Next(); {
		_, v := it.Element()
		got = append(got, v.AsString())
	}
	m.mu.Lock()
	m.gathered = got
	m.mu.Unlock()
	return registry.Outputs{"count": cty.NumberIntVal(int64(len(got)))}, nil
}
