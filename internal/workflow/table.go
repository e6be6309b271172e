// Package workflow instantiates the steps declared by a pipeline and keeps
// them in a name-keyed table for the graph assembler.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vk/dsipipe/internal/config"
	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Instance is one named step of a pipeline. It is owned by the table and
// must not be modified once the graph is assembled.
type Instance struct {
	Name    string
	Type    *registry.StepType
	Options map[string]cty.Value
	// Connections is this instance's private connection spec: the type
	// defaults with config overrides merged in.
	Connections map[string]registry.Source
	// Explicit marks fields whose connection came from the config.
	Explicit map[string]bool
	Step     registry.Step
	// Auto is set for producers added by the assembler.
	Auto bool
}

// ConnectedFields returns the connected input fields in sorted order.
func (i *Instance) ConnectedFields() []string {
	out := make([]string, 0, len(i.Connections))
	for f := range i.Connections {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Table is the pipeline's step table.
type Table struct {
	reg    *registry.Registry
	model  *config.Model
	order  []*Instance
	byName map[string]*Instance
}

// NewTable creates an empty table bound to a registry and the pipeline
// model whose setup record feeds parameter substitution.
func NewTable(reg *registry.Registry, model *config.Model) *Table {
	return &Table{reg: reg, model: model, byName: map[string]*Instance{}}
}

// Build instantiates every declared step of model in order and applies its
// connection overrides.
func Build(ctx context.Context, reg *registry.Registry, model *config.Model) (*Table, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: instantiating declared steps.", "count", len(model.Steps))
	t := NewTable(reg, model)
	for _, decl := range model.Steps {
		method := model.Method(decl.Name)
		if _, err := t.Instantiate(ctx, decl.Type, decl.Name, method.Inputs); err != nil {
			return nil, err
		}
		if err := t.Override(decl.Name, method.Connect); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Model returns the pipeline model the table was built from.
func (t *Table) Model() *config.Model { return t.model }

// Registry returns the registry used for instantiation.
func (t *Table) Registry() *registry.Registry { return t.reg }

// Instantiate resolves stepType, merges and validates options, builds the
// step and registers it under name.
func (t *Table) Instantiate(ctx context.Context, stepType, name string, options map[string]cty.Value) (*Instance, error) {
	st, err := t.reg.Lookup(stepType)
	if err != nil {
		var unknown *registry.UnknownStepTypeError
		if errors.As(err, &unknown) {
			unknown.Step = name
		}
		return nil, err
	}
	if existing, ok := t.byName[name]; ok {
		return nil, &DuplicateStepNameError{Name: name, ExistingType: existing.Type.Name, Type: st.Name}
	}

	merged, err := t.merge(st, name, options)
	if err != nil {
		return nil, err
	}
	step, err := st.New(name, merged)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", name, err)
	}

	conns := st.DefaultConnections()
	for field := range merged {
		if _, ok := conns[field]; ok {
			delete(conns, field)
		}
	}
	inst := &Instance{
		Name:        name,
		Type:        st,
		Options:     merged,
		Connections: conns,
		Explicit:    map[string]bool{},
		Step:        step,
	}
	t.order = append(t.order, inst)
	t.byName[name] = inst
	ctxlog.FromContext(ctx).Debug("Step instantiated.", "step", name, "type", st.QualifiedName())
	return inst, nil
}

// merge applies setup substitution and rejects keys the type does not know.
func (t *Table) merge(st *registry.StepType, name string, options map[string]cty.Value) (map[string]cty.Value, error) {
	merged := make(map[string]cty.Value, len(options))
	for _, key := range sortedKeys(options) {
		if !st.AcceptsOption(key) {
			return nil, &MergeError{Step: name, Field: key, Reason: fmt.Sprintf("not an option of step type %s", st.Name)}
		}
		v := options[key]
		if t.model != nil {
			v = t.model.Substitute(v)
		}
		merged[key] = v
	}
	return merged, nil
}

// Override merges config connection overrides into a step's spec. An
// empty source suppresses the field's default connection.
func (t *Table) Override(name string, overrides map[string]config.Connection) error {
	inst, ok := t.byName[name]
	if !ok {
		return fmt.Errorf("override for unknown step %q", name)
	}
	for _, field := range sortedKeys(overrides) {
		c := overrides[field]
		if !inst.Type.HasInput(field) {
			return &MergeError{Step: name, Field: field, Reason: fmt.Sprintf("not an input of step type %s", inst.Type.Name)}
		}
		inst.Explicit[field] = true
		if c.Suppressed {
			delete(inst.Connections, field)
			continue
		}
		if _, literal := inst.Options[field]; literal {
			return &MergeError{Step: name, Field: field, Reason: "set both as an option and as a connection"}
		}
		inst.Connections[field] = registry.Source{Key: c.Key, Field: c.Field}
	}
	return nil
}

// Lookup returns the instance registered under name.
func (t *Table) Lookup(name string) (*Instance, bool) {
	inst, ok := t.byName[name]
	return inst, ok
}

// Instances returns every instance in registration order.
func (t *Table) Instances() []*Instance {
	return append([]*Instance(nil), t.order...)
}

// OfType returns the instances whose type is typeName, matched by plain or
// module-qualified name.
func (t *Table) OfType(typeName string) []*Instance {
	var out []*Instance
	for _, inst := range t.order {
		if inst.Type.Name == typeName || inst.Type.QualifiedName() == typeName {
			out = append(out, inst)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
