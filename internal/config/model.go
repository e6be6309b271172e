package config

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Loader reads a pipeline file into the format-agnostic model.
type Loader interface {
	Load(ctx context.Context, path string) (*Model, error)
}

// SetupKeys are the names under which the setup pseudo-step is addressed
// in connection specs.
var SetupKeys = []string{"setup", "config"}

// Model is one loaded pipeline.
type Model struct {
	Name          string
	DataDir       string
	Steps         []StepDecl
	Methods       map[string]*StepMethod
	IncludedIDs   []string
	IncludedImgs  []string
	IncludedMasks []string
	Email         string
	// StepTypes maps a config-declared alias to a registered step type,
	// either "Type" or "module.Type".
	StepTypes map[string]string
	// Setup holds every top-level field other than the structural ones.
	// It is read-only once loaded.
	Setup map[string]cty.Value
	Path  string
}

// StepDecl is one entry of the steps list.
type StepDecl struct {
	Name string
	Type string
}

// StepMethod is the per-step block of the method mapping.
type StepMethod struct {
	Inputs  map[string]cty.Value
	Connect map[string]Connection
}

// Connection binds an input field to a producer output. A suppressed
// connection came from an empty source list and removes the default edge.
type Connection struct {
	Key        string
	Field      string
	Suppressed bool
}

// Method returns the step's method block, or an empty one.
func (m *Model) Method(step string) *StepMethod {
	if sm, ok := m.Methods[step]; ok && sm != nil {
		return sm
	}
	return &StepMethod{}
}

// IsSetupKey reports whether key addresses the setup pseudo-step.
func IsSetupKey(key string) bool {
	for _, k := range SetupKeys {
		if k == key {
			return true
		}
	}
	return false
}

// SetupValue returns a setup field.
func (m *Model) SetupValue(name string) (cty.Value, bool) {
	v, ok := m.Setup[name]
	return v, ok
}

// Substitute replaces a string value naming a setup field with that
// field's value. Anything else is returned unchanged.
func (m *Model) Substitute(v cty.Value) cty.Value {
	if v == cty.NilVal || v.IsNull() || !v.IsKnown() || v.Type() != cty.String {
		return v
	}
	if sv, ok := m.Setup[v.AsString()]; ok {
		return sv
	}
	return v
}
