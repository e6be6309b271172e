package registry

import (
	"context"
	"maps"

	"github.com/zclconf/go-cty/cty"
)

// Source names a producer output: a step name, step type or setup key,
// and the field to read from it.
type Source struct {
	Key   string
	Field string
}

// Inputs are the values a step sees: its options merged with connected
// values. Connected values may be unknown while the graph is validated.
type Inputs map[string]cty.Value

// Outputs are the values a step produces, keyed by output field.
type Outputs map[string]cty.Value

// Plan is what a step would do, computed before anything runs.
type Plan struct {
	// Command is the argv of the external tool; empty for in-process steps.
	Command []string
	// Outputs holds the output paths known ahead of the run, possibly unknown.
	Outputs Outputs
}

// Step is one instantiated pipeline step.
type Step interface {
	// Prepare validates in and describes the run. Inputs wired from other
	// steps are unknown values at this point.
	Prepare(ctx context.Context, in Inputs) (*Plan, error)
	// Run executes the step with fully known inputs.
	Run(ctx context.Context, in Inputs) (Outputs, error)
}

// Constructor builds a step from its instance name and merged options.
type Constructor func(name string, options map[string]cty.Value) (Step, error)

// StepType is the static description of a step kind.
type StepType struct {
	Name        string
	Module      string
	Description string
	// Inputs are the connectable input fields.
	Inputs  []string
	Outputs []string
	// Accepts reports whether an option name is legal for this type. Nil
	// accepts only the declared inputs.
	Accepts func(option string) bool
	// Connections is the default connection spec: input field to the
	// producing step type and its output field.
	Connections map[string]Source
	// Iterables are inputs the step fans out over; Joins are inputs that
	// collect an iterated producer back into one ordered list.
	Iterables []string
	Joins     []string
	// AutoInsert lets the assembler add one instance of this type when a
	// default connection names it but the pipeline does not declare it.
	AutoInsert bool
	New        Constructor
}

// QualifiedName is the module.Type form.
func (t *StepType) QualifiedName() string { return t.Module + "." + t.Name }

// DefaultConnections returns a private, writable copy of the default
// connection spec. It is never nil.
func (t *StepType) DefaultConnections() map[string]Source {
	if len(t.Connections) == 0 {
		return map[string]Source{}
	}
	return maps.Clone(t.Connections)
}

// HasInput reports whether field is a declared input.
func (t *StepType) HasInput(field string) bool { return contains(t.Inputs, field) }

// HasOutput reports whether field is a declared output.
func (t *StepType) HasOutput(field string) bool { return contains(t.Outputs, field) }

// AcceptsOption reports whether option may appear in the step's inputs block.
func (t *StepType) AcceptsOption(option string) bool {
	if t.HasInput(option) {
		return true
	}
	return t.Accepts != nil && t.Accepts(option)
}

// IsIterable reports whether field fans the step out.
func (t *StepType) IsIterable(field string) bool { return contains(t.Iterables, field) }

// IsJoin reports whether field collects an iterated producer.
func (t *StepType) IsJoin(field string) bool { return contains(t.Joins, field) }

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
