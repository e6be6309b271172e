package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Module contributes step types to a Builder.
type Module interface {
	Register(b *Builder)
}

// Builder collects step types before the registry is frozen.
type Builder struct {
	types   map[string]*StepType
	aliases map[string]string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{types: map[string]*StepType{}, aliases: map[string]string{}}
}

// Register adds a step type. Registering the same name twice is a
// programming error and panics.
func (b *Builder) Register(t *StepType) {
	if t.Name == "" || t.Module == "" || t.New == nil {
		panic(fmt.Sprintf("step type %q is missing a name, module or constructor", t.Name))
	}
	if _, exists := b.types[t.Name]; exists {
		panic(fmt.Sprintf("step type with name '%s' already registered", t.Name))
	}
	b.types[t.Name] = t
}

// Alias makes alias resolve to target.
func (b *Builder) Alias(alias, target string) {
	b.aliases[alias] = target
}

// Build validates the collected types and freezes them.
func (b *Builder) Build() (*Registry, error) {
	r := &Registry{
		types:   make(map[string]*StepType, len(b.types)),
		modules: map[string]map[string]*StepType{},
		aliases: make(map[string]string, len(b.aliases)),
	}
	for name, t := range b.types {
		r.types[name] = t
		if r.modules[t.Module] == nil {
			r.modules[t.Module] = map[string]*StepType{}
		}
		r.modules[t.Module][name] = t
	}
	for alias, target := range b.aliases {
		if _, clash := r.types[alias]; clash {
			return nil, fmt.Errorf("step type alias %q shadows a registered step type", alias)
		}
		if _, err := r.direct(target); err != nil {
			return nil, fmt.Errorf("step type alias %q: %w", alias, err)
		}
		r.aliases[alias] = target
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// New builds a registry from modules and alias overrides in one call.
func New(aliases map[string]string, modules ...Module) (*Registry, error) {
	b := NewBuilder()
	for _, m := range modules {
		m.Register(b)
	}
	for alias, target := range aliases {
		b.Alias(alias, target)
	}
	return b.Build()
}

// Registry is the frozen step type table.
type Registry struct {
	types   map[string]*StepType
	modules map[string]map[string]*StepType
	aliases map[string]string
}

// Lookup resolves a step type reference: module.Type first, then the
// registered name, then a config-declared alias.
func (r *Registry) Lookup(ref string) (*StepType, error) {
	if t, err := r.direct(ref); err == nil {
		return t, nil
	}
	if target, ok := r.aliases[ref]; ok {
		return r.direct(target)
	}
	return nil, &UnknownStepTypeError{Type: ref}
}

func (r *Registry) direct(ref string) (*StepType, error) {
	if mod, name, ok := strings.Cut(ref, "."); ok {
		if t, ok := r.modules[mod][name]; ok {
			return t, nil
		}
		return nil, &UnknownStepTypeError{Type: ref}
	}
	if t, ok := r.types[ref]; ok {
		return t, nil
	}
	return nil, &UnknownStepTypeError{Type: ref}
}

// Types returns every registered type sorted by name.
func (r *Registry) Types() []*StepType {
	out := make([]*StepType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
