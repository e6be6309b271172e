package utility

import (
	"context"
	"fmt"

	"github.com/vk/dsipipe/internal/layout"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

type splitIDs struct {
	name string
}

func (s *splitIDs) outputs(in registry.Inputs) (registry.Outputs, error) {
	id, ok := in["id"]
	if !ok || id.IsNull() {
		return nil, fmt.Errorf("step %q: input 'id' is not set", s.name)
	}
	if !id.IsKnown() {
		unknown := cty.UnknownVal(cty.String)
		return registry.Outputs{"sub_id": unknown, "scan_id": unknown, "uid": unknown}, nil
	}
	if id.Type() != cty.String {
		return nil, fmt.Errorf("step %q: input 'id' must be a string, got %s", s.name, id.Type().FriendlyName())
	}
	subj, err := layout.ParseID(id.AsString())
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", s.name, err)
	}
	return registry.Outputs{
		"sub_id":  cty.StringVal(subj.SubID),
		"scan_id": cty.StringVal(subj.ScanID),
		"uid":     cty.StringVal(subj.UID),
	}, nil
}

func (s *splitIDs) Prepare(_ context.Context, in registry.Inputs) (*registry.Plan, error) {
	out, err := s.outputs(in)
	if err != nil {
		return nil, err
	}
	return &registry.Plan{Outputs: out}, nil
}

func (s *splitIDs) Run(_ context.Context, in registry.Inputs) (registry.Outputs, error) {
	return s.outputs(in)
}
