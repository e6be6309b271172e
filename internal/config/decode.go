package config

import (
	"fmt"

	"github.com/vk/dsipipe/internal/ctyconv"
	"github.com/zclconf/go-cty/cty"
)

// structural fields are not part of the setup record.
var structural = map[string]bool{"steps": true, "method": true, "step_types": true}

// FromValue builds and validates a Model from a decoded top-level object.
func FromValue(root cty.Value) (*Model, error) {
	if root.IsNull() || !root.IsWhollyKnown() {
		return nil, invalidf("", "pipeline config must be a fully known object")
	}
	ty := root.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, invalidf("", "pipeline config must be an object, got %s", ty.FriendlyName())
	}
	attrs := root.AsValueMap()

	m := &Model{
		Methods:   map[string]*StepMethod{},
		StepTypes: map[string]string{},
		Setup:     map[string]cty.Value{},
	}
	for k, v := range attrs {
		if !structural[k] {
			m.Setup[k] = v
		}
	}

	var err error
	if m.Name, err = optionalString(attrs, "name"); err != nil {
		return nil, err
	}
	if m.DataDir, err = optionalString(attrs, "data_dir"); err != nil {
		return nil, err
	}
	if m.Email, err = optionalString(attrs, "email"); err != nil {
		return nil, err
	}
	for field, dst := range map[string]*[]string{
		"included_ids":   &m.IncludedIDs,
		"included_imgs":  &m.IncludedImgs,
		"included_masks": &m.IncludedMasks,
	} {
		if v, ok := attrs[field]; ok && !v.IsNull() {
			if *dst, err = ctyconv.Strings(v); err != nil {
				return nil, invalidf(field, "%s", err)
			}
		}
	}

	if m.Steps, err = decodeSteps(attrs["steps"]); err != nil {
		return nil, err
	}
	if v, ok := attrs["method"]; ok && !v.IsNull() {
		if err := decodeMethods(v, m); err != nil {
			return nil, err
		}
	}
	if v, ok := attrs["step_types"]; ok && !v.IsNull() {
		if !v.Type().IsObjectType() && !v.Type().IsMapType() {
			return nil, invalidf("step_types", "expected an object of alias to step type")
		}
		for alias, target := range v.AsValueMap() {
			if target.IsNull() || target.Type() != cty.String {
				return nil, invalidf("step_types."+alias, "expected a step type name")
			}
			m.StepTypes[alias] = target.AsString()
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the cross-field rules of a model.
func (m *Model) Validate() error {
	if m.DataDir == "" {
		return invalidf("data_dir", "is required")
	}
	if len(m.Steps) == 0 {
		return invalidf("steps", "at least one step is required")
	}
	if len(m.IncludedIDs)+len(m.IncludedImgs)+len(m.IncludedMasks) == 0 {
		return invalidf("included_ids", "at least one of included_ids, included_imgs or included_masks is required")
	}
	if len(m.IncludedMasks) > 0 && len(m.IncludedMasks) != len(m.IncludedImgs) {
		return invalidf("included_masks", "has %d entries, included_imgs has %d; masks pair with images by position", len(m.IncludedMasks), len(m.IncludedImgs))
	}
	declared := make(map[string]bool, len(m.Steps))
	for _, s := range m.Steps {
		declared[s.Name] = true
	}
	for name := range m.Methods {
		if !declared[name] {
			return invalidf("method."+name, "no step named %q is declared", name)
		}
	}
	return nil
}

func optionalString(attrs map[string]cty.Value, field string) (string, error) {
	v, ok := attrs[field]
	if !ok || v.IsNull() {
		return "", nil
	}
	if v.Type() != cty.String {
		return "", invalidf(field, "expected a string, got %s", v.Type().FriendlyName())
	}
	return v.AsString(), nil
}

func decodeSteps(v cty.Value) ([]StepDecl, error) {
	if v == cty.NilVal || v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsTupleType() && !v.Type().IsListType() {
		return nil, invalidf("steps", "expected a list, got %s", v.Type().FriendlyName())
	}
	var out []StepDecl
	for it := v.ElementIterator(); it.Next(); {
		idx, e := it.Element()
		field := fmt.Sprintf("steps[%s]", idx.AsBigFloat().String())
		switch {
		case e.Type() == cty.String:
			out = append(out, StepDecl{Name: e.AsString(), Type: e.AsString()})
		case e.Type().IsTupleType() || e.Type().IsListType():
			pair, err := ctyconv.Strings(e)
			if err != nil || len(pair) != 2 {
				return nil, invalidf(field, "expected a step name or a [name, type] pair")
			}
			out = append(out, StepDecl{Name: pair[0], Type: pair[1]})
		default:
			return nil, invalidf(field, "expected a step name or a [name, type] pair")
		}
		if last := out[len(out)-1]; last.Name == "" || last.Type == "" {
			return nil, invalidf(field, "step name and type must not be empty")
		}
	}
	return out, nil
}

func decodeMethods(v cty.Value, m *Model) error {
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return invalidf("method", "expected an object keyed by step name")
	}
	for step, block := range v.AsValueMap() {
		field := "method." + step
		if block.IsNull() {
			continue
		}
		if !block.Type().IsObjectType() && !block.Type().IsMapType() {
			return invalidf(field, "expected an object with inputs and connect")
		}
		sm := &StepMethod{Inputs: map[string]cty.Value{}, Connect: map[string]Connection{}}
		for key, part := range block.AsValueMap() {
			switch key {
			case "inputs":
				if part.IsNull() {
					continue
				}
				if !part.Type().IsObjectType() && !part.Type().IsMapType() {
					return invalidf(field+".inputs", "expected an object of option values")
				}
				for name, val := range part.AsValueMap() {
					sm.Inputs[name] = val
				}
			case "connect":
				if part.IsNull() {
					continue
				}
				if !part.Type().IsObjectType() && !part.Type().IsMapType() {
					return malformedf(field+".connect", "expected an object of input field to [source, field]")
				}
				for in, src := range part.AsValueMap() {
					c, err := ParseConnection(field+".connect."+in, src)
					if err != nil {
						return err
					}
					sm.Connect[in] = c
				}
			default:
				return invalidf(field+"."+key, "unknown key; expected inputs or connect")
			}
		}
		m.Methods[step] = sm
	}
	return nil
}

// ParseConnection decodes one connect entry: a [source, field] pair, or an
// empty list that suppresses the default connection.
func ParseConnection(field string, v cty.Value) (Connection, error) {
	if v.IsNull() {
		return Connection{Suppressed: true}, nil
	}
	ty := v.Type()
	if !ty.IsTupleType() && !ty.IsListType() {
		return Connection{}, malformedf(field, "expected [source, field], got %s", ty.FriendlyName())
	}
	if v.LengthInt() == 0 {
		return Connection{Suppressed: true}, nil
	}
	pair, err := ctyconv.Strings(v)
	if err != nil || len(pair) != 2 {
		return Connection{}, malformedf(field, "expected exactly [source, field]")
	}
	if pair[0] == "" || pair[1] == "" {
		return Connection{}, malformedf(field, "source and field must not be empty")
	}
	return Connection{Key: pair[0], Field: pair[1]}, nil
}
