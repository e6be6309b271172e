package dsistudio

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// Method is a diffusion reconstruction model.
type Method string

const (
	MethodDSI   Method = "dsi"
	MethodDTI   Method = "dti"
	MethodFRQBI Method = "frqbi"
	MethodSHQBI Method = "shqbi"
	MethodGQI   Method = "gqi"
	MethodHARDI Method = "hardi"
	MethodQSDR  Method = "qsdr"
)

// ParamSlot is one typed positional reconstruction parameter.
type ParamSlot struct {
	Meaning string
	Kind    ValueKind
	Default cty.Value
}

// MethodSpec maps a method to its tool code, parameter slots and the
// method-specific options it accepts.
type MethodSpec struct {
	Name   Method
	Code   int
	Params []ParamSlot
	Inputs []string
}

var odfInputs = []string{"record_odf", "odf_order", "num_fiber", "deconvolution", "decomposition"}

var methodTable = []MethodSpec{
	{Name: MethodDSI, Code: 0, Params: []ParamSlot{
		{Meaning: "hamming filter width", Kind: KindInt, Default: cty.NumberIntVal(17)},
	}, Inputs: odfInputs},
	{Name: MethodDTI, Code: 1, Inputs: []string{"output_tensor", "output_dif"}},
	{Name: MethodFRQBI, Code: 2, Params: []ParamSlot{
		{Meaning: "interpolation points", Kind: KindInt, Default: cty.NumberIntVal(5)},
		{Meaning: "smoothing kernel width", Kind: KindInt, Default: cty.NumberIntVal(15)},
	}, Inputs: odfInputs},
	{Name: MethodSHQBI, Code: 3, Params: []ParamSlot{
		{Meaning: "harmonic order", Kind: KindInt, Default: cty.NumberIntVal(8)},
		{Meaning: "regularization", Kind: KindFloat, Default: cty.NumberFloatVal(0.006)},
	}, Inputs: odfInputs},
	{Name: MethodGQI, Code: 4, Params: []ParamSlot{
		{Meaning: "diffusion sampling length ratio", Kind: KindFloat, Default: cty.NumberFloatVal(1.25)},
	}, Inputs: append(append([]string{}, odfInputs...), "r2_weighted", "output_rdi")},
	{Name: MethodHARDI, Code: 6, Params: []ParamSlot{
		{Meaning: "diffusion sampling length ratio", Kind: KindFloat, Default: cty.NumberFloatVal(1.25)},
		{Meaning: "b-value", Kind: KindInt, Default: cty.NumberIntVal(3000)},
		{Meaning: "regularization", Kind: KindFloat, Default: cty.NumberFloatVal(0.05)},
	}, Inputs: []string{"num_fiber"}},
	{Name: MethodQSDR, Code: 7, Params: []ParamSlot{
		{Meaning: "diffusion sampling length ratio", Kind: KindFloat, Default: cty.NumberFloatVal(1.25)},
		{Meaning: "output resolution", Kind: KindFloat, Default: cty.NumberFloatVal(2)},
	}, Inputs: []string{
		"record_odf", "odf_order", "num_fiber", "template", "interpo_method",
		"regist_method", "output_jac", "output_map", "output_rdi",
	}},
}

// methodSpecific is the union of every method's Inputs. Options outside it
// are legal for every method.
var methodSpecific = func() map[string]bool {
	set := make(map[string]bool)
	for _, m := range methodTable {
		for _, in := range m.Inputs {
			set[in] = true
		}
	}
	return set
}()

func methodNames() []string {
	names := make([]string, len(methodTable))
	for i, m := range methodTable {
		names[i] = string(m.Name)
	}
	return names
}

// LookupMethod returns the MethodSpec for a reconstruction method name.
func LookupMethod(name string) (*MethodSpec, bool) {
	for i := range methodTable {
		if string(methodTable[i].Name) == name {
			return &methodTable[i], true
		}
	}
	return nil, false
}

// ParamName is the logical option name of parameter slot i.
func ParamName(i int) string { return fmt.Sprintf("param%d", i) }

// legal reports whether a rec option may be emitted under this method.
func (m *MethodSpec) legal(option string) bool {
	for i := range 3 {
		if option == ParamName(i) {
			return i < len(m.Params)
		}
	}
	if !methodSpecific[option] {
		return true
	}
	for _, in := range m.Inputs {
		if in == option {
			return true
		}
	}
	return false
}

// OptionSet is an unordered set of logical option names.
type OptionSet map[string]struct{}

// Has reports membership.
func (s OptionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s OptionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RecomputeRequirements returns the options that must be concretely set for
// a reconstruction under method, given the values chosen so far. The result
// covers the base rec requirements, every parameter slot of the method and
// the transitive requires of each set option that the method keeps legal.
func RecomputeRequirements(method Method, values Values) (OptionSet, error) {
	spec, ok := LookupMethod(string(method))
	if !ok {
		return nil, invalid(ActionRec, "method", "unknown reconstruction method %q", method)
	}
	req := OptionSet{}
	for _, name := range actionTable[ActionRec].Required {
		req[name] = struct{}{}
	}
	for i := range spec.Params {
		req[ParamName(i)] = struct{}{}
	}
	for _, name := range recOptions {
		if !spec.legal(name) || !values.IsSet(name) {
			continue
		}
		if err := addRequires(ActionRec, name, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// addRequires walks the requires graph from name and fails on cycles. Two
// options listing each other is a mutual pairing, not a cycle.
func addRequires(action Action, name string, req OptionSet) error {
	visiting := map[string]bool{}
	var walk func(n, parent string) error
	walk = func(n, parent string) error {
		spec, ok := optionIndex[n]
		if !ok {
			return invalid(action, n, "unknown option")
		}
		visiting[n] = true
		defer delete(visiting, n)
		for _, dep := range spec.Requires {
			if dep == parent && mutual(n, dep) {
				continue
			}
			if visiting[dep] {
				return invalid(action, n, "requirement cycle through %q", dep)
			}
			if req.Has(dep) {
				continue
			}
			req[dep] = struct{}{}
			if err := walk(dep, n); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(name, "")
}

func mutual(a, b string) bool {
	for _, r := range optionIndex[b].Requires {
		if r == a {
			return true
		}
	}
	return false
}
