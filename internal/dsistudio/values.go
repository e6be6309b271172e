package dsistudio

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Values maps logical option names to their configured values. A null or
// missing entry is unset. An unknown value is set but only known at run
// time, such as an input wired from another step.
type Values map[string]cty.Value

// IsSet reports whether name carries a non-null value.
func (v Values) IsSet(name string) bool {
	val, ok := v[name]
	return ok && val != cty.NilVal && !val.IsNull()
}

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

const pendingFmt = "<pending:%s>"

// Pending is the placeholder rendered for values only known at run time.
func Pending(name string) string { return fmt.Sprintf(pendingFmt, name) }

// check converts val to the option's kind and validates enum membership.
func check(action Action, spec *OptionSpec, val cty.Value) (cty.Value, error) {
	if !val.IsKnown() {
		return val, nil
	}
	if spec.Kind == KindRegionList {
		return val, nil
	}
	out, err := convert.Convert(val, spec.Kind.Type())
	if err != nil {
		return cty.NilVal, invalid(action, spec.Name, "expected %s: %s", spec.Kind, err)
	}
	if !out.IsWhollyKnown() {
		return out, nil
	}
	switch spec.Kind {
	case KindInt:
		if !out.AsBigFloat().IsInt() {
			return cty.NilVal, invalid(action, spec.Name, "expected integer, got %s", renderNumber(out))
		}
	case KindEnum:
		if len(spec.Enum) > 0 && !spec.allows(out.AsString()) {
			return cty.NilVal, invalid(action, spec.Name, "%q is not one of %s", out.AsString(), strings.Join(spec.Enum, ", "))
		}
	case KindEnumList:
		if len(spec.Enum) == 0 {
			break
		}
		for it := out.ElementIterator(); it.Next(); {
			_, e := it.Element()
			if !spec.allows(e.AsString()) {
				return cty.NilVal, invalid(action, spec.Name, "%q is not one of %s", e.AsString(), strings.Join(spec.Enum, ", "))
			}
		}
	case KindActionLists:
		for it := out.ElementIterator(); it.Next(); {
			_, list := it.Element()
			for li := list.ElementIterator(); li.Next(); {
				_, e := li.Element()
				if !spec.allows(e.AsString()) {
					return cty.NilVal, invalid(action, spec.Name, "unknown region action %q", e.AsString())
				}
			}
		}
	}
	return out, nil
}

// checkSlot validates a parameter against the method's slot type, which is
// stricter than the generic float option.
func checkSlot(method Method, i int, slot ParamSlot, val cty.Value) (cty.Value, error) {
	name := ParamName(i)
	if !val.IsKnown() {
		return val, nil
	}
	out, err := convert.Convert(val, cty.Number)
	if err != nil {
		return cty.NilVal, invalid(ActionRec, name, "%s for method %q expects %s: %s", slot.Meaning, method, slot.Kind, err)
	}
	if slot.Kind == KindInt && !out.AsBigFloat().IsInt() {
		return cty.NilVal, invalid(ActionRec, name, "%s for method %q expects an integer, got %s", slot.Meaning, method, renderNumber(out))
	}
	return out, nil
}

// render formats a checked value the way dsi_studio expects it.
func render(name string, val cty.Value) string {
	if !val.IsWhollyKnown() {
		return Pending(name)
	}
	ty := val.Type()
	switch {
	case ty == cty.Bool:
		if val.True() {
			return "1"
		}
		return "0"
	case ty == cty.Number:
		return renderNumber(val)
	case ty == cty.String:
		return val.AsString()
	case ty.IsListType() || ty.IsTupleType():
		parts := make([]string, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, e := it.Element()
			parts = append(parts, render(name, e))
		}
		return strings.Join(parts, ",")
	}
	return val.GoString()
}

func renderNumber(val cty.Value) string {
	bf := val.AsBigFloat()
	if bf.IsInt() {
		if i, acc := bf.Int64(); acc == big.Exact {
			return strconv.FormatInt(i, 10)
		}
	}
	f, _ := bf.Float64()
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func boolValue(v Values, name string) bool {
	val, ok := v[name]
	if !ok || val == cty.NilVal || val.IsNull() || !val.IsKnown() {
		return false
	}
	b, err := convert.Convert(val, cty.Bool)
	return err == nil && b.True()
}
