package dsistudio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// Resolver builds dsi_studio argument lists. The zero value works for
// pipelines that never reference an atlas.
type Resolver struct {
	Atlases AtlasLocator
	Now     func() time.Time
}

// Command is a fully resolved invocation.
type Command struct {
	Action     Action
	Args       []string
	Output     string
	OutputMode OutputMode
	// Params holds the rendered reconstruction parameters in slot order.
	Params []string
	// Known is false when some argument still renders a pending placeholder.
	Known bool
	// OutputKnown reports whether Output is a real path.
	OutputKnown bool
}

// Resolve validates values for action and returns the ordered argument list.
func (r *Resolver) Resolve(ctx context.Context, action Action, values Values) ([]string, error) {
	cmd, err := r.Command(ctx, action, values)
	if err != nil {
		return nil, err
	}
	return cmd.Args, nil
}

// Command resolves values for action into a Command. It never mutates values.
func (r *Resolver) Command(ctx context.Context, action Action, values Values) (*Command, error) {
	logger := ctxlog.FromContext(ctx)
	spec, ok := actionTable[action]
	if !ok {
		return nil, invalid(action, "action", "unknown action")
	}
	logger.Debug("Resolving dsi_studio command.", "action", action, "options", len(values))

	vals := values
	if spec.Regions {
		var err error
		if vals, err = SubstituteRegions(action, values, r.Atlases); err != nil {
			return nil, err
		}
	}

	checked := make(Values, len(vals))
	for name, val := range vals {
		if val == cty.NilVal || val.IsNull() {
			continue
		}
		ospec, ok := optionIndex[name]
		if !ok {
			return nil, invalid(action, name, "unknown option")
		}
		if !spec.Accepts(name) {
			logger.Debug("Option not applicable to action, skipping.", "action", action, "option", name)
			continue
		}
		cv, err := check(action, ospec, val)
		if err != nil {
			return nil, err
		}
		checked[name] = cv
	}
	checked["action"] = cty.StringVal(string(action))

	var (
		method *MethodSpec
		req    OptionSet
		err    error
	)
	if action == ActionRec {
		if !checked.IsSet("method") {
			return nil, invalid(action, "method", "required option is not set")
		}
		if !checked["method"].IsKnown() {
			return nil, invalid(action, "method", "reconstruction method must be known before the run")
		}
		method, _ = LookupMethod(checked["method"].AsString())
		if req, err = RecomputeRequirements(method.Name, checked); err != nil {
			return nil, err
		}
		for i, slot := range method.Params {
			name := ParamName(i)
			if !checked.IsSet(name) {
				checked[name] = slot.Default
			}
			if checked[name], err = checkSlot(method.Name, i, slot, checked[name]); err != nil {
				return nil, err
			}
		}
		for name := range checked {
			if !method.legal(name) {
				logger.Debug("Option not used by reconstruction method, skipping.", "method", method.Name, "option", name)
				delete(checked, name)
			}
		}
	} else {
		req = OptionSet{}
		for _, name := range spec.Required {
			req[name] = struct{}{}
		}
		for name := range checked {
			if err := addRequires(action, name, req); err != nil {
				return nil, err
			}
		}
	}

	for _, name := range req.Sorted() {
		if checked.IsSet(name) {
			continue
		}
		if ospec := optionIndex[name]; ospec.hasDefault() {
			checked[name] = ospec.Default
			continue
		}
		if name == "export" && len(spec.Exports) > 0 {
			continue
		}
		return nil, invalid(action, name, "required option is not set")
	}

	for _, name := range OptionNames() {
		if !checked.IsSet(name) {
			continue
		}
		for _, other := range optionIndex[name].Exclusive {
			if checked.IsSet(other) {
				return nil, &ConflictingOptionError{Action: action, Option: name, Other: other}
			}
		}
	}

	cmd := &Command{Action: action, OutputMode: spec.Output, Known: true}
	emit := func(name string, val cty.Value, template string) {
		rendered := render(name, val)
		if !val.IsWhollyKnown() {
			cmd.Known = false
		}
		cmd.Args = append(cmd.Args, fmt.Sprintf(template, rendered))
	}

	emit("action", checked["action"], optionIndex["action"].Template)
	emit("source", checked["source"], optionIndex["source"].Template)
	for _, name := range spec.Options {
		ospec := optionIndex[name]
		if ospec.Template == "" || name == "output" || !checked.IsSet(name) {
			continue
		}
		val := checked[name]
		if name == "method" {
			val = cty.NumberIntVal(int64(method.Code))
		}
		emit(name, val, ospec.Template)
	}
	if method != nil {
		for i := range method.Params {
			cmd.Params = append(cmd.Params, render(ParamName(i), checked[ParamName(i)]))
		}
	}

	if spec.Regions {
		regionArgs, err := encodeRegions(ctx, action, checked)
		if err != nil {
			return nil, err
		}
		cmd.Args = append(cmd.Args, regionArgs...)
	}

	if len(spec.Exports) > 0 {
		tokens, err := composeExports(spec, checked)
		if err != nil {
			return nil, err
		}
		if len(tokens) == 0 && contains(spec.Required, "export") {
			return nil, invalid(action, "export", "at least one export target is required")
		}
		if len(tokens) > 0 {
			emit("export", cty.StringVal(strings.Join(tokens, ",")), optionIndex["export"].Template)
		}
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	out := deriveOutput(spec, checked, now())
	cmd.Output = render("output", out)
	cmd.OutputKnown = out.IsKnown()
	if spec.Output == OutputGiven {
		emit("output", out, optionIndex["output"].Template)
	}
	if !out.IsKnown() {
		cmd.Known = false
	}

	logger.Debug("Resolved dsi_studio command.", "action", action, "args", cmd.Args, "known", cmd.Known)
	return cmd, nil
}
