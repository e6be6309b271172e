package dsistudio

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	dsi "github.com/vk/dsipipe/internal/dsistudio"
	"github.com/vk/dsipipe/internal/layout"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/toolexec"
	"github.com/zclconf/go-cty/cty"
)

type step struct {
	name string
	kind *kind
	spec *dsi.ActionSpec
	mod  *Module
	// now is fixed at construction so the planned and the executed
	// command name the same output.
	now time.Time
}

func (s *step) resolver() *dsi.Resolver {
	return &dsi.Resolver{Atlases: s.mod.Atlases, Now: func() time.Time { return s.now }}
}

// values maps step inputs onto resolver options and fills the output
// location from the source path.
func (s *step) values(in registry.Inputs) dsi.Values {
	vals := make(dsi.Values, len(in)+len(s.kind.defaults)+2)
	for field, v := range in {
		if opt, ok := s.kind.rename[field]; ok {
			field = opt
		}
		vals[field] = v
	}
	for name, v := range s.kind.defaults {
		if !vals.IsSet(name) {
			vals[name] = v
		}
	}

	outDir := cty.UnknownVal(cty.String)
	if src := vals["source"]; vals.IsSet("source") && src.IsKnown() && src.Type() == cty.String {
		outDir = cty.StringVal(layout.OutputDir(src.AsString(), Subfolder))
	}
	if !vals.IsSet("output_dir") {
		vals["output_dir"] = outDir
	}
	if s.kind.stemOutput && !vals.IsSet("output") {
		vals["output"] = cty.UnknownVal(cty.String)
		if od := vals["output_dir"]; od.IsKnown() && outDir.IsKnown() {
			vals["output"] = cty.StringVal(filepath.Join(od.AsString(), dsi.Stem(vals["source"].AsString())+s.spec.Extension))
		}
	}
	return vals
}

func (s *step) command(ctx context.Context, in registry.Inputs) (*dsi.Command, error) {
	cmd, err := s.resolver().Command(ctx, s.kind.action, s.values(in))
	if err != nil {
		return nil, dsi.AttachStep(err, s.name)
	}
	return cmd, nil
}

// Prepare resolves the command with whatever is known so far.
func (s *step) Prepare(ctx context.Context, in registry.Inputs) (*registry.Plan, error) {
	cmd, err := s.command(ctx, in)
	if err != nil {
		return nil, err
	}
	out := cty.UnknownVal(cty.String)
	if cmd.OutputKnown {
		out = cty.StringVal(cmd.Output)
	}
	return &registry.Plan{
		Command: append([]string{s.mod.binary()}, cmd.Args...),
		Outputs: registry.Outputs{s.kind.output: out},
	}, nil
}

// Run resolves the final command and executes dsi_studio in the output
// folder.
func (s *step) Run(ctx context.Context, in registry.Inputs) (registry.Outputs, error) {
	cmd, err := s.command(ctx, in)
	if err != nil {
		return nil, err
	}
	if !cmd.Known || !cmd.OutputKnown {
		return nil, fmt.Errorf("step %q: command still has pending values: %v", s.name, cmd.Args)
	}
	inv := toolexec.Invocation{
		Step:   s.name,
		Binary: s.mod.binary(),
		Args:   cmd.Args,
		Dir:    filepath.Dir(cmd.Output),
		Output: cmd.Output,
	}
	if cmd.OutputMode == dsi.OutputScraped {
		inv.Scrape = toolexec.ScrapeSuffix(s.spec.Extension)
	}
	res, err := s.mod.runner().Run(ctx, inv)
	if err != nil {
		return nil, err
	}
	return registry.Outputs{s.kind.output: cty.StringVal(res.Output)}, nil
}
