package fsl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/fsl"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/toolexec"
	"github.com/zclconf/go-cty/cty"
)

type step struct {
	name string
	kind *kind
	tool *fsl.Tool
	mod  *Module
}

// command is a resolved invocation.
type command struct {
	args    []string
	dir     string
	outputs registry.Outputs
	known   bool
}

func (s *step) command(in registry.Inputs) (*command, error) {
	values := make(map[string]cty.Value, len(in)+len(s.kind.defaults))
	for field, v := range in {
		if !slices.Contains(s.kind.control, field) {
			values[field] = v
		}
	}
	for name, v := range s.kind.defaults {
		if _, ok := values[name]; !ok {
			values[name] = v
		}
	}
	if root := os.Getenv(fsl.EnvDir); root != "" {
		for name, rel := range s.kind.installed {
			if _, ok := values[name]; !ok {
				values[name] = cty.StringVal(filepath.Join(root, rel))
			}
		}
	}

	var (
		base, dir string
		known     bool
		err       error
	)
	if out := s.tool.Output; out != "" && values[out] != cty.NilVal && !values[out].IsNull() {
		base, known, err = knownString(values, out)
		dir = filepath.Dir(base)
	} else {
		base, dir, known, err = s.kind.place(in)
	}
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", s.name, err)
	}
	if out := s.tool.Output; out != "" {
		values[out] = cty.UnknownVal(cty.String)
		if known {
			values[out] = cty.StringVal(base)
		}
	}
	if s.kind.stage {
		values["fa_list"] = stagedNames(values["fa_list"])
	}

	args, err := s.tool.Build(values)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", s.name, err)
	}
	cmd := &command{args: args, dir: dir, outputs: registry.Outputs{}, known: known}
	for field := range s.tool.Outputs {
		cmd.outputs[field] = cty.UnknownVal(cty.String)
	}
	if known {
		for field, path := range s.tool.OutputPaths(base) {
			cmd.outputs[field] = cty.StringVal(path)
		}
	}
	return cmd, nil
}

// stagedNames replaces each known FA path by its base name, which is how
// tbss_1_preproc finds the copies in its working directory.
func stagedNames(list cty.Value) cty.Value {
	if list == cty.NilVal || list.IsNull() || !list.IsWhollyKnown() || !list.CanIterateElements() {
		return list
	}
	names := make([]cty.Value, 0, list.LengthInt())
	for it := list.ElementIterator(); it.Next(); {
		_, e := it.Element()
		if e.Type() != cty.String {
			return list
		}
		names = append(names, cty.StringVal(filepath.Base(e.AsString())))
	}
	if len(names) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	return cty.ListVal(names)
}

func (s *step) Prepare(_ context.Context, in registry.Inputs) (*registry.Plan, error) {
	cmd, err := s.command(in)
	if err != nil {
		return nil, err
	}
	return &registry.Plan{
		Command: append([]string{s.mod.binary(s.tool)}, cmd.args...),
		Outputs: cmd.outputs,
	}, nil
}

func (s *step) Run(ctx context.Context, in registry.Inputs) (registry.Outputs, error) {
	cmd, err := s.command(in)
	if err != nil {
		return nil, err
	}
	if !cmd.known {
		return nil, fmt.Errorf("step %q: command still has pending values: %v", s.name, cmd.args)
	}
	if err := os.MkdirAll(cmd.dir, 0o755); err != nil {
		return nil, fmt.Errorf("step %q: %w", s.name, err)
	}
	if s.kind.stage {
		if err := stage(ctx, in["fa_list"], cmd.dir); err != nil {
			return nil, fmt.Errorf("step %q: staging FA images: %w", s.name, err)
		}
	}
	_, err = s.mod.runner().Run(ctx, toolexec.Invocation{
		Step:   s.name,
		Binary: s.mod.binary(s.tool),
		Args:   cmd.args,
		Dir:    cmd.dir,
		Output: cmd.outputs[s.kind.primary].AsString(),
	})
	if err != nil {
		return nil, err
	}
	return cmd.outputs, nil
}

// stage copies every file of list into dir under its base name.
func stage(ctx context.Context, list cty.Value, dir string) error {
	logger := ctxlog.FromContext(ctx)
	for it := list.ElementIterator(); it.Next(); {
		_, e := it.Element()
		src := e.AsString()
		dst := filepath.Join(dir, filepath.Base(src))
		if src == dst {
			continue
		}
		logger.Debug("Staging file.", "from", src, "to", dst)
		if err := os.Link(src, dst); err == nil || os.IsExist(err) {
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
