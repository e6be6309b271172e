// Package hclconfig loads pipelines written in HCL. Steps are declared as
// labelled blocks in order; every other top-level attribute belongs to the
// setup record. Expressions may read the environment through env.NAME.
package hclconfig

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/dsipipe/internal/config"
	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// fileSchema decodes the step blocks. Top-level attributes are read from
// the syntax tree because a remain body still reports the consumed blocks.
type fileSchema struct {
	Steps  []*stepBlock `hcl:"step,block"`
	Remain hcl.Body     `hcl:",remain"`
}

type stepBlock struct {
	Name    string    `hcl:"name,label"`
	Type    string    `hcl:"type,optional"`
	Inputs  cty.Value `hcl:"inputs,optional"`
	Connect cty.Value `hcl:"connect,optional"`
}

// Loader implements config.Loader for HCL.
type Loader struct {
	environ func() []string
}

// NewLoader creates a new HCL loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{environ: os.Environ}
}

var _ config.Loader = (*Loader)(nil)

// Load parses, evaluates and validates the pipeline at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading HCL pipeline config.", "path", path)

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	m, err := l.Parse(src, path)
	if err != nil {
		return nil, config.WithPath(err, path)
	}
	m.Path = path
	logger.Debug("HCL pipeline config loaded.", "name", m.Name, "steps", len(m.Steps))
	return m, nil
}

// Parse decodes HCL source; filename is used in diagnostics only.
func (l *Loader) Parse(src []byte, filename string) (*config.Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": l.envObject()},
	}
	var fs fileSchema
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &fs); diags.HasErrors() {
		return nil, diags
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected HCL body type %T", filename, file.Body)
	}
	for _, b := range body.Blocks {
		if b.Type != "step" {
			return nil, fmt.Errorf("%s: unexpected %q block; only step blocks are allowed", filename, b.Type)
		}
	}
	root := make(map[string]cty.Value, len(body.Attributes)+2)
	for name, attr := range body.Attributes {
		v, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, diags
		}
		root[name] = v
	}

	steps := make([]cty.Value, 0, len(fs.Steps))
	methods := map[string]cty.Value{}
	for _, b := range fs.Steps {
		if b.Type == "" {
			steps = append(steps, cty.StringVal(b.Name))
		} else {
			steps = append(steps, cty.TupleVal([]cty.Value{cty.StringVal(b.Name), cty.StringVal(b.Type)}))
		}
		block := map[string]cty.Value{}
		if b.Inputs != cty.NilVal && !b.Inputs.IsNull() {
			block["inputs"] = b.Inputs
		}
		if b.Connect != cty.NilVal && !b.Connect.IsNull() {
			block["connect"] = b.Connect
		}
		if len(block) > 0 {
			methods[b.Name] = cty.ObjectVal(block)
		}
	}
	root["steps"] = cty.TupleVal(steps)
	if len(methods) > 0 {
		root["method"] = cty.ObjectVal(methods)
	}
	return config.FromValue(cty.ObjectVal(root))
}

func (l *Loader) envObject() cty.Value {
	vars := map[string]cty.Value{}
	for _, kv := range l.environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && hclIdentifier(k) {
			vars[k] = cty.StringVal(v)
		}
	}
	return cty.ObjectVal(vars)
}

func hclIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}
