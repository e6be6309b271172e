package utility

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

type collect struct {
	name string
}

func (c *collect) manifest(in registry.Inputs) (cty.Value, error) {
	m, ok := in["manifest"]
	if !ok || m.IsNull() {
		return cty.StringVal(""), nil
	}
	if m.IsKnown() && m.Type() != cty.String {
		return cty.NilVal, fmt.Errorf("step %q: option 'manifest' must be a path", c.name)
	}
	return m, nil
}

func (c *collect) Prepare(_ context.Context, in registry.Inputs) (*registry.Plan, error) {
	manifest, err := c.manifest(in)
	if err != nil {
		return nil, err
	}
	items, ok := in["items"]
	if !ok {
		items = cty.EmptyTupleVal
	}
	return &registry.Plan{Outputs: registry.Outputs{"items": items, "manifest": manifest}}, nil
}

// Run passes the joined items through and writes them as a JSON array
// when a manifest path is set.
func (c *collect) Run(ctx context.Context, in registry.Inputs) (registry.Outputs, error) {
	manifest, err := c.manifest(in)
	if err != nil {
		return nil, err
	}
	items, ok := in["items"]
	if !ok {
		items = cty.EmptyTupleVal
	}
	out := registry.Outputs{"items": items, "manifest": manifest}
	path := manifest.AsString()
	if path == "" {
		return out, nil
	}

	raw, err := ctyjson.Marshal(items, items.Type())
	if err != nil {
		return nil, fmt.Errorf("step %q: encoding items: %w", c.name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("step %q: encoding items: %w", c.name, err)
	}
	data, err := json.MarshalIndent(map[string]any{"step": c.name, "items": doc}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("step %q: encoding manifest: %w", c.name, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("step %q: %w", c.name, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("step %q: writing manifest: %w", c.name, err)
	}
	ctxlog.FromContext(ctx).Info("Wrote manifest.", "path", path, "items", items.LengthInt())
	return out, nil
}
