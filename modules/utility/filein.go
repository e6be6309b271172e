package utility

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/layout"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// defaultFileNames maps each FileIn option to the file suffix it
// overrides, keyed by the output it feeds.
var defaultFileNames = map[string]string{
	"dwi":  "dwi.nii.gz",
	"bval": "dwi.bval",
	"bvec": "dwi.bvec",
	"t1":   "T1w.nii.gz",
	"mask": "mask.nii.gz",
}

var fileInOutputs = []string{"dwi", "bval", "bvec", "t1", "mask", "dir", "prefix"}

type fileIn struct {
	name string
}

func (f *fileIn) subject(in registry.Inputs) (layout.Subject, string, bool, error) {
	var parts [4]string
	for i, field := range []string{"sub_id", "scan_id", "uid", "data_dir"} {
		v, ok := in[field]
		if !ok || v.IsNull() {
			return layout.Subject{}, "", false, fmt.Errorf("step %q: input '%s' is not set", f.name, field)
		}
		if !v.IsKnown() {
			return layout.Subject{}, "", false, nil
		}
		if v.Type() != cty.String {
			return layout.Subject{}, "", false, fmt.Errorf("step %q: input '%s' must be a string, got %s", f.name, field, v.Type().FriendlyName())
		}
		parts[i] = v.AsString()
	}
	return layout.Subject{SubID: parts[0], ScanID: parts[1], UID: parts[2]}, parts[3], true, nil
}

func (f *fileIn) outputs(in registry.Inputs) (registry.Outputs, error) {
	subj, dataDir, known, err := f.subject(in)
	if err != nil {
		return nil, err
	}
	out := make(registry.Outputs, len(fileInOutputs))
	if !known {
		for _, field := range fileInOutputs {
			out[field] = cty.UnknownVal(cty.String)
		}
		return out, nil
	}
	for field, def := range defaultFileNames {
		name := def
		if v, ok := in[field]; ok && !v.IsNull() {
			if !v.IsKnown() || v.Type() != cty.String {
				return nil, fmt.Errorf("step %q: option '%s' must be a known file name", f.name, field)
			}
			name = v.AsString()
		}
		out[field] = cty.StringVal(subj.File(dataDir, name))
	}
	out["dir"] = cty.StringVal(subj.ScanDir(dataDir))
	out["prefix"] = cty.StringVal(subj.Prefix())
	return out, nil
}

func (f *fileIn) Prepare(_ context.Context, in registry.Inputs) (*registry.Plan, error) {
	out, err := f.outputs(in)
	if err != nil {
		return nil, err
	}
	return &registry.Plan{Outputs: out}, nil
}

// Run resolves the paths. Files that do not exist are logged, not
// rejected: a pipeline may only need some of them.
func (f *fileIn) Run(ctx context.Context, in registry.Inputs) (registry.Outputs, error) {
	out, err := f.outputs(in)
	if err != nil {
		return nil, err
	}
	logger := ctxlog.FromContext(ctx)
	for field := range defaultFileNames {
		path := out[field].AsString()
		if _, err := os.Stat(path); err != nil {
			logger.Warn("Input file not found.", "field", field, "path", path)
		}
	}
	return out, nil
}
