package utility

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/layout"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// imageIn exposes an explicitly listed diffusion image with the outputs of
// FileIn. Gradient tables sit next to the image with the same stem; the
// mask is the paired entry of included_masks when given.
type imageIn struct {
	name string
}

func (s *imageIn) path(in registry.Inputs, field string) (string, bool, error) {
	v, ok := in[field]
	if !ok || v.IsNull() {
		return "", true, nil
	}
	if !v.IsKnown() {
		return "", false, nil
	}
	if v.Type() != cty.String {
		return "", false, fmt.Errorf("step %q: input '%s' must be a path, got %s", s.name, field, v.Type().FriendlyName())
	}
	return v.AsString(), true, nil
}

func (s *imageIn) outputs(in registry.Inputs) (registry.Outputs, error) {
	image, imageKnown, err := s.path(in, "image")
	if err != nil {
		return nil, err
	}
	mask, maskKnown, err := s.path(in, "mask")
	if err != nil {
		return nil, err
	}
	out := make(registry.Outputs, len(fileInOutputs))
	if !imageKnown || !maskKnown {
		for _, field := range fileInOutputs {
			out[field] = cty.UnknownVal(cty.String)
		}
		return out, nil
	}
	if image == "" {
		return nil, fmt.Errorf("step %q: input 'image' is not set", s.name)
	}

	stem := layout.ImageStem(image)
	dir := filepath.Dir(image)
	if mask == "" {
		mask = stem + "_mask.nii.gz"
	}
	out["dwi"] = cty.StringVal(image)
	out["bval"] = cty.StringVal(stem + ".bval")
	out["bvec"] = cty.StringVal(stem + ".bvec")
	out["t1"] = cty.StringVal(filepath.Join(dir, defaultFileNames["t1"]))
	out["mask"] = cty.StringVal(mask)
	out["dir"] = cty.StringVal(dir)
	out["prefix"] = cty.StringVal(filepath.Base(stem) + "_")
	return out, nil
}

func (s *imageIn) Prepare(_ context.Context, in registry.Inputs) (*registry.Plan, error) {
	out, err := s.outputs(in)
	if err != nil {
		return nil, err
	}
	return &registry.Plan{Outputs: out}, nil
}

func (s *imageIn) Run(ctx context.Context, in registry.Inputs) (registry.Outputs, error) {
	out, err := s.outputs(in)
	if err != nil {
		return nil, err
	}
	logger := ctxlog.FromContext(ctx)
	for _, field := range []string{"dwi", "bval", "bvec", "mask"} {
		path := out[field].AsString()
		if _, err := os.Stat(path); err != nil {
			logger.Warn("Input file not found.", "field", field, "path", path)
		}
	}
	return out, nil
}
