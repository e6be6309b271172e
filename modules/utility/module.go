// Package utility registers the in-process steps that feed the tool
// steps: splitting included ids, locating a subject's input files,
// listing explicit images and collecting iterated results.
package utility

import (
	"github.com/vk/dsipipe/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// ModuleName qualifies the step types, as in utility.FileIn.
const ModuleName = "utility"

// Module registers SplitIDs, FileIn, ImageIn, MaskedImageIn and Collect.
type Module struct{}

// Register adds the utility step types.
func (m *Module) Register(b *registry.Builder) {
	b.Register(&registry.StepType{
		Name:        "SplitIDs",
		Module:      ModuleName,
		Description: "Splits each included id into sub_id, scan_id and uid.",
		Inputs:      []string{"id"},
		Outputs:     []string{"sub_id", "scan_id", "uid"},
		Connections: map[string]registry.Source{"id": {Key: "setup", Field: "included_ids"}},
		Iterables:   []string{"id"},
		New: func(name string, _ map[string]cty.Value) (registry.Step, error) {
			return &splitIDs{name: name}, nil
		},
	})
	b.Register(&registry.StepType{
		Name:        "FileIn",
		Module:      ModuleName,
		Description: "Locates a subject's diffusion, anatomical and mask files under data_dir.",
		Inputs:      []string{"sub_id", "scan_id", "uid", "data_dir"},
		Outputs:     fileInOutputs,
		Accepts: func(option string) bool {
			_, ok := defaultFileNames[option]
			return ok
		},
		Connections: map[string]registry.Source{
			"sub_id":   {Key: "SplitIDs", Field: "sub_id"},
			"scan_id":  {Key: "SplitIDs", Field: "scan_id"},
			"uid":      {Key: "SplitIDs", Field: "uid"},
			"data_dir": {Key: "setup", Field: "data_dir"},
		},
		New: func(name string, _ map[string]cty.Value) (registry.Step, error) {
			return &fileIn{name: name}, nil
		},
	})
	newImageIn := func(name string, _ map[string]cty.Value) (registry.Step, error) {
		return &imageIn{name: name}, nil
	}
	b.Register(&registry.StepType{
		Name:        "ImageIn",
		Module:      ModuleName,
		Description: "Iterates over included_imgs and exposes each image with FileIn's outputs. Declare it as [\"FileIn\", \"ImageIn\"] to feed the default connections.",
		Inputs:      []string{"image", "mask"},
		Outputs:     fileInOutputs,
		Connections: map[string]registry.Source{"image": {Key: "setup", Field: "included_imgs"}},
		Iterables:   []string{"image"},
		New:         newImageIn,
	})
	b.Register(&registry.StepType{
		Name:        "MaskedImageIn",
		Module:      ModuleName,
		Description: "Like ImageIn, pairing each image with the entry of included_masks at the same position.",
		Inputs:      []string{"image", "mask"},
		Outputs:     fileInOutputs,
		Connections: map[string]registry.Source{
			"image": {Key: "setup", Field: "included_imgs"},
			"mask":  {Key: "setup", Field: "included_masks"},
		},
		Iterables: []string{"image", "mask"},
		New:       newImageIn,
	})
	b.Register(&registry.StepType{
		Name:        "Collect",
		Module:      ModuleName,
		Description: "Gathers the results of an iterated step into one ordered list and optionally writes them to a JSON manifest.",
		Inputs:      []string{"items"},
		Outputs:     []string{"items", "manifest"},
		Accepts:     func(option string) bool { return option == "manifest" },
		Joins:       []string{"items"},
		New: func(name string, _ map[string]cty.Value) (registry.Step, error) {
			return &collect{name: name}, nil
		},
	})
}
