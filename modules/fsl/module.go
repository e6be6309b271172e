// Package fsl registers the FSL step types: brain extraction, eddy
// current correction, tensor fitting, linear registration and the four
// TBSS stages.
package fsl

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vk/dsipipe/internal/fsl"
	"github.com/vk/dsipipe/internal/layout"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/toolexec"
	"github.com/zclconf/go-cty/cty"
)

// ModuleName qualifies the step types, as in fsl.FSL_BET.
const ModuleName = "fsl"

// Subfolder is where per-subject FSL outputs go below the scan directory.
const Subfolder = "fsl"

// Module registers the FSL step types. The zero value runs tools from
// $FSLDIR/bin, or PATH when FSLDIR is unset.
type Module struct {
	Runner *toolexec.Runner
	// BinDir overrides the directory holding the FSL executables.
	BinDir string
}

// placer returns the tool's output basename, or working directory for the
// TBSS stages, and the directory the tool runs in. ok is false while an
// input it needs is still unknown.
type placer func(in registry.Inputs) (base, dir string, ok bool, err error)

type kind struct {
	name        string
	tool        string
	description string
	inputs      []string
	connections map[string]registry.Source
	joins       []string
	// control inputs steer the step and are not passed to the tool.
	control  []string
	options  []string
	defaults map[string]cty.Value
	// installed defaults are paths below FSLDIR, used when it is set.
	installed map[string]string
	// primary is the output checked after the run.
	primary string
	place   placer
	// stage copies fa_list into the working directory first.
	stage bool
}

var kinds = []*kind{
	{
		name:        "FSL_BET",
		tool:        "bet",
		description: "Extracts the brain and a binary mask with bet.",
		inputs:      []string{"in_file"},
		connections: map[string]registry.Source{"in_file": {Key: "FileIn", Field: "dwi"}},
		defaults:    map[string]cty.Value{"mask": cty.True},
		primary:     "brain",
		place:       beside("in_file", "_brain"),
	},
	{
		name:        "FSL_EDDY",
		tool:        "eddy_correct",
		description: "Corrects eddy currents and head motion with eddy_correct.",
		inputs:      []string{"in_file"},
		connections: map[string]registry.Source{"in_file": {Key: "FileIn", Field: "dwi"}},
		defaults:    map[string]cty.Value{"ref_num": cty.Zero},
		primary:     "eddy_corrected",
		place:       beside("in_file", "_eddy"),
	},
	{
		name:        "FSL_DTIFIT",
		tool:        "dtifit",
		description: "Fits the diffusion tensor with dtifit.",
		inputs:      []string{"dwi", "mask", "bvecs", "bvals"},
		connections: map[string]registry.Source{
			"dwi":   {Key: "FSL_EDDY", Field: "eddy_corrected"},
			"mask":  {Key: "FSL_BET", Field: "mask_file"},
			"bvecs": {Key: "FileIn", Field: "bvec"},
			"bvals": {Key: "FileIn", Field: "bval"},
		},
		primary: "fa",
		place:   beside("dwi", "_dti"),
	},
	{
		name:        "FSL_FLIRT",
		tool:        "flirt",
		description: "Registers an image to a reference with flirt.",
		inputs:      []string{"in_file", "reference"},
		connections: map[string]registry.Source{"in_file": {Key: "FSL_DTIFIT", Field: "fa"}},
		installed:   map[string]string{"reference": "data/standard/FMRIB58_FA_1mm.nii.gz"},
		primary:     "out_file",
		place:       beside("in_file", "_flirt"),
	},
	{
		name:        "TBSS_1_PREPROC",
		tool:        "tbss_1_preproc",
		description: "Collects every FA image into a TBSS working directory and erodes them.",
		inputs:      []string{"fa_list", "data_dir"},
		connections: map[string]registry.Source{
			"fa_list":  {Key: "FSL_DTIFIT", Field: "fa"},
			"data_dir": {Key: "setup", Field: "data_dir"},
		},
		joins:   []string{"fa_list"},
		control: []string{"data_dir", "work_dir"},
		options: []string{"work_dir"},
		primary: "fa_dir",
		place:   tbssRoot,
		stage:   true,
	},
	{
		name:        "TBSS_2_REG",
		tool:        "tbss_2_reg",
		description: "Registers every FA image to the target.",
		inputs:      []string{"fa_dir"},
		connections: map[string]registry.Source{"fa_dir": {Key: "TBSS_1_PREPROC", Field: "fa_dir"}},
		control:     []string{"fa_dir"},
		defaults:    map[string]cty.Value{"target_fmrib": cty.True},
		primary:     "fa_dir",
		place:       parentOf("fa_dir"),
	},
	{
		name:        "TBSS_3_POSTREG",
		tool:        "tbss_3_postreg",
		description: "Builds the mean FA image and its skeleton.",
		inputs:      []string{"fa_dir"},
		connections: map[string]registry.Source{"fa_dir": {Key: "TBSS_2_REG", Field: "fa_dir"}},
		control:     []string{"fa_dir"},
		defaults:    map[string]cty.Value{"mni_space": cty.True},
		primary:     "stats_dir",
		place:       parentOf("fa_dir"),
	},
	{
		name:        "TBSS_4_PRESTATS",
		tool:        "tbss_4_prestats",
		description: "Projects every FA image onto the thresholded skeleton.",
		inputs:      []string{"stats_dir"},
		connections: map[string]registry.Source{"stats_dir": {Key: "TBSS_3_POSTREG", Field: "stats_dir"}},
		control:     []string{"stats_dir"},
		defaults:    map[string]cty.Value{"threshold": cty.NumberFloatVal(0.2)},
		primary:     "all_fa_skeletonised",
		place:       parentOf("stats_dir"),
	},
}

// Register adds every FSL step type.
func (m *Module) Register(b *registry.Builder) {
	for _, k := range kinds {
		tool, ok := fsl.Lookup(k.tool)
		if !ok {
			panic(fmt.Sprintf("step type %s: unknown fsl tool %q", k.name, k.tool))
		}
		outputs := make([]string, 0, len(tool.Outputs))
		for field := range tool.Outputs {
			outputs = append(outputs, field)
		}
		slices.Sort(outputs)
		b.Register(&registry.StepType{
			Name:        k.name,
			Module:      ModuleName,
			Description: k.description,
			Inputs:      k.inputs,
			Outputs:     outputs,
			Accepts: func(option string) bool {
				return tool.Accepts(option) || slices.Contains(k.options, option)
			},
			Connections: k.connections,
			Joins:       k.joins,
			New: func(name string, _ map[string]cty.Value) (registry.Step, error) {
				return &step{name: name, kind: k, tool: tool, mod: m}, nil
			},
		})
	}
}

func (m *Module) binary(tool *fsl.Tool) string {
	if m.BinDir != "" {
		return filepath.Join(m.BinDir, tool.Name)
	}
	return tool.Binary()
}

func (m *Module) runner() *toolexec.Runner {
	if m.Runner != nil {
		return m.Runner
	}
	return &toolexec.Runner{}
}

func knownString(in registry.Inputs, field string) (string, bool, error) {
	v, ok := in[field]
	if !ok || v.IsNull() {
		return "", false, fmt.Errorf("input '%s' is not set", field)
	}
	if !v.IsKnown() {
		return "", false, nil
	}
	if v.Type() != cty.String {
		return "", false, fmt.Errorf("input '%s' must be a path, got %s", field, v.Type().FriendlyName())
	}
	return v.AsString(), true, nil
}

// beside names outputs after the field's file, in the fsl subfolder next
// to it.
func beside(field, suffix string) placer {
	return func(in registry.Inputs) (string, string, bool, error) {
		src, ok, err := knownString(in, field)
		if err != nil || !ok {
			return "", "", ok, err
		}
		dir := layout.OutputDir(src, Subfolder)
		return filepath.Join(dir, stem(src)+suffix), dir, true, nil
	}
}

// tbssRoot is work_dir when set, else <data_dir>/tbss.
func tbssRoot(in registry.Inputs) (string, string, bool, error) {
	if v, ok := in["work_dir"]; ok && !v.IsNull() {
		dir, known, err := knownString(in, "work_dir")
		return dir, dir, known, err
	}
	data, ok, err := knownString(in, "data_dir")
	if err != nil || !ok {
		return "", "", ok, err
	}
	dir := filepath.Join(data, "tbss")
	return dir, dir, true, nil
}

// parentOf runs in the TBSS directory holding the field's folder.
func parentOf(field string) placer {
	return func(in registry.Inputs) (string, string, bool, error) {
		sub, ok, err := knownString(in, field)
		if err != nil || !ok {
			return "", "", ok, err
		}
		dir := filepath.Dir(sub)
		return dir, dir, true, nil
	}
}

var imageExtensions = []string{".nii.gz", ".nii", ".img", ".hdr"}

func stem(path string) string {
	base := filepath.Base(path)
	for _, ext := range imageExtensions {
		if len(base) > len(ext) && strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}
