// Package fsl describes the FSL command-line tools used by the pipelines
// and builds their argument lists.
package fsl

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// EnvDir names the FSL installation directory variable.
const EnvDir = "FSLDIR"

// ErrInvalidOption is matched by every *OptionError.
var ErrInvalidOption = errors.New("invalid fsl option")

// OptionError reports a missing or mistyped tool argument.
type OptionError struct {
	Tool   string
	Option string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("fsl %s: option %q: %s", e.Tool, e.Option, e.Reason)
}

func (e *OptionError) Is(target error) bool { return target == ErrInvalidOption }

// ArgKind is how an argument is typed and rendered.
type ArgKind int

const (
	ArgString ArgKind = iota
	ArgNumber
	ArgSwitch
	ArgList
)

// Arg maps one logical option onto the tool's command line.
type Arg struct {
	Option string
	// Flag precedes the value; empty for positional arguments.
	Flag     string
	Kind     ArgKind
	Required bool
}

// Tool is one FSL executable.
type Tool struct {
	Name string
	Args []Arg
	// Outputs maps an output field to the suffix appended to the output
	// basename.
	Outputs map[string]string
	// Output names the option holding the output basename.
	Output string
}

var tools = map[string]*Tool{
	"bet": {
		Name: "bet",
		Args: []Arg{
			{Option: "in_file", Kind: ArgString, Required: true},
			{Option: "out_file", Kind: ArgString, Required: true},
			{Option: "frac", Flag: "-f", Kind: ArgNumber},
			{Option: "vertical_gradient", Flag: "-g", Kind: ArgNumber},
			{Option: "mask", Flag: "-m", Kind: ArgSwitch},
			{Option: "robust", Flag: "-R", Kind: ArgSwitch},
		},
		Output:  "out_file",
		Outputs: map[string]string{"brain": ".nii.gz", "mask_file": "_mask.nii.gz"},
	},
	"eddy_correct": {
		Name: "eddy_correct",
		Args: []Arg{
			{Option: "in_file", Kind: ArgString, Required: true},
			{Option: "out_file", Kind: ArgString, Required: true},
			{Option: "ref_num", Kind: ArgNumber, Required: true},
		},
		Output:  "out_file",
		Outputs: map[string]string{"eddy_corrected": ".nii.gz"},
	},
	"dtifit": {
		Name: "dtifit",
		Args: []Arg{
			{Option: "dwi", Flag: "-k", Kind: ArgString, Required: true},
			{Option: "base_name", Flag: "-o", Kind: ArgString, Required: true},
			{Option: "mask", Flag: "-m", Kind: ArgString, Required: true},
			{Option: "bvecs", Flag: "-r", Kind: ArgString, Required: true},
			{Option: "bvals", Flag: "-b", Kind: ArgString, Required: true},
			{Option: "save_tensor", Flag: "--save_tensor", Kind: ArgSwitch},
			{Option: "sse", Flag: "--sse", Kind: ArgSwitch},
		},
		Output: "base_name",
		Outputs: map[string]string{
			"fa": "_FA.nii.gz", "md": "_MD.nii.gz", "l1": "_L1.nii.gz",
			"v1": "_V1.nii.gz", "mode": "_MO.nii.gz", "s0": "_S0.nii.gz",
		},
	},
	"flirt": {
		Name: "flirt",
		Args: []Arg{
			{Option: "in_file", Flag: "-in", Kind: ArgString, Required: true},
			{Option: "reference", Flag: "-ref", Kind: ArgString, Required: true},
			{Option: "out_file", Flag: "-out", Kind: ArgString, Required: true},
			{Option: "out_matrix_file", Flag: "-omat", Kind: ArgString},
			{Option: "dof", Flag: "-dof", Kind: ArgNumber},
			{Option: "cost", Flag: "-cost", Kind: ArgString},
		},
		Output:  "out_file",
		Outputs: map[string]string{"out_file": ".nii.gz"},
	},
	"tbss_1_preproc": {
		Name: "tbss_1_preproc",
		Args: []Arg{
			{Option: "fa_list", Kind: ArgList, Required: true},
		},
		Outputs: map[string]string{"fa_dir": "FA", "orig_dir": "origdata"},
	},
	"tbss_2_reg": {
		Name: "tbss_2_reg",
		Args: []Arg{
			{Option: "target_fmrib", Flag: "-T", Kind: ArgSwitch},
			{Option: "target", Flag: "-t", Kind: ArgString},
			{Option: "best_target", Flag: "-n", Kind: ArgSwitch},
		},
		Outputs: map[string]string{"fa_dir": "FA"},
	},
	"tbss_3_postreg": {
		Name: "tbss_3_postreg",
		Args: []Arg{
			{Option: "study_space", Flag: "-S", Kind: ArgSwitch},
			{Option: "mni_space", Flag: "-T", Kind: ArgSwitch},
		},
		Outputs: map[string]string{"stats_dir": "stats"},
	},
	"tbss_4_prestats": {
		Name: "tbss_4_prestats",
		Args: []Arg{
			{Option: "threshold", Kind: ArgNumber, Required: true},
		},
		Outputs: map[string]string{"all_fa_skeletonised": "stats/all_FA_skeletonised.nii.gz"},
	},
}

// Lookup returns the tool with the given executable name.
func Lookup(name string) (*Tool, bool) {
	t, ok := tools[name]
	return t, ok
}

// Names lists every known tool.
func Names() []string {
	out := make([]string, 0, len(tools))
	for n := range tools {
		out = append(out, n)
	}
	return out
}

// Binary returns the executable path, preferring $FSLDIR/bin.
func (t *Tool) Binary() string {
	if dir := os.Getenv(EnvDir); dir != "" {
		return filepath.Join(dir, "bin", t.Name)
	}
	return t.Name
}

// Accepts reports whether option is an argument of the tool.
func (t *Tool) Accepts(option string) bool {
	for _, a := range t.Args {
		if a.Option == option {
			return true
		}
	}
	return false
}

// Build renders the argument list in table order. Unknown values render
// as placeholders so the command can be shown before inputs exist.
func (t *Tool) Build(values map[string]cty.Value) ([]string, error) {
	for name := range values {
		if !t.Accepts(name) {
			return nil, &OptionError{Tool: t.Name, Option: name, Reason: "unknown option"}
		}
	}
	var args []string
	for _, a := range t.Args {
		val, ok := values[a.Option]
		if !ok || val.IsNull() {
			if a.Required {
				return nil, &OptionError{Tool: t.Name, Option: a.Option, Reason: "required option is not set"}
			}
			continue
		}
		rendered, err := renderArg(a, val)
		if err != nil {
			return nil, &OptionError{Tool: t.Name, Option: a.Option, Reason: err.Error()}
		}
		if a.Kind == ArgSwitch {
			if rendered[0] == "1" {
				args = append(args, a.Flag)
			}
			continue
		}
		if a.Flag != "" {
			args = append(args, a.Flag)
		}
		args = append(args, rendered...)
	}
	return args, nil
}

// OutputPaths maps each output field to its file for the given basename
// (or working directory, for the tbss stages).
func (t *Tool) OutputPaths(base string) map[string]string {
	out := make(map[string]string, len(t.Outputs))
	for field, suffix := range t.Outputs {
		if t.Output == "" {
			out[field] = filepath.Join(base, suffix)
			continue
		}
		out[field] = base + suffix
	}
	return out
}

func renderArg(a Arg, val cty.Value) ([]string, error) {
	if !val.IsWhollyKnown() {
		return []string{"<pending:" + a.Option + ">"}, nil
	}
	switch a.Kind {
	case ArgSwitch:
		b, err := convert.Convert(val, cty.Bool)
		if err != nil {
			return nil, fmt.Errorf("expected boolean: %w", err)
		}
		if b.True() {
			return []string{"1"}, nil
		}
		return []string{"0"}, nil
	case ArgNumber:
		n, err := convert.Convert(val, cty.Number)
		if err != nil {
			return nil, fmt.Errorf("expected number: %w", err)
		}
		return []string{formatNumber(n.AsBigFloat())}, nil
	case ArgList:
		l, err := convert.Convert(val, cty.List(cty.String))
		if err != nil {
			return nil, fmt.Errorf("expected list of strings: %w", err)
		}
		var out []string
		for it := l.ElementIterator(); it.Next(); {
			_, e := it.Element()
			out = append(out, e.AsString())
		}
		return out, nil
	default:
		s, err := convert.Convert(val, cty.String)
		if err != nil {
			return nil, fmt.Errorf("expected string: %w", err)
		}
		if strings.TrimSpace(s.AsString()) == "" {
			return nil, errors.New("must not be empty")
		}
		return []string{s.AsString()}, nil
	}
}

func formatNumber(bf *big.Float) string {
	if bf.IsInt() {
		if i, acc := bf.Int64(); acc == big.Exact {
			return strconv.FormatInt(i, 10)
		}
	}
	f, _ := bf.Float64()
	return strconv.FormatFloat(f, 'g', -1, 64)
}
