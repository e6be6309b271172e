// Package dsistudio registers the DSI Studio step types: source building,
// reconstruction, tracking, tract analysis, image export and atlas
// transformation. Every step resolves its dsi_studio command through the
// internal/dsistudio resolver.
package dsistudio

import (
	"os"
	"time"

	dsi "github.com/vk/dsipipe/internal/dsistudio"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/toolexec"
	"github.com/zclconf/go-cty/cty"
)

// ModuleName qualifies the step types, as in dsistudio.DSI_TRK.
const ModuleName = "dsistudio"

// Subfolder is where the steps write below the subject's scan directory.
const Subfolder = "dsi_studio"

// EnvBinary overrides the dsi_studio executable.
const EnvBinary = "DSI_STUDIO_BIN"

// Module holds what the DSI Studio steps share. The zero value runs
// dsi_studio from PATH and fails on atlas regions.
type Module struct {
	Binary  string
	Atlases dsi.AtlasLocator
	Runner  *toolexec.Runner
	// Now stamps outputs named by time. Each step reads it once when built.
	Now func() time.Time
}

// kind is the static description of one DSI Studio step type.
type kind struct {
	name        string
	action      dsi.Action
	description string
	inputs      []string
	// rename maps an input field onto the resolver option it feeds.
	rename      map[string]string
	output      string
	connections map[string]registry.Source
	autoInsert  bool
	// defaults fill options the config leaves unset.
	defaults dsi.Values
	// stemOutput names the output <stem><ext> in the output folder instead
	// of the tract-name or timestamp form.
	stemOutput bool
}

var kinds = []*kind{
	{
		name:        "DSI_SRC",
		action:      dsi.ActionSrc,
		description: "Builds a DSI Studio .src.gz file from a DWI volume and its b-table.",
		inputs:      []string{"source", "bval", "bvec"},
		output:      "src_file",
		connections: map[string]registry.Source{
			"source": {Key: "FileIn", Field: "dwi"},
			"bval":   {Key: "FileIn", Field: "bval"},
			"bvec":   {Key: "FileIn", Field: "bvec"},
		},
		autoInsert: true,
		stemOutput: true,
	},
	{
		name:        "DSI_REC",
		action:      dsi.ActionRec,
		description: "Reconstructs a .fib.gz file from a source file.",
		inputs:      []string{"source", "mask"},
		output:      "fiber_file",
		connections: map[string]registry.Source{"source": {Key: "DSI_SRC", Field: "src_file"}},
		autoInsert:  true,
		defaults:    dsi.Values{"method": cty.StringVal(string(dsi.MethodGQI))},
		stemOutput:  true,
	},
	{
		name:        "DSI_TRK",
		action:      dsi.ActionTrk,
		description: "Runs fiber tracking on a .fib.gz file.",
		inputs:      []string{"fib_file"},
		rename:      map[string]string{"fib_file": "source"},
		output:      "track",
		connections: map[string]registry.Source{"fib_file": {Key: "DSI_REC", Field: "fiber_file"}},
	},
	{
		name:        "DSI_ANA",
		action:      dsi.ActionAna,
		description: "Computes statistics of a tract over a .fib.gz file.",
		inputs:      []string{"fib_file", "tract"},
		rename:      map[string]string{"fib_file": "source"},
		output:      "stats",
		connections: map[string]registry.Source{
			"fib_file": {Key: "DSI_REC", Field: "fiber_file"},
			"tract":    {Key: "DSI_TRK", Field: "track"},
		},
	},
	{
		name:        "DSI_EXP",
		action:      dsi.ActionExp,
		description: "Exports index images from a .fib.gz file.",
		inputs:      []string{"fib_file"},
		rename:      map[string]string{"fib_file": "source"},
		output:      "image",
		connections: map[string]registry.Source{"fib_file": {Key: "DSI_REC", Field: "fiber_file"}},
		stemOutput:  true,
	},
	{
		name:        "DSI_ATL",
		action:      dsi.ActionAtl,
		description: "Transforms an atlas into the subject space of a .fib.gz file.",
		inputs:      []string{"fib_file"},
		rename:      map[string]string{"fib_file": "source"},
		output:      "atlas_image",
		connections: map[string]registry.Source{"fib_file": {Key: "DSI_REC", Field: "fiber_file"}},
		stemOutput:  true,
	},
}

// Register adds every DSI Studio step type.
func (m *Module) Register(b *registry.Builder) {
	for _, k := range kinds {
		spec, err := dsi.LookupAction(string(k.action))
		if err != nil {
			panic(err)
		}
		b.Register(&registry.StepType{
			Name:        k.name,
			Module:      ModuleName,
			Description: k.description,
			Inputs:      k.inputs,
			Outputs:     []string{k.output},
			Accepts:     k.accepts(spec),
			Connections: k.connections,
			AutoInsert:  k.autoInsert,
			New: func(name string, _ map[string]cty.Value) (registry.Step, error) {
				return &step{name: name, kind: k, spec: spec, mod: m, now: m.now()}, nil
			},
		})
	}
}

// accepts admits the action's vocabulary except the fields the step
// feeds itself.
func (k *kind) accepts(spec *dsi.ActionSpec) func(string) bool {
	return func(option string) bool {
		if option == "action" {
			return false
		}
		for _, target := range k.rename {
			if option == target {
				return false
			}
		}
		return spec.Accepts(option)
	}
}

func (m *Module) binary() string {
	if m.Binary != "" {
		return m.Binary
	}
	if bin := os.Getenv(EnvBinary); bin != "" {
		return bin
	}
	return "dsi_studio"
}

func (m *Module) runner() *toolexec.Runner {
	if m.Runner != nil {
		return m.Runner
	}
	return &toolexec.Runner{}
}

func (m *Module) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
