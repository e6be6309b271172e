package dsistudio

import "fmt"

// Action is a dsi_studio top-level operation mode.
type Action string

const (
	ActionSrc Action = "src"
	ActionRec Action = "rec"
	ActionTrk Action = "trk"
	ActionAna Action = "ana"
	ActionExp Action = "exp"
	ActionAtl Action = "atl"
)

// OutputMode says whether the output path is passed to the tool or has to
// be scraped from its stdout after the run.
type OutputMode int

const (
	OutputGiven OutputMode = iota
	OutputScraped
)

func (m OutputMode) String() string {
	if m == OutputScraped {
		return "scraped"
	}
	return "given"
}

// ActionSpec describes what one action accepts and produces.
type ActionSpec struct {
	Name      Action
	Extension string
	Output    OutputMode
	// Options is the set of logical options legal for the action, in
	// emission order after the positional flags.
	Options []string
	Exports []string
	Regions bool
	// Required options beyond the method-conditioned ones.
	Required []string
}

var (
	trackExports = []string{"stat", "tdi", "tdi2", "tdi_color", "tdi_end"}
	imageExports = []string{"fa", "qa", "md", "ad", "rd", "iso", "gfa", "nqa", "rdi", "4dnii"}
	recOptions   = []string{
		"method", "param0", "param1", "param2", "mask", "check_btable", "other_image",
		"record_odf", "odf_order", "num_fiber", "r2_weighted", "deconvolution", "decomposition",
		"template", "interpo_method", "regist_method", "output_jac", "output_map", "output_rdi",
		"output_tensor", "output_dif", "motion_correction", "align_acpc", "thread_count", "cmd",
		"output_dir", "output",
	}
	trackOptions = []string{
		"tracking_method", "fiber_count", "seed_count", "fa_threshold", "otsu_threshold",
		"turning_angle", "step_size", "smoothing", "min_length", "max_length", "tip_iteration",
		"initial_dir", "interpolation", "seed_plan", "random_seed", "check_ending", "track_id",
		"tolerance", "ref", "connectivity", "connectivity_type", "connectivity_value",
		"connectivity_threshold", "thread_count", "tract_name", "output_dir", "output",
	}
)

var actionTable = map[Action]*ActionSpec{
	ActionSrc: {
		Name: ActionSrc, Extension: ".src.gz", Output: OutputGiven,
		Options:  []string{"bval", "bvec", "b_table", "recursive", "output_dir", "output"},
		Required: []string{"source"},
	},
	ActionRec: {
		Name: ActionRec, Extension: ".fib.gz", Output: OutputScraped,
		Options:  recOptions,
		Required: []string{"source", "method"},
	},
	ActionTrk: {
		Name: ActionTrk, Extension: ".trk.gz", Output: OutputGiven,
		Options:  trackOptions,
		Exports:  trackExports,
		Regions:  true,
		Required: []string{"source"},
	},
	ActionAna: {
		Name: ActionAna, Extension: ".txt", Output: OutputGiven,
		Options: []string{
			"tract", "connectivity", "connectivity_type", "connectivity_value",
			"connectivity_threshold", "tract_name", "output_dir", "output",
		},
		Exports:  trackExports,
		Regions:  true,
		Required: []string{"source", "tract"},
	},
	ActionExp: {
		Name: ActionExp, Extension: ".nii.gz", Output: OutputScraped,
		Options:  []string{"output_dir", "output"},
		Exports:  imageExports,
		Required: []string{"source", "export"},
	},
	ActionAtl: {
		Name: ActionAtl, Extension: ".nii.gz", Output: OutputScraped,
		Options:  []string{"atlas", "cmd", "output_dir", "output"},
		Required: []string{"source", "atlas"},
	},
}

// LookupAction returns the ActionSpec for an action name.
func LookupAction(name string) (*ActionSpec, error) {
	spec, ok := actionTable[Action(name)]
	if !ok {
		return nil, fmt.Errorf("unknown dsi_studio action %q", name)
	}
	return spec, nil
}

// Accepts reports whether option is part of the action's vocabulary, which
// includes region and export options even though they are emitted through
// their own tables.
func (a *ActionSpec) Accepts(option string) bool {
	if option == "action" || option == "source" {
		return true
	}
	for _, o := range a.Options {
		if o == option {
			return true
		}
	}
	if a.Regions {
		for _, k := range regionKinds {
			switch option {
			case k.Option, k.Option + "_actions", k.Option + "_atlas", k.Option + "_atlas_regions":
				return true
			}
		}
	}
	if len(a.Exports) > 0 {
		if option == "export" {
			return true
		}
		for _, tok := range a.Exports {
			if option == "export_"+tok {
				return true
			}
		}
		if a.reportable() {
			switch option {
			case "export_report", "report_val", "report_pstyle", "report_bandwidth":
				return true
			}
		}
	}
	return false
}

func (a *ActionSpec) reportable() bool { return a.Name == ActionTrk || a.Name == ActionAna }
