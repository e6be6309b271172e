// Package dsistudio turns logical DSI Studio options into a validated,
// ordered dsi_studio argument list.
package dsistudio

import (
	"github.com/zclconf/go-cty/cty"
)

// ValueKind is the logical type of an option value.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindInt
	KindFloat
	KindEnum
	KindString
	KindPath
	KindPathList
	KindEnumList
	KindRegionList
	KindActionLists
)

var kindNames = [...]string{
	KindBool:        "boolean",
	KindInt:         "integer",
	KindFloat:       "float",
	KindEnum:        "enum",
	KindString:      "string",
	KindPath:        "file path",
	KindPathList:    "list of file paths",
	KindEnumList:    "list of enum values",
	KindRegionList:  "list of regions",
	KindActionLists: "list of region action lists",
}

func (k ValueKind) String() string { return kindNames[k] }

// Type is the cty type a value of this kind converts to. Region lists mix
// strings and pairs, so they stay dynamic and are checked by hand.
func (k ValueKind) Type() cty.Type {
	switch k {
	case KindBool:
		return cty.Bool
	case KindInt, KindFloat:
		return cty.Number
	case KindEnum, KindString, KindPath:
		return cty.String
	case KindPathList, KindEnumList:
		return cty.List(cty.String)
	case KindActionLists:
		return cty.List(cty.List(cty.String))
	default:
		return cty.DynamicPseudoType
	}
}

// OptionSpec is the static description of one logical option.
type OptionSpec struct {
	Name string
	// Template is a format string taking the rendered value, or empty when
	// the option is never emitted directly.
	Template  string
	Kind      ValueKind
	Enum      []string
	Default   cty.Value
	Requires  []string
	Exclusive []string
	// Position orders positional flags; zero means not positional.
	Position int
}

func (s *OptionSpec) hasDefault() bool { return s.Default != cty.NilVal }

func (s *OptionSpec) allows(v string) bool {
	for _, e := range s.Enum {
		if e == v {
			return true
		}
	}
	return false
}

// regionActions are the post-processing codes accepted after a region path.
var regionActions = []string{
	"smoothing", "erosion", "dilation", "defragment", "negate",
	"flipx", "flipy", "flipz",
	"shiftx", "shiftnx", "shifty", "shiftny", "shiftz", "shiftnz",
}

var metricNames = []string{"fa", "qa", "md", "ad", "rd", "iso", "gfa", "nqa", "rdi"}

// optionTable lists every logical option in emission order.
var optionTable = []OptionSpec{
	{Name: "action", Template: "--action=%s", Kind: KindEnum, Enum: []string{"src", "rec", "trk", "ana", "exp", "atl"}, Position: 1},
	{Name: "source", Template: "--source=%s", Kind: KindPath, Position: 2},

	// src
	{Name: "bval", Template: "--bval=%s", Kind: KindPath, Requires: []string{"bvec"}, Exclusive: []string{"b_table"}},
	{Name: "bvec", Template: "--bvec=%s", Kind: KindPath, Requires: []string{"bval"}},
	{Name: "b_table", Template: "--b_table=%s", Kind: KindPath},
	{Name: "recursive", Template: "--recursive=%s", Kind: KindBool},

	// rec
	{Name: "method", Template: "--method=%s", Kind: KindEnum, Enum: methodNames()},
	{Name: "param0", Template: "--param0=%s", Kind: KindFloat},
	{Name: "param1", Template: "--param1=%s", Kind: KindFloat},
	{Name: "param2", Template: "--param2=%s", Kind: KindFloat},
	{Name: "mask", Template: "--mask=%s", Kind: KindPath},
	{Name: "check_btable", Template: "--check_btable=%s", Kind: KindBool},
	{Name: "other_image", Template: "--other_image=%s", Kind: KindPathList},
	{Name: "record_odf", Template: "--record_odf=%s", Kind: KindBool},
	{Name: "odf_order", Template: "--odf_order=%s", Kind: KindEnum, Enum: []string{"4", "5", "6", "8"}},
	{Name: "num_fiber", Template: "--num_fiber=%s", Kind: KindInt},
	{Name: "r2_weighted", Template: "--r2_weighted=%s", Kind: KindBool},
	{Name: "deconvolution", Template: "--deconvolution=%s", Kind: KindBool},
	{Name: "decomposition", Template: "--decomposition=%s", Kind: KindBool},
	{Name: "template", Template: "--template=%s", Kind: KindInt},
	{Name: "interpo_method", Template: "--interpo_method=%s", Kind: KindEnum, Enum: []string{"0", "1", "2"}},
	{Name: "regist_method", Template: "--regist_method=%s", Kind: KindEnum, Enum: []string{"0", "1", "2", "3", "4"}},
	{Name: "output_jac", Template: "--output_jac=%s", Kind: KindBool},
	{Name: "output_map", Template: "--output_map=%s", Kind: KindBool},
	{Name: "output_rdi", Template: "--output_rdi=%s", Kind: KindBool},
	{Name: "output_tensor", Template: "--output_tensor=%s", Kind: KindBool},
	{Name: "output_dif", Template: "--output_dif=%s", Kind: KindBool},
	{Name: "motion_correction", Template: "--motion_correction=%s", Kind: KindBool},
	{Name: "align_acpc", Template: "--align_acpc=%s", Kind: KindBool},

	// trk / ana
	{Name: "tract", Template: "--tract=%s", Kind: KindPath},
	{Name: "tracking_method", Template: "--method=%s", Kind: KindEnum, Enum: []string{"0", "1"}},
	{Name: "fiber_count", Template: "--fiber_count=%s", Kind: KindInt, Exclusive: []string{"seed_count"}},
	{Name: "seed_count", Template: "--seed_count=%s", Kind: KindInt, Exclusive: []string{"fiber_count"}},
	{Name: "fa_threshold", Template: "--fa_threshold=%s", Kind: KindFloat, Exclusive: []string{"otsu_threshold"}},
	{Name: "otsu_threshold", Template: "--otsu_threshold=%s", Kind: KindFloat, Exclusive: []string{"fa_threshold"}},
	{Name: "turning_angle", Template: "--turning_angle=%s", Kind: KindFloat},
	{Name: "step_size", Template: "--step_size=%s", Kind: KindFloat},
	{Name: "smoothing", Template: "--smoothing=%s", Kind: KindFloat},
	{Name: "min_length", Template: "--min_length=%s", Kind: KindFloat},
	{Name: "max_length", Template: "--max_length=%s", Kind: KindFloat},
	{Name: "tip_iteration", Template: "--tip_iteration=%s", Kind: KindInt},
	{Name: "initial_dir", Template: "--initial_dir=%s", Kind: KindEnum, Enum: []string{"0", "1", "2"}},
	{Name: "interpolation", Template: "--interpolation=%s", Kind: KindEnum, Enum: []string{"0", "1", "2"}},
	{Name: "seed_plan", Template: "--seed_plan=%s", Kind: KindEnum, Enum: []string{"0", "1"}},
	{Name: "random_seed", Template: "--random_seed=%s", Kind: KindBool},
	{Name: "check_ending", Template: "--check_ending=%s", Kind: KindBool},
	{Name: "track_id", Template: "--track_id=%s", Kind: KindString},
	{Name: "tolerance", Template: "--tolerance=%s", Kind: KindFloat, Requires: []string{"track_id"}},
	{Name: "ref", Template: "--ref=%s", Kind: KindPath},
	{Name: "connectivity", Template: "--connectivity=%s", Kind: KindEnumList, Requires: []string{"connectivity_value"}},
	{Name: "connectivity_type", Template: "--connectivity_type=%s", Kind: KindEnum, Enum: []string{"pass", "end"}, Requires: []string{"connectivity"}},
	{Name: "connectivity_value", Template: "--connectivity_value=%s", Kind: KindEnum, Enum: []string{"count", "ncount", "mean_length", "trk", "qa", "fa", "md"}, Requires: []string{"connectivity"}},
	{Name: "connectivity_threshold", Template: "--connectivity_threshold=%s", Kind: KindFloat, Requires: []string{"connectivity"}},

	// atl
	{Name: "atlas", Template: "--atlas=%s", Kind: KindEnumList},

	// shared
	{Name: "thread_count", Template: "--thread_count=%s", Kind: KindInt},
	{Name: "cmd", Template: "--cmd=%s", Kind: KindString},

	// regions; emitted through the RegionKind table
	{Name: "seed", Kind: KindRegionList},
	{Name: "seed_actions", Kind: KindActionLists, Enum: regionActions},
	{Name: "seed_atlas", Kind: KindString, Requires: []string{"seed_atlas_regions"}},
	{Name: "seed_atlas_regions", Kind: KindEnumList, Requires: []string{"seed_atlas"}},
	{Name: "rois", Kind: KindRegionList},
	{Name: "rois_actions", Kind: KindActionLists, Enum: regionActions},
	{Name: "rois_atlas", Kind: KindString, Requires: []string{"rois_atlas_regions"}},
	{Name: "rois_atlas_regions", Kind: KindEnumList, Requires: []string{"rois_atlas"}},
	{Name: "roas", Kind: KindRegionList},
	{Name: "roas_actions", Kind: KindActionLists, Enum: regionActions},
	{Name: "roas_atlas", Kind: KindString, Requires: []string{"roas_atlas_regions"}},
	{Name: "roas_atlas_regions", Kind: KindEnumList, Requires: []string{"roas_atlas"}},
	{Name: "ends", Kind: KindRegionList},
	{Name: "ends_actions", Kind: KindActionLists, Enum: regionActions},
	{Name: "ends_atlas", Kind: KindString, Requires: []string{"ends_atlas_regions"}},
	{Name: "ends_atlas_regions", Kind: KindEnumList, Requires: []string{"ends_atlas"}},
	{Name: "ter", Kind: KindRegionList},
	{Name: "ter_actions", Kind: KindActionLists, Enum: regionActions},
	{Name: "ter_atlas", Kind: KindString, Requires: []string{"ter_atlas_regions"}},
	{Name: "ter_atlas_regions", Kind: KindEnumList, Requires: []string{"ter_atlas"}},

	// export composition; collapsed into the single --export flag
	{Name: "export", Template: "--export=%s", Kind: KindEnumList},
	{Name: "export_stat", Kind: KindBool, Default: cty.False},
	{Name: "export_tdi", Kind: KindBool, Default: cty.False},
	{Name: "export_tdi2", Kind: KindBool, Default: cty.False},
	{Name: "export_tdi_color", Kind: KindBool, Default: cty.False},
	{Name: "export_tdi_end", Kind: KindBool, Default: cty.False},
	{Name: "export_fa", Kind: KindBool, Default: cty.False},
	{Name: "export_qa", Kind: KindBool, Default: cty.False},
	{Name: "export_md", Kind: KindBool, Default: cty.False},
	{Name: "export_ad", Kind: KindBool, Default: cty.False},
	{Name: "export_rd", Kind: KindBool, Default: cty.False},
	{Name: "export_iso", Kind: KindBool, Default: cty.False},
	{Name: "export_gfa", Kind: KindBool, Default: cty.False},
	{Name: "export_nqa", Kind: KindBool, Default: cty.False},
	{Name: "export_rdi", Kind: KindBool, Default: cty.False},
	{Name: "export_4dnii", Kind: KindBool, Default: cty.False},
	{Name: "export_report", Kind: KindBool, Default: cty.False},
	{Name: "report_val", Kind: KindEnum, Enum: metricNames},
	{Name: "report_pstyle", Kind: KindEnum, Enum: []string{"0", "1", "2", "3", "4"}},
	{Name: "report_bandwidth", Kind: KindInt},

	// naming; never emitted
	{Name: "tract_name", Kind: KindString},
	{Name: "output_dir", Kind: KindPath},
	{Name: "output", Template: "--output=%s", Kind: KindPath},
}

var optionIndex = func() map[string]*OptionSpec {
	idx := make(map[string]*OptionSpec, len(optionTable))
	for i := range optionTable {
		idx[optionTable[i].Name] = &optionTable[i]
	}
	return idx
}()

// LookupOption returns the static spec for a logical option name.
func LookupOption(name string) (OptionSpec, bool) {
	s, ok := optionIndex[name]
	if !ok {
		return OptionSpec{}, false
	}
	return *s, true
}

// OptionNames returns every known logical option in emission order.
func OptionNames() []string {
	names := make([]string, len(optionTable))
	for i, s := range optionTable {
		names[i] = s.Name
	}
	return names
}
