package dsistudio

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/ctyconv"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// RegionKind is the closed set of region-bearing options.
type RegionKind int

const (
	RegionSeed RegionKind = iota
	RegionROI
	RegionROA
	RegionEnd
	RegionTer
)

type regionKindSpec struct {
	Kind   RegionKind
	Option string
	Flag   string
	Cap    int
}

// regionKinds is ordered as the flags are emitted.
var regionKinds = [...]regionKindSpec{
	{Kind: RegionSeed, Option: "seed", Flag: "seed", Cap: 1},
	{Kind: RegionROI, Option: "rois", Flag: "roi", Cap: 5},
	{Kind: RegionROA, Option: "roas", Flag: "roa", Cap: 5},
	{Kind: RegionEnd, Option: "ends", Flag: "end", Cap: 2},
	{Kind: RegionTer, Option: "ter", Flag: "ter", Cap: 5},
}

func (k RegionKind) String() string { return regionKinds[k].Option }

// Cap is the most regions of this kind the tool accepts.
func (k RegionKind) Cap() int { return regionKinds[k].Cap }

// FlagName returns the numbered flag for the i-th region (zero based):
// the first is unsuffixed, later ones count from 2.
func (k RegionKind) FlagName(i int) string {
	if i == 0 {
		return "--" + regionKinds[k].Flag
	}
	return fmt.Sprintf("--%s%d", regionKinds[k].Flag, i+1)
}

// AtlasLocator resolves an atlas name to its NIfTI file.
type AtlasLocator interface {
	Locate(atlas string) (string, error)
}

// RegionSource is one configured region: a literal file, or an atlas
// region that still needs substitution.
type RegionSource struct {
	Path   string
	Atlas  string
	Region string
}

// IsAtlas reports whether the source still needs substitution.
func (r RegionSource) IsAtlas() bool { return r.Atlas != "" }

func parseRegions(action Action, option string, val cty.Value) ([]RegionSource, error) {
	if val == cty.NilVal || val.IsNull() {
		return nil, nil
	}
	if !val.IsKnown() {
		return nil, invalid(action, option, "region list must be known before the run")
	}
	ty := val.Type()
	if ty == cty.String {
		return []RegionSource{{Path: val.AsString()}}, nil
	}
	if !(ty.IsListType() || ty.IsTupleType()) {
		return nil, invalid(action, option, "expected %s, got %s", KindRegionList, ty.FriendlyName())
	}
	var out []RegionSource
	for it := val.ElementIterator(); it.Next(); {
		idx, e := it.Element()
		src, err := parseRegion(e)
		if err != nil {
			return nil, invalid(action, option, "entry %s: %s", renderNumber(idx), err)
		}
		out = append(out, src)
	}
	return out, nil
}

func parseRegion(e cty.Value) (RegionSource, error) {
	if e.IsNull() || !e.IsWhollyKnown() {
		return RegionSource{}, fmt.Errorf("region must be a known value")
	}
	ty := e.Type()
	switch {
	case ty == cty.String:
		return RegionSource{Path: e.AsString()}, nil
	case ty.IsListType() || ty.IsTupleType():
		if e.LengthInt() != 2 {
			return RegionSource{}, fmt.Errorf("atlas region must be an [atlas, region] pair")
		}
		atlas, region := e.Index(cty.NumberIntVal(0)), e.Index(cty.NumberIntVal(1))
		if atlas.Type() != cty.String || region.Type() != cty.String {
			return RegionSource{}, fmt.Errorf("atlas region pair must hold two strings")
		}
		return RegionSource{Atlas: atlas.AsString(), Region: region.AsString()}, nil
	case ty.IsObjectType():
		if !ty.HasAttribute("atlas") || !ty.HasAttribute("region") {
			return RegionSource{}, fmt.Errorf("atlas region object needs atlas and region")
		}
		return RegionSource{
			Atlas:  e.GetAttr("atlas").AsString(),
			Region: e.GetAttr("region").AsString(),
		}, nil
	}
	return RegionSource{}, fmt.Errorf("unsupported region value of type %s", ty.FriendlyName())
}

func atlasRegionPath(action Action, option string, atlases AtlasLocator, atlas, region string) (string, error) {
	if atlases == nil {
		return "", invalid(action, option, "atlas %q referenced but no atlas directory is configured", atlas)
	}
	file, err := atlases.Locate(atlas)
	if err != nil {
		return "", invalid(action, option, "%s", err)
	}
	return file + ":" + region, nil
}

// SubstituteRegions replaces every atlas reference of every region option
// with a concrete path. Inline [atlas, region] pairs are replaced in place.
// Regions listed through <kind>_atlas and <kind>_atlas_regions are appended,
// unless the list already ends with exactly those paths, so substituting an
// already substituted set changes nothing.
func SubstituteRegions(action Action, values Values, atlases AtlasLocator) (Values, error) {
	out := values.Clone()
	for _, k := range regionKinds {
		sources, err := parseRegions(action, k.Option, values[k.Option])
		if err != nil {
			return nil, err
		}
		paths := make([]string, 0, len(sources))
		for _, src := range sources {
			if !src.IsAtlas() {
				paths = append(paths, src.Path)
				continue
			}
			p, err := atlasRegionPath(action, k.Option, atlases, src.Atlas, src.Region)
			if err != nil {
				return nil, err
			}
			paths = append(paths, p)
		}

		atlasOpt, regionsOpt := k.Option+"_atlas", k.Option+"_atlas_regions"
		if values.IsSet(atlasOpt) && values.IsSet(regionsOpt) {
			atlas := values[atlasOpt]
			if !atlas.IsKnown() || atlas.Type() != cty.String {
				return nil, invalid(action, atlasOpt, "expected the atlas name as a string")
			}
			names, err := checkStrings(action, regionsOpt, values[regionsOpt])
			if err != nil {
				return nil, err
			}
			expected := make([]string, 0, len(names))
			for _, n := range names {
				p, err := atlasRegionPath(action, atlasOpt, atlases, atlas.AsString(), n)
				if err != nil {
					return nil, err
				}
				expected = append(expected, p)
			}
			if !hasSuffix(paths, expected) {
				paths = append(paths, expected...)
			}
		}

		if len(sources) > 0 || len(paths) > 0 {
			out[k.Option] = ctyconv.StringList(paths)
		}
	}
	return out, nil
}

func checkStrings(action Action, option string, val cty.Value) ([]string, error) {
	spec := optionIndex[option]
	checked, err := check(action, spec, val)
	if err != nil {
		return nil, err
	}
	if !checked.IsWhollyKnown() {
		return nil, invalid(action, option, "must be known before the run")
	}
	if spec.Kind == KindRegionList {
		if checked, err = convert.Convert(checked, cty.List(cty.String)); err != nil {
			return nil, invalid(action, option, "regions must be substituted to paths first")
		}
	}
	var out []string
	for it := checked.ElementIterator(); it.Next(); {
		_, e := it.Element()
		out = append(out, e.AsString())
	}
	return out, nil
}

func hasSuffix(list, tail []string) bool {
	if len(tail) > len(list) {
		return false
	}
	off := len(list) - len(tail)
	for i, s := range tail {
		if list[off+i] != s {
			return false
		}
	}
	return true
}

// encodeRegions renders the numbered flags of every region kind from an
// already substituted value set. Region action lists are appended to their
// region after a comma. Entries past a kind's cap are dropped with a warning.
func encodeRegions(ctx context.Context, action Action, values Values) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	var args []string
	for _, k := range regionKinds {
		paths, err := checkStrings(action, k.Option, listOrEmpty(values[k.Option]))
		if err != nil {
			return nil, err
		}
		var actions [][]string
		if values.IsSet(k.Option + "_actions") {
			actions, err = actionLists(action, k.Option+"_actions", values[k.Option+"_actions"])
			if err != nil {
				return nil, err
			}
			if len(actions) != len(paths) {
				return nil, &RegionCountMismatchError{Option: k.Option, Regions: len(paths), Actions: len(actions)}
			}
		}
		if len(paths) > k.Cap {
			logger.Warn("Too many regions, dropping the excess.",
				"kind", k.Option, "cap", k.Cap, "dropped", paths[k.Cap:])
			paths = paths[:k.Cap]
		}
		for i, p := range paths {
			enc := p
			if actions != nil && len(actions[i]) > 0 {
				enc += "," + strings.Join(actions[i], ",")
			}
			args = append(args, k.Kind.FlagName(i)+"="+enc)
		}
	}
	return args, nil
}

func listOrEmpty(v cty.Value) cty.Value {
	if v == cty.NilVal || v.IsNull() {
		return cty.ListValEmpty(cty.String)
	}
	return v
}

func actionLists(action Action, option string, val cty.Value) ([][]string, error) {
	checked, err := check(action, optionIndex[option], val)
	if err != nil {
		return nil, err
	}
	if !checked.IsWhollyKnown() {
		return nil, invalid(action, option, "must be known before the run")
	}
	var out [][]string
	for it := checked.ElementIterator(); it.Next(); {
		_, list := it.Element()
		codes := []string{}
		for li := list.ElementIterator(); li.Next(); {
			_, e := li.Element()
			codes = append(codes, e.AsString())
		}
		out = append(out, codes)
	}
	return out, nil
}
