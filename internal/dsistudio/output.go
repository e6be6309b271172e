package dsistudio

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// TimestampLayout names outputs when no tract name is given.
const TimestampLayout = "20060102_150405"

// knownExtensions are stripped from a source name before deriving an output
// name. Compound extensions come first.
var knownExtensions = []string{
	".src.gz", ".fib.gz", ".trk.gz", ".tt.gz", ".nii.gz", ".stat.txt",
	".nii", ".trk", ".txt", ".gz",
}

// Stem returns the base name of path without its imaging extension.
func Stem(path string) string {
	base := filepath.Base(path)
	for _, ext := range knownExtensions {
		if strings.HasSuffix(base, ext) && len(base) > len(ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// deriveOutput names the output of an action whose caller gave no explicit
// output: <prefix>_<source stem><extension> next to the source, or under
// output_dir when set. The prefix is the tract name, else a timestamp.
func deriveOutput(action *ActionSpec, values Values, now time.Time) cty.Value {
	if values.IsSet("output") {
		return values["output"]
	}
	source := values["source"]
	if !source.IsKnown() {
		return cty.UnknownVal(cty.String)
	}
	src := source.AsString()

	prefix := now.Format(TimestampLayout)
	if values.IsSet("tract_name") && values["tract_name"].IsKnown() {
		prefix = values["tract_name"].AsString()
	}

	dir := filepath.Dir(src)
	if values.IsSet("output_dir") {
		od := values["output_dir"]
		if !od.IsKnown() {
			return cty.UnknownVal(cty.String)
		}
		dir = od.AsString()
	}
	return cty.StringVal(filepath.Join(dir, prefix+"_"+Stem(src)+action.Extension))
}
