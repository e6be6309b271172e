package hclconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dsipipe/internal/config"
	"github.com/vk/dsipipe/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

const pipeline = `
name         = "tracts"
data_dir     = env.STUDY_ROOT
included_ids = ["s1/scanA/u1"]
fa_cutoff    = 0.2

step "SplitIDs" {}

step "FileIn" {}

step "MyTrack" {
  type = "DSI_TRK"
  inputs = {
    rois         = ["A.nii.gz", "B.nii.gz"]
    tract_name   = "cst"
    fa_threshold = "fa_cutoff"
  }
  connect = {
    fib_file = ["DSI_REC", "fiber_file"]
    seed     = []
  }
}
`

func TestLoader_Load(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	path := filepath.Join(t.TempDir(), "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(pipeline), 0o644))
	l := &Loader{environ: func() []string { return []string{"STUDY_ROOT=/studies/x", "1BAD=skip"} }}

	// --- Act ---
	m, err := l.Load(testutil.Context(), path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "/studies/x", m.DataDir)
	assert.Equal(t, []config.StepDecl{
		{Name: "SplitIDs", Type: "SplitIDs"},
		{Name: "FileIn", Type: "FileIn"},
		{Name: "MyTrack", Type: "DSI_TRK"},
	}, m.Steps)
	track := m.Method("MyTrack")
	assert.Equal(t, config.Connection{Key: "DSI_REC", Field: "fiber_file"}, track.Connect["fib_file"])
	assert.True(t, track.Connect["seed"].Suppressed)
	cutoff := m.Substitute(track.Inputs["fa_threshold"])
	require.Equal(t, cty.Number, cutoff.Type())
	f, _ := cutoff.AsBigFloat().Float64()
	assert.InDelta(t, 0.2, f, 1e-9)
}

func TestLoader_SyntaxError(t *testing.T) {
	t.Parallel()
	l := &Loader{environ: func() []string { return nil }}

	_, err := l.Parse([]byte(`step "A" {`), "broken.hcl")

	assert.Error(t, err)
}

func TestLoader_AttributesAfterStepBlocks(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	l := &Loader{environ: func() []string { return nil }}
	src := `
step "SplitIDs" {}

data_dir     = "/data"
included_ids = ["s1_a_u1"]

step "FileIn" {}
`

	// --- Act ---
	m, err := l.Parse([]byte(src), "mixed.hcl")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "/data", m.DataDir)
	assert.Equal(t, []string{"s1_a_u1"}, m.IncludedIDs)
	assert.Len(t, m.Steps, 2)
}

func TestLoader_RejectsUnknownBlocks(t *testing.T) {
	t.Parallel()
	l := &Loader{environ: func() []string { return nil }}
	src := `
data_dir     = "/data"
included_ids = ["s1_a_u1"]
step "SplitIDs" {}
runner "x" {}
`

	_, err := l.Parse([]byte(src), "extra.hcl")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unexpected "runner" block`)
}
