package yamlconfig

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
name: tracts
data_dir: /data
included_ids: [s1/scanA/u1]
steps:
  - SplitIDs
  - FileIn
  - [MyTrack, DSI_TRK]
method:
  MyTrack:
    inputs:
      rois: [A.nii.gz, B.nii.gz]
      tract_name: cst
      fa_threshold: 0.15
    connect:
      fib_file: [DSI_REC, fiber_file]
step_types:
  Tracker: dsistudio.DSI_TRK
`

func TestLoader_Load(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pipeline), 0o644))

	// --- Act ---
	m, err := NewLoader().Load(testutil.Context(), path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []config.StepDecl{
		{Name: "SplitIDs", Type: "SplitIDs"},
		{Name: "FileIn", Type: "FileIn"},
		{Name: "MyTrack", Type: "DSI_TRK"},
	}, m.Steps)
	track := m.Method("MyTrack")
	assert.Equal(t, config.Connection{Key: "DSI_REC", Field: "fiber_file"}, track.Connect["fib_file"])
	assert.True(t, track.Inputs["fa_threshold"].RawEquals(cty.NumberFloatVal(0.15)))
	assert.Equal(t, "dsistudio.DSI_TRK", m.StepTypes["Tracker"])
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("steps: [A]\nincluded_ids: [x]\n"))

	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
