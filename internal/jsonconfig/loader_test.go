package jsonconfig

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

const pipeline = `{
  "name": "tracts",
  "data_dir": "/data",
  "included_ids": ["s1/scanA/u1", "s2/scanA/u2"],
  "steps": ["SplitIDs", "FileIn", ["MyTrack", "DSI_TRK"]],
  "method": {
    "MyTrack": {
      "inputs": {"rois": ["A.nii.gz", "B.nii.gz"], "tract_name": "cst", "fiber_count": 5000},
      "connect": {"seed": []}
    }
  },
  "email": "lab@example.org"
}`

func TestLoader_Load(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(pipeline), 0o644))

	// --- Act ---
	m, err := NewLoader().Load(testutil.Context(), path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, path, m.Path)
	assert.Equal(t, "lab@example.org", m.Email)
	assert.Len(t, m.Steps, 3)
	assert.Len(t, m.IncludedIDs, 2)
	inputs := m.Method("MyTrack").Inputs
	assert.True(t, inputs["fiber_count"].RawEquals(cty.NumberIntVal(5000)))
	assert.True(t, m.Method("MyTrack").Connect["seed"].Suppressed)
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"steps": ["A"], "included_ids": ["x"]}`), 0o644))
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"steps": [`), 0o644))

	_, err := NewLoader().Load(testutil.Context(), bad)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), bad)

	_, err = NewLoader().Load(testutil.Context(), broken)
	assert.Error(t, err)

	_, err = NewLoader().Load(testutil.Context(), filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
