package fsl

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dsipipe/internal/fsl"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/testutil"
	"github.com/vk/dsipipe/modules/utility"
	"github.com/zclconf/go-cty/cty"
)

func newStep(t *testing.T, mod *Module, typeName string) registry.Step {
	t.Helper()
	reg, err := registry.New(nil, mod, &utility.Module{})
	require.NoError(t, err)
	st, err := reg.Lookup(typeName)
	require.NoError(t, err)
	s, err := st.New(typeName, nil)
	require.NoError(t, err)
	return s
}

func TestPrepare_Commands(t *testing.T) {
	t.Setenv(fsl.EnvDir, "")
	tests := []struct {
		name     string
		typeName string
		in       registry.Inputs
		want     []string
		outputs  map[string]string
	}{
		{
			name:     "bet defaults to a mask",
			typeName: "FSL_BET",
			in:       registry.Inputs{"in_file": cty.StringVal("/d/s/c/s_c_u_dwi.nii.gz"), "frac": cty.NumberFloatVal(0.3)},
			want:     []string{"/fsl/bin/bet", "/d/s/c/s_c_u_dwi.nii.gz", "/d/s/c/fsl/s_c_u_dwi_brain", "-f", "0.3", "-m"},
			outputs: map[string]string{
				"brain":     "/d/s/c/fsl/s_c_u_dwi_brain.nii.gz",
				"mask_file": "/d/s/c/fsl/s_c_u_dwi_brain_mask.nii.gz",
			},
		},
		{
			name:     "dtifit",
			typeName: "FSL_DTIFIT",
			in: registry.Inputs{
				"dwi":   cty.StringVal("/d/s/c/fsl/s_c_u_dwi_eddy.nii.gz"),
				"mask":  cty.StringVal("/d/s/c/fsl/m.nii.gz"),
				"bvecs": cty.StringVal("/d/s/c/s_c_u_dwi.bvec"),
				"bvals": cty.StringVal("/d/s/c/s_c_u_dwi.bval"),
			},
			want: []string{
				"/fsl/bin/dtifit", "-k", "/d/s/c/fsl/s_c_u_dwi_eddy.nii.gz", "-o", "/d/s/c/fsl/s_c_u_dwi_eddy_dti",
				"-m", "/d/s/c/fsl/m.nii.gz", "-r", "/d/s/c/s_c_u_dwi.bvec", "-b", "/d/s/c/s_c_u_dwi.bval",
			},
			outputs: map[string]string{"fa": "/d/s/c/fsl/s_c_u_dwi_eddy_dti_FA.nii.gz"},
		},
		{
			name:     "tbss stage 1 lists staged names",
			typeName: "TBSS_1_PREPROC",
			in: registry.Inputs{
				"fa_list":  cty.TupleVal([]cty.Value{cty.StringVal("/d/a/x/fsl/a_FA.nii.gz"), cty.StringVal("/d/b/x/fsl/b_FA.nii.gz")}),
				"data_dir": cty.StringVal("/d"),
			},
			want:    []string{"/fsl/bin/tbss_1_preproc", "a_FA.nii.gz", "b_FA.nii.gz"},
			outputs: map[string]string{"fa_dir": "/d/tbss/FA", "orig_dir": "/d/tbss/origdata"},
		},
		{
			name:     "tbss stage 4 runs in the parent of stats",
			typeName: "TBSS_4_PRESTATS",
			in:       registry.Inputs{"stats_dir": cty.StringVal("/d/tbss/stats")},
			want:     []string{"/fsl/bin/tbss_4_prestats", "0.2"},
			outputs:  map[string]string{"all_fa_skeletonised": "/d/tbss/stats/all_FA_skeletonised.nii.gz"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			s := newStep(t, &Module{BinDir: "/fsl/bin"}, tc.typeName)

			// --- Act ---
			plan, err := s.Prepare(testutil.Context(), tc.in)

			// --- Assert ---
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, plan.Command); diff != "" {
				t.Errorf("command mismatch (-want +got):\n%s", diff)
			}
			for field, want := range tc.outputs {
				assert.Equal(t, filepath.FromSlash(want), plan.Outputs[field].AsString(), field)
			}
		})
	}
}

func TestPrepare_PendingInput(t *testing.T) {
	t.Parallel()
	s := newStep(t, &Module{BinDir: "/fsl/bin"}, "FSL_EDDY")

	plan, err := s.Prepare(testutil.Context(), registry.Inputs{"in_file": cty.DynamicVal})

	require.NoError(t, err)
	assert.Equal(t, []string{"/fsl/bin/eddy_correct", "<pending:in_file>", "<pending:out_file>", "0"}, plan.Command)
	assert.False(t, plan.Outputs["eddy_corrected"].IsKnown())
}

func TestPrepare_FlirtReference(t *testing.T) {
	t.Setenv(fsl.EnvDir, "/usr/local/fsl")
	s := newStep(t, &Module{}, "FSL_FLIRT")

	plan, err := s.Prepare(testutil.Context(), registry.Inputs{"in_file": cty.StringVal("/d/s/c/fsl/a_FA.nii.gz")})

	require.NoError(t, err)
	assert.Contains(t, plan.Command, filepath.Join("/usr/local/fsl", "data/standard/FMRIB58_FA_1mm.nii.gz"))
	assert.Equal(t, filepath.Join("/usr/local/fsl", "bin", "flirt"), plan.Command[0])
}

func TestPrepare_UnknownOption(t *testing.T) {
	t.Parallel()
	s := newStep(t, &Module{BinDir: "/fsl/bin"}, "FSL_BET")

	_, err := s.Prepare(testutil.Context(), registry.Inputs{
		"in_file": cty.StringVal("/d/x.nii.gz"),
		"frac":    cty.StringVal("lots"),
	})

	require.ErrorIs(t, err, fsl.ErrInvalidOption)
	assert.Contains(t, err.Error(), `step "FSL_BET"`)
}

func TestRun_StagesFAImages(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	dir := t.TempDir()
	a := testutil.Touch(t, filepath.Join(dir, "a", "x", "fsl", "a_FA.nii.gz"))
	b := testutil.Touch(t, filepath.Join(dir, "b", "x", "fsl", "b_FA.nii.gz"))
	testutil.WriteScript(t, dir, "tbss_1_preproc", `mkdir -p FA origdata && for f in "$@"; do test -f "$f" || exit 3; done`)
	s := newStep(t, &Module{BinDir: dir}, "TBSS_1_PREPROC")

	// --- Act ---
	out, err := s.Run(testutil.Context(), registry.Inputs{
		"fa_list":  cty.TupleVal([]cty.Value{cty.StringVal(a), cty.StringVal(b)}),
		"data_dir": cty.StringVal(dir),
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tbss", "FA"), out["fa_dir"].AsString())
	assert.FileExists(t, filepath.Join(dir, "tbss", "a_FA.nii.gz"))
	assert.FileExists(t, filepath.Join(dir, "tbss", "b_FA.nii.gz"))
}
