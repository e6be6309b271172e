package dsistudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestRecomputeRequirements(t *testing.T) {
	t.Parallel()

	t.Run("parameter slots follow the method", func(t *testing.T) {
		t.Parallel()
		dti, err := RecomputeRequirements(MethodDTI, Values{})
		require.NoError(t, err)
		hardi, err := RecomputeRequirements(MethodHARDI, Values{})
		require.NoError(t, err)

		assert.Equal(t, []string{"method", "source"}, dti.Sorted())
		assert.Equal(t, []string{"method", "param0", "param1", "param2", "source"}, hardi.Sorted())
	})

	t.Run("requires of set options are pulled in", func(t *testing.T) {
		t.Parallel()
		// --- Arrange ---
		vals := Values{"record_odf": cty.True}

		// --- Act ---
		req, err := RecomputeRequirements(MethodGQI, vals)

		// --- Assert ---
		require.NoError(t, err)
		assert.True(t, req.Has("param0"))
		assert.False(t, req.Has("param1"))
	})

	t.Run("changing the method changes the answer", func(t *testing.T) {
		t.Parallel()
		vals := Values{"method": cty.StringVal("qsdr")}

		qsdr, err := RecomputeRequirements(MethodQSDR, vals)
		require.NoError(t, err)
		dsi, err := RecomputeRequirements(MethodDSI, vals)
		require.NoError(t, err)

		assert.True(t, qsdr.Has("param1"))
		assert.False(t, dsi.Has("param1"))
	})

	t.Run("unknown method", func(t *testing.T) {
		t.Parallel()
		_, err := RecomputeRequirements(Method("magic"), Values{})
		assert.ErrorIs(t, err, ErrInvalidOption)
	})
}

func TestMethodLegality(t *testing.T) {
	t.Parallel()
	gqi, ok := LookupMethod("gqi")
	require.True(t, ok)
	dti, ok := LookupMethod("dti")
	require.True(t, ok)

	assert.True(t, gqi.legal("r2_weighted"))
	assert.False(t, dti.legal("r2_weighted"))
	assert.True(t, dti.legal("mask"), "options outside every method's inputs stay legal")
	assert.False(t, gqi.legal("param1"))
}

func TestRequirementTableIsAcyclic(t *testing.T) {
	t.Parallel()
	for _, name := range OptionNames() {
		require.NoError(t, addRequires(ActionTrk, name, OptionSet{}), name)
	}
}

func TestRegionKindFlagName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "--roi", RegionROI.FlagName(0))
	assert.Equal(t, "--roi2", RegionROI.FlagName(1))
	assert.Equal(t, "--end2", RegionEnd.FlagName(1))
	assert.Equal(t, 2, RegionEnd.Cap())
	assert.Equal(t, 5, RegionTer.Cap())
}

func TestStem(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"/a/b/sub_dwi.fib.gz": "sub_dwi",
		"x.src.gz":            "x",
		"t1.nii":              "t1",
		"plain":               "plain",
		"dir/report.stat.txt": "report",
	}
	for in, want := range tests {
		assert.Equal(t, want, Stem(in), in)
	}
}
