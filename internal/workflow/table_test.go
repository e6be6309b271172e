package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dsipipe/internal/config"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

type recordingStep struct {
	options map[string]cty.Value
}

func (s *recordingStep) Prepare(context.Context, registry.Inputs) (*registry.Plan, error) {
	return &registry.Plan{}, nil
}

func (s *recordingStep) Run(context.Context, registry.Inputs) (registry.Outputs, error) {
	return registry.Outputs{}, nil
}

type fakeModule struct{}

func (fakeModule) Register(b *registry.Builder) {
	newStep := func(_ string, opts map[string]cty.Value) (registry.Step, error) {
		return &recordingStep{options: opts}, nil
	}
	b.Register(&registry.StepType{
		Name: "Recon", Module: "fake",
		Inputs:  []string{"source"},
		Outputs: []string{"fiber_file"},
		Accepts: func(o string) bool { return o == "method" },
		New:     newStep,
	})
	b.Register(&registry.StepType{
		Name: "Track", Module: "fake",
		Inputs:      []string{"fib_file", "roi"},
		Outputs:     []string{"track"},
		Accepts:     func(o string) bool { return o == "tract_name" || o == "fiber_count" },
		Connections: map[string]registry.Source{"fib_file": {Key: "Recon", Field: "fiber_file"}},
		New:         newStep,
	})
}

func newRegistry(t *testing.T, aliases map[string]string) *registry.Registry {
	t.Helper()
	r, err := registry.New(aliases, fakeModule{})
	require.NoError(t, err)
	return r
}

func TestTable_Instantiate(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	model := &config.Model{Setup: map[string]cty.Value{"tract": cty.StringVal("cst")}}
	table := NewTable(newRegistry(t, nil), model)

	// --- Act ---
	inst, err := table.Instantiate(testutil.Context(), "fake.Track", "MyTrack", map[string]cty.Value{
		"tract_name":  cty.StringVal("tract"),
		"fiber_count": cty.NumberIntVal(5000),
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "Track", inst.Type.Name)
	assert.Equal(t, cty.StringVal("cst"), inst.Options["tract_name"], "setup field substituted")
	assert.Equal(t, map[string]registry.Source{"fib_file": {Key: "Recon", Field: "fiber_file"}}, inst.Connections)
	assert.Equal(t, inst.Options, inst.Step.(*recordingStep).options)

	got, ok := table.Lookup("MyTrack")
	require.True(t, ok)
	assert.Same(t, inst, got)
	assert.Len(t, table.OfType("fake.Track"), 1)
}

func TestTable_Instantiate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		stepType string
		options  map[string]cty.Value
		check    func(t *testing.T, err error)
	}{
		{
			name:     "unknown type carries the step name",
			stepType: "DSI_NOPE",
			check: func(t *testing.T, err error) {
				var unknown *registry.UnknownStepTypeError
				require.ErrorAs(t, err, &unknown)
				assert.Equal(t, "S", unknown.Step)
				assert.Equal(t, "DSI_NOPE", unknown.Type)
			},
		},
		{
			name:     "unknown option",
			stepType: "Track",
			options:  map[string]cty.Value{"bogus": cty.True},
			check: func(t *testing.T, err error) {
				var merge *MergeError
				require.ErrorAs(t, err, &merge)
				assert.Equal(t, "bogus", merge.Field)
				assert.ErrorIs(t, err, ErrInvalidMerge)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			table := NewTable(newRegistry(t, nil), &config.Model{})

			_, err := table.Instantiate(testutil.Context(), tc.stepType, "S", tc.options)

			require.Error(t, err)
			tc.check(t, err)
			_, registered := table.Lookup("S")
			assert.False(t, registered)
		})
	}
}

func TestTable_Instantiate_DuplicateName(t *testing.T) {
	t.Parallel()
	table := NewTable(newRegistry(t, nil), &config.Model{})
	_, err := table.Instantiate(testutil.Context(), "Recon", "Step", nil)
	require.NoError(t, err)

	_, err = table.Instantiate(testutil.Context(), "Track", "Step", nil)

	var dup *DuplicateStepNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "Recon", dup.ExistingType)
	assert.Equal(t, "Track", dup.Type)
	assert.ErrorIs(t, err, ErrDuplicateStepName)
}

func TestTable_OptionReplacesDefaultConnection(t *testing.T) {
	t.Parallel()
	table := NewTable(newRegistry(t, nil), &config.Model{})

	inst, err := table.Instantiate(testutil.Context(), "Track", "T", map[string]cty.Value{
		"fib_file": cty.StringVal("/data/subject.fib.gz"),
	})

	require.NoError(t, err)
	assert.Empty(t, inst.Connections)
}

func TestTable_Override(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		options   map[string]cty.Value
		overrides map[string]config.Connection
		want      map[string]registry.Source
		wantErr   string
	}{
		{
			name:      "explicit source replaces the default",
			overrides: map[string]config.Connection{"fib_file": {Key: "MyRecon", Field: "fiber_file"}},
			want:      map[string]registry.Source{"fib_file": {Key: "MyRecon", Field: "fiber_file"}},
		},
		{
			name:      "empty source suppresses the default",
			overrides: map[string]config.Connection{"fib_file": {Suppressed: true}},
			want:      map[string]registry.Source{},
		},
		{
			name:      "new connection is added",
			overrides: map[string]config.Connection{"roi": {Key: "setup", Field: "roi_file"}},
			want: map[string]registry.Source{
				"fib_file": {Key: "Recon", Field: "fiber_file"},
				"roi":      {Key: "setup", Field: "roi_file"},
			},
		},
		{
			name:      "connection to an unknown input",
			overrides: map[string]config.Connection{"nope": {Key: "Recon", Field: "fiber_file"}},
			wantErr:   "not an input",
		},
		{
			name:      "option and connection on one field",
			options:   map[string]cty.Value{"roi": cty.StringVal("A.nii.gz")},
			overrides: map[string]config.Connection{"roi": {Key: "setup", Field: "roi_file"}},
			wantErr:   "both as an option and as a connection",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			table := NewTable(newRegistry(t, nil), &config.Model{})
			inst, err := table.Instantiate(testutil.Context(), "Track", "T", tc.options)
			require.NoError(t, err)

			// --- Act ---
			err = table.Override("T", tc.overrides)

			// --- Assert ---
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, inst.Connections)
			for field := range tc.overrides {
				assert.True(t, inst.Explicit[field])
			}
		})
	}
}

func TestTable_OverrideDoesNotLeakIntoType(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t, nil)
	table := NewTable(reg, &config.Model{})
	_, err := table.Instantiate(testutil.Context(), "Track", "A", nil)
	require.NoError(t, err)
	require.NoError(t, table.Override("A", map[string]config.Connection{"fib_file": {Suppressed: true}}))

	b, err := table.Instantiate(testutil.Context(), "Track", "B", nil)

	require.NoError(t, err)
	assert.Contains(t, b.Connections, "fib_file")
	st, err := reg.Lookup("Track")
	require.NoError(t, err)
	assert.Contains(t, st.Connections, "fib_file")
}

func TestBuild_FromModel(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	model := &config.Model{
		Steps: []config.StepDecl{{Name: "R", Type: "recon"}, {Name: "T", Type: "Track"}},
		Methods: map[string]*config.StepMethod{
			"T": {
				Inputs:  map[string]cty.Value{"fiber_count": cty.NumberIntVal(100)},
				Connect: map[string]config.Connection{"fib_file": {Key: "R", Field: "fiber_file"}},
			},
		},
	}
	reg := newRegistry(t, map[string]string{"recon": "fake.Recon"})

	// --- Act ---
	table, err := Build(testutil.Context(), reg, model)

	// --- Assert ---
	require.NoError(t, err)
	insts := table.Instances()
	require.Len(t, insts, 2)
	assert.Equal(t, "R", insts[0].Name)
	assert.Equal(t, "Recon", insts[0].Type.Name)
	assert.Equal(t, registry.Source{Key: "R", Field: "fiber_file"}, insts[1].Connections["fib_file"])
	assert.Equal(t, []string{"fib_file"}, insts[1].ConnectedFields())
}

func TestTable_OverrideOnTypeWithoutDefaults(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	table := NewTable(newRegistry(t, nil), &config.Model{})
	inst, err := table.Instantiate(testutil.Context(), "Recon", "R", nil)
	require.NoError(t, err)

	// --- Act ---
	var overrideErr error
	require.NotPanics(t, func() {
		overrideErr = table.Override("R", map[string]config.Connection{"source": {Key: "setup", Field: "src"}})
	})

	// --- Assert ---
	require.NoError(t, overrideErr)
	assert.Equal(t, map[string]registry.Source{"source": {Key: "setup", Field: "src"}}, inst.Connections)
}
