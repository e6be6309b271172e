package integration_tests

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dsipipe/internal/app"
)

func TestPipeline_FanOutThenOrderedJoin(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	mod := &counterModule{}
	pipeline := `{
  "name": "letters",
  "data_dir": "/unused",
  "included_ids": ["a", "b", "c", "d"],
  "steps": ["Emit", "Upper", "Gather"]
}`
	a, _ := app.SetupAppTest(t, pipeline, app.Config{Workers: 4}, mod)

	// --- Act ---
	err := a.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, mod.gathered); diff != "" {
		t.Errorf("joined values mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, mod.Ran(), 9, "four Emit, four Upper and one Gather")
}

func TestPipeline_IterationFailureSkipsItsBranchAndTheJoin(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	mod := &counterModule{}
	pipeline := `{
  "name": "letters",
  "data_dir": "/unused",
  "included_ids": ["a", "bad", "c"],
  "steps": ["Emit", "Upper", "Gather"]
}`
	a, _ := app.SetupAppTest(t, pipeline, app.Config{Workers: 2}, mod)

	// --- Act ---
	err := a.Run(context.Background())

	// --- Assert ---
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Emit[1]")
	assert.Contains(t, err.Error(), `cannot emit "bad"`)
	ran := mod.Ran()
	assert.NotContains(t, ran, "Gather")
	assert.ElementsMatch(t, []string{"Emit", "Emit", "Emit", "Upper", "Upper"}, ran,
		"the other iterations still run to completion")
	assert.Nil(t, mod.gathered)
}

func TestPipeline_PlanShowsIterationsAndJoin(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	mod := &counterModule{}
	pipeline := `{"data_dir": "/unused", "included_ids": ["a", "b"], "steps": ["Emit", "Upper", "Gather"]}`
	a, _ := app.SetupAppTest(t, pipeline, app.Config{}, mod)

	// --- Act ---
	g, err := a.Assemble(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	var out bytes.Buffer
	app.WritePlan(&out, g)
	for _, id := range []string{"Emit[0]", "Emit[1]", "Upper[0]", "Upper[1]", "Gather (counter.Gather)"} {
		assert.Contains(t, out.String(), id)
	}
	gather, ok := g.Node("Gather")
	require.True(t, ok, "a join collapses the iteration")
	assert.Len(t, gather.Deps(), 2)
}

func TestPipeline_LoadsEveryConfigFormat(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"pipeline.hcl": `
data_dir     = "/unused"
included_ids = ["x", "y"]

step "Emit" {}
step "Upper" {}
step "Gather" {}
`,
		"pipeline.yaml": `
data_dir: /unused
included_ids: [x, y]
steps: [Emit, Upper, Gather]
`,
		"pipeline.json": `{"data_dir": "/unused", "included_ids": ["x", "y"], "steps": ["Emit", "Upper", "Gather"]}`,
	}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			cfg, err := app.NewConfig(app.Config{ConfigPath: path, Workers: 1, LogLevel: "error"})
			require.NoError(t, err)
			mod := &counterModule{}
			a, err := app.NewApp(&bytes.Buffer{}, cfg, mod)
			require.NoError(t, err)

			// --- Act ---
			err = a.Run(context.Background())

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, []string{"X", "Y"}, mod.gathered)
		})
	}
}
