package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RunLifecycle(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := context.Background()
	s := openStore(t)

	// --- Act ---
	id, err := s.CreateRun(ctx, &Run{Pipeline: "tracts", ConfigPath: "/cfg/tracts.json"})
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, id, RunStatusFailed, errors.New("MyTrack: boom")))
	second, err := s.CreateRun(ctx, &Run{Pipeline: "tbss", ConfigPath: "/cfg/tbss.json"})
	require.NoError(t, err)

	// --- Assert ---
	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, RunStatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].CompletedAt)
	assert.Equal(t, RunStatusFailed, runs[1].Status)
	assert.Equal(t, "MyTrack: boom", runs[1].Error)
	assert.NotNil(t, runs[1].CompletedAt)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tbss", latest.Pipeline)
}

func TestStore_StepLifecycle(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	ctx := context.Background()
	s := openStore(t)
	runID, err := s.CreateRun(ctx, &Run{Pipeline: "p", ConfigPath: "c"})
	require.NoError(t, err)

	// --- Act ---
	_, err = s.StartStep(ctx, &StepExecution{
		RunID: runID, Node: "MyTrack[0]", Step: "MyTrack", StepType: "DSI_TRK",
		Command: []string{"dsi_studio", "--action=trk"},
	})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStepPID(ctx, runID, "MyTrack[0]", 4242))
	require.NoError(t, s.UpdateStepExitCode(ctx, runID, "MyTrack[0]", 0))
	require.NoError(t, s.FinishStep(ctx, &StepExecution{
		RunID: runID, Node: "MyTrack[0]", Step: "MyTrack", StepType: "DSI_TRK",
		Status: StepStatusComplete, Outputs: map[string]any{"track": "/out/cst.trk.gz"},
	}))
	require.NoError(t, s.FinishStep(ctx, &StepExecution{
		RunID: runID, Node: "Stats", Step: "Stats", StepType: "DSI_ANA",
		Status: StepStatusSkipped, Error: "skipped due to upstream failure",
	}))

	// --- Assert ---
	steps, err := s.Steps(ctx, runID)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	trk := steps[0]
	assert.Equal(t, StepStatusComplete, trk.Status)
	assert.Equal(t, []string{"dsi_studio", "--action=trk"}, trk.Command)
	require.NotNil(t, trk.PID)
	assert.Equal(t, 4242, *trk.PID)
	require.NotNil(t, trk.ExitCode)
	assert.Equal(t, 0, *trk.ExitCode)
	assert.Equal(t, map[string]any{"track": "/out/cst.trk.gz"}, trk.Outputs)
	assert.NotNil(t, trk.StartedAt)

	skipped := steps[1]
	assert.Equal(t, StepStatusSkipped, skipped.Status)
	assert.Nil(t, skipped.StartedAt)
	assert.Nil(t, skipped.ExitCode)
	assert.Contains(t, skipped.Error, "upstream")
}

func TestStore_LatestRun_Empty(t *testing.T) {
	t.Parallel()
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.LatestRun(context.Background())

	assert.ErrorIs(t, err, ErrNoRuns)
}
