package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/testutil"
)

// SetupAppTest writes pipeline into a temporary JSON file and creates an
// App for it with debug logging captured in the returned buffer. Fields of
// cfg left zero get test defaults.
func SetupAppTest(t *testing.T, pipeline string, cfg Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	cfg.ConfigPath = filepath.Join(t.TempDir(), "pipeline.json")
	if err := os.WriteFile(cfg.ConfigPath, []byte(pipeline), 0o644); err != nil {
		t.Fatalf("writing pipeline: %v", err)
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	cfg.LogLevel = "debug"
	checked, err := NewConfig(cfg)
	if err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	logBuffer := &testutil.SafeBuffer{}
	testApp, err := NewApp(logBuffer, checked, modules...)
	if err != nil {
		t.Fatalf("creating app: %v", err)
	}

	t.Cleanup(func() {
		if os.Getenv("DSIPIPE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return testApp, logBuffer
}
