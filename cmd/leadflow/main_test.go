package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ValidateCommand(t *testing.T) {
	before := runtime.GOMAXPROCS(0)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(welcomeWorkflow), 0o600))

	require.NoError(t, run(context.Background(), []string{"leadflow", "validate", "--workflows", good}))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
workflows:
  - id: broken
    name: Broken
    trigger:
      type: schedule
      source: "every tuesday"
    status: active
`), 0o600))

	err := run(context.Background(), []string{"leadflow", "validate", "--workflows", bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, before, runtime.GOMAXPROCS(0))
}
