package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leadflow/leadflow/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func runLoadConfig(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()

	var (
		cfg     *config.Config
		loadErr error
	)

	command := &cli.Command{
		Name:  "test",
		Flags: configFlags(),
		Action: func(_ context.Context, command *cli.Command) error {
			cfg, loadErr = loadConfig(command)

			return nil
		},
	}

	require.NoError(t, command.Run(context.Background(), append([]string{"test"}, args...)))

	return cfg, loadErr
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8000\ndatabase_url: file://./from-file\nlog:\n  level: warn\n  format: json\n"), 0o600))

	cfg, err := runLoadConfig(t, "--config", path, "--port", "7000", "--tracing")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "file://./from-file", cfg.DatabaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	_, err := runLoadConfig(t, "--event-bus", "rabbitmq")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadConfig_ReentryPolicy(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "completed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  reentry_policy: completed\n"), 0o600))

	cfg, err := runLoadConfig(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "completed", cfg.Engine.ReentryPolicy)

	path = filepath.Join(dir, "bogus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  reentry_policy: per_day\n"), 0o600))

	_, err = runLoadConfig(t, "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
