package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leadflow/leadflow/pkg/config"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const welcomeWorkflow = `
workflows:
  - id: welcome
    name: Welcome
    trigger:
      type: form_submission
    actions:
      - id: tag
        type: add_tag
        config:
          tag: welcome
    status: active
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.DatabaseURL = "file://" + t.TempDir()
	cfg.Engine.DevLeads = true

	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	server, err := NewServer(context.Background(), slog.Default(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		assert.NoError(t, server.engine.Shutdown(ctx))
		assert.NoError(t, server.close(ctx))
	})

	return server
}

func doRequest(t *testing.T, server *Server, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.App().Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func TestServer_RootAndLiveness(t *testing.T) {
	server := newTestServer(t, testConfig(t))

	status, body := doRequest(t, server, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "LeadFlow API", string(body))

	status, body = doRequest(t, server, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", string(body))

	status, _ = doRequest(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_LoadsWorkflowFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "welcome.yaml"), []byte(welcomeWorkflow), 0o600))

	cfg := testConfig(t)
	cfg.Engine.WorkflowsPath = dir

	server := newTestServer(t, cfg)

	workflow, ok := server.engine.Workflow("welcome")
	require.True(t, ok)
	assert.Equal(t, models.WorkflowStatusActive, workflow.Status)

	// The definition was mirrored, so a fresh server over the same store
	// restores it without the file.
	restartCfg := testConfig(t)
	restartCfg.DatabaseURL = cfg.DatabaseURL

	restarted := newTestServer(t, restartCfg)

	_, ok = restarted.engine.Workflow("welcome")
	assert.True(t, ok)
}

func TestServer_LeadRoutesNeedDevLeads(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.DevLeads = false

	server := newTestServer(t, cfg)

	status, _ := doRequest(t, server, http.MethodPut, "/leads/L1", map[string]any{"email": "ana@example.com"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_TriggerUpdatesLead(t *testing.T) {
	server := newTestServer(t, testConfig(t))

	status, _ := doRequest(t, server, http.MethodPut, "/leads/L1", map[string]any{"email": "ana@example.com"})
	require.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, server, http.MethodPost, "/workflows", map[string]any{
		"id":      "nightly",
		"name":    "Nightly touch",
		"trigger": map[string]any{"type": "schedule", "source": "@every 1h"},
		"actions": []any{map[string]any{"id": "touch", "type": "update_field", "config": map[string]any{"field": "status", "value": "contacted"}}},
		"status":  "active",
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := doRequest(t, server, http.MethodPost, "/workflows/nightly/trigger", map[string]any{"lead_id": "L1"})
	require.Equal(t, http.StatusAccepted, status)

	var accepted models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &accepted))

	execution, ok := server.engine.Execution(accepted.ID)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshot, err := execution.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, snapshot.Status)

	lead, err := server.leads.GetLead(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "contacted", lead.Status)
}

func TestValidateWorkflows(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(welcomeWorkflow), 0o600))

	count, err := validateWorkflows(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(`
workflows:
  - id: broken
    name: Broken
    trigger:
      type: schedule
      source: "not a cron"
    actions:
      - id: tag
        type: add_tag
        config:
          tag: x
    status: active
`), 0o600))

	count, err = validateWorkflows(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `workflow "broken"`)
	assert.Equal(t, 1, count)

	count, err = validateWorkflows(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestServer_ReentryPolicyFromConfig(t *testing.T) {
	holdWorkflow := &models.WorkflowDefinition{
		ID:      "hold",
		Name:    "Hold",
		Trigger: models.Trigger{Type: models.TriggerFormSubmission},
		Status:  models.WorkflowStatusActive,
		Actions: []models.Action{
			{Type: models.ActionWait, Config: map[string]any{"duration": 1, "unit": "hours"}},
		},
		Settings: models.WorkflowSettings{MaxExecutionsPerLead: 1},
	}

	tests := []struct {
		policy     string
		secondCode models.ErrorCode
	}{
		{policy: "in_flight", secondCode: models.CodeMaxExecutions},
		{policy: "completed", secondCode: ""},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Engine.ReentryPolicy = tt.policy

			server := newTestServer(t, cfg)
			ctx := context.Background()

			require.NoError(t, server.engine.RegisterWorkflow(ctx, holdWorkflow))

			_, err := server.engine.TriggerWorkflow(ctx, "hold", "L1", nil)
			require.NoError(t, err)

			_, err = server.engine.TriggerWorkflow(ctx, "hold", "L1", nil)
			if tt.secondCode == "" {
				assert.NoError(t, err)

				return
			}

			assert.True(t, models.HasCode(err, tt.secondCode))
		})
	}
}

func TestNewServer_RejectsUnknownReentryPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.ReentryPolicy = "per_day"

	_, err := NewServer(context.Background(), slog.Default(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "per_day")
}
