package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/leadflow/leadflow/pkg/actions"
	"github.com/leadflow/leadflow/pkg/behavior"
	"github.com/leadflow/leadflow/pkg/compliance"
	"github.com/leadflow/leadflow/pkg/conditions"
	"github.com/leadflow/leadflow/pkg/eventbus"
	"github.com/leadflow/leadflow/pkg/events"
	"github.com/leadflow/leadflow/pkg/gateway"
	"github.com/leadflow/leadflow/pkg/leads"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/providers"
	"github.com/leadflow/leadflow/pkg/web"
	"github.com/leadflow/leadflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	appSecret   = "app-secret"
	verifyToken = "verify-me"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) published() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]eventbus.Event(nil), p.events...)
}

type testEnv struct {
	app       *fiber.App
	engine    *workflow.Engine
	leads     *leads.MemoryStore
	gate      *compliance.Gate
	publisher *recordingPublisher
}

func setupTestApp(t *testing.T, opts ...web.Option) *testEnv {
	t.Helper()

	store := leads.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &models.Lead{
		ID:        "L1",
		Email:     "ana@example.com",
		Phone:     "+55 11 99999-0001",
		FirstName: "Ana",
	}))

	engine, err := workflow.NewEngine(actions.NewExecutor(providers.NewRegistry(), store), conditions.NewEvaluator(store))
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = engine.Shutdown(ctx)
	})

	gate, err := compliance.NewGate(compliance.NewMemoryStore(), compliance.Config{Timezone: "UTC"})
	require.NoError(t, err)

	client, err := gateway.NewClient(gateway.Config{
		PhoneNumberID:      "pn-1",
		BusinessAccountID:  "ba-1",
		AccessToken:        "token",
		WebhookVerifyToken: verifyToken,
		AppSecret:          appSecret,
	})
	require.NoError(t, err)

	publisher := &recordingPublisher{}

	handlers := web.NewAPIHandlers(engine, validator.New(validator.WithRequiredStructEnabled()),
		append([]web.Option{
			web.WithBehaviorTracker(behavior.NewTracker(engine)),
			web.WithLeadStore(store),
			web.WithConsent(gate),
			web.WithWhatsAppWebhook(client, publisher, []string{"STOP", "SAIR"}),
		}, opts...)...)

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return &testEnv{app: app, engine: engine, leads: store, gate: gate, publisher: publisher}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := e.app.Test(req)
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

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(data, &out))

	return out
}

func tagWorkflow(id string) map[string]any {
	return map[string]any{
		"id":      id,
		"name":    "Welcome " + id,
		"trigger": map[string]any{"type": "form_submission", "source": "landing-*"},
		"actions": []any{
			map[string]any{"id": "a1", "type": "add_tag", "config": map[string]any{"tag": "welcome"}},
		},
		"settings": map[string]any{"max_executions_per_lead": 1},
		"status":   "active",
	}
}

func waitFor(t *testing.T, env *testEnv, id string) models.WorkflowExecution {
	t.Helper()

	execution, ok := env.engine.Execution(id)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshot, err := execution.Wait(ctx)
	require.NoError(t, err)

	return snapshot
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := setupTestApp(t, web.WithHealthChecker("store", func(context.Context) error { return nil }))

		status, body := env.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, status)

		result := decode[map[string]any](t, body)
		assert.Equal(t, "healthy", result["status"])
		assert.Equal(t, "ok", result["checkers"].(map[string]any)["store"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		env := setupTestApp(t, web.WithHealthChecker("database", func(context.Context) error {
			return errors.New("connection refused")
		}))

		status, body := env.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "connection refused", decode[map[string]any](t, body)["checkers"].(map[string]any)["database"])
	})
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "successful registration",
			requestBody:    tagWorkflow("wf1"),
			expectedStatus: http.StatusCreated,
		},
		{
			name: "invalid action config",
			requestBody: map[string]any{
				"id":      "wf-bad",
				"name":    "Bad",
				"trigger": map[string]any{"type": "form_submission"},
				"actions": []any{map[string]any{"id": "e1", "type": "send_email", "config": map[string]any{"body": "hi"}}},
				"status":  "active",
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedType:   string(models.CodeInvalidWorkflow),
		},
		{
			name:           "malformed json",
			requestBody:    []byte("{not json"),
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)

			status, body := env.do(t, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status)

			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, decode[map[string]any](t, body)["type"])

				return
			}

			created := decode[models.WorkflowDefinition](t, body)
			assert.Equal(t, "wf1", created.ID)
			assert.Equal(t, models.WorkflowStatusActive, created.Status)
			assert.False(t, created.CreatedAt.IsZero())
		})
	}
}

func TestAPIHandlers_GetWorkflows(t *testing.T) {
	env := setupTestApp(t)

	status, _ := env.do(t, http.MethodGet, "/workflows/wf1", nil)
	assert.Equal(t, http.StatusNotFound, status)

	for _, id := range []string{"wf2", "wf1"} {
		status, _ := env.do(t, http.MethodPost, "/workflows", tagWorkflow(id))
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := env.do(t, http.MethodGet, "/workflows", nil)
	require.Equal(t, http.StatusOK, status)

	list := decode[struct {
		Workflows  []models.WorkflowDefinition `json:"workflows"`
		TotalCount int                         `json:"total_count"`
	}](t, body)
	assert.Equal(t, 2, list.TotalCount)
	assert.Equal(t, "wf1", list.Workflows[0].ID)

	status, body = env.do(t, http.MethodGet, "/workflows?status=paused", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 0, decode[map[string]any](t, body)["total_count"], 0)

	status, body = env.do(t, http.MethodGet, "/workflows/wf2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Welcome wf2", decode[models.WorkflowDefinition](t, body).Name)
}

func TestAPIHandlers_TriggerWorkflow(t *testing.T) {
	env := setupTestApp(t)

	status, _ := env.do(t, http.MethodPost, "/workflows", tagWorkflow("wf1"))
	require.Equal(t, http.StatusCreated, status)

	status, body := env.do(t, http.MethodPost, "/workflows/wf1/trigger", web.TriggerWorkflowRequest{
		LeadID: "L1",
		Data:   map[string]any{"campaign": "spring"},
	})
	require.Equal(t, http.StatusAccepted, status)

	accepted := decode[models.WorkflowExecution](t, body)
	assert.Equal(t, "wf1", accepted.WorkflowID)
	assert.Equal(t, "L1", accepted.LeadID)
	assert.Equal(t, 1, accepted.TotalSteps)

	snapshot := waitFor(t, env, accepted.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, snapshot.Status)

	status, body = env.do(t, http.MethodGet, "/executions/"+accepted.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.ExecutionStatusCompleted, decode[models.WorkflowExecution](t, body).Status)

	status, body = env.do(t, http.MethodGet, "/workflows/wf1/leads/L1/executions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decode[web.ExecutionsResponse](t, body).Count)

	status, body = env.do(t, http.MethodPost, "/workflows/wf1/trigger", web.TriggerWorkflowRequest{LeadID: "L1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(models.CodeMaxExecutions), decode[map[string]any](t, body)["type"])

	status, body = env.do(t, http.MethodPost, "/workflows/missing/trigger", web.TriggerWorkflowRequest{LeadID: "L1"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(models.CodeWorkflowNotFound), decode[map[string]any](t, body)["type"])

	status, _ = env.do(t, http.MethodPost, "/workflows/wf1/trigger", map[string]any{"data": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/executions/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_DispatchEvent(t *testing.T) {
	env := setupTestApp(t)

	status, _ := env.do(t, http.MethodPost, "/workflows", tagWorkflow("wf1"))
	require.Equal(t, http.StatusCreated, status)

	status, body := env.do(t, http.MethodPost, "/events", web.DispatchEventRequest{
		Type:   models.TriggerFormSubmission,
		Source: "landing-pricing",
		LeadID: "L1",
		Data:   map[string]any{"form": "demo"},
	})
	require.Equal(t, http.StatusAccepted, status)

	response := decode[web.ExecutionsResponse](t, body)
	require.Equal(t, 1, response.Count)
	assert.Equal(t, "wf1", response.Executions[0].WorkflowID)

	status, body = env.do(t, http.MethodPost, "/events", web.DispatchEventRequest{
		Type:   models.TriggerFormSubmission,
		Source: "blog",
		LeadID: "L1",
	})
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, 0, decode[web.ExecutionsResponse](t, body).Count)

	status, _ = env.do(t, http.MethodPost, "/events", map[string]any{"type": "telepathy", "lead_id": "L1"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_TrackBehavior(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, http.MethodPost, "/behaviors", web.TrackBehaviorRequest{
		LeadID: "L1",
		Type:   models.BehaviorEmailOpen,
		Source: "newsletter",
	})
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, 0, decode[web.ExecutionsResponse](t, body).Count)

	status, body = env.do(t, http.MethodGet, "/leads/L1/behaviors", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, decode[map[string]any](t, body)["total_count"], 0)

	status, body = env.do(t, http.MethodPost, "/behaviors", web.TrackBehaviorRequest{LeadID: "L1", Type: "sneeze"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_behavior", decode[map[string]any](t, body)["type"])
}

func TestAPIHandlers_Leads(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, http.MethodPut, "/leads/L2", web.LeadRequest{
		Email:     "bo@example.com",
		FirstName: "Bo",
		Score:     42,
		Fields:    map[string]any{"company": "Acme"},
	})
	require.Equal(t, http.StatusOK, status)

	lead := decode[models.Lead](t, body)
	assert.Equal(t, "L2", lead.ID)
	assert.InDelta(t, 42, lead.Score, 0)

	status, body = env.do(t, http.MethodGet, "/leads/L2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Acme", decode[models.Lead](t, body).Fields["company"])

	status, _ = env.do(t, http.MethodPut, "/leads/L3", web.LeadRequest{Email: "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/leads/L9", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "lead_not_found", decode[map[string]any](t, body)["type"])
}

func TestAPIHandlers_Consent(t *testing.T) {
	env := setupTestApp(t)

	status, _ := env.do(t, http.MethodGet, "/consent/5511999990001", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body := env.do(t, http.MethodPost, "/consent/5511999990001/opt-in", web.ConsentRequest{Method: "form"})
	require.Equal(t, http.StatusOK, status)

	record := decode[models.ConsentRecord](t, body)
	assert.True(t, record.OptedIn)
	assert.Equal(t, "form", record.Method)

	status, body = env.do(t, http.MethodPost, "/consent/5511999990001/opt-out", nil)
	require.Equal(t, http.StatusOK, status)

	record = decode[models.ConsentRecord](t, body)
	assert.True(t, record.OptedOut)
	assert.False(t, record.OptedIn)
	assert.Equal(t, "api", record.Method)
}

func TestAPIHandlers_WhatsAppHandshake(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token="+verifyToken+"&hub.challenge=12345", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "12345", string(body))

	status, _ = env.do(t, http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func inboundDelivery(text string) []byte {
	return []byte(`{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "ba-1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550000000", "phone_number_id": "pn-1"},
        "contacts": [{"profile": {"name": "Ana"}, "wa_id": "5511999990001"}],
        "messages": [{
          "from": "5511999990001",
          "id": "wamid.1",
          "timestamp": "1714658400",
          "type": "text",
          "text": {"body": "` + text + `"}
        }],
        "statuses": [{"id": "wamid.0", "status": "delivered", "timestamp": "1714658300", "recipient_id": "5511999990001"}]
      }
    }]
  }]
}`)
}

func TestAPIHandlers_WhatsAppWebhook(t *testing.T) {
	t.Run("rejects bad signature before parsing", func(t *testing.T) {
		env := setupTestApp(t)
		body := inboundDelivery("hello")

		status, _ := env.do(t, http.MethodPost, "/webhooks/whatsapp", body, gateway.SignatureHeader, "sha256=deadbeef")
		assert.Equal(t, http.StatusUnauthorized, status)

		status, _ = env.do(t, http.MethodPost, "/webhooks/whatsapp", []byte("{garbage"))
		assert.Equal(t, http.StatusUnauthorized, status)

		assert.Empty(t, env.publisher.published())
	})

	t.Run("opt-out keyword", func(t *testing.T) {
		env := setupTestApp(t)
		body := inboundDelivery(" stop ")

		status, respBody := env.do(t, http.MethodPost, "/webhooks/whatsapp", body, gateway.SignatureHeader, gateway.Sign(body, appSecret))
		require.Equal(t, http.StatusOK, status)

		ack := decode[web.WebhookResponse](t, respBody)
		assert.Equal(t, 1, ack.Messages)
		assert.Equal(t, 1, ack.Statuses)

		record, err := env.gate.Consent(context.Background(), "5511999990001")
		require.NoError(t, err)
		assert.True(t, record.OptedOut)
		assert.Equal(t, "keyword", record.Method)
		require.NotNil(t, record.LastInboundAt)
		assert.Equal(t, time.Unix(1714658400, 0).UTC(), record.LastInboundAt.UTC())

		published := env.publisher.published()
		require.Len(t, published, 2)

		received, ok := published[0].(events.MessageReceived)
		require.True(t, ok)
		assert.Equal(t, "wamid.1", received.MessageID)
		assert.Equal(t, "Ana", received.Name)
		assert.True(t, received.OptOut)

		assert.Equal(t, events.MessageStatusEvent, published[1].GetType())
	})
}
