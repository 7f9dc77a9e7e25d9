// Package actions executes workflow steps: channel sends through the provider
// registry, lead mutations, waits and outbound webhooks.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leadflow/leadflow/pkg/log"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/otelhelper"
	"github.com/leadflow/leadflow/pkg/providers"
	"github.com/leadflow/leadflow/pkg/template"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultWebhookTimeout = 30 * time.Second

// LeadStore is the lead access the executor needs.
type LeadStore interface {
	GetLead(ctx context.Context, id string) (*models.Lead, error)
	UpdateLead(ctx context.Context, id string, fields map[string]any) (*models.Lead, error)
}

// ActivityRecorder persists audit entries for created tasks.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, activity models.Activity) error
}

// Executor runs a single action for a lead.
type Executor struct {
	providers  *providers.Registry
	leads      LeadStore
	activities ActivityRecorder
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Executor)

func WithActivityRecorder(recorder ActivityRecorder) Option {
	return func(e *Executor) {
		e.activities = recorder
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		e.httpClient = client
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

func NewExecutor(registry *providers.Registry, leads LeadStore, opts ...Option) *Executor {
	if registry == nil {
		registry = providers.NewRegistry()
	}

	e := &Executor{
		providers:  registry,
		leads:      leads,
		httpClient: &http.Client{},
		logger:     log.WithModule("actions"),
		tracer:     otelhelper.Tracer(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs action for leadID and returns the step output recorded in the
// execution context. Failures are *models.EngineError unless they come from
// context cancellation or the lead store.
func (e *Executor) Execute(ctx context.Context, action models.Action, leadID string, execContext map[string]any) (map[string]any, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "action.execute",
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
		attribute.String(otelhelper.LeadIDKey, leadID),
	)
	defer span.End()

	spec := action.Spec
	if spec == nil {
		decoded, err := DecodeSpec(action)
		if err != nil {
			err = models.WrapEngineError(models.CodeInvalidWorkflow, err, map[string]any{"action_id": action.ID})
			otelhelper.SetError(span, err)

			return nil, err
		}

		spec = decoded
	}

	output, err := e.execute(ctx, action, spec, leadID, execContext)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return output, nil
}

func (e *Executor) execute(ctx context.Context, action models.Action, spec models.ActionSpec, leadID string, execContext map[string]any) (map[string]any, error) {
	logger := e.logger.With("action_id", action.ID, "action_type", action.Type, "lead_id", leadID)

	switch s := spec.(type) {
	case models.EmailSpec, models.SMSSpec, models.WhatsAppSpec:
		return e.send(ctx, action, spec, leadID, execContext)
	case models.TagSpec:
		logger.InfoContext(ctx, "tag change requested", "tag", s.Tag)

		return map[string]any{"tag": s.Tag, "operation": string(s.Kind)}, nil
	case models.SegmentSpec:
		logger.InfoContext(ctx, "segment change requested", "segment", s.Segment)

		return map[string]any{"segment": s.Segment, "operation": string(s.Kind)}, nil
	case models.UpdateFieldSpec:
		return e.updateField(ctx, s, leadID, execContext)
	case models.CreateTaskSpec:
		return e.createTask(ctx, logger, s, leadID, execContext)
	case models.WaitSpec:
		return e.wait(ctx, s)
	case models.WebhookSpec:
		return e.webhook(ctx, logger, s, leadID, execContext)
	default:
		logger.WarnContext(ctx, "unknown action type, skipping")

		return map[string]any{"skipped": true}, nil
	}
}

func (e *Executor) send(ctx context.Context, action models.Action, spec models.ActionSpec, leadID string, execContext map[string]any) (map[string]any, error) {
	channel := action.Type.Channel()

	provider, ok := e.providers.Get(channel)
	if !ok {
		return nil, models.NewEngineError(models.CodeProviderNotFound,
			fmt.Sprintf("no provider registered for channel %q", channel),
			map[string]any{"action_id": action.ID, "channel": channel})
	}

	result, err := provider.Send(ctx, spec, leadID, execContext)
	if err != nil {
		return nil, err
	}

	return result.Output(), nil
}

func (e *Executor) updateField(ctx context.Context, spec models.UpdateFieldSpec, leadID string, execContext map[string]any) (map[string]any, error) {
	value := spec.Value

	if str, ok := value.(string); ok && template.NeedsTemplating(str) {
		rendered, err := template.Render(str, template.Data(e.lead(ctx, leadID), execContext))
		if err != nil {
			return nil, fmt.Errorf("failed to render field value: %w", err)
		}

		value = rendered
	}

	if _, err := e.leads.UpdateLead(ctx, leadID, map[string]any{spec.Field: value}); err != nil {
		return nil, fmt.Errorf("failed to update lead %s: %w", leadID, err)
	}

	return map[string]any{"field": spec.Field, "value": value}, nil
}

func (e *Executor) createTask(ctx context.Context, logger *slog.Logger, spec models.CreateTaskSpec, leadID string, execContext map[string]any) (map[string]any, error) {
	title, err := template.RenderString(spec.Title, template.Data(e.lead(ctx, leadID), execContext))
	if err != nil {
		return nil, fmt.Errorf("failed to render task title: %w", err)
	}

	assignee := spec.Assignee
	if assignee == "" {
		assignee = "system"
	}

	now := e.now()
	output := map[string]any{"title": title, "assignee": assignee}

	if spec.DueInHours > 0 {
		output["due_at"] = now.Add(time.Duration(spec.DueInHours) * time.Hour).Format(time.RFC3339)
	}

	if e.activities == nil {
		logger.InfoContext(ctx, "task created", "title", title, "assignee", assignee)

		return output, nil
	}

	activity := models.Activity{
		ID:          uuid.NewString(),
		UserID:      assignee,
		ActionType:  "task_created",
		TargetType:  "lead",
		TargetID:    leadID,
		Description: strings.TrimSpace(title + "\n" + spec.Description),
		Timestamp:   now,
	}

	if err := e.activities.RecordActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("failed to record task: %w", err)
	}

	output["activity_id"] = activity.ID

	return output, nil
}

func (e *Executor) wait(ctx context.Context, spec models.WaitSpec) (map[string]any, error) {
	length, err := spec.Length()
	if err != nil {
		return nil, models.WrapEngineError(models.CodeInvalidWorkflow, err, nil)
	}

	if err := Sleep(ctx, length); err != nil {
		return nil, err
	}

	return map[string]any{"waited_ms": length.Milliseconds()}, nil
}

func (e *Executor) webhook(ctx context.Context, logger *slog.Logger, spec models.WebhookSpec, leadID string, execContext map[string]any) (map[string]any, error) {
	data := template.Data(e.lead(ctx, leadID), execContext)

	url, err := template.RenderString(spec.URL, data)
	if err != nil {
		return nil, webhookError(spec, err, 0)
	}

	var body io.Reader

	if spec.Body != nil {
		payload, err := webhookBody(spec.Body, data)
		if err != nil {
			return nil, webhookError(spec, err, 0)
		}

		body = bytes.NewReader(payload)
	}

	timeout := defaultWebhookTimeout
	if spec.TimeoutSeconds > 0 {
		timeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := spec.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return nil, webhookError(spec, err, 0)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range spec.Headers {
		rendered, err := template.RenderString(v, data)
		if err != nil {
			return nil, webhookError(spec, err, 0)
		}

		req.Header.Set(k, rendered)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, webhookError(spec, err, 0)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, webhookError(spec, err, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, webhookError(spec, fmt.Errorf("unexpected status %d", resp.StatusCode), resp.StatusCode)
	}

	output := map[string]any{"status_code": resp.StatusCode}

	var parsed any
	if len(raw) > 0 && json.Unmarshal(raw, &parsed) == nil {
		output["body"] = parsed
	} else if len(raw) > 0 {
		output["body"] = string(raw)
	}

	return output, nil
}

func webhookBody(body any, data map[string]any) ([]byte, error) {
	if str, ok := body.(string); ok {
		rendered, err := template.RenderString(str, data)
		if err != nil {
			return nil, err
		}

		return []byte(rendered), nil
	}

	rendered, err := template.RenderValue(body, data)
	if err != nil {
		return nil, err
	}

	return json.Marshal(rendered)
}

func webhookError(spec models.WebhookSpec, err error, status int) error {
	e := models.WrapEngineError(models.CodeWebhookError, err, map[string]any{"url": spec.URL})
	if status > 0 {
		e.WithContext("status_code", status)
	}

	return e
}

// lead loads the lead for templating; a missing lead renders as empty.
func (e *Executor) lead(ctx context.Context, leadID string) *models.Lead {
	if e.leads == nil {
		return nil
	}

	lead, err := e.leads.GetLead(ctx, leadID)
	if err != nil {
		e.logger.DebugContext(ctx, "lead not available for templating", "lead_id", leadID, "error", err)

		return nil
	}

	return lead
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
