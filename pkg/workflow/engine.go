// Package workflow runs lead outreach workflows: it keeps the workflow
// registry, matches trigger events, enforces reentry limits and drives each
// execution through its actions.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/leadflow/leadflow/pkg/actions"
	"github.com/leadflow/leadflow/pkg/eventbus"
	"github.com/leadflow/leadflow/pkg/events"
	"github.com/leadflow/leadflow/pkg/log"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/otelhelper"
	"github.com/leadflow/leadflow/pkg/persistence"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Exit reasons recorded under ContextKeyExitReason.
const (
	ExitConditionsNotMet = "conditions_not_met"
	ExitConverted        = "converted"
	ExitCancelled        = "cancelled"
)

var (
	ErrEngineClosed      = errors.New("workflow engine is shut down")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrMissingLead       = errors.New("lead id is required")
)

// ReentryPolicy selects which prior executions count against
// MaxExecutionsPerLead.
type ReentryPolicy string

const (
	// ReentryCountInFlight counts pending, running and completed executions.
	// The check and the insert happen under one lock.
	ReentryCountInFlight ReentryPolicy = "in_flight"
	// ReentryCountCompleted counts completed executions only, so re-triggers
	// arriving while the first run is in flight are accepted.
	ReentryCountCompleted ReentryPolicy = "completed"
)

func ParseReentryPolicy(value string) (ReentryPolicy, error) {
	switch ReentryPolicy(value) {
	case ReentryCountInFlight, "":
		return ReentryCountInFlight, nil
	case ReentryCountCompleted:
		return ReentryCountCompleted, nil
	default:
		return "", fmt.Errorf("unknown reentry policy %q", value)
	}
}

type ActionExecutor interface {
	Execute(ctx context.Context, action models.Action, leadID string, execContext map[string]any) (map[string]any, error)
}

type ConditionEvaluator interface {
	Evaluate(ctx context.Context, conditions []models.Condition, leadID string, execContext map[string]any) (bool, error)
}

type LeadReader interface {
	GetLead(ctx context.Context, id string) (*models.Lead, error)
}

type Engine struct {
	mu        sync.RWMutex
	workflows map[string]*models.WorkflowDefinition
	store     *executionStore
	closed    bool

	executor   ActionExecutor
	conditions ConditionEvaluator
	leads      LeadReader
	matcher    *TriggerMatcher
	validate   *validator.Validate
	reentry    ReentryPolicy

	publisher     eventbus.EventPublisher
	workflowRepo  persistence.WorkflowRepository
	executionRepo persistence.ExecutionRepository

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Engine)

func WithReentryPolicy(policy ReentryPolicy) Option {
	return func(e *Engine) {
		e.reentry = policy
	}
}

// WithLeads enables exit-on-conversion checks.
func WithLeads(leads LeadReader) Option {
	return func(e *Engine) {
		e.leads = leads
	}
}

func WithEventPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

func WithWorkflowRepository(repo persistence.WorkflowRepository) Option {
	return func(e *Engine) {
		e.workflowRepo = repo
	}
}

func WithExecutionRepository(repo persistence.ExecutionRepository) Option {
	return func(e *Engine) {
		e.executionRepo = repo
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(executor ActionExecutor, evaluator ConditionEvaluator, opts ...Option) (*Engine, error) {
	store, err := newExecutionStore()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		workflows:  make(map[string]*models.WorkflowDefinition),
		store:      store,
		executor:   executor,
		conditions: evaluator,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		reentry:    ReentryCountInFlight,
		logger:     log.WithModule("workflow_engine"),
		tracer:     otelhelper.Tracer(),
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.matcher = NewTriggerMatcher(e.logger)

	return e, nil
}

func invalidWorkflow(def *models.WorkflowDefinition, err error) error {
	return models.WrapEngineError(models.CodeInvalidWorkflow, err, map[string]any{"workflow_id": def.ID})
}

// prepare validates a private copy of def and decodes its action specs.
func (e *Engine) prepare(def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if def == nil {
		return nil, models.NewEngineError(models.CodeInvalidWorkflow, "workflow definition is nil", nil)
	}

	workflow := *def
	workflow.Actions = append([]models.Action(nil), def.Actions...)
	workflow.Conditions = append([]models.Condition(nil), def.Conditions...)

	for i := range workflow.Actions {
		if workflow.Actions[i].ID == "" {
			workflow.Actions[i].ID = fmt.Sprintf("step-%d", i+1)
		}
	}

	if err := e.validate.Struct(&workflow); err != nil {
		return nil, invalidWorkflow(&workflow, err)
	}

	if workflow.Trigger.Type == models.TriggerSchedule {
		if _, err := cron.ParseStandard(workflow.Trigger.Source); err != nil {
			return nil, invalidWorkflow(&workflow, fmt.Errorf("invalid schedule %q: %w", workflow.Trigger.Source, err))
		}
	}

	if window := workflow.Settings.ExecutionWindow; window != nil {
		if _, err := windowLocation(window); err != nil {
			return nil, invalidWorkflow(&workflow, fmt.Errorf("invalid execution window timezone: %w", err))
		}

		if err := validateWindowDays(window); err != nil {
			return nil, invalidWorkflow(&workflow, err)
		}
	}

	if err := actions.PrepareWorkflow(&workflow); err != nil {
		return nil, err
	}

	now := e.now()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return &workflow, nil
}

// RegisterWorkflow inserts or replaces a workflow definition. Running
// executions keep the definition they started with.
func (e *Engine) RegisterWorkflow(ctx context.Context, def *models.WorkflowDefinition) error {
	workflow, err := e.prepare(def)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.workflows[workflow.ID] = workflow
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "workflow registered",
		"workflow_id", workflow.ID,
		"status", workflow.Status,
		"trigger_type", workflow.Trigger.Type,
		"actions", len(workflow.Actions))

	if e.workflowRepo != nil {
		mirrored := *workflow
		if err := e.workflowRepo.SaveWorkflow(context.WithoutCancel(ctx), &mirrored); err != nil {
			e.logger.ErrorContext(ctx, "failed to mirror workflow", "workflow_id", workflow.ID, "error", err)
		}
	}

	return nil
}

// RestoreWorkflows registers every workflow stored in the workflow repository.
func (e *Engine) RestoreWorkflows(ctx context.Context) (int, error) {
	if e.workflowRepo == nil {
		return 0, nil
	}

	stored, err := e.workflowRepo.Workflows(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load stored workflows: %w", err)
	}

	restored := 0

	for _, def := range stored {
		workflow, err := e.prepare(def)
		if err != nil {
			e.logger.WarnContext(ctx, "skipping stored workflow", "workflow_id", def.ID, "error", err)

			continue
		}

		e.mu.Lock()
		e.workflows[workflow.ID] = workflow
		e.mu.Unlock()

		restored++
	}

	return restored, nil
}

// Workflow returns a copy of the registered definition.
func (e *Engine) Workflow(id string) (*models.WorkflowDefinition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	workflow, ok := e.workflows[id]
	if !ok {
		return nil, false
	}

	out := *workflow

	return &out, true
}

// Workflows lists copies of every registered definition in id order.
func (e *Engine) Workflows() []*models.WorkflowDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*models.WorkflowDefinition, 0, len(e.workflows))
	for _, workflow := range e.workflows {
		copied := *workflow
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// countPrior counts the executions of workflowID for leadID that the reentry
// policy considers. Callers hold e.mu.
func (e *Engine) countPrior(workflowID, leadID string) int {
	count := 0

	for _, execution := range e.store.byWorkflowLead(workflowID, leadID) {
		switch status := execution.Status(); {
		case status == models.ExecutionStatusCompleted:
			count++
		case e.reentry == ReentryCountInFlight &&
			(status == models.ExecutionStatusPending || status == models.ExecutionStatusRunning):
			count++
		}
	}

	return count
}

// TriggerWorkflow starts workflowID for leadID and returns as soon as the
// execution is stored. Actions run on their own goroutine.
func (e *Engine) TriggerWorkflow(ctx context.Context, workflowID, leadID string, triggerData map[string]any) (*Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.trigger",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.LeadIDKey, leadID),
	)
	defer span.End()

	runCtx, cancel := context.WithCancel(trace.ContextWithSpanContext(e.ctx, span.SpanContext()))

	execution, workflow, err := e.admit(workflowID, leadID, triggerData, cancel)
	if err != nil {
		cancel()
		otelhelper.SetError(span, err)
		e.logger.InfoContext(ctx, "workflow trigger rejected",
			"workflow_id", workflowID,
			"lead_id", leadID,
			"code", models.ErrorCodeOf(err),
			"error", err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID()))

	e.mirror(ctx, execution.Snapshot())

	go e.run(runCtx, workflow, execution)

	return execution, nil
}

// admit runs the registry, status and reentry checks and stores a pending
// execution, all under the registry lock.
func (e *Engine) admit(workflowID, leadID string, triggerData map[string]any, cancel context.CancelFunc) (*Execution, *models.WorkflowDefinition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, nil, ErrEngineClosed
	}

	if leadID == "" {
		return nil, nil, ErrMissingLead
	}

	workflow, ok := e.workflows[workflowID]
	if !ok {
		return nil, nil, models.NewEngineError(models.CodeWorkflowNotFound,
			fmt.Sprintf("workflow %s not found", workflowID),
			map[string]any{"workflow_id": workflowID})
	}

	if !workflow.IsActive() {
		return nil, nil, models.NewEngineError(models.CodeWorkflowInactive,
			fmt.Sprintf("workflow %s is %s", workflowID, workflow.Status),
			map[string]any{"workflow_id": workflowID, "status": string(workflow.Status)})
	}

	if !workflow.Settings.AllowReentry {
		limit := workflow.Settings.MaxExecutions()
		if count := e.countPrior(workflowID, leadID); count >= limit {
			return nil, nil, models.NewEngineError(models.CodeMaxExecutions,
				fmt.Sprintf("lead %s reached %d executions of workflow %s", leadID, limit, workflowID),
				map[string]any{"workflow_id": workflowID, "lead_id": leadID, "count": count, "max": limit})
		}
	}

	execution := newExecution(uuid.NewString(), workflowID, leadID, len(workflow.Actions), models.CloneMap(triggerData), e.now())
	execution.cancel = cancel

	if err := e.store.insert(execution); err != nil {
		return nil, nil, err
	}

	e.wg.Add(1)

	return execution, workflow, nil
}

// Dispatch triggers every active workflow whose trigger matches event.
// Per-workflow rejections are logged and skipped.
func (e *Engine) Dispatch(ctx context.Context, event events.TriggerEvent) ([]*Execution, error) {
	if event.LeadID == "" {
		return nil, ErrMissingLead
	}

	matches := e.matcher.MatchWorkflows(event, e.Workflows())
	started := make([]*Execution, 0, len(matches))

	for _, match := range matches {
		execution, err := e.TriggerWorkflow(ctx, match.Workflow.ID, event.LeadID, event.Payload())
		if err != nil {
			if errors.Is(err, ErrEngineClosed) {
				return started, err
			}

			continue
		}

		started = append(started, execution)
	}

	return started, nil
}

// Execution returns the handle of an execution.
func (e *Engine) Execution(id string) (*Execution, bool) {
	return e.store.get(id)
}

// Executions returns snapshots of the executions of workflowID for leadID in
// start order.
func (e *Engine) Executions(workflowID, leadID string) []models.WorkflowExecution {
	handles := e.store.byWorkflowLead(workflowID, leadID)
	out := make([]models.WorkflowExecution, 0, len(handles))

	for _, handle := range handles {
		out = append(out, handle.Snapshot())
	}

	return out
}

// CancelExecution stops a pending or running execution.
func (e *Engine) CancelExecution(id string) error {
	execution, ok := e.store.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}

	if execution.cancel != nil {
		execution.cancel()
	}

	return nil
}

// Shutdown rejects new triggers, cancels every running execution and waits
// for their goroutines.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.cancel()

	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
