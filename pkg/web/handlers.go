// Package web provides HTTP handlers for workflow management, event intake and
// the messaging gateway webhook.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/leadflow/leadflow/pkg/eventbus"
	"github.com/leadflow/leadflow/pkg/events"
	"github.com/leadflow/leadflow/pkg/log"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/workflow"
)

type Engine interface {
	RegisterWorkflow(ctx context.Context, def *models.WorkflowDefinition) error
	Workflow(id string) (*models.WorkflowDefinition, bool)
	Workflows() []*models.WorkflowDefinition
	TriggerWorkflow(ctx context.Context, workflowID, leadID string, triggerData map[string]any) (*workflow.Execution, error)
	Dispatch(ctx context.Context, event events.TriggerEvent) ([]*workflow.Execution, error)
	Execution(id string) (*workflow.Execution, bool)
	Executions(workflowID, leadID string) []models.WorkflowExecution
}

type BehaviorTracker interface {
	Track(ctx context.Context, behavior models.LeadBehavior) ([]*workflow.Execution, error)
	Behaviors(leadID string) []models.LeadBehavior
}

type LeadStore interface {
	Save(ctx context.Context, lead *models.Lead) error
	GetLead(ctx context.Context, id string) (*models.Lead, error)
}

type ConsentRecorder interface {
	RecordOptIn(ctx context.Context, phone, method string) error
	RecordOptOut(ctx context.Context, phone, method string) error
	RecordInbound(ctx context.Context, phone string, at time.Time) error
	Consent(ctx context.Context, phone string) (*models.ConsentRecord, error)
}

// WebhookVerifier authenticates gateway webhook traffic.
type WebhookVerifier interface {
	VerifyHandshake(mode, token, challenge string) (string, error)
	VerifySignature(body []byte, header string) error
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker func(ctx context.Context) error

type APIHandlers struct {
	engine         Engine
	validator      *validator.Validate
	tracker        BehaviorTracker
	leads          LeadStore
	consent        ConsentRecorder
	webhook        WebhookVerifier
	publisher      eventbus.EventPublisher
	checkers       map[string]HealthChecker
	optOutKeywords []string
	logger         *slog.Logger
}

type Option func(*APIHandlers)

func WithBehaviorTracker(tracker BehaviorTracker) Option {
	return func(h *APIHandlers) {
		h.tracker = tracker
	}
}

func WithLeadStore(store LeadStore) Option {
	return func(h *APIHandlers) {
		h.leads = store
	}
}

func WithConsent(consent ConsentRecorder) Option {
	return func(h *APIHandlers) {
		h.consent = consent
	}
}

// WithWhatsAppWebhook enables the gateway webhook endpoints.
func WithWhatsAppWebhook(verifier WebhookVerifier, publisher eventbus.EventPublisher, optOutKeywords []string) Option {
	return func(h *APIHandlers) {
		h.webhook = verifier
		h.publisher = publisher
		h.optOutKeywords = optOutKeywords
	}
}

func WithHealthChecker(name string, checker HealthChecker) Option {
	return func(h *APIHandlers) {
		h.checkers[name] = checker
	}
}

func NewAPIHandlers(engine Engine, validator *validator.Validate, opts ...Option) *APIHandlers {
	h := &APIHandlers{
		engine:    engine,
		validator: validator,
		checkers:  make(map[string]HealthChecker),
		logger:    log.WithModule("web"),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// RegisterRoutes mounts every enabled endpoint on router.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Post("/:id/trigger", h.TriggerWorkflow)
	w.Get("/:id/leads/:leadId/executions", h.GetLeadExecutions)

	router.Post("/events", h.DispatchEvent)
	router.Get("/executions/:id", h.GetExecution)

	if h.tracker != nil {
		router.Post("/behaviors", h.TrackBehavior)
		router.Get("/leads/:id/behaviors", h.GetBehaviors)
	}

	if h.leads != nil {
		router.Put("/leads/:id", h.PutLead)
		router.Get("/leads/:id", h.GetLead)
	}

	if h.consent != nil {
		router.Get("/consent/:phone", h.GetConsent)
		router.Post("/consent/:phone/opt-in", h.OptIn)
		router.Post("/consent/:phone/opt-out", h.OptOut)
	}

	if h.webhook != nil {
		router.Get("/webhooks/whatsapp", h.VerifyWhatsAppWebhook)
		router.Post("/webhooks/whatsapp", h.ReceiveWhatsAppWebhook)
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	checks := fiber.Map{}
	healthy := true

	for name, check := range h.checkers {
		if err := check(c.Context()); err != nil {
			healthy = false
			checks[name] = err.Error()

			continue
		}

		checks[name] = "ok"
	}

	status := "unhealthy"
	message := "LeadFlow API is unhealthy"
	httpStatus := http.StatusServiceUnavailable

	if healthy {
		status = "healthy"
		message = "LeadFlow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"checkers":  checks,
		"workflows": len(h.engine.Workflows()),
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows := h.engine.Workflows()

	if status := c.Query("status"); status != "" {
		filtered := workflows[:0]

		for _, workflow := range workflows {
			if string(workflow.Status) == status {
				filtered = append(filtered, workflow)
			}
		}

		workflows = filtered
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, ok := h.engine.Workflow(c.Params("id"))
	if !ok {
		return notFound(c, "Workflow not found")
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var def models.WorkflowDefinition
	if err := c.Bind().JSON(&def); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.engine.RegisterWorkflow(c.Context(), &def); err != nil {
		return handleError(c, err)
	}

	registered, ok := h.engine.Workflow(def.ID)
	if !ok {
		return notFound(c, "Workflow not found")
	}

	return c.Status(fiber.StatusCreated).JSON(registered)
}

func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	var req TriggerWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	data := req.Data
	if data == nil {
		data = map[string]any{}
	}

	data["type"] = string(models.TriggerManual)

	execution, err := h.engine.TriggerWorkflow(c.Context(), c.Params("id"), req.LeadID, data)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution.Snapshot())
}

func (h *APIHandlers) DispatchEvent(c fiber.Ctx) error {
	var req DispatchEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executions, err := h.engine.Dispatch(c.Context(), events.NewTriggerEvent(req.Type, req.Source, req.LeadID, req.Data))
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(snapshots(executions))
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, ok := h.engine.Execution(c.Params("id"))
	if !ok {
		return handleError(c, workflow.ErrExecutionNotFound)
	}

	return c.JSON(execution.Snapshot())
}

func (h *APIHandlers) GetLeadExecutions(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if _, ok := h.engine.Workflow(workflowID); !ok {
		return notFound(c, "Workflow not found")
	}

	executions := h.engine.Executions(workflowID, c.Params("leadId"))

	return c.JSON(ExecutionsResponse{Executions: executions, Count: len(executions)})
}

func (h *APIHandlers) TrackBehavior(c fiber.Ctx) error {
	var req TrackBehaviorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executions, err := h.tracker.Track(c.Context(), models.LeadBehavior{
		LeadID:    req.LeadID,
		Type:      req.Type,
		Source:    req.Source,
		Data:      req.Data,
		SessionID: req.SessionID,
	})
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(snapshots(executions))
}

func (h *APIHandlers) GetBehaviors(c fiber.Ctx) error {
	behaviors := h.tracker.Behaviors(c.Params("id"))

	return c.JSON(fiber.Map{
		"behaviors":   behaviors,
		"total_count": len(behaviors),
	})
}

func (h *APIHandlers) PutLead(c fiber.Ctx) error {
	var req LeadRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")

	err := h.leads.Save(c.Context(), &models.Lead{
		ID:        id,
		Email:     req.Email,
		Phone:     req.Phone,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Status:    req.Status,
		Score:     req.Score,
		Fields:    req.Fields,
	})
	if err != nil {
		return handleError(c, err)
	}

	lead, err := h.leads.GetLead(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(lead)
}

func (h *APIHandlers) GetLead(c fiber.Ctx) error {
	lead, err := h.leads.GetLead(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(lead)
}

func (h *APIHandlers) GetConsent(c fiber.Ctx) error {
	record, err := h.consent.Consent(c.Context(), c.Params("phone"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) OptIn(c fiber.Ctx) error {
	return h.recordConsent(c, h.consent.RecordOptIn)
}

func (h *APIHandlers) OptOut(c fiber.Ctx) error {
	return h.recordConsent(c, h.consent.RecordOptOut)
}

func (h *APIHandlers) recordConsent(c fiber.Ctx, record func(ctx context.Context, phone, method string) error) error {
	req := ConsentRequest{Method: "api"}

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	phone := c.Params("phone")

	if err := record(c.Context(), phone, req.Method); err != nil {
		return handleError(c, err)
	}

	return h.GetConsent(c)
}
