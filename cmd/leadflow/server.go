package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/leadflow/leadflow/pkg/actions"
	"github.com/leadflow/leadflow/pkg/behavior"
	"github.com/leadflow/leadflow/pkg/cmd"
	"github.com/leadflow/leadflow/pkg/conditions"
	"github.com/leadflow/leadflow/pkg/config"
	"github.com/leadflow/leadflow/pkg/eventbus"
	"github.com/leadflow/leadflow/pkg/events"
	"github.com/leadflow/leadflow/pkg/leads"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/otelhelper"
	"github.com/leadflow/leadflow/pkg/persistence"
	"github.com/leadflow/leadflow/pkg/web"
	"github.com/leadflow/leadflow/pkg/workflow"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Server owns every long-lived component of the run command.
type Server struct {
	cfg            *config.Config
	logger         *slog.Logger
	persistence    persistence.Persistence
	eventBus       eventbus.EventBus
	channels       *cmd.Channels
	leads          *leads.MemoryStore
	engine         *workflow.Engine
	scheduler      *workflow.Scheduler
	tracker        *behavior.Tracker
	tracerProvider *sdktrace.TracerProvider
}

// NewServer wires the components. On error everything opened so far is
// closed.
func NewServer(ctx context.Context, logger *slog.Logger, cfg *config.Config) (server *Server, err error) {
	s := &Server{cfg: cfg, logger: logger}

	defer func() {
		if err != nil {
			err = errors.Join(err, s.close(ctx))
		}
	}()

	tracer := otelhelper.Tracer()

	if cfg.Tracing.Enabled {
		s.tracerProvider, err = otelhelper.NewTracerProvider(ctx, cfg.Tracing.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		tracer = s.tracerProvider.Tracer(cfg.Tracing.ServiceName)
	}

	s.persistence, err = cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	bus, err := cmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	s.eventBus = bus

	s.leads = leads.NewMemoryStore()

	s.channels, err = cmd.NewChannels(ctx, logger, cfg, s.leads)
	if err != nil {
		return nil, err
	}

	executor := actions.NewExecutor(s.channels.Registry, s.leads,
		actions.WithActivityRecorder(s.persistence),
		actions.WithTracer(tracer),
	)

	policy, err := workflow.ParseReentryPolicy(cfg.Engine.ReentryPolicy)
	if err != nil {
		return nil, err
	}

	s.engine, err = workflow.NewEngine(executor, conditions.NewEvaluator(s.leads),
		workflow.WithReentryPolicy(policy),
		workflow.WithLeads(s.leads),
		workflow.WithEventPublisher(s.eventBus),
		workflow.WithWorkflowRepository(s.persistence),
		workflow.WithExecutionRepository(s.persistence),
		workflow.WithTracer(tracer),
	)
	if err != nil {
		return nil, err
	}

	if err := s.loadWorkflows(ctx); err != nil {
		return nil, err
	}

	s.scheduler = workflow.NewScheduler(s.engine, s.leads)

	s.tracker = behavior.NewTracker(s.engine,
		behavior.WithActivityRecorder(s.persistence),
		behavior.WithEventPublisher(s.eventBus),
	)

	return s, nil
}

// loadWorkflows restores mirrored definitions, then registers the files of
// WorkflowsPath over them.
func (s *Server) loadWorkflows(ctx context.Context) error {
	restored, err := s.engine.RestoreWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore workflows: %w", err)
	}

	s.logger.InfoContext(ctx, "Restored workflows", "count", restored)

	if s.cfg.Engine.WorkflowsPath == "" {
		return nil
	}

	definitions, err := config.LoadWorkflows(s.cfg.Engine.WorkflowsPath)
	if err != nil {
		return err
	}

	for i := range definitions {
		if err := s.engine.RegisterWorkflow(ctx, &definitions[i]); err != nil {
			return fmt.Errorf("failed to register workflow %s: %w", definitions[i].ID, err)
		}
	}

	s.logger.InfoContext(ctx, "Loaded workflow definitions", "count", len(definitions), "path", s.cfg.Engine.WorkflowsPath)

	return nil
}

// App builds the HTTP application.
func (s *Server) App() *fiber.App {
	opts := []web.Option{
		web.WithBehaviorTracker(s.tracker),
		web.WithConsent(s.channels.Gate),
		web.WithHealthChecker("persistence", s.persistence.HealthCheck),
		web.WithHealthChecker("consent", s.channels.HealthCheck),
	}

	if s.cfg.Engine.DevLeads {
		opts = append(opts, web.WithLeadStore(s.leads))
	}

	if s.channels.Gateway != nil {
		opts = append(opts, web.WithWhatsAppWebhook(s.channels.Gateway, s.eventBus, s.cfg.Compliance.OptOutKeywords))
	}

	handlers := web.NewAPIHandlers(
		&schedulingEngine{Engine: s.engine, scheduler: s.scheduler},
		validator.New(validator.WithRequiredStructEnabled()),
		opts...,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("LeadFlow API")
	})

	handlers.RegisterRoutes(app)

	return app
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// every component down.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.eventBus.Handle(events.MessageReceivedEvent, NewInboundRouter(s.engine, s.leads, s.logger).Handle); err != nil {
		return errors.Join(err, s.close(ctx))
	}

	if err := s.eventBus.Subscribe(ctx); err != nil {
		return errors.Join(fmt.Errorf("failed to subscribe to event bus: %w", err), s.close(ctx))
	}

	scheduled, err := s.scheduler.Sync()
	if err != nil {
		return errors.Join(fmt.Errorf("failed to schedule workflows: %w", err), s.close(ctx))
	}

	s.scheduler.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "workflows", scheduled)

	app := s.App()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Listen(":"+strconv.Itoa(s.cfg.Port), fiber.ListenConfig{DisableStartupMessage: true})
	})

	g.Go(func() error {
		<-gctx.Done()

		s.logger.Info("Shutting down leadflow")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		return errors.Join(
			app.ShutdownWithContext(shutdownCtx),
			s.scheduler.Stop(shutdownCtx),
			s.engine.Shutdown(shutdownCtx),
			s.close(shutdownCtx),
		)
	})

	return g.Wait()
}

func (s *Server) close(ctx context.Context) error {
	var errs []error

	if s.channels != nil {
		errs = append(errs, s.channels.Close())
	}

	if s.eventBus != nil {
		errs = append(errs, s.eventBus.Close())
	}

	if s.persistence != nil {
		errs = append(errs, s.persistence.Close(ctx))
	}

	if s.tracerProvider != nil {
		errs = append(errs, s.tracerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

// schedulingEngine resyncs the cron schedule whenever a workflow is
// registered over HTTP.
type schedulingEngine struct {
	*workflow.Engine

	scheduler *workflow.Scheduler
}

func (e *schedulingEngine) RegisterWorkflow(ctx context.Context, def *models.WorkflowDefinition) error {
	if err := e.Engine.RegisterWorkflow(ctx, def); err != nil {
		return err
	}

	if _, err := e.scheduler.Sync(); err != nil {
		return fmt.Errorf("workflow %s registered but not scheduled: %w", def.ID, err)
	}

	return nil
}
