package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leadflow/leadflow/pkg/log"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/robfig/cron/v3"
)

type LeadLister interface {
	List(ctx context.Context) ([]*models.Lead, error)
}

// Scheduler fires active schedule workflows on their cron spec, once for every
// lead the lister returns.
type Scheduler struct {
	engine  *Engine
	leads   LeadLister
	cron    *cron.Cron
	logger  *slog.Logger
	entries map[string]scheduledEntry
	started bool
	mu      sync.Mutex
}

type scheduledEntry struct {
	id   cron.EntryID
	spec string
}

func NewScheduler(engine *Engine, leads LeadLister) *Scheduler {
	return &Scheduler{
		engine:  engine,
		leads:   leads,
		cron:    cron.New(),
		logger:  log.WithModule("scheduler"),
		entries: make(map[string]scheduledEntry),
	}
}

// Sync reconciles cron entries with the registered schedule workflows. It
// returns the number of scheduled workflows.
func (s *Scheduler) Sync() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]string)

	for _, workflow := range s.engine.Workflows() {
		if workflow.Trigger.Type == models.TriggerSchedule && workflow.IsActive() {
			wanted[workflow.ID] = workflow.Trigger.Source
		}
	}

	for workflowID, entry := range s.entries {
		if spec, ok := wanted[workflowID]; !ok || spec != entry.spec {
			s.cron.Remove(entry.id)
			delete(s.entries, workflowID)

			s.logger.Info("schedule removed", "workflow_id", workflowID)
		}
	}

	for workflowID, spec := range wanted {
		if _, ok := s.entries[workflowID]; ok {
			continue
		}

		id, err := s.cron.AddFunc(spec, func() { s.fire(workflowID) })
		if err != nil {
			return len(s.entries), err
		}

		s.entries[workflowID] = scheduledEntry{id: id, spec: spec}

		s.logger.Info("schedule added", "workflow_id", workflowID, "spec", spec)
	}

	return len(s.entries), nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.cron.Start()
	s.started = true

	s.logger.Info("scheduler started", "entries", len(s.entries))
}

// Stop halts the cron loop and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()

	if !s.started {
		s.mu.Unlock()

		return nil
	}

	s.started = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fire triggers workflowID for every lead. Rejections such as reentry limits
// are logged by the engine.
func (s *Scheduler) fire(workflowID string) int {
	ctx := context.Background()

	leads, err := s.leads.List(ctx)
	if err != nil {
		s.logger.Error("failed to list leads for schedule", "workflow_id", workflowID, "error", err)

		return 0
	}

	firedAt := time.Now().UTC()
	started := 0

	for _, lead := range leads {
		_, err := s.engine.TriggerWorkflow(ctx, workflowID, lead.ID, map[string]any{
			"type":     string(models.TriggerSchedule),
			"fired_at": firedAt.Format(time.RFC3339),
		})
		if err == nil {
			started++
		}
	}

	s.logger.Info("schedule fired", "workflow_id", workflowID, "leads", len(leads), "started", started)

	return started
}
