package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/leadflow/leadflow/pkg/actions"
	"github.com/leadflow/leadflow/pkg/eventbus"
	"github.com/leadflow/leadflow/pkg/events"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// run walks the actions of workflow for one execution. It owns every
// transition after pending.
func (e *Engine) run(ctx context.Context, workflow *models.WorkflowDefinition, execution *Execution) {
	defer e.wg.Done()
	defer execution.cancel()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID()),
		attribute.String(otelhelper.LeadIDKey, execution.LeadID()),
	)
	defer span.End()

	logger := e.logger.With(
		"workflow_id", workflow.ID,
		"execution_id", execution.ID(),
		"lead_id", execution.LeadID(),
	)

	if ctx.Err() != nil {
		e.cancelled(ctx, logger, execution)

		return
	}

	snapshot, err := execution.fire(triggerStart, e.now(), nil)
	if err != nil {
		logger.ErrorContext(ctx, "failed to start execution", "error", err)

		return
	}

	e.mirror(ctx, snapshot)
	e.publish(ctx, execution.LeadID(), events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID: snapshot.ID,
		LeadID:      snapshot.LeadID,
		TotalSteps:  snapshot.TotalSteps,
		TriggerData: triggerPayload(snapshot),
	})

	logger.InfoContext(ctx, "execution started", "total_steps", snapshot.TotalSteps)

	leadID := execution.LeadID()

	ok, err := e.conditions.Evaluate(ctx, workflow.Conditions, leadID, execution.executionContext())
	if err != nil {
		e.failed(ctx, span, logger, execution, conditionError(err, workflow.ID, ""))

		return
	}

	if !ok {
		logger.InfoContext(ctx, "workflow conditions not met")
		e.completed(ctx, logger, execution, ExitConditionsNotMet)

		return
	}

	for _, action := range workflow.Actions {
		actionLogger := logger.With("action_id", action.ID, "action_type", action.Type)

		if err := e.awaitWindow(ctx, actionLogger, workflow.Settings.ExecutionWindow); err != nil {
			e.failed(ctx, span, logger, execution, err)

			return
		}

		if workflow.Settings.ExitOnConversion && e.converted(ctx, actionLogger, leadID) {
			actionLogger.InfoContext(ctx, "lead converted, exiting workflow")
			e.completed(ctx, logger, execution, ExitConverted)

			return
		}

		if len(action.Conditions) > 0 {
			ok, err := e.conditions.Evaluate(ctx, action.Conditions, leadID, execution.executionContext())
			if err != nil {
				e.failed(ctx, span, logger, execution, conditionError(err, workflow.ID, action.ID))

				return
			}

			if !ok {
				actionLogger.DebugContext(ctx, "action conditions not met, skipping")
				e.mirror(ctx, execution.recordStep(action.ID, map[string]any{"skipped": true}))

				continue
			}
		}

		if delay := action.DelayDuration(); delay > 0 {
			actionLogger.DebugContext(ctx, "delaying action", "delay", delay)

			if err := actions.Sleep(ctx, delay); err != nil {
				e.cancelled(ctx, logger, execution)

				return
			}
		}

		output, err := e.executor.Execute(ctx, action, leadID, execution.executionContext())
		if err != nil {
			if ctx.Err() != nil {
				e.cancelled(ctx, logger, execution)

				return
			}

			if !models.IsRecoverable(err) {
				e.failed(ctx, span, logger, execution, err)

				return
			}

			actionLogger.WarnContext(ctx, "action failed, continuing",
				"code", models.ErrorCodeOf(err),
				"error", err)

			output = map[string]any{"error": err.Error(), "code": string(models.ErrorCodeOf(err))}
		}

		e.mirror(ctx, execution.recordStep(action.ID, output))
	}

	e.completed(ctx, logger, execution, "")
}

// awaitWindow blocks until the execution window is open.
func (e *Engine) awaitWindow(ctx context.Context, logger *slog.Logger, window *models.ExecutionWindow) error {
	for {
		now := e.now()
		if windowOpen(window, now) {
			return nil
		}

		next := nextWindowOpen(window, now)
		if next.IsZero() {
			return errors.New("execution window has no allowed days")
		}

		logger.InfoContext(ctx, "outside execution window, waiting", "until", next)

		if err := actions.Sleep(ctx, next.Sub(now)); err != nil {
			return err
		}
	}
}

func (e *Engine) converted(ctx context.Context, logger *slog.Logger, leadID string) bool {
	if e.leads == nil {
		return false
	}

	lead, err := e.leads.GetLead(ctx, leadID)
	if err != nil {
		logger.DebugContext(ctx, "conversion check skipped", "error", err)

		return false
	}

	return lead.IsConverted()
}

func (e *Engine) completed(ctx context.Context, logger *slog.Logger, execution *Execution, exitReason string) {
	snapshot, err := execution.fire(triggerComplete, e.now(), func(state *models.WorkflowExecution) {
		if exitReason != "" {
			state.Context[models.ContextKeyExitReason] = exitReason
		}
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to complete execution", "error", err)

		return
	}

	e.mirror(ctx, snapshot)
	e.publish(ctx, snapshot.LeadID, events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, snapshot.WorkflowID),
		ExecutionID: snapshot.ID,
		LeadID:      snapshot.LeadID,
		StepsRun:    snapshot.CurrentStep,
		DurationMs:  duration(snapshot).Milliseconds(),
		ExitReason:  exitReason,
	})

	logger.InfoContext(ctx, "execution completed",
		"steps", snapshot.CurrentStep,
		"exit_reason", exitReason,
		"duration", duration(snapshot))
}

func conditionError(err error, workflowID, actionID string) error {
	context := map[string]any{"workflow_id": workflowID}
	if actionID != "" {
		context["action_id"] = actionID
	}

	return models.WrapEngineError(models.CodeConditionEvalFailure, err, context)
}

func (e *Engine) failed(ctx context.Context, span trace.Span, logger *slog.Logger, execution *Execution, cause error) {
	if ctx.Err() != nil {
		e.cancelled(ctx, logger, execution)

		return
	}

	otelhelper.SetError(span, cause)

	snapshot, err := execution.fire(triggerFail, e.now(), func(state *models.WorkflowExecution) {
		state.Error = cause.Error()
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to mark execution failed", "error", err)

		return
	}

	e.mirror(ctx, snapshot)
	e.publish(ctx, snapshot.LeadID, events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, snapshot.WorkflowID),
		ExecutionID: snapshot.ID,
		LeadID:      snapshot.LeadID,
		FailedStep:  snapshot.CurrentStep,
		DurationMs:  duration(snapshot).Milliseconds(),
		Error:       cause.Error(),
		Code:        string(models.ErrorCodeOf(cause)),
	})

	logger.ErrorContext(ctx, "execution failed",
		"step", snapshot.CurrentStep,
		"code", models.ErrorCodeOf(cause),
		"error", cause)
}

func (e *Engine) cancelled(ctx context.Context, logger *slog.Logger, execution *Execution) {
	reason := "cancelled"
	if err := context.Cause(ctx); err != nil {
		reason = err.Error()
	}

	snapshot, err := execution.fire(triggerCancel, e.now(), func(state *models.WorkflowExecution) {
		state.Context[models.ContextKeyExitReason] = ExitCancelled
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to cancel execution", "error", err)

		return
	}

	e.mirror(ctx, snapshot)
	e.publish(ctx, snapshot.LeadID, events.ExecutionCancelled{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, snapshot.WorkflowID),
		ExecutionID: snapshot.ID,
		LeadID:      snapshot.LeadID,
		DurationMs:  duration(snapshot).Milliseconds(),
		Reason:      reason,
	})

	logger.InfoContext(ctx, "execution cancelled", "step", snapshot.CurrentStep, "reason", reason)
}

// mirror writes the snapshot to the execution repository. Failures are logged.
func (e *Engine) mirror(ctx context.Context, snapshot models.WorkflowExecution) {
	if e.executionRepo == nil {
		return
	}

	if err := e.executionRepo.SaveExecution(context.WithoutCancel(ctx), snapshot); err != nil {
		e.logger.ErrorContext(ctx, "failed to mirror execution",
			"execution_id", snapshot.ID,
			"status", snapshot.Status,
			"error", err)
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(context.WithoutCancel(ctx), key, event); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func triggerPayload(snapshot models.WorkflowExecution) map[string]any {
	data, _ := snapshot.Context[models.ContextKeyTrigger].(map[string]any)

	return data
}

func duration(snapshot models.WorkflowExecution) time.Duration {
	if snapshot.CompletedAt == nil {
		return 0
	}

	return snapshot.CompletedAt.Sub(snapshot.StartedAt)
}
