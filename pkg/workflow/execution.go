package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/leadflow/leadflow/pkg/models"
	"github.com/qmuntal/stateless"
)

type lifecycleTrigger string

const (
	triggerStart    lifecycleTrigger = "start"
	triggerComplete lifecycleTrigger = "complete"
	triggerFail     lifecycleTrigger = "fail"
	triggerCancel   lifecycleTrigger = "cancel"
)

// Execution is the shared handle of one workflow run. The engine goroutine
// mutates it; everyone else reads snapshots.
type Execution struct {
	mu     sync.Mutex
	state  models.WorkflowExecution
	fsm    *stateless.StateMachine
	done   chan struct{}
	cancel context.CancelFunc
}

func newExecution(id, workflowID, leadID string, totalSteps int, trigger map[string]any, startedAt time.Time) *Execution {
	e := &Execution{
		state: models.WorkflowExecution{
			ID:         id,
			WorkflowID: workflowID,
			LeadID:     leadID,
			Status:     models.ExecutionStatusPending,
			TotalSteps: totalSteps,
			StartedAt:  startedAt,
			Context: map[string]any{
				models.ContextKeyTrigger: trigger,
				models.ContextKeySteps:   map[string]any{},
			},
		},
		done: make(chan struct{}),
	}

	// The accessors run inside Fire, which is only called with e.mu held.
	e.fsm = stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			return e.state.Status, nil
		},
		func(_ context.Context, state stateless.State) error {
			e.state.Status = state.(models.ExecutionStatus)

			return nil
		},
		stateless.FiringImmediate,
	)

	e.fsm.Configure(models.ExecutionStatusPending).
		Permit(triggerStart, models.ExecutionStatusRunning).
		Permit(triggerCancel, models.ExecutionStatusCancelled)

	e.fsm.Configure(models.ExecutionStatusRunning).
		Permit(triggerComplete, models.ExecutionStatusCompleted).
		Permit(triggerFail, models.ExecutionStatusFailed).
		Permit(triggerCancel, models.ExecutionStatusCancelled)

	return e
}

func (e *Execution) ID() string {
	return e.state.ID
}

func (e *Execution) WorkflowID() string {
	return e.state.WorkflowID
}

func (e *Execution) LeadID() string {
	return e.state.LeadID
}

// Snapshot returns a copy of the current execution record.
func (e *Execution) Snapshot() models.WorkflowExecution {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state.Clone()
}

func (e *Execution) Status() models.ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state.Status
}

// Done is closed once the execution reaches a terminal status.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the execution finishes or ctx is done.
func (e *Execution) Wait(ctx context.Context) (models.WorkflowExecution, error) {
	select {
	case <-e.done:
		return e.Snapshot(), nil
	case <-ctx.Done():
		return e.Snapshot(), ctx.Err()
	}
}

// fire moves the execution through the lifecycle. update runs under the
// same lock after a permitted transition.
func (e *Execution) fire(trigger lifecycleTrigger, at time.Time, update func(*models.WorkflowExecution)) (models.WorkflowExecution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.fsm.Fire(trigger); err != nil {
		return e.state.Clone(), err
	}

	if update != nil {
		update(&e.state)
	}

	if e.state.Status.IsTerminal() {
		completedAt := at
		e.state.CompletedAt = &completedAt

		close(e.done)
	}

	return e.state.Clone(), nil
}

// recordStep stores an action output and advances the step counter.
func (e *Execution) recordStep(actionID string, output map[string]any) models.WorkflowExecution {
	e.mu.Lock()
	defer e.mu.Unlock()

	if output != nil {
		steps, _ := e.state.Context[models.ContextKeySteps].(map[string]any)
		if steps == nil {
			steps = make(map[string]any)
			e.state.Context[models.ContextKeySteps] = steps
		}

		steps[actionID] = output
	}

	if e.state.CurrentStep < e.state.TotalSteps {
		e.state.CurrentStep++
	}

	return e.state.Clone()
}

// executionContext is the copy of Context handed to conditions and actions.
func (e *Execution) executionContext() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	return models.CloneMap(e.state.Context)
}
