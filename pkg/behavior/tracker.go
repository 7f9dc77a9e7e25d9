// Package behavior records what leads do and feeds those behaviors back into
// the workflow engine as trigger events.
package behavior

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/leadflow/leadflow/pkg/eventbus"
	"github.com/leadflow/leadflow/pkg/events"
	"github.com/leadflow/leadflow/pkg/log"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/workflow"
)

var ErrInvalidBehavior = errors.New("invalid behavior")

type Dispatcher interface {
	Dispatch(ctx context.Context, event events.TriggerEvent) ([]*workflow.Execution, error)
}

type ActivityRecorder interface {
	RecordActivity(ctx context.Context, activity models.Activity) error
}

type Tracker struct {
	mu        sync.RWMutex
	behaviors map[string][]models.LeadBehavior

	dispatcher Dispatcher
	activities ActivityRecorder
	publisher  eventbus.EventPublisher
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Tracker)

func WithActivityRecorder(recorder ActivityRecorder) Option {
	return func(t *Tracker) {
		t.activities = recorder
	}
}

func WithEventPublisher(publisher eventbus.EventPublisher) Option {
	return func(t *Tracker) {
		t.publisher = publisher
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

func NewTracker(dispatcher Dispatcher, opts ...Option) *Tracker {
	t := &Tracker{
		behaviors:  make(map[string][]models.LeadBehavior),
		dispatcher: dispatcher,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     log.WithModule("behavior_tracker"),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Track stores the behavior, records it as an activity and dispatches the
// trigger events it implies. It returns the executions those triggers started.
func (t *Tracker) Track(ctx context.Context, behavior models.LeadBehavior) ([]*workflow.Execution, error) {
	if err := t.validate.Struct(behavior); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBehavior, err)
	}

	if behavior.ID == "" {
		behavior.ID = uuid.NewString()
	}

	if behavior.Timestamp.IsZero() {
		behavior.Timestamp = t.now().UTC()
	}

	behavior.Data = models.CloneMap(behavior.Data)

	t.mu.Lock()
	t.behaviors[behavior.LeadID] = append(t.behaviors[behavior.LeadID], behavior)
	t.mu.Unlock()

	logger := t.logger.With("lead_id", behavior.LeadID, "behavior_id", behavior.ID, "behavior_type", behavior.Type)
	logger.InfoContext(ctx, "behavior tracked", "source", behavior.Source)

	t.recordActivity(ctx, logger, behavior)

	if t.publisher != nil {
		event := events.BehaviorRecorded{
			BaseEvent: events.NewBaseEvent(events.BehaviorRecordedEvent, ""),
			Behavior:  behavior,
		}

		if err := t.publisher.Publish(ctx, behavior.LeadID, event); err != nil {
			logger.ErrorContext(ctx, "failed to publish behavior", "error", err)
		}
	}

	if t.dispatcher == nil {
		return nil, nil
	}

	var started []*workflow.Execution

	for _, event := range triggerEvents(behavior) {
		executions, err := t.dispatcher.Dispatch(ctx, event)
		started = append(started, executions...)

		if err != nil {
			return started, fmt.Errorf("failed to dispatch %s trigger: %w", event.Type, err)
		}
	}

	return started, nil
}

func (t *Tracker) recordActivity(ctx context.Context, logger *slog.Logger, behavior models.LeadBehavior) {
	if t.activities == nil {
		return
	}

	description := fmt.Sprintf("Lead performed %s", behavior.Type)
	if behavior.Source != "" {
		description += " on " + behavior.Source
	}

	err := t.activities.RecordActivity(ctx, models.Activity{
		ID:          uuid.NewString(),
		UserID:      behavior.LeadID,
		ActionType:  string(behavior.Type),
		TargetType:  "lead",
		TargetID:    behavior.LeadID,
		Description: description,
		Timestamp:   behavior.Timestamp,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to record behavior activity", "error", err)
	}
}

// triggerEvents maps a behavior to the trigger of its own type followed by the
// generic behavior trigger.
func triggerEvents(behavior models.LeadBehavior) []events.TriggerEvent {
	data := models.CloneMap(behavior.Data)
	if data == nil {
		data = make(map[string]any)
	}

	data["behavior_id"] = behavior.ID
	data["behavior_type"] = string(behavior.Type)

	if behavior.SessionID != "" {
		data["session_id"] = behavior.SessionID
	}

	return []events.TriggerEvent{
		events.NewTriggerEvent(models.TriggerType(behavior.Type), behavior.Source, behavior.LeadID, data),
		events.NewTriggerEvent(models.TriggerBehavior, behavior.Source, behavior.LeadID, models.CloneMap(data)),
	}
}

// Behaviors returns the behaviors of leadID in tracking order.
func (t *Tracker) Behaviors(leadID string) []models.LeadBehavior {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.LeadBehavior, len(t.behaviors[leadID]))
	copy(out, t.behaviors[leadID])

	return out
}
