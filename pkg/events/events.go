// Package events defines the lifecycle and inbound events published on the
// event bus.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/leadflow/leadflow/pkg/models"
)

type EventType string

// Topic carries every leadflow event; consumers route on EventTypeMetadataKey.
const Topic = "leadflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	BehaviorRecordedEvent EventType = "behavior.recorded"

	MessageReceivedEvent EventType = "message.received"
	MessageStatusEvent   EventType = "message.status"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates a base event with a fresh id and the current time.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	LeadID      string         `json:"lead_id"`
	TotalSteps  int            `json:"total_steps"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	LeadID      string `json:"lead_id"`
	StepsRun    int    `json:"steps_run"`
	DurationMs  int64  `json:"duration_ms"`
	ExitReason  string `json:"exit_reason,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	LeadID      string `json:"lead_id"`
	FailedStep  int    `json:"failed_step"`
	DurationMs  int64  `json:"duration_ms"`
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	LeadID      string `json:"lead_id"`
	DurationMs  int64  `json:"duration_ms"`
	Reason      string `json:"reason"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type BehaviorRecorded struct {
	BaseEvent

	Behavior models.LeadBehavior `json:"behavior"`
}

func (e BehaviorRecorded) GetType() EventType {
	return BehaviorRecordedEvent
}
