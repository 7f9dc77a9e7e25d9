// Package models defines the core domain models for lead outreach automation.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Accepts triggers
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily rejects triggers
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical, not executable
)

// TriggerType is the event class that starts a workflow.
type TriggerType string

const (
	TriggerFormSubmission  TriggerType = "form_submission"
	TriggerLeadCreated     TriggerType = "lead_created"
	TriggerLeadUpdated     TriggerType = "lead_updated"
	TriggerPageView        TriggerType = "page_view"
	TriggerMessageReceived TriggerType = "message_received"
	TriggerBehavior        TriggerType = "behavior"
	TriggerSchedule        TriggerType = "schedule"
	TriggerManual          TriggerType = "manual"
)

// Trigger describes which events may start a workflow. EventData is a free-form
// matcher: every key must be present with an equal value in the event payload.
type Trigger struct {
	Type      TriggerType    `json:"type"                 yaml:"type"                 validate:"required"`
	Source    string         `json:"source,omitempty"     yaml:"source,omitempty"`
	EventData map[string]any `json:"event_data,omitempty" yaml:"event_data,omitempty"`
}

// ExecutionWindow restricts the hours (and optionally days) in which actions run.
type ExecutionWindow struct {
	StartHour int      `json:"start_hour"         yaml:"start_hour"         validate:"min=0,max=23"`
	EndHour   int      `json:"end_hour"           yaml:"end_hour"           validate:"min=1,max=24,gtfield=StartHour"`
	Days      []string `json:"days,omitempty"     yaml:"days,omitempty"`
	Timezone  string   `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// WorkflowSettings controls reentry and exit behavior.
type WorkflowSettings struct {
	AllowReentry         bool             `json:"allow_reentry"              yaml:"allow_reentry"`
	ExitOnConversion     bool             `json:"exit_on_conversion"         yaml:"exit_on_conversion"`
	MaxExecutionsPerLead int              `json:"max_executions_per_lead"    yaml:"max_executions_per_lead"    validate:"omitempty,min=1"`
	ExecutionWindow      *ExecutionWindow `json:"execution_window,omitempty" yaml:"execution_window,omitempty"`
}

// WorkflowDefinition is a named, triggerable set of conditions and ordered actions.
type WorkflowDefinition struct {
	ID          string           `json:"id"          yaml:"id"          validate:"required"`
	Name        string           `json:"name"        yaml:"name"        validate:"required"`
	Description string           `json:"description" yaml:"description"`
	Trigger     Trigger          `json:"trigger"     yaml:"trigger"`
	Conditions  []Condition      `json:"conditions"  yaml:"conditions"  validate:"dive"`
	Actions     []Action         `json:"actions"     yaml:"actions"     validate:"dive"`
	Settings    WorkflowSettings `json:"settings"    yaml:"settings"`
	Status      WorkflowStatus   `json:"status"      yaml:"status"      validate:"required,oneof=draft active paused archived"`
	CreatedAt   time.Time        `json:"created_at"  yaml:"-"`
	UpdatedAt   time.Time        `json:"updated_at"  yaml:"-"`
}

// IsActive reports whether the workflow accepts triggers.
func (w *WorkflowDefinition) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// MaxExecutions returns the per-lead execution limit, never less than one.
func (s WorkflowSettings) MaxExecutions() int {
	if s.MaxExecutionsPerLead < 1 {
		return 1
	}

	return s.MaxExecutionsPerLead
}
