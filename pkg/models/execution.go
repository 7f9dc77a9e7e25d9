package models

import "time"

// ExecutionStatus is the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// Well-known keys of WorkflowExecution.Context.
const (
	ContextKeyTrigger    = "trigger"
	ContextKeySteps      = "steps"
	ContextKeyExitReason = "exit_reason"
)

// WorkflowExecution is one run of a workflow for one lead.
type WorkflowExecution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	LeadID      string          `json:"lead_id"`
	Status      ExecutionStatus `json:"status"`
	CurrentStep int             `json:"current_step"`
	TotalSteps  int             `json:"total_steps"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	Context     map[string]any  `json:"context"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (e WorkflowExecution) Clone() WorkflowExecution {
	out := e
	out.Context = CloneMap(e.Context)

	if e.CompletedAt != nil {
		completedAt := *e.CompletedAt
		out.CompletedAt = &completedAt
	}

	return out
}

// CloneMap deep copies nested maps and slices of a JSON-like value tree.
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return CloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}
