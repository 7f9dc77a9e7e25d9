// Package web provides HTTP request and response types for the leadflow API.
package web

import (
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/workflow"
)

// TriggerWorkflowRequest represents the request body for starting a workflow
// for one lead.
type TriggerWorkflowRequest struct {
	LeadID string         `json:"lead_id" validate:"required"`
	Data   map[string]any `json:"data"`
}

// DispatchEventRequest represents an external event matched against every
// active workflow trigger.
type DispatchEventRequest struct {
	Type   models.TriggerType `json:"type"    validate:"required,oneof=form_submission lead_created lead_updated page_view message_received behavior schedule manual"`
	Source string             `json:"source"`
	LeadID string             `json:"lead_id" validate:"required"`
	Data   map[string]any     `json:"data"`
}

type TrackBehaviorRequest struct {
	LeadID    string              `json:"lead_id"    validate:"required"`
	Type      models.BehaviorType `json:"type"       validate:"required"`
	Source    string              `json:"source"`
	Data      map[string]any      `json:"data"`
	SessionID string              `json:"session_id"`
}

// LeadRequest replaces the stored lead on PUT /leads/:id.
type LeadRequest struct {
	Email     string         `json:"email"      validate:"omitempty,email"`
	Phone     string         `json:"phone"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Status    string         `json:"status"`
	Score     float64        `json:"score"`
	Fields    map[string]any `json:"fields"`
}

type ConsentRequest struct {
	Method string `json:"method"`
}

// ExecutionsResponse lists execution snapshots.
type ExecutionsResponse struct {
	Executions []models.WorkflowExecution `json:"executions"`
	Count      int                        `json:"count"`
}

func snapshots(executions []*workflow.Execution) ExecutionsResponse {
	out := make([]models.WorkflowExecution, 0, len(executions))
	for _, execution := range executions {
		out = append(out, execution.Snapshot())
	}

	return ExecutionsResponse{Executions: out, Count: len(out)}
}

// WebhookResponse acknowledges a gateway delivery.
type WebhookResponse struct {
	Messages int `json:"messages"`
	Statuses int `json:"statuses"`
}
