package events

import "github.com/leadflow/leadflow/pkg/models"

// TriggerEvent is an external occurrence offered to the engine for matching
// against registered workflow triggers.
type TriggerEvent struct {
	Type   models.TriggerType `json:"type"`
	Source string             `json:"source,omitempty"`
	LeadID string             `json:"lead_id"`
	Data   map[string]any     `json:"data,omitempty"`
}

func NewTriggerEvent(triggerType models.TriggerType, source, leadID string, data map[string]any) TriggerEvent {
	return TriggerEvent{
		Type:   triggerType,
		Source: source,
		LeadID: leadID,
		Data:   data,
	}
}

// Payload is the trigger data stored in the execution context.
func (t TriggerEvent) Payload() map[string]any {
	payload := models.CloneMap(t.Data)
	if payload == nil {
		payload = make(map[string]any)
	}

	payload["type"] = string(t.Type)

	if t.Source != "" {
		payload["source"] = t.Source
	}

	return payload
}
