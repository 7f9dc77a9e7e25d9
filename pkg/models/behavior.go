package models

import "time"

// BehaviorType classifies a tracked lead behavior.
type BehaviorType string

const (
	BehaviorPageView       BehaviorType = "page_view"
	BehaviorEmailOpen      BehaviorType = "email_open"
	BehaviorLinkClick      BehaviorType = "link_click"
	BehaviorFormSubmission BehaviorType = "form_submission"
	BehaviorPurchase       BehaviorType = "purchase"
	BehaviorCustom         BehaviorType = "custom"
)

// LeadBehavior is an append-only record of something a lead did.
type LeadBehavior struct {
	ID        string         `json:"id"`
	LeadID    string         `json:"lead_id"              validate:"required"`
	Type      BehaviorType   `json:"type"                 validate:"required,oneof=page_view email_open link_click form_submission purchase custom"`
	Source    string         `json:"source,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
}

// Activity is an audit entry recorded for tracked behaviors and tasks.
type Activity struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ActionType  string    `json:"action_type"`
	TargetType  string    `json:"target_type"`
	TargetID    string    `json:"target_id"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}
