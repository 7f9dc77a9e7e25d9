package models

import "time"

// ConsentRecord is the single compliance record kept per contact phone number.
// Opt-in and opt-out override each other; the last write wins.
type ConsentRecord struct {
	Phone         string     `json:"phone"`
	OptedIn       bool       `json:"opted_in"`
	OptedOut      bool       `json:"opted_out"`
	Method        string     `json:"method,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastInboundAt *time.Time `json:"last_inbound_at,omitempty"`
}
