// Package providers defines channel senders and the static registry the
// action executor resolves them from.
package providers

import (
	"context"
	"sort"

	"github.com/leadflow/leadflow/pkg/models"
)

// Send statuses reported in SendResult.Status.
const (
	StatusSent             = "sent"
	StatusOptInRequested   = "opt_in_requested"
	StatusSkippedNoContact = "skipped_no_contact"
)

// SendResult describes a message handed to a channel.
type SendResult struct {
	Channel   string         `json:"channel"`
	MessageID string         `json:"message_id,omitempty"`
	Status    string         `json:"status"`
	Recipient string         `json:"recipient,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Output converts the result to an execution step output.
func (r *SendResult) Output() map[string]any {
	out := map[string]any{
		"channel": r.Channel,
		"status":  r.Status,
	}

	if r.MessageID != "" {
		out["message_id"] = r.MessageID
	}

	if r.Recipient != "" {
		out["recipient"] = r.Recipient
	}

	for k, v := range r.Metadata {
		out[k] = v
	}

	return out
}

// Provider sends one message kind for a lead. Implementations load the lead,
// personalize the action config with the execution context and report failures as
// *models.EngineError.
type Provider interface {
	Channel() string
	Send(ctx context.Context, spec models.ActionSpec, leadID string, execContext map[string]any) (*SendResult, error)
}

// LeadReader loads the lead a message is addressed to.
type LeadReader interface {
	GetLead(ctx context.Context, id string) (*models.Lead, error)
}

// Registry maps channels to providers. It is built once at startup and is
// read-only afterwards.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}

	for _, p := range providers {
		if p != nil {
			r.providers[p.Channel()] = p
		}
	}

	return r
}

func (r *Registry) Get(channel string) (Provider, bool) {
	p, ok := r.providers[channel]

	return p, ok
}

// Channels lists the registered channels in name order.
func (r *Registry) Channels() []string {
	channels := make([]string, 0, len(r.providers))
	for channel := range r.providers {
		channels = append(channels, channel)
	}

	sort.Strings(channels)

	return channels
}
