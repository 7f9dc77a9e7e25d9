package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/leadflow/leadflow/pkg/events"
	"github.com/leadflow/leadflow/pkg/leads"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/workflow"
)

const inboundSource = "whatsapp"

type Dispatcher interface {
	Dispatch(ctx context.Context, event events.TriggerEvent) ([]*workflow.Execution, error)
}

type PhoneLookup interface {
	FindByPhone(ctx context.Context, phone string) (*models.Lead, error)
}

// InboundRouter turns message.received bus events into message_received
// triggers for the lead owning the sender phone.
type InboundRouter struct {
	dispatcher Dispatcher
	leads      PhoneLookup
	logger     *slog.Logger
}

func NewInboundRouter(dispatcher Dispatcher, leads PhoneLookup, logger *slog.Logger) *InboundRouter {
	return &InboundRouter{
		dispatcher: dispatcher,
		leads:      leads,
		logger:     logger.With("component", "inbound_router"),
	}
}

// Handle is an eventbus.EventHandler. Unknown senders and opt-out replies
// are acknowledged without dispatching.
func (r *InboundRouter) Handle(ctx context.Context, event any) error {
	msg, ok := event.(*events.MessageReceived)
	if !ok {
		r.logger.ErrorContext(ctx, "Invalid event type for MessageReceived")

		return nil
	}

	logger := r.logger.With("message_id", msg.MessageID, "from", msg.From)

	if msg.OptOut {
		logger.InfoContext(ctx, "Opt-out reply not dispatched")

		return nil
	}

	lead, err := r.leads.FindByPhone(ctx, msg.From)
	if err != nil {
		if errors.Is(err, leads.ErrLeadNotFound) {
			logger.InfoContext(ctx, "No lead for inbound sender")

			return nil
		}

		return err
	}

	executions, err := r.dispatcher.Dispatch(ctx, events.NewTriggerEvent(models.TriggerMessageReceived, inboundSource, lead.ID, msg.TriggerData()))
	if err != nil {
		if errors.Is(err, workflow.ErrEngineClosed) {
			logger.WarnContext(ctx, "Engine closed, inbound message dropped")

			return nil
		}

		return err
	}

	logger.InfoContext(ctx, "Inbound message dispatched", "lead_id", lead.ID, "executions", len(executions))

	return nil
}
