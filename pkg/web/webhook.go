package web

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/leadflow/leadflow/pkg/eventbus"
	"github.com/leadflow/leadflow/pkg/events"
	"github.com/leadflow/leadflow/pkg/gateway"
)

// VerifyWhatsAppWebhook answers the subscription handshake.
func (h *APIHandlers) VerifyWhatsAppWebhook(c fiber.Ctx) error {
	challenge, err := h.webhook.VerifyHandshake(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if err != nil {
		return problem(c, fiber.StatusForbidden, "handshake_failed", err.Error())
	}

	return c.SendString(challenge)
}

// ReceiveWhatsAppWebhook verifies the delivery signature before the body is
// parsed. Inbound messages open the service window, opt-out keywords revoke
// consent and every message is published as message.received.
func (h *APIHandlers) ReceiveWhatsAppWebhook(c fiber.Ctx) error {
	body := c.Body()

	if err := h.webhook.VerifySignature(body, c.Get(gateway.SignatureHeader)); err != nil {
		if errors.Is(err, gateway.ErrMissingSecret) {
			return internalError(c, err)
		}

		return unauthorized(c, "invalid webhook signature")
	}

	payload, err := gateway.ParseWebhook(body)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Context()
	messages := payload.Messages()

	for _, msg := range messages {
		optOut := h.isOptOut(msg.Text)
		logger := h.logger.With("message_id", msg.ID, "from", msg.From)

		if h.consent != nil {
			if err := h.consent.RecordInbound(ctx, msg.From, msg.Timestamp); err != nil {
				logger.ErrorContext(ctx, "failed to record inbound message", "error", err)
			}

			if optOut {
				if err := h.consent.RecordOptOut(ctx, msg.From, "keyword"); err != nil {
					logger.ErrorContext(ctx, "failed to record opt-out", "error", err)
				}
			}
		}

		receivedAt := msg.Timestamp
		if receivedAt.IsZero() {
			receivedAt = time.Now().UTC()
		}

		h.publish(c, msg.From, events.MessageReceived{
			BaseEvent:     events.NewBaseEvent(events.MessageReceivedEvent, ""),
			MessageID:     msg.ID,
			From:          msg.From,
			Name:          msg.Name,
			MessageType:   msg.Type,
			Text:          msg.Text,
			ReplyID:       msg.ReplyID,
			PhoneNumberID: msg.PhoneNumberID,
			ReceivedAt:    receivedAt,
			OptOut:        optOut,
		})
	}

	statuses := payload.Statuses()

	for _, status := range statuses {
		h.publish(c, status.RecipientID, events.MessageStatus{
			BaseEvent: events.NewBaseEvent(events.MessageStatusEvent, ""),
			MessageID: status.MessageID,
			Recipient: status.RecipientID,
			Status:    status.Status,
			At:        status.Timestamp,
		})
	}

	return c.JSON(WebhookResponse{Messages: len(messages), Statuses: len(statuses)})
}

func (h *APIHandlers) publish(c fiber.Ctx, key string, event eventbus.Event) {
	if h.publisher == nil {
		return
	}

	if err := h.publisher.Publish(c.Context(), key, event); err != nil {
		h.logger.ErrorContext(c.Context(), "failed to publish webhook event", "event_type", event.GetType(), "error", err)
	}
}

func (h *APIHandlers) isOptOut(text string) bool {
	text = strings.TrimSpace(text)

	for _, keyword := range h.optOutKeywords {
		if strings.EqualFold(text, keyword) {
			return true
		}
	}

	return false
}
