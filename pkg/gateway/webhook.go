package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// WebhookPayload is the envelope of an inbound webhook delivery.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []rawMessage `json:"messages"`
	Statuses []rawStatus  `json:"statuses"`
}

type rawMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
}

type rawStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code  int    `json:"code"`
		Title string `json:"title"`
	} `json:"errors,omitempty"`
}

// InboundMessage is a flattened message received from a contact.
type InboundMessage struct {
	ID            string    `json:"id"`
	From          string    `json:"from"`
	Name          string    `json:"name,omitempty"`
	Type          string    `json:"type"`
	Text          string    `json:"text,omitempty"`
	ReplyID       string    `json:"reply_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	PhoneNumberID string    `json:"phone_number_id,omitempty"`
}

// StatusUpdate reports the delivery state of an outbound message.
type StatusUpdate struct {
	MessageID   string    `json:"message_id"`
	Status      string    `json:"status"`
	RecipientID string    `json:"recipient_id"`
	Timestamp   time.Time `json:"timestamp"`
	Error       string    `json:"error,omitempty"`
}

// ParseWebhook decodes a delivery body. Callers verify the signature first.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	return &payload, nil
}

// Messages flattens every inbound message of the delivery.
func (p *WebhookPayload) Messages() []InboundMessage {
	var out []InboundMessage

	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			for _, m := range change.Value.Messages {
				msg := InboundMessage{
					ID:            m.ID,
					From:          m.From,
					Name:          names[m.From],
					Type:          m.Type,
					Timestamp:     parseUnix(m.Timestamp),
					PhoneNumberID: change.Value.Metadata.PhoneNumberID,
				}

				switch {
				case m.Text != nil:
					msg.Text = m.Text.Body
				case m.Button != nil:
					msg.Text = m.Button.Text
					msg.ReplyID = m.Button.Payload
				case m.Interactive != nil && m.Interactive.ButtonReply != nil:
					msg.Text = m.Interactive.ButtonReply.Title
					msg.ReplyID = m.Interactive.ButtonReply.ID
				case m.Interactive != nil && m.Interactive.ListReply != nil:
					msg.Text = m.Interactive.ListReply.Title
					msg.ReplyID = m.Interactive.ListReply.ID
				}

				out = append(out, msg)
			}
		}
	}

	return out
}

// Statuses flattens every delivery status of the delivery.
func (p *WebhookPayload) Statuses() []StatusUpdate {
	var out []StatusUpdate

	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, s := range change.Value.Statuses {
				update := StatusUpdate{
					MessageID:   s.ID,
					Status:      s.Status,
					RecipientID: s.RecipientID,
					Timestamp:   parseUnix(s.Timestamp),
				}

				if len(s.Errors) > 0 {
					update.Error = fmt.Sprintf("%d: %s", s.Errors[0].Code, s.Errors[0].Title)
				}

				out = append(out, update)
			}
		}
	}

	return out
}

func parseUnix(ts string) time.Time {
	seconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}
	}

	return time.Unix(seconds, 0).UTC()
}
