package events

import "time"

// MessageReceived is published for every inbound gateway message after its
// signature has been verified.
type MessageReceived struct {
	BaseEvent

	MessageID     string    `json:"message_id"`
	From          string    `json:"from"`
	Name          string    `json:"name,omitempty"`
	MessageType   string    `json:"message_type"`
	Text          string    `json:"text,omitempty"`
	ReplyID       string    `json:"reply_id,omitempty"`
	PhoneNumberID string    `json:"phone_number_id,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
	OptOut        bool      `json:"opt_out,omitempty"`
}

func (m MessageReceived) GetType() EventType {
	return MessageReceivedEvent
}

// TriggerData is the payload handed to message_received workflows.
func (m MessageReceived) TriggerData() map[string]any {
	data := map[string]any{
		"message_id":   m.MessageID,
		"from":         m.From,
		"message_type": m.MessageType,
		"text":         m.Text,
	}

	if m.ReplyID != "" {
		data["reply_id"] = m.ReplyID
	}

	if m.Name != "" {
		data["name"] = m.Name
	}

	return data
}

// MessageStatus reports a delivery status change of an outbound message.
type MessageStatus struct {
	BaseEvent

	MessageID string    `json:"message_id"`
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

func (m MessageStatus) GetType() EventType {
	return MessageStatusEvent
}
