package gateway

import (
	"context"
	"errors"
	"fmt"
)

const messagingProduct = "whatsapp"

// Interactive message limits enforced by the API.
const (
	MaxButtons     = 3
	MaxListRows    = 10
	MaxButtonTitle = 20
)

var ErrInvalidMessage = errors.New("gateway: invalid message")

// Button is a quick reply button.
type Button struct {
	ID    string
	Title string
}

// Row is a selectable entry of a list message.
type Row struct {
	ID          string
	Title       string
	Description string
}

type Section struct {
	Title string
	Rows  []Row
}

// Location is a pin sent as a location message.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
}

type outboundMessage struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type,omitempty"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *textBody        `json:"text,omitempty"`
	Template         *templateBody    `json:"template,omitempty"`
	Image            *mediaBody       `json:"image,omitempty"`
	Document         *mediaBody       `json:"document,omitempty"`
	Location         *locationBody    `json:"location,omitempty"`
	Interactive      *interactiveBody `json:"interactive,omitempty"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateBody struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type mediaBody struct {
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type locationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type interactiveText struct {
	Text string `json:"text"`
}

type replyButton struct {
	Type  string `json:"type"`
	Reply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reply"`
}

type listRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type listSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []listRow `json:"rows"`
}

type interactiveAction struct {
	Buttons  []replyButton `json:"buttons,omitempty"`
	Button   string        `json:"button,omitempty"`
	Sections []listSection `json:"sections,omitempty"`
}

type interactiveBody struct {
	Type   string            `json:"type"`
	Body   interactiveText   `json:"body"`
	Action interactiveAction `json:"action"`
}

type readReceipt struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

// SendText sends a free-form text message.
func (c *Client) SendText(ctx context.Context, to, body string, previewURL bool) (string, error) {
	if body == "" {
		return "", fmt.Errorf("%w: empty text body", ErrInvalidMessage)
	}

	return c.send(ctx, outboundMessage{
		To:   to,
		Type: "text",
		Text: &textBody{Body: body, PreviewURL: previewURL},
	})
}

// SendTemplate sends a pre-approved template with positional body parameters.
func (c *Client) SendTemplate(ctx context.Context, to, name, language string, params []string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty template name", ErrInvalidMessage)
	}

	tmpl := &templateBody{
		Name:     name,
		Language: templateLanguage{Code: language},
	}

	if len(params) > 0 {
		parameters := make([]templateParameter, len(params))
		for i, p := range params {
			parameters[i] = templateParameter{Type: "text", Text: p}
		}

		tmpl.Components = []templateComponent{{Type: "body", Parameters: parameters}}
	}

	return c.send(ctx, outboundMessage{
		To:       to,
		Type:     "template",
		Template: tmpl,
	})
}

func (c *Client) SendImage(ctx context.Context, to, link, caption string) (string, error) {
	if link == "" {
		return "", fmt.Errorf("%w: empty image link", ErrInvalidMessage)
	}

	return c.send(ctx, outboundMessage{
		To:    to,
		Type:  "image",
		Image: &mediaBody{Link: link, Caption: caption},
	})
}

func (c *Client) SendDocument(ctx context.Context, to, link, caption, filename string) (string, error) {
	if link == "" {
		return "", fmt.Errorf("%w: empty document link", ErrInvalidMessage)
	}

	return c.send(ctx, outboundMessage{
		To:       to,
		Type:     "document",
		Document: &mediaBody{Link: link, Caption: caption, Filename: filename},
	})
}

func (c *Client) SendLocation(ctx context.Context, to string, loc Location) (string, error) {
	return c.send(ctx, outboundMessage{
		To:   to,
		Type: "location",
		Location: &locationBody{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Name:      loc.Name,
			Address:   loc.Address,
		},
	})
}

// SendButtons sends an interactive message with up to three reply buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Button) (string, error) {
	if len(buttons) == 0 || len(buttons) > MaxButtons {
		return "", fmt.Errorf("%w: interactive buttons must be between 1 and %d, got %d", ErrInvalidMessage, MaxButtons, len(buttons))
	}

	replies := make([]replyButton, len(buttons))

	for i, b := range buttons {
		if len(b.Title) > MaxButtonTitle {
			return "", fmt.Errorf("%w: button title %q longer than %d characters", ErrInvalidMessage, b.Title, MaxButtonTitle)
		}

		replies[i].Type = "reply"
		replies[i].Reply.ID = b.ID
		replies[i].Reply.Title = b.Title
	}

	return c.send(ctx, outboundMessage{
		To:   to,
		Type: "interactive",
		Interactive: &interactiveBody{
			Type:   "button",
			Body:   interactiveText{Text: body},
			Action: interactiveAction{Buttons: replies},
		},
	})
}

// SendList sends an interactive list opened by buttonText.
func (c *Client) SendList(ctx context.Context, to, body, buttonText string, sections []Section) (string, error) {
	if len(sections) == 0 {
		return "", fmt.Errorf("%w: list needs at least one section", ErrInvalidMessage)
	}

	var total int

	out := make([]listSection, len(sections))

	for i, s := range sections {
		out[i].Title = s.Title
		out[i].Rows = make([]listRow, len(s.Rows))

		for j, r := range s.Rows {
			out[i].Rows[j] = listRow{ID: r.ID, Title: r.Title, Description: r.Description}
		}

		total += len(s.Rows)
	}

	if total == 0 || total > MaxListRows {
		return "", fmt.Errorf("%w: list rows must be between 1 and %d, got %d", ErrInvalidMessage, MaxListRows, total)
	}

	return c.send(ctx, outboundMessage{
		To:   to,
		Type: "interactive",
		Interactive: &interactiveBody{
			Type:   "list",
			Body:   interactiveText{Text: body},
			Action: interactiveAction{Button: buttonText, Sections: out},
		},
	})
}

// MarkRead acknowledges an inbound message.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	_, err := c.post(ctx, c.messagesEndpoint(), readReceipt{
		MessagingProduct: messagingProduct,
		Status:           "read",
		MessageID:        messageID,
	})

	return err
}
