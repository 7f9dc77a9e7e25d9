package models

import (
	"fmt"
	"time"
)

// ActionType identifies what a workflow step does.
type ActionType string

const (
	ActionSendEmail         ActionType = "send_email"
	ActionSendSMS           ActionType = "send_sms"
	ActionSendWhatsApp      ActionType = "send_whatsapp"
	ActionAddTag            ActionType = "add_tag"
	ActionRemoveTag         ActionType = "remove_tag"
	ActionUpdateField       ActionType = "update_field"
	ActionCreateTask        ActionType = "create_task"
	ActionWait              ActionType = "wait"
	ActionWebhook           ActionType = "webhook"
	ActionAddToSegment      ActionType = "add_to_segment"
	ActionRemoveFromSegment ActionType = "remove_from_segment"
)

// Channel returns the messaging channel served by a send action, or "".
func (t ActionType) Channel() string {
	switch t {
	case ActionSendEmail:
		return ChannelEmail
	case ActionSendSMS:
		return ChannelSMS
	case ActionSendWhatsApp:
		return ChannelWhatsApp
	default:
		return ""
	}
}

const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// Action is a single step within a workflow. Config is the raw, type dependent
// configuration; Spec holds the typed form decoded once at registration.
type Action struct {
	ID         string         `json:"id,omitempty"         yaml:"id,omitempty"`
	Type       ActionType     `json:"type"                 yaml:"type"                 validate:"required"`
	Name       string         `json:"name,omitempty"       yaml:"name,omitempty"`
	Config     map[string]any `json:"config,omitempty"     yaml:"config,omitempty"`
	Delay      int64          `json:"delay,omitempty"      yaml:"delay,omitempty"      validate:"min=0"`
	Conditions []Condition    `json:"conditions,omitempty" yaml:"conditions,omitempty" validate:"dive"`

	Spec ActionSpec `json:"-" yaml:"-"`
}

// DelayDuration converts the millisecond delay to a time.Duration.
func (a Action) DelayDuration() time.Duration {
	if a.Delay <= 0 {
		return 0
	}

	return time.Duration(a.Delay) * time.Millisecond
}

// ActionSpec is the typed configuration of one action kind.
type ActionSpec interface {
	ActionType() ActionType
}

// EmailSpec configures send_email. Subject and Body support templating.
type EmailSpec struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from,omitempty"`
	ReplyTo string `json:"reply_to,omitempty"`
}

func (EmailSpec) ActionType() ActionType { return ActionSendEmail }

// SMSSpec configures send_sms.
type SMSSpec struct {
	Message string `json:"message"`
	From    string `json:"from,omitempty"`
}

func (SMSSpec) ActionType() ActionType { return ActionSendSMS }

// WhatsApp message kinds understood by send_whatsapp.
const (
	WhatsAppText     = "text"
	WhatsAppTemplate = "template"
	WhatsAppImage    = "image"
	WhatsAppDocument = "document"
	WhatsAppLocation = "location"
	WhatsAppButtons  = "buttons"
	WhatsAppList     = "list"
)

// WhatsAppButton is a quick reply button of an interactive message.
type WhatsAppButton struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// WhatsAppRow is a selectable row of an interactive list.
type WhatsAppRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// WhatsAppSection groups list rows.
type WhatsAppSection struct {
	Title string        `json:"title"`
	Rows  []WhatsAppRow `json:"rows"`
}

// WhatsAppSpec configures send_whatsapp.
type WhatsAppSpec struct {
	MessageType    string            `json:"message_type"`
	Text           string            `json:"text,omitempty"`
	PreviewURL     bool              `json:"preview_url,omitempty"`
	TemplateName   string            `json:"template_name,omitempty"`
	Language       string            `json:"language,omitempty"`
	TemplateParams []string          `json:"template_params,omitempty"`
	MediaURL       string            `json:"media_url,omitempty"`
	Caption        string            `json:"caption,omitempty"`
	Filename       string            `json:"filename,omitempty"`
	Latitude       float64           `json:"latitude,omitempty"`
	Longitude      float64           `json:"longitude,omitempty"`
	LocationName   string            `json:"location_name,omitempty"`
	Address        string            `json:"address,omitempty"`
	Buttons        []WhatsAppButton  `json:"buttons,omitempty"`
	ListButton     string            `json:"list_button,omitempty"`
	Sections       []WhatsAppSection `json:"sections,omitempty"`
}

func (WhatsAppSpec) ActionType() ActionType { return ActionSendWhatsApp }

// IsTemplate reports whether the message is a pre-approved template, the only
// kind allowed outside the customer service window.
func (s WhatsAppSpec) IsTemplate() bool {
	return s.MessageType == WhatsAppTemplate
}

// TagSpec configures add_tag and remove_tag.
type TagSpec struct {
	Kind ActionType `json:"-"`
	Tag  string     `json:"tag"`
}

func (s TagSpec) ActionType() ActionType { return s.Kind }

// SegmentSpec configures add_to_segment and remove_from_segment.
type SegmentSpec struct {
	Kind    ActionType `json:"-"`
	Segment string     `json:"segment"`
}

func (s SegmentSpec) ActionType() ActionType { return s.Kind }

// UpdateFieldSpec configures update_field.
type UpdateFieldSpec struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (UpdateFieldSpec) ActionType() ActionType { return ActionUpdateField }

// CreateTaskSpec configures create_task.
type CreateTaskSpec struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	DueInHours  int    `json:"due_in_hours,omitempty"`
}

func (CreateTaskSpec) ActionType() ActionType { return ActionCreateTask }

// WaitSpec configures wait.
type WaitSpec struct {
	Duration int    `json:"duration"`
	Unit     string `json:"unit"`
}

func (WaitSpec) ActionType() ActionType { return ActionWait }

// Length converts the wait to a time.Duration.
func (s WaitSpec) Length() (time.Duration, error) {
	var unit time.Duration

	switch s.Unit {
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	case "weeks":
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unsupported wait unit %q", s.Unit)
	}

	return time.Duration(s.Duration) * unit, nil
}

// WebhookSpec configures webhook.
type WebhookSpec struct {
	URL            string            `json:"url"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           any               `json:"body,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

func (WebhookSpec) ActionType() ActionType { return ActionWebhook }
