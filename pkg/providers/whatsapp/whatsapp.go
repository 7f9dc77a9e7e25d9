// Package whatsapp sends send_whatsapp actions through the messaging gateway,
// gated by the compliance rules.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leadflow/leadflow/pkg/compliance"
	"github.com/leadflow/leadflow/pkg/gateway"
	"github.com/leadflow/leadflow/pkg/log"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/providers"
	"github.com/leadflow/leadflow/pkg/template"
)

// Sender is the subset of the gateway client used to deliver messages.
type Sender interface {
	SendText(ctx context.Context, to, body string, previewURL bool) (string, error)
	SendTemplate(ctx context.Context, to, name, language string, params []string) (string, error)
	SendImage(ctx context.Context, to, link, caption string) (string, error)
	SendDocument(ctx context.Context, to, link, caption, filename string) (string, error)
	SendLocation(ctx context.Context, to string, loc gateway.Location) (string, error)
	SendButtons(ctx context.Context, to, body string, buttons []gateway.Button) (string, error)
	SendList(ctx context.Context, to, body, buttonText string, sections []gateway.Section) (string, error)
}

// Gate is the compliance check consulted before every send.
type Gate interface {
	CanContact(ctx context.Context, phone string) (compliance.Decision, error)
	WithinServiceWindow(ctx context.Context, phone string) (bool, error)
}

type Config struct {
	// OptInTemplate is sent instead of the content when the contact has not
	// opted in. Empty disables the request.
	OptInTemplate string
	OptInLanguage string
}

type Provider struct {
	config Config
	sender Sender
	gate   Gate
	leads  providers.LeadReader
	logger *slog.Logger
}

func NewProvider(config Config, sender Sender, gate Gate, leads providers.LeadReader) *Provider {
	if config.OptInLanguage == "" {
		config.OptInLanguage = "en_US"
	}

	return &Provider{
		config: config,
		sender: sender,
		gate:   gate,
		leads:  leads,
		logger: log.WithModule("provider.whatsapp"),
	}
}

func (p *Provider) Channel() string {
	return models.ChannelWhatsApp
}

func (p *Provider) Send(ctx context.Context, spec models.ActionSpec, leadID string, execContext map[string]any) (*providers.SendResult, error) {
	waSpec, ok := spec.(models.WhatsAppSpec)
	if !ok {
		return nil, fail(fmt.Sprintf("unexpected spec %T for whatsapp provider", spec), leadID, nil)
	}

	lead, err := p.leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, fail("failed to load lead", leadID, err)
	}

	if lead.Phone == "" {
		return nil, fail("lead has no phone number", leadID, nil)
	}

	to := compliance.NormalizePhone(lead.Phone)

	decision, err := p.gate.CanContact(ctx, to)
	if err != nil {
		return nil, fail("compliance check failed", leadID, err)
	}

	if !decision.Allowed {
		if decision.RequiresOptIn && p.config.OptInTemplate != "" {
			return p.requestOptIn(ctx, to, leadID)
		}

		return nil, fail("contact not permitted", leadID, nil).
			WithContext("reason", decision.Reason).
			WithContext("requires_opt_in", decision.RequiresOptIn)
	}

	if !waSpec.IsTemplate() {
		open, err := p.gate.WithinServiceWindow(ctx, to)
		if err != nil {
			return nil, fail("service window check failed", leadID, err)
		}

		if !open {
			return nil, fail("free-form message outside the customer service window", leadID, nil).
				WithContext("message_type", waSpec.MessageType)
		}
	}

	rendered, err := render(waSpec, template.Data(lead, execContext))
	if err != nil {
		return nil, fail("failed to render message", leadID, err)
	}

	id, err := p.dispatch(ctx, to, rendered)
	if err != nil {
		return nil, sendError(err, leadID)
	}

	p.logger.InfoContext(ctx, "WhatsApp message sent",
		"lead_id", leadID,
		"message_type", rendered.MessageType,
		"message_id", id,
	)

	return &providers.SendResult{
		Channel:   models.ChannelWhatsApp,
		MessageID: id,
		Status:    providers.StatusSent,
		Recipient: to,
		Metadata:  map[string]any{"message_type": rendered.MessageType},
	}, nil
}

func (p *Provider) requestOptIn(ctx context.Context, to, leadID string) (*providers.SendResult, error) {
	id, err := p.sender.SendTemplate(ctx, to, p.config.OptInTemplate, p.config.OptInLanguage, nil)
	if err != nil {
		return nil, sendError(err, leadID)
	}

	p.logger.InfoContext(ctx, "Opt-in requested", "lead_id", leadID, "message_id", id)

	return &providers.SendResult{
		Channel:   models.ChannelWhatsApp,
		MessageID: id,
		Status:    providers.StatusOptInRequested,
		Recipient: to,
		Metadata:  map[string]any{"message_type": models.WhatsAppTemplate},
	}, nil
}

func (p *Provider) dispatch(ctx context.Context, to string, spec models.WhatsAppSpec) (string, error) {
	switch spec.MessageType {
	case models.WhatsAppText, "":
		return p.sender.SendText(ctx, to, spec.Text, spec.PreviewURL)
	case models.WhatsAppTemplate:
		return p.sender.SendTemplate(ctx, to, spec.TemplateName, spec.Language, spec.TemplateParams)
	case models.WhatsAppImage:
		return p.sender.SendImage(ctx, to, spec.MediaURL, spec.Caption)
	case models.WhatsAppDocument:
		return p.sender.SendDocument(ctx, to, spec.MediaURL, spec.Caption, spec.Filename)
	case models.WhatsAppLocation:
		return p.sender.SendLocation(ctx, to, gateway.Location{
			Latitude:  spec.Latitude,
			Longitude: spec.Longitude,
			Name:      spec.LocationName,
			Address:   spec.Address,
		})
	case models.WhatsAppButtons:
		buttons := make([]gateway.Button, len(spec.Buttons))
		for i, b := range spec.Buttons {
			buttons[i] = gateway.Button{ID: b.ID, Title: b.Title}
		}

		return p.sender.SendButtons(ctx, to, spec.Text, buttons)
	case models.WhatsAppList:
		sections := make([]gateway.Section, len(spec.Sections))

		for i, s := range spec.Sections {
			sections[i].Title = s.Title
			for _, r := range s.Rows {
				sections[i].Rows = append(sections[i].Rows, gateway.Row{ID: r.ID, Title: r.Title, Description: r.Description})
			}
		}

		return p.sender.SendList(ctx, to, spec.Text, spec.ListButton, sections)
	default:
		return "", fmt.Errorf("%w: unsupported message type %q", gateway.ErrInvalidMessage, spec.MessageType)
	}
}

// render personalizes the text parts of a message.
func render(spec models.WhatsAppSpec, data map[string]any) (models.WhatsAppSpec, error) {
	var err error

	if spec.Text, err = template.RenderString(spec.Text, data); err != nil {
		return spec, err
	}

	if spec.Caption, err = template.RenderString(spec.Caption, data); err != nil {
		return spec, err
	}

	if len(spec.TemplateParams) > 0 {
		params := make([]string, len(spec.TemplateParams))

		for i, param := range spec.TemplateParams {
			if params[i], err = template.RenderString(param, data); err != nil {
				return spec, err
			}
		}

		spec.TemplateParams = params
	}

	return spec, nil
}

func sendError(err error, leadID string) *models.EngineError {
	if errors.Is(err, gateway.ErrRateLimited) {
		return models.WrapEngineError(models.CodeRateLimited, err, map[string]any{"lead_id": leadID})
	}

	e := fail("gateway call failed", leadID, err)

	if status := gateway.StatusCode(err); status != 0 {
		e.WithContext("status_code", status)
	}

	return e
}

func fail(message, leadID string, err error) *models.EngineError {
	e := models.NewEngineError(models.CodeWhatsAppSendError, message, map[string]any{"lead_id": leadID})
	if err != nil {
		e.Message = fmt.Sprintf("%s: %v", message, err)
		e.Err = err
	}

	return e
}
