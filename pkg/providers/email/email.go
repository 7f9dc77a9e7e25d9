// Package email sends send_email actions through an HTTP transactional email
// API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/leadflow/leadflow/pkg/log"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/providers"
	"github.com/leadflow/leadflow/pkg/template"
)

type Config struct {
	Endpoint string
	APIKey   string
	From     string
	Timeout  time.Duration
}

type Provider struct {
	config     Config
	leads      providers.LeadReader
	httpClient *http.Client
	logger     *slog.Logger
}

func NewProvider(config Config, leads providers.LeadReader) *Provider {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Provider{
		config:     config,
		leads:      leads,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     log.WithModule("provider.email"),
	}
}

func (p *Provider) Channel() string {
	return models.ChannelEmail
}

type message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type response struct {
	ID string `json:"id"`
}

func (p *Provider) Send(ctx context.Context, spec models.ActionSpec, leadID string, execContext map[string]any) (*providers.SendResult, error) {
	emailSpec, ok := spec.(models.EmailSpec)
	if !ok {
		return nil, fail(fmt.Sprintf("unexpected spec %T for email provider", spec), leadID, nil)
	}

	lead, err := p.leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, fail("failed to load lead", leadID, err)
	}

	if lead.Email == "" {
		return nil, fail("lead has no email address", leadID, nil)
	}

	data := template.Data(lead, execContext)

	subject, err := template.RenderString(emailSpec.Subject, data)
	if err != nil {
		return nil, fail("failed to render subject", leadID, err)
	}

	body, err := template.RenderString(emailSpec.Body, data)
	if err != nil {
		return nil, fail("failed to render body", leadID, err)
	}

	from := emailSpec.From
	if from == "" {
		from = p.config.From
	}

	id, err := p.post(ctx, message{
		From:    from,
		To:      lead.Email,
		ReplyTo: emailSpec.ReplyTo,
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		return nil, fail("email API call failed", leadID, err)
	}

	p.logger.InfoContext(ctx, "Email sent", "lead_id", leadID, "message_id", id)

	return &providers.SendResult{
		Channel:   models.ChannelEmail,
		MessageID: id,
		Status:    providers.StatusSent,
		Recipient: lead.Email,
	}, nil
}

func (p *Provider) post(ctx context.Context, msg message) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var decoded response
	_ = json.Unmarshal(body, &decoded)

	return decoded.ID, nil
}

func fail(message, leadID string, err error) *models.EngineError {
	e := models.NewEngineError(models.CodeEmailSendError, message, map[string]any{"lead_id": leadID})
	if err != nil {
		e.Message = fmt.Sprintf("%s: %v", message, err)
		e.Err = err
	}

	return e
}
