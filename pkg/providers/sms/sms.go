// Package sms sends send_sms actions through a Twilio-style messages API.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leadflow/leadflow/pkg/log"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/providers"
	"github.com/leadflow/leadflow/pkg/template"
)

// MaxLength is the longest body sent; longer messages are truncated.
const MaxLength = 1600

type Config struct {
	Endpoint   string
	AccountSID string
	AuthToken  string
	From       string
	Timeout    time.Duration
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
		logger:     log.WithModule("provider.sms"),
	}
}

func (p *Provider) Channel() string {
	return models.ChannelSMS
}

func (p *Provider) Send(ctx context.Context, spec models.ActionSpec, leadID string, execContext map[string]any) (*providers.SendResult, error) {
	smsSpec, ok := spec.(models.SMSSpec)
	if !ok {
		return nil, fail(fmt.Sprintf("unexpected spec %T for sms provider", spec), leadID, nil)
	}

	lead, err := p.leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, fail("failed to load lead", leadID, err)
	}

	if lead.Phone == "" {
		return nil, fail("lead has no phone number", leadID, nil)
	}

	body, err := template.RenderString(smsSpec.Message, template.Data(lead, execContext))
	if err != nil {
		return nil, fail("failed to render message", leadID, err)
	}

	if len(body) > MaxLength {
		body = body[:MaxLength]
	}

	from := smsSpec.From
	if from == "" {
		from = p.config.From
	}

	id, err := p.post(ctx, lead.Phone, from, body)
	if err != nil {
		return nil, fail("sms API call failed", leadID, err)
	}

	p.logger.InfoContext(ctx, "SMS sent", "lead_id", leadID, "message_id", id)

	return &providers.SendResult{
		Channel:   models.ChannelSMS,
		MessageID: id,
		Status:    providers.StatusSent,
		Recipient: lead.Phone,
	}, nil
}

func (p *Provider) post(ctx context.Context, to, from, body string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", strings.TrimRight(p.config.Endpoint, "/"), p.config.AccountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.config.AccountSID, p.config.AuthToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded struct {
		SID string `json:"sid"`
	}
	_ = json.Unmarshal(respBody, &decoded)

	return decoded.SID, nil
}

func fail(message, leadID string, err error) *models.EngineError {
	e := models.NewEngineError(models.CodeSMSSendError, message, map[string]any{"lead_id": leadID})
	if err != nil {
		e.Message = fmt.Sprintf("%s: %v", message, err)
		e.Err = err
	}

	return e
}
