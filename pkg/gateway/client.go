package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/leadflow/leadflow/pkg/log"
	"github.com/leadflow/leadflow/pkg/otelhelper"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultHTTPTimeout = 30 * time.Second

// Client sends messages through the Business messaging API.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimiter shares a limiter between clients.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// NewClient fails when any credential is empty.
func NewClient(config Config, opts ...Option) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	config = config.withDefaults()

	client := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     log.WithModule("gateway"),
		tracer:     otelhelper.Tracer(),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.limiter == nil {
		client.limiter = NewRateLimiter(config.RateLimitPerMinute)
	}

	return client, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// VerifyHandshake checks a subscription request against the configured token.
func (c *Client) VerifyHandshake(mode, token, challenge string) (string, error) {
	return VerifyHandshake(mode, token, challenge, c.config.WebhookVerifyToken)
}

// VerifySignature checks an inbound delivery against the app secret.
func (c *Client) VerifySignature(body []byte, header string) error {
	return VerifySignature(body, header, c.config.AppSecret)
}

func (c *Client) messagesEndpoint() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.config.BaseURL, c.config.APIVersion, c.config.PhoneNumberID)
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *Client) send(ctx context.Context, payload outboundMessage) (string, error) {
	payload.MessagingProduct = messagingProduct
	payload.RecipientType = "individual"

	respBody, err := c.post(ctx, c.messagesEndpoint(), payload)
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to decode send response: %w", err)
	}

	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return "", errors.New("send response carries no message id")
	}

	return resp.Messages[0].ID, nil
}

// post checks the rate limit for endpoint, then issues the request, retrying
// 429 and 5xx answers with exponential backoff.
func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "gateway.post",
		attribute.String(otelhelper.EndpointKey, endpoint),
	)
	defer span.End()

	if !c.limiter.Allow(endpoint) {
		c.logger.WarnContext(ctx, "Rate limit exceeded", "endpoint", endpoint)
		otelhelper.SetError(span, ErrRateLimited)

		return nil, ErrRateLimited
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	backoff := retry.WithMaxRetries(uint64(c.config.MaxRetries), retry.NewExponential(c.config.RetryBaseDelay))

	var (
		respBody []byte
		attempt  int
	)

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		b, err := c.do(ctx, endpoint, body)
		if err != nil {
			if IsRetryable(err) {
				c.logger.WarnContext(ctx, "Retrying gateway call", "endpoint", endpoint, "attempt", attempt, "error", err)

				return retry.RetryableError(err)
			}

			return err
		}

		respBody = b

		return nil
	})
	if err != nil {
		span.SetAttributes(attribute.Int(otelhelper.HTTPStatusKey, StatusCode(err)))
		otelhelper.SetError(span, err)

		return nil, err
	}

	return respBody, nil
}

func (c *Client) do(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.DebugContext(ctx, "Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}

		var decoded errorResponse
		if json.Unmarshal(respBody, &decoded) == nil && decoded.Error.Message != "" {
			apiErr.Message = decoded.Error.Message
			apiErr.Code = decoded.Error.Code
		}

		return nil, apiErr
	}

	return respBody, nil
}
