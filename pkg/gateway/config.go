// Package gateway is a client for a WhatsApp-style Business messaging API with
// per-endpoint rate limiting, retries with exponential backoff and inbound
// webhook verification.
package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultBaseURL            = "https://graph.facebook.com"
	DefaultAPIVersion         = "v18.0"
	DefaultRateLimitPerMinute = 60
	DefaultMaxRetries         = 3
	DefaultRetryBaseDelay     = time.Second

	// NoRetries disables retries when set as Config.MaxRetries.
	NoRetries = -1
)

var ErrMissingCredentials = errors.New("gateway: missing credentials")

// Config holds the gateway credentials and resilience settings.
type Config struct {
	BaseURL            string
	APIVersion         string
	PhoneNumberID      string
	BusinessAccountID  string
	AccessToken        string
	WebhookVerifyToken string
	// AppSecret signs inbound webhook deliveries.
	AppSecret string

	RateLimitPerMinute int
	// MaxRetries of zero means DefaultMaxRetries; a negative value disables
	// retries.
	MaxRetries     int
	RetryBaseDelay time.Duration
}

func (c Config) validate() error {
	var missing []string

	if c.PhoneNumberID == "" {
		missing = append(missing, "phone number id")
	}

	if c.BusinessAccountID == "" {
		missing = append(missing, "business account id")
	}

	if c.AccessToken == "" {
		missing = append(missing, "access token")
	}

	if c.WebhookVerifyToken == "" {
		missing = append(missing, "webhook verify token")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	return nil
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}

	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}

	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = DefaultRateLimitPerMinute
	}

	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}

	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}

	return c
}
