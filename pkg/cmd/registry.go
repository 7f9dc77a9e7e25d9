package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leadflow/leadflow/pkg/compliance"
	"github.com/leadflow/leadflow/pkg/config"
	"github.com/leadflow/leadflow/pkg/gateway"
	"github.com/leadflow/leadflow/pkg/providers"
	"github.com/leadflow/leadflow/pkg/providers/email"
	"github.com/leadflow/leadflow/pkg/providers/sms"
	"github.com/leadflow/leadflow/pkg/providers/whatsapp"
)

// Channels holds the provider registry and the collaborators the HTTP layer
// shares with it.
type Channels struct {
	Registry *providers.Registry
	Gate     *compliance.Gate
	// Gateway is nil when WhatsApp is disabled.
	Gateway *gateway.Client

	consent compliance.Store
}

// NewConsentStore returns the consent store named by cfg.Store.
func NewConsentStore(ctx context.Context, cfg config.ComplianceConfig) (compliance.Store, error) {
	switch cfg.Store {
	case "redis":
		store, err := compliance.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open Redis consent store: %w", err)
		}

		return store, nil
	case "memory", "":
		return compliance.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported consent store: %s", cfg.Store)
	}
}

// NewChannels registers every enabled channel provider.
func NewChannels(ctx context.Context, logger *slog.Logger, cfg *config.Config, leads providers.LeadReader) (*Channels, error) {
	store, err := NewConsentStore(ctx, cfg.Compliance)
	if err != nil {
		return nil, err
	}

	gate, err := compliance.NewGate(store, compliance.Config{
		Timezone:           cfg.Compliance.Timezone,
		BusinessHoursStart: cfg.Compliance.BusinessHoursStart,
		BusinessHoursEnd:   cfg.Compliance.BusinessHoursEnd,
	}, compliance.WithLogger(logger.With("module", "compliance")))
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	channels := &Channels{Gate: gate, consent: store}

	var registered []providers.Provider

	if cfg.WhatsApp.Enabled {
		client, err := gateway.NewClient(gateway.Config{
			BaseURL:            cfg.WhatsApp.BaseURL,
			APIVersion:         cfg.WhatsApp.APIVersion,
			PhoneNumberID:      cfg.WhatsApp.PhoneNumberID,
			BusinessAccountID:  cfg.WhatsApp.BusinessAccountID,
			AccessToken:        cfg.WhatsApp.AccessToken,
			WebhookVerifyToken: cfg.WhatsApp.WebhookVerifyToken,
			AppSecret:          cfg.WhatsApp.AppSecret,
			RateLimitPerMinute: cfg.WhatsApp.RateLimitPerMinute,
			MaxRetries:         gatewayRetries(cfg.WhatsApp.MaxRetries),
			RetryBaseDelay:     cfg.WhatsApp.RetryBaseDelay,
		}, gateway.WithLogger(logger.With("module", "gateway")))
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create gateway client: %w", err), store.Close())
		}

		channels.Gateway = client
		registered = append(registered, whatsapp.NewProvider(whatsapp.Config{
			OptInTemplate: cfg.WhatsApp.OptInTemplate,
			OptInLanguage: cfg.WhatsApp.OptInLanguage,
		}, client, gate, leads))
	}

	if cfg.Email.Enabled {
		registered = append(registered, email.NewProvider(email.Config{
			Endpoint: cfg.Email.Endpoint,
			APIKey:   cfg.Email.APIKey,
			From:     cfg.Email.From,
		}, leads))
	}

	if cfg.SMS.Enabled {
		registered = append(registered, sms.NewProvider(sms.Config{
			Endpoint:   cfg.SMS.Endpoint,
			AccountSID: cfg.SMS.AccountSID,
			AuthToken:  cfg.SMS.AuthToken,
			From:       cfg.SMS.From,
		}, leads))
	}

	channels.Registry = providers.NewRegistry(registered...)

	for _, p := range registered {
		logger.Info("Registered channel provider", "channel", p.Channel())
	}

	return channels, nil
}

// HealthCheck reports whether the consent store is reachable.
func (c *Channels) HealthCheck(ctx context.Context) error {
	return c.consent.HealthCheck(ctx)
}

func (c *Channels) Close() error {
	return c.consent.Close()
}

// gatewayRetries maps an explicit zero from the config file to disabled
// retries; the file defaults already seed a non-zero value.
func gatewayRetries(configured int) int {
	if configured == 0 {
		return gateway.NoRetries
	}

	return configured
}
