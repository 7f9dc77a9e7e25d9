// Package config loads the leadflow runtime configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort               = 9091
	DefaultGatewayBaseURL     = "https://graph.facebook.com"
	DefaultGatewayAPIVersion  = "v18.0"
	DefaultRateLimitPerMinute = 60
	DefaultRetryBaseDelay     = time.Second
	DefaultMaxRetries         = 3
	DefaultBusinessHoursStart = 9
	DefaultBusinessHoursEnd   = 21
)

var ErrConfigNotFound = errors.New("config file not found")

type Config struct {
	Port        int    `yaml:"port"         validate:"min=1,max=65535"`
	DatabaseURL string `yaml:"database_url" validate:"required"`
	EventBus    string `yaml:"event_bus"    validate:"oneof=gochannel kafka"`

	KafkaBrokers []string `yaml:"kafka_brokers" validate:"required_if=EventBus kafka"`

	Log        LogConfig        `yaml:"log"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Engine     EngineConfig     `yaml:"engine"`
	WhatsApp   WhatsAppConfig   `yaml:"whatsapp"`
	Email      EmailConfig      `yaml:"email"`
	SMS        SMSConfig        `yaml:"sms"`
	Compliance ComplianceConfig `yaml:"compliance"`
}

type LogConfig struct {
	Level  string `yaml:"level"  validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// EngineConfig tunes the workflow engine.
type EngineConfig struct {
	// ReentryPolicy selects which prior executions count against
	// max_executions_per_lead: "in_flight" or "completed".
	ReentryPolicy string `yaml:"reentry_policy" validate:"oneof=in_flight completed"`
	WorkflowsPath string `yaml:"workflows_path"`
	DevLeads      bool   `yaml:"dev_leads"`
}

// WhatsAppConfig holds the Business messaging gateway credentials.
type WhatsAppConfig struct {
	Enabled            bool          `yaml:"enabled"`
	BaseURL            string        `yaml:"base_url"              validate:"omitempty,url"`
	APIVersion         string        `yaml:"api_version"`
	PhoneNumberID      string        `yaml:"phone_number_id"       validate:"required_if=Enabled true"`
	BusinessAccountID  string        `yaml:"business_account_id"   validate:"required_if=Enabled true"`
	AccessToken        string        `yaml:"access_token"          validate:"required_if=Enabled true"`
	WebhookVerifyToken string        `yaml:"webhook_verify_token"  validate:"required_if=Enabled true"`
	AppSecret          string        `yaml:"app_secret"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute" validate:"min=1"`
	MaxRetries         int           `yaml:"max_retries"           validate:"min=0"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay"`
	OptInTemplate      string        `yaml:"opt_in_template"`
	OptInLanguage      string        `yaml:"opt_in_language"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint" validate:"required_if=Enabled true"`
	APIKey   string `yaml:"api_key"`
	From     string `yaml:"from"     validate:"required_if=Enabled true"`
}

type SMSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"    validate:"required_if=Enabled true"`
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"        validate:"required_if=Enabled true"`
}

// ComplianceConfig configures the contact gate.
type ComplianceConfig struct {
	Timezone           string   `yaml:"timezone"`
	BusinessHoursStart int      `yaml:"business_hours_start" validate:"min=0,max=23"`
	BusinessHoursEnd   int      `yaml:"business_hours_end"   validate:"min=1,max=24,gtfield=BusinessHoursStart"`
	Store              string   `yaml:"store"                validate:"oneof=memory redis"`
	RedisAddr          string   `yaml:"redis_addr"           validate:"required_if=Store redis"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisDB            int      `yaml:"redis_db"`
	OptOutKeywords     []string `yaml:"opt_out_keywords"`
}

// Default returns a configuration usable for local development.
func Default() *Config {
	return &Config{
		Port:        DefaultPort,
		DatabaseURL: "file://./data",
		EventBus:    "gochannel",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "leadflow",
		},
		Engine: EngineConfig{
			ReentryPolicy: "in_flight",
		},
		WhatsApp: WhatsAppConfig{
			BaseURL:            DefaultGatewayBaseURL,
			APIVersion:         DefaultGatewayAPIVersion,
			RateLimitPerMinute: DefaultRateLimitPerMinute,
			MaxRetries:         DefaultMaxRetries,
			RetryBaseDelay:     DefaultRetryBaseDelay,
			OptInLanguage:      "en_US",
		},
		Compliance: ComplianceConfig{
			BusinessHoursStart: DefaultBusinessHoursStart,
			BusinessHoursEnd:   DefaultBusinessHoursEnd,
			Store:              "memory",
			OptOutKeywords:     []string{"STOP", "UNSUBSCRIBE", "CANCEL"},
		},
	}
}

// Load reads path on top of Default. Environment references such as
// ${WHATSAPP_ACCESS_TOKEN} are expanded before parsing. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}

		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := Parse([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML into cfg, keeping values the document does not set.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// Validate checks the configuration with struct tags.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}
