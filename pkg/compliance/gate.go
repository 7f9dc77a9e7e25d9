// Package compliance decides whether a contact may be messaged: opt-in and
// opt-out state, business hours and the customer service reply window.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/leadflow/leadflow/pkg/log"
	"github.com/leadflow/leadflow/pkg/models"
)

const (
	DefaultBusinessHoursStart = 9
	DefaultBusinessHoursEnd   = 21
	// ServiceWindow is how long after a contact's last message free-form
	// replies are permitted.
	ServiceWindow = 24 * time.Hour
)

// Denial reasons reported in Decision.Reason.
const (
	ReasonOptedOut             = "opted_out"
	ReasonOutsideBusinessHours = "outside_business_hours"
	ReasonNoOptIn              = "no_opt_in"
)

type Decision struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason,omitempty"`
	RequiresOptIn bool   `json:"requires_opt_in"`
}

type Config struct {
	Timezone           string
	BusinessHoursStart int
	BusinessHoursEnd   int
}

type Gate struct {
	store     Store
	location  *time.Location
	startHour int
	endHour   int
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate builds a gate over store. Zero business hours fall back to 9-21 and
// an empty timezone means the process local zone.
func NewGate(store Store, cfg Config, opts ...Option) (*Gate, error) {
	location := time.Local

	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid compliance timezone %q: %w", cfg.Timezone, err)
		}

		location = loc
	}

	start, end := cfg.BusinessHoursStart, cfg.BusinessHoursEnd
	if start == 0 && end == 0 {
		start, end = DefaultBusinessHoursStart, DefaultBusinessHoursEnd
	}

	if start < 0 || end > 24 || start >= end {
		return nil, fmt.Errorf("invalid business hours %d-%d", start, end)
	}

	gate := &Gate{
		store:     store,
		location:  location,
		startHour: start,
		endHour:   end,
		now:       time.Now,
		logger:    log.WithModule("compliance"),
	}

	for _, opt := range opts {
		opt(gate)
	}

	return gate, nil
}

// NormalizePhone keeps only digits so "+55 (11) 99999-0000" and the
// gateway's "5511999990000" name the same contact.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}

		return -1
	}, phone)
}

// CanContact evaluates opt-out first, then business hours, then opt-in.
func (g *Gate) CanContact(ctx context.Context, phone string) (Decision, error) {
	record, err := g.record(ctx, phone)
	if err != nil {
		return Decision{}, err
	}

	if record != nil && record.OptedOut {
		return Decision{Reason: ReasonOptedOut}, nil
	}

	if !g.InBusinessHours() {
		return Decision{Reason: ReasonOutsideBusinessHours}, nil
	}

	if record == nil || !record.OptedIn {
		return Decision{Reason: ReasonNoOptIn, RequiresOptIn: true}, nil
	}

	return Decision{Allowed: true}, nil
}

// InBusinessHours reports whether now falls in [start, end) in the gate's zone.
func (g *Gate) InBusinessHours() bool {
	hour := g.now().In(g.location).Hour()

	return hour >= g.startHour && hour < g.endHour
}

// RecordOptIn overrides any previous consent state.
func (g *Gate) RecordOptIn(ctx context.Context, phone, method string) error {
	phone = NormalizePhone(phone)

	if err := g.store.SetConsent(ctx, phone, true, method, g.now()); err != nil {
		return err
	}

	g.logger.InfoContext(ctx, "Recorded opt-in", "phone", phone, "method", method)

	return nil
}

// RecordOptOut overrides any previous consent state.
func (g *Gate) RecordOptOut(ctx context.Context, phone, method string) error {
	phone = NormalizePhone(phone)

	if err := g.store.SetConsent(ctx, phone, false, method, g.now()); err != nil {
		return err
	}

	g.logger.InfoContext(ctx, "Recorded opt-out", "phone", phone, "method", method)

	return nil
}

// RecordInbound opens the customer service window for phone.
func (g *Gate) RecordInbound(ctx context.Context, phone string, at time.Time) error {
	if at.IsZero() {
		at = g.now()
	}

	return g.store.SetLastInbound(ctx, NormalizePhone(phone), at)
}

// WithinServiceWindow reports whether phone wrote to us in the last 24 hours.
func (g *Gate) WithinServiceWindow(ctx context.Context, phone string) (bool, error) {
	record, err := g.record(ctx, phone)
	if err != nil {
		return false, err
	}

	if record == nil || record.LastInboundAt == nil {
		return false, nil
	}

	return g.now().Sub(*record.LastInboundAt) < ServiceWindow, nil
}

// Consent returns the stored record, or ErrConsentNotFound.
func (g *Gate) Consent(ctx context.Context, phone string) (*models.ConsentRecord, error) {
	return g.store.Get(ctx, NormalizePhone(phone))
}

func (g *Gate) record(ctx context.Context, phone string) (*models.ConsentRecord, error) {
	record, err := g.store.Get(ctx, NormalizePhone(phone))
	if err != nil {
		if errors.Is(err, ErrConsentNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load consent: %w", err)
	}

	return record, nil
}
