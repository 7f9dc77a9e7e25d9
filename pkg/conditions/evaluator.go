// Package conditions evaluates workflow and action predicates over lead
// state, segments, behaviors and time.
package conditions

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/leadflow/leadflow/pkg/log"
	"github.com/leadflow/leadflow/pkg/models"
)

// LeadReader loads the lead a condition is evaluated against.
type LeadReader interface {
	GetLead(ctx context.Context, id string) (*models.Lead, error)
}

type Evaluator struct {
	leads  LeadReader
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Evaluator)

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

func NewEvaluator(leads LeadReader, opts ...Option) *Evaluator {
	e := &Evaluator{
		leads:  leads,
		now:    time.Now,
		logger: log.WithModule("conditions"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate returns the AND of conditions, stopping at the first false one. An
// empty list is true. The lead is loaded at most once and only when a
// condition needs it; a failed lookup is returned as an error.
func (e *Evaluator) Evaluate(ctx context.Context, conditions []models.Condition, leadID string, execContext map[string]any) (bool, error) {
	var lead *models.Lead

	loadLead := func() (*models.Lead, error) {
		if lead != nil {
			return lead, nil
		}

		l, err := e.leads.GetLead(ctx, leadID)
		if err != nil {
			return nil, fmt.Errorf("failed to load lead %s: %w", leadID, err)
		}

		lead = l

		return lead, nil
	}

	for i, condition := range conditions {
		ok, err := e.evaluateOne(ctx, condition, loadLead)
		if err != nil {
			return false, err
		}

		if !ok {
			e.logger.DebugContext(ctx, "Condition not met",
				"lead_id", leadID,
				"index", i,
				"type", condition.Type,
				"field", condition.Field,
				"operator", condition.Operator,
			)

			return false, nil
		}
	}

	return true, nil
}

func (e *Evaluator) evaluateOne(ctx context.Context, condition models.Condition, loadLead func() (*models.Lead, error)) (bool, error) {
	switch condition.Type {
	case models.ConditionFieldValue:
		lead, err := loadLead()
		if err != nil {
			return false, err
		}

		value, _ := lead.Get(condition.Field)

		return Compare(condition.Operator, value, condition.Value), nil
	case models.ConditionLeadScore:
		lead, err := loadLead()
		if err != nil {
			return false, err
		}

		return Compare(condition.Operator, lead.Score, condition.Value), nil
	case models.ConditionSegment, models.ConditionBehavior:
		// No segment or behavior store is consulted yet; these always pass.
		e.logger.DebugContext(ctx, "Condition type always passes", "type", condition.Type)

		return true, nil
	case models.ConditionTime:
		return e.compareTime(condition), nil
	default:
		e.logger.DebugContext(ctx, "Unknown condition type treated as true", "type", condition.Type)

		return true, nil
	}
}

func (e *Evaluator) compareTime(condition models.Condition) bool {
	at, ok := ParseTimestamp(condition.Value)
	if !ok {
		return false
	}

	now := e.now()

	switch condition.Operator {
	case models.OperatorGreaterThan:
		return now.After(at)
	case models.OperatorLessThan:
		return now.Before(at)
	default:
		return true
	}
}

// Compare applies operator to actual and expected. Unknown operators are true.
func Compare(operator models.Operator, actual, expected any) bool {
	switch operator {
	case models.OperatorEquals:
		return equal(actual, expected)
	case models.OperatorNotEquals:
		return !equal(actual, expected)
	case models.OperatorContains:
		return contains(actual, expected)
	case models.OperatorGreaterThan:
		a, okA := models.ToFloat(actual)
		b, okB := models.ToFloat(expected)

		return okA && okB && a > b
	case models.OperatorLessThan:
		a, okA := models.ToFloat(actual)
		b, okB := models.ToFloat(expected)

		return okA && okB && a < b
	default:
		return true
	}
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa == fb
		}
	}

	return models.ToString(a) == models.ToString(b)
}

// contains is a substring test on the string forms, or membership for lists.
func contains(actual, expected any) bool {
	if list, ok := actual.([]any); ok {
		for _, item := range list {
			if equal(item, expected) {
				return true
			}
		}

		return false
	}

	if actual == nil {
		return false
	}

	return strings.Contains(models.ToString(actual), models.ToString(expected))
}

// number converts numeric kinds only; numeric strings stay strings.
func number(v any) (float64, bool) {
	switch v.(type) {
	case string, bool:
		return 0, false
	}

	return models.ToFloat(v)
}

// ParseTimestamp accepts RFC 3339 strings, time.Time values and unix
// timestamps in seconds or milliseconds.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}

		if parsed, err := time.Parse(time.DateOnly, t); err == nil {
			return parsed, true
		}

		n, ok := models.ToFloat(t)
		if !ok {
			return time.Time{}, false
		}

		return fromUnix(n), true
	default:
		n, ok := number(v)
		if !ok {
			return time.Time{}, false
		}

		return fromUnix(n), true
	}
}

// fromUnix treats values of 1e12 and above as milliseconds.
func fromUnix(n float64) time.Time {
	if math.Abs(n) >= 1e12 {
		return time.UnixMilli(int64(n))
	}

	return time.Unix(int64(n), 0)
}
