package workflow

import (
	"log/slog"
	"path"
	"sort"

	"github.com/leadflow/leadflow/pkg/events"
	"github.com/leadflow/leadflow/pkg/models"
)

// TriggerMatcher handles matching trigger events against workflow triggers.
type TriggerMatcher struct {
	logger *slog.Logger
}

// MatchResult represents the result of trigger matching.
type MatchResult struct {
	Workflow *models.WorkflowDefinition
	Score    int // Higher score indicates a more specific trigger
	Reason   string
}

func NewTriggerMatcher(logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// MatchWorkflows finds the active workflows whose trigger accepts event, most
// specific first.
func (tm *TriggerMatcher) MatchWorkflows(event events.TriggerEvent, workflows []*models.WorkflowDefinition) []MatchResult {
	var results []MatchResult

	tm.logger.Debug("Matching trigger event against workflows",
		"trigger_type", event.Type,
		"source", event.Source,
		"workflows_count", len(workflows))

	for _, workflow := range workflows {
		if !workflow.IsActive() {
			continue
		}

		if match := tm.matchTrigger(event, workflow.Trigger); match != nil {
			results = append(results, MatchResult{
				Workflow: workflow,
				Score:    match.Score,
				Reason:   match.Reason,
			})

			tm.logger.Debug("Found matching workflow",
				"workflow_id", workflow.ID,
				"workflow_name", workflow.Name,
				"score", match.Score)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}

		return results[i].Workflow.ID < results[j].Workflow.ID
	})

	tm.logger.Debug("Completed trigger matching",
		"trigger_type", event.Type,
		"source", event.Source,
		"matches_found", len(results))

	return results
}

// TriggerMatch represents a single trigger match.
type TriggerMatch struct {
	Score  int
	Reason string
}

// matchTrigger requires the same type, a matching source pattern when the
// workflow names one, and every event_data key present with an equal value.
func (tm *TriggerMatcher) matchTrigger(event events.TriggerEvent, trigger models.Trigger) *TriggerMatch {
	if trigger.Type != event.Type {
		return nil
	}

	score := 100
	reason := "trigger type match: " + string(event.Type)

	// Schedule triggers keep their cron expression in Source.
	if trigger.Source != "" && trigger.Type != models.TriggerSchedule {
		if !tm.matchPattern(event.Source, trigger.Source) {
			return nil
		}

		score += 50
	}

	for key, expected := range trigger.EventData {
		actual, exists := event.Data[key]
		if !exists || !valuesEqual(actual, expected) {
			return nil
		}

		score += 25
	}

	return &TriggerMatch{Score: score, Reason: reason}
}

// matchPattern matches value against a shell-style pattern such as "landing-*".
func (tm *TriggerMatcher) matchPattern(value, pattern string) bool {
	if value == pattern {
		return true
	}

	matched, err := path.Match(pattern, value)
	if err != nil {
		tm.logger.Warn("Invalid source pattern", "pattern", pattern, "error", err)

		return false
	}

	return matched
}

func valuesEqual(actual, expected any) bool {
	if a, ok := models.ToFloat(actual); ok {
		if b, ok := models.ToFloat(expected); ok {
			_, actualIsBool := actual.(bool)
			_, expectedIsBool := expected.(bool)

			if actualIsBool == expectedIsBool {
				return a == b
			}
		}
	}

	return models.ToString(actual) == models.ToString(expected)
}
