package conditions

import (
	"context"
	"testing"
	"time"

	"github.com/leadflow/leadflow/pkg/leads"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReader struct {
	store *leads.MemoryStore
	calls int
}

func (r *countingReader) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	r.calls++

	return r.store.GetLead(ctx, id)
}

func newTestEvaluator(t *testing.T, now time.Time) (*Evaluator, *countingReader) {
	t.Helper()

	store := leads.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &models.Lead{
		ID:        "L1",
		Email:     "maria@acme.com",
		Status:    "new",
		Score:     75,
		FirstName: "Maria",
		Fields: map[string]any{
			"plan":     "pro",
			"visits":   3,
			"tags":     []any{"vip", "newsletter"},
			"zip_code": "01310",
		},
	}))

	reader := &countingReader{store: store}

	return NewEvaluator(reader, WithClock(func() time.Time { return now })), reader
}

func TestEvaluate_EmptyIsTrue(t *testing.T) {
	e, reader := newTestEvaluator(t, time.Now())

	ok, err := e.Evaluate(context.Background(), nil, "missing", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, reader.calls)
}

func TestEvaluate_FieldValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		condition models.Condition
		expected  bool
	}{
		{"equals string", models.Condition{Type: "field_value", Field: "plan", Operator: "equals", Value: "pro"}, true},
		{"equals modelled field", models.Condition{Type: "field_value", Field: "status", Operator: "equals", Value: "new"}, true},
		{"equals number", models.Condition{Type: "field_value", Field: "visits", Operator: "equals", Value: 3.0}, true},
		{"not equals", models.Condition{Type: "field_value", Field: "plan", Operator: "not_equals", Value: "free"}, true},
		{"not equals same", models.Condition{Type: "field_value", Field: "plan", Operator: "not_equals", Value: "pro"}, false},
		{"contains substring", models.Condition{Type: "field_value", Field: "email", Operator: "contains", Value: "@acme"}, true},
		{"contains missing", models.Condition{Type: "field_value", Field: "email", Operator: "contains", Value: "@other"}, false},
		{"contains list member", models.Condition{Type: "field_value", Field: "tags", Operator: "contains", Value: "vip"}, true},
		{"greater than numeric string", models.Condition{Type: "field_value", Field: "zip_code", Operator: "greater_than", Value: "1000"}, true},
		{"less than", models.Condition{Type: "field_value", Field: "visits", Operator: "less_than", Value: 2}, false},
		{"greater than non numeric", models.Condition{Type: "field_value", Field: "plan", Operator: "greater_than", Value: 1}, false},
		{"absent field equals", models.Condition{Type: "field_value", Field: "company", Operator: "equals", Value: "Acme"}, false},
		{"absent field not equals", models.Condition{Type: "field_value", Field: "company", Operator: "not_equals", Value: "Acme"}, true},
		{"unknown operator", models.Condition{Type: "field_value", Field: "plan", Operator: "matches", Value: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, _ := newTestEvaluator(t, time.Now())

			ok, err := e.Evaluate(context.Background(), []models.Condition{tt.condition}, "L1", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestEvaluate_LeadScore(t *testing.T) {
	e, _ := newTestEvaluator(t, time.Now())
	ctx := context.Background()

	ok, err := e.Evaluate(ctx, []models.Condition{{Type: "lead_score", Operator: "greater_than", Value: 50}}, "L1", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate(ctx, []models.Condition{{Type: "lead_score", Operator: "less_than", Value: "50"}}, "L1", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_LeadScoreDefaultsToZero(t *testing.T) {
	store := leads.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &models.Lead{ID: "L2"}))

	e := NewEvaluator(store)

	ok, err := e.Evaluate(context.Background(), []models.Condition{{Type: "lead_score", Operator: "equals", Value: 0}}, "L2", nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_SegmentAndBehaviorAlwaysPass(t *testing.T) {
	e, reader := newTestEvaluator(t, time.Now())

	ok, err := e.Evaluate(context.Background(), []models.Condition{
		{Type: "segment", Operator: "equals", Value: "enterprise"},
		{Type: "behavior", Field: "page_view", Operator: "greater_than", Value: 100},
	}, "L1", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, reader.calls)
}

func TestEvaluate_Time(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e, _ := newTestEvaluator(t, now)
	ctx := context.Background()

	tests := []struct {
		condition models.Condition
		expected  bool
	}{
		{models.Condition{Type: "time", Operator: "greater_than", Value: "2024-05-01T00:00:00Z"}, true},
		{models.Condition{Type: "time", Operator: "less_than", Value: "2024-05-01T00:00:00Z"}, false},
		{models.Condition{Type: "time", Operator: "less_than", Value: float64(now.Add(time.Hour).UnixMilli())}, true},
		{models.Condition{Type: "time", Operator: "greater_than", Value: now.Add(-time.Hour).Unix()}, true},
		{models.Condition{Type: "time", Operator: "greater_than", Value: "2024-07-01"}, false},
		{models.Condition{Type: "time", Operator: "greater_than", Value: "yesterday"}, false},
		{models.Condition{Type: "time", Operator: "equals", Value: "2024-05-01T00:00:00Z"}, true},
	}

	for _, tt := range tests {
		ok, err := e.Evaluate(ctx, []models.Condition{tt.condition}, "L1", nil)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, ok, "%v", tt.condition.Value)
	}
}

func TestEvaluate_ShortCircuitsAndLoadsLeadOnce(t *testing.T) {
	e, reader := newTestEvaluator(t, time.Now())

	ok, err := e.Evaluate(context.Background(), []models.Condition{
		{Type: "field_value", Field: "plan", Operator: "equals", Value: "pro"},
		{Type: "lead_score", Operator: "greater_than", Value: 10},
		{Type: "field_value", Field: "plan", Operator: "equals", Value: "free"},
		{Type: "field_value", Field: "does_not_matter", Operator: "equals", Value: "x"},
	}, "L1", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, reader.calls)
}

func TestEvaluate_UnknownTypeIsTrue(t *testing.T) {
	e, _ := newTestEvaluator(t, time.Now())

	ok, err := e.Evaluate(context.Background(), []models.Condition{{Type: "geo", Operator: "equals", Value: "BR"}}, "L1", nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_LeadLookupFailure(t *testing.T) {
	e, _ := newTestEvaluator(t, time.Now())

	_, err := e.Evaluate(context.Background(), []models.Condition{{Type: "lead_score", Operator: "greater_than", Value: 1}}, "ghost", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, leads.ErrLeadNotFound)
}
