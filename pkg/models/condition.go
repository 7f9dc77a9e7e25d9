package models

// ConditionType selects how a condition is evaluated.
type ConditionType string

const (
	ConditionFieldValue ConditionType = "field_value"
	ConditionLeadScore  ConditionType = "lead_score"
	ConditionSegment    ConditionType = "segment"
	ConditionBehavior   ConditionType = "behavior"
	ConditionTime       ConditionType = "time"
)

// Operator compares a resolved value against Condition.Value.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
)

// Condition is a predicate over lead state, segments, behaviors or time.
type Condition struct {
	Type     ConditionType `json:"type"            yaml:"type"            validate:"required"`
	Field    string        `json:"field,omitempty" yaml:"field,omitempty"`
	Operator Operator      `json:"operator"        yaml:"operator"`
	Value    any           `json:"value"           yaml:"value"`
}
