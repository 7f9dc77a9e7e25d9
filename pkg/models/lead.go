package models

import (
	"strings"
	"time"
)

// LeadStatusConverted marks a lead that has become a customer.
const LeadStatusConverted = "converted"

// Lead is the contact a workflow runs for. Attributes not modelled as fields
// live in Fields.
type Lead struct {
	ID        string         `json:"id"`
	Email     string         `json:"email,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	FirstName string         `json:"first_name,omitempty"`
	LastName  string         `json:"last_name,omitempty"`
	Status    string         `json:"status,omitempty"`
	Score     float64        `json:"score"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Get resolves a field by name, looking at the modelled attributes first.
func (l *Lead) Get(field string) (any, bool) {
	switch strings.ToLower(field) {
	case "id":
		return l.ID, true
	case "email":
		return l.Email, l.Email != ""
	case "phone":
		return l.Phone, l.Phone != ""
	case "first_name", "firstname":
		return l.FirstName, l.FirstName != ""
	case "last_name", "lastname":
		return l.LastName, l.LastName != ""
	case "status":
		return l.Status, l.Status != ""
	case "score":
		return l.Score, true
	}

	v, ok := l.Fields[field]

	return v, ok
}

// Apply merges a partial update into the lead.
func (l *Lead) Apply(fields map[string]any) {
	for field, value := range fields {
		str, isString := value.(string)

		switch strings.ToLower(field) {
		case "email":
			if isString {
				l.Email = str

				continue
			}
		case "phone":
			if isString {
				l.Phone = str

				continue
			}
		case "first_name", "firstname":
			if isString {
				l.FirstName = str

				continue
			}
		case "last_name", "lastname":
			if isString {
				l.LastName = str

				continue
			}
		case "status":
			if isString {
				l.Status = str

				continue
			}
		case "score":
			if score, ok := ToFloat(value); ok {
				l.Score = score

				continue
			}
		}

		if l.Fields == nil {
			l.Fields = make(map[string]any)
		}

		l.Fields[field] = value
	}
}

// IsConverted reports whether the lead reached the converted state.
func (l *Lead) IsConverted() bool {
	if strings.EqualFold(l.Status, LeadStatusConverted) {
		return true
	}

	converted, _ := l.Fields["converted"].(bool)

	return converted
}

// TemplateData exposes the lead to message templates.
func (l *Lead) TemplateData() map[string]any {
	data := map[string]any{
		"id":         l.ID,
		"email":      l.Email,
		"phone":      l.Phone,
		"first_name": l.FirstName,
		"last_name":  l.LastName,
		"status":     l.Status,
		"score":      l.Score,
	}

	for k, v := range l.Fields {
		if _, exists := data[k]; !exists {
			data[k] = v
		}
	}

	return data
}

// Clone returns a copy that does not share the Fields map.
func (l *Lead) Clone() *Lead {
	out := *l
	out.Fields = CloneMap(l.Fields)

	return &out
}
