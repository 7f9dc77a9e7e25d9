package actions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leadflow/leadflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

func object(required []string, properties map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

var (
	stringProp    = map[string]any{"type": "string"}
	nonEmptyProp  = map[string]any{"type": "string", "minLength": 1}
	tagSchema     = object(nil, map[string]any{"tag": nonEmptyProp})
	segmentSchema = object(nil, map[string]any{"segment": nonEmptyProp})
)

// configSchemas holds the JSON schema each action type's config must satisfy.
var configSchemas = map[models.ActionType]map[string]any{
	models.ActionSendEmail: object([]string{"subject", "body"}, map[string]any{
		"subject":  nonEmptyProp,
		"body":     nonEmptyProp,
		"from":     stringProp,
		"reply_to": stringProp,
	}),
	models.ActionSendSMS: object([]string{"message"}, map[string]any{
		"message": nonEmptyProp,
		"from":    stringProp,
	}),
	models.ActionSendWhatsApp: object(nil, map[string]any{
		"message_type": map[string]any{
			"type": "string",
			"enum": []any{"text", "template", "image", "document", "location", "buttons", "list"},
		},
		"text":            stringProp,
		"preview_url":     map[string]any{"type": "boolean"},
		"template_name":   stringProp,
		"language":        stringProp,
		"template_params": map[string]any{"type": "array", "items": stringProp},
		"media_url":       stringProp,
		"caption":         stringProp,
		"filename":        stringProp,
		"latitude":        map[string]any{"type": "number", "minimum": -90, "maximum": 90},
		"longitude":       map[string]any{"type": "number", "minimum": -180, "maximum": 180},
		"buttons": map[string]any{
			"type":     "array",
			"minItems": 1,
			"maxItems": 3,
			"items": object([]string{"id", "title"}, map[string]any{
				"id":    nonEmptyProp,
				"title": map[string]any{"type": "string", "minLength": 1, "maxLength": 20},
			}),
		},
		"list_button": stringProp,
		"sections": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": object([]string{"rows"}, map[string]any{
				"title": stringProp,
				"rows": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items":    object([]string{"id", "title"}, map[string]any{"id": nonEmptyProp, "title": nonEmptyProp}),
				},
			}),
		},
	}),
	models.ActionAddTag:            tagSchema,
	models.ActionRemoveTag:         tagSchema,
	models.ActionAddToSegment:      segmentSchema,
	models.ActionRemoveFromSegment: segmentSchema,
	models.ActionUpdateField: object([]string{"field", "value"}, map[string]any{
		"field": nonEmptyProp,
	}),
	models.ActionCreateTask: object([]string{"title"}, map[string]any{
		"title":        nonEmptyProp,
		"description":  stringProp,
		"assignee":     stringProp,
		"due_in_hours": map[string]any{"type": "integer", "minimum": 0},
	}),
	models.ActionWait: object([]string{"duration", "unit"}, map[string]any{
		"duration": map[string]any{"type": "integer", "minimum": 0},
		"unit":     map[string]any{"type": "string", "enum": []any{"minutes", "hours", "days", "weeks"}},
	}),
	models.ActionWebhook: object([]string{"url"}, map[string]any{
		"url":             map[string]any{"type": "string", "pattern": "^https?://"},
		"method":          map[string]any{"type": "string", "pattern": "^(?i)(GET|POST|PUT|PATCH|DELETE)$"},
		"headers":         map[string]any{"type": "object", "additionalProperties": stringProp},
		"timeout_seconds": map[string]any{"type": "integer", "minimum": 1, "maximum": 300},
	}),
}

// ValidateConfig checks config against the schema of actionType. Types
// without a schema pass.
func ValidateConfig(actionType models.ActionType, config map[string]any) error {
	schema, ok := configSchemas[actionType]
	if !ok {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// DecodeSpec validates and converts an action's raw config into its typed
// spec. Unknown types decode to nil without error.
func DecodeSpec(action models.Action) (models.ActionSpec, error) {
	if err := ValidateConfig(action.Type, action.Config); err != nil {
		return nil, err
	}

	switch action.Type {
	case models.ActionSendEmail:
		return decodeInto[models.EmailSpec](action.Config)
	case models.ActionSendSMS:
		return decodeInto[models.SMSSpec](action.Config)
	case models.ActionSendWhatsApp:
		spec, err := decodeInto[models.WhatsAppSpec](action.Config)
		if err != nil {
			return nil, err
		}

		return spec, validateWhatsApp(spec)
	case models.ActionAddTag, models.ActionRemoveTag:
		spec, err := decodeInto[models.TagSpec](action.Config)
		spec.Kind = action.Type

		return spec, err
	case models.ActionAddToSegment, models.ActionRemoveFromSegment:
		spec, err := decodeInto[models.SegmentSpec](action.Config)
		spec.Kind = action.Type

		return spec, err
	case models.ActionUpdateField:
		return decodeInto[models.UpdateFieldSpec](action.Config)
	case models.ActionCreateTask:
		return decodeInto[models.CreateTaskSpec](action.Config)
	case models.ActionWait:
		return decodeInto[models.WaitSpec](action.Config)
	case models.ActionWebhook:
		spec, err := decodeInto[models.WebhookSpec](action.Config)
		spec.Method = strings.ToUpper(spec.Method)

		if spec.Method == "" {
			spec.Method = "POST"
		}

		return spec, err
	default:
		return nil, nil
	}
}

// PrepareWorkflow decodes every action spec of def in place.
func PrepareWorkflow(def *models.WorkflowDefinition) error {
	for i := range def.Actions {
		action := &def.Actions[i]

		spec, err := DecodeSpec(*action)
		if err != nil {
			return models.WrapEngineError(models.CodeInvalidWorkflow, err, map[string]any{
				"workflow_id": def.ID,
				"action_id":   action.ID,
				"action_type": action.Type,
			})
		}

		action.Spec = spec
	}

	return nil
}

func decodeInto[T any](config map[string]any) (T, error) {
	var spec T

	raw, err := json.Marshal(config)
	if err != nil {
		return spec, fmt.Errorf("failed to encode config: %w", err)
	}

	if err := json.Unmarshal(raw, &spec); err != nil {
		return spec, fmt.Errorf("failed to decode config: %w", err)
	}

	return spec, nil
}

func validateWhatsApp(spec models.WhatsAppSpec) error {
	var missing string

	switch spec.MessageType {
	case models.WhatsAppText, "":
		if spec.Text == "" {
			missing = "text"
		}
	case models.WhatsAppTemplate:
		if spec.TemplateName == "" {
			missing = "template_name"
		}
	case models.WhatsAppImage, models.WhatsAppDocument:
		if spec.MediaURL == "" {
			missing = "media_url"
		}
	case models.WhatsAppButtons:
		if spec.Text == "" || len(spec.Buttons) == 0 {
			missing = "text and buttons"
		}
	case models.WhatsAppList:
		if spec.Text == "" || spec.ListButton == "" || len(spec.Sections) == 0 {
			missing = "text, list_button and sections"
		}
	}

	if missing != "" {
		return fmt.Errorf("whatsapp %s message requires %s", spec.MessageType, missing)
	}

	return nil
}
