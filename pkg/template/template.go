// Package template personalizes message bodies, webhook payloads and URLs with
// lead attributes and execution context.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/leadflow/leadflow/pkg/models"
)

const noValue = "<no value>"

// Data builds the template root for a lead and an execution context.
//
//	{{ .lead.first_name }}  {{ .trigger.form_id }}  {{ .steps.a1.status }}  {{ .env.HOME }}
func Data(lead *models.Lead, execContext map[string]any) map[string]any {
	data := map[string]any{
		"context": execContext,
		"env":     getEnvVars(),
	}

	// Absent keys render empty; a nil entry would fail on field access.
	for _, key := range []string{models.ContextKeyTrigger, models.ContextKeySteps} {
		if v, ok := execContext[key]; ok && v != nil {
			data[key] = v
		}
	}

	if lead != nil {
		data["lead"] = lead.TemplateData()
	}

	return data
}

// NeedsTemplating reports whether input contains template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// RenderString executes a template and returns its text. Missing keys render
// as empty strings.
func RenderString(templateStr string, data any) (string, error) {
	if !NeedsTemplating(templateStr) {
		return templateStr, nil
	}

	tmpl, err := newTemplate(templateStr)
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), noValue, ""), nil
}

// Render executes a template and converts the output to JSON, number or bool
// when it looks like one.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderValue walks maps and slices and renders every string leaf as text.
func RenderValue(value any, data any) (any, error) {
	switch v := value.(type) {
	case string:
		return RenderString(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			rendered, err := RenderValue(item, data)
			if err != nil {
				return nil, err
			}

			out[key] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := RenderValue(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

func newTemplate(templateStr string) (*template.Template, error) {
	tmpl, err := template.
		New("message").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"title": func(s string) string {
				if s == "" {
					return s
				}

				return strings.ToUpper(s[:1]) + s[1:]
			},
			"default": func(fallback, value any) any {
				if value == nil || value == "" {
					return fallback
				}

				return value
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return tmpl, nil
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
