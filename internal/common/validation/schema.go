package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema defines the structure for payload schemas
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties,omitempty"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

type Property struct {
	Type          Types               `json:"type,omitempty"`
	Description   string              `json:"description,omitempty"`
	MinLength     *int                `json:"minLength,omitempty"`
	MaxLength     *int                `json:"maxLength,omitempty"`
	MinProperties *int                `json:"minProperties,omitempty"`
	Properties    map[string]Property `json:"properties,omitempty"`
	Required      []string            `json:"required,omitempty"`
}

// Types is a JSON Schema "type" keyword; a single entry marshals as a plain string.
type Types []string

func (t Types) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// Scalar accepts any JSON value that renders as text.
var Scalar = Types{"string", "number", "integer", "boolean"}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validate checks document against schema with gojsonschema.
// A non-nil error means the schema itself could not be compiled.
func Validate(document interface{}, schema JSONSchema) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	documentLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if desc.Type() == "required" {
			if prop, ok := desc.Details()["property"].(string); ok {
				field = strings.TrimPrefix(field+"."+prop, "(root).")
			}
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Message: desc.Description(),
			Code:    desc.Type(),
		})
	}
	return out, nil
}

// ValidateJSON is Validate for raw JSON bytes.
func ValidateJSON(raw []byte, schema JSONSchema) (*ValidationResult, error) {
	var document interface{}
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return Validate(document, schema)
}

func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, 0, len(vr.Errors))
	for _, err := range vr.Errors {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return messages
}

// Fields returns the sorted, de-duplicated list of fields with errors.
func (vr *ValidationResult) Fields() []string {
	seen := make(map[string]struct{}, len(vr.Errors))
	fields := make([]string, 0, len(vr.Errors))
	for _, err := range vr.Errors {
		if _, ok := seen[err.Field]; ok {
			continue
		}
		seen[err.Field] = struct{}{}
		fields = append(fields, err.Field)
	}
	sort.Strings(fields)
	return fields
}

func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// ValidateEmail is a loose syntactic check used by the preview tool.
func ValidateEmail(email string) bool {
	pattern := `^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`
	matched, _ := regexp.MatchString(pattern, email)
	return matched
}
