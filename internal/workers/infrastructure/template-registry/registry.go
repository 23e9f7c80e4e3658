// internal/workers/infrastructure/template-registry/registry.go
package templateregistry

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"notification-relay/internal/common/errors"
	"notification-relay/internal/common/logger"
	"notification-relay/internal/common/validation"
)

const (
	BookingConfirmation = "booking_confirmation"
	PaymentConfirmation = "payment_confirmation"
	AppointmentReminder = "appointment_reminder"

	manifestFile = "manifest.yaml"
)

//go:embed templates/*
var embedded embed.FS

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Registry is a fixed, read-only set of templates loaded once at startup.
type Registry struct {
	templates map[string]*Template
	schemas   map[string]validation.JSONSchema
	ids       []string
	logger    logger.Logger
}

// New loads the embedded templates.
func New(log logger.Logger) (*Registry, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, fmt.Errorf("open embedded templates: %w", err)
	}
	return NewFromFS(sub, log)
}

// NewFromFS loads a manifest.yaml and the bodies it references from fsys.
func NewFromFS(fsys fs.FS, log logger.Logger) (*Registry, error) {
	raw, err := fs.ReadFile(fsys, manifestFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", manifestFile, err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestFile, err)
	}
	if len(m.Templates) == 0 {
		return nil, fmt.Errorf("%s declares no templates", manifestFile)
	}

	r := &Registry{
		templates: make(map[string]*Template, len(m.Templates)),
		schemas:   make(map[string]validation.JSONSchema, len(m.Templates)),
		logger:    log.Named("template-registry"),
	}

	for _, entry := range m.Templates {
		if entry.ID == "" {
			return nil, fmt.Errorf("%s: template without id", manifestFile)
		}
		if _, dup := r.templates[entry.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate template %q", manifestFile, entry.ID)
		}

		body, err := fs.ReadFile(fsys, path.Clean(entry.Body))
		if err != nil {
			return nil, fmt.Errorf("template %s: read body: %w", entry.ID, err)
		}

		tmpl := &Template{
			ID:           entry.ID,
			Subject:      entry.Subject,
			Body:         string(body),
			Placeholders: append([]string(nil), entry.Placeholders...),
		}
		if err := checkPlaceholders(tmpl); err != nil {
			return nil, err
		}

		r.templates[tmpl.ID] = tmpl
		r.schemas[tmpl.ID] = fieldSchema(tmpl)
		r.ids = append(r.ids, tmpl.ID)
	}
	sort.Strings(r.ids)

	r.logger.Info("Template registry loaded", map[string]interface{}{"templates": r.ids})
	return r, nil
}

// checkPlaceholders fails when the declared placeholders differ from the markers found in the text.
func checkPlaceholders(t *Template) error {
	found := extractPlaceholders(t.Subject + t.Body)
	declared := make(map[string]bool, len(t.Placeholders))
	for _, p := range t.Placeholders {
		declared[p] = true
	}

	var undeclared, unused []string
	for _, p := range found {
		if !declared[p] {
			undeclared = append(undeclared, p)
		}
		delete(declared, p)
	}
	for p := range declared {
		unused = append(unused, p)
	}
	sort.Strings(unused)

	if len(undeclared) > 0 || len(unused) > 0 {
		return fmt.Errorf("template %s: placeholders out of sync (undeclared=%v unused=%v)", t.ID, undeclared, unused)
	}
	return nil
}

func extractPlaceholders(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	sort.Strings(out)
	return out
}

func fieldSchema(t *Template) validation.JSONSchema {
	props := make(map[string]validation.Property, len(t.Placeholders))
	for _, p := range t.Placeholders {
		props[p] = validation.Property{Type: validation.Scalar}
	}
	return validation.JSONSchema{
		Type:                 "object",
		Properties:           props,
		Required:             append([]string(nil), t.Placeholders...),
		AdditionalProperties: true,
	}
}

// Resolve returns the template registered under id, or a TEMPLATE_NOT_FOUND error.
func (r *Registry) Resolve(id string) (*Template, error) {
	tmpl, ok := r.templates[id]
	if !ok {
		return nil, errors.NewTemplateNotFoundError(id)
	}
	return tmpl, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.templates[id]
	return ok
}

// IDs lists the registered template ids in sorted order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Render substitutes every placeholder of tmpl with its value from fields.
// A missing or non-scalar field yields a RENDER_ERROR naming every offending
// placeholder, and nothing is rendered.
func (r *Registry) Render(tmpl *Template, fields map[string]interface{}) (*RenderedMessage, error) {
	if fields == nil {
		fields = map[string]interface{}{}
	}

	schema, ok := r.schemas[tmpl.ID]
	if !ok {
		schema = fieldSchema(tmpl)
	}

	result, err := validation.Validate(fields, schema)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	if !result.Valid {
		bad := result.Fields()
		r.logger.Warn("Template fields rejected", map[string]interface{}{
			"template": tmpl.ID,
			"fields":   bad,
			"errors":   result.GetErrorMessages(),
		})
		return nil, errors.NewRenderFailureError(tmpl.ID, bad)
	}

	pairs := make([]string, 0, len(tmpl.Placeholders)*2)
	for _, p := range tmpl.Placeholders {
		pairs = append(pairs, "{"+p+"}", FormatValue(fields[p]))
	}
	replacer := strings.NewReplacer(pairs...)

	return &RenderedMessage{
		TemplateID: tmpl.ID,
		Subject:    replacer.Replace(tmpl.Subject),
		HTMLBody:   replacer.Replace(tmpl.Body),
	}, nil
}

// FormatValue returns the canonical text of a decoded JSON scalar.
// Whole numbers print without a fractional part.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
