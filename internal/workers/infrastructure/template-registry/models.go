// internal/workers/infrastructure/template-registry/models.go
package templateregistry

// Template is an immutable subject/body pair with named {placeholder} markers.
type Template struct {
	ID           string
	Subject      string
	Body         string
	Placeholders []string
}

// RenderedMessage is a template with every placeholder substituted.
type RenderedMessage struct {
	TemplateID string `json:"template_id"`
	Subject    string `json:"subject"`
	HTMLBody   string `json:"html_body"`
}

type manifest struct {
	Templates []manifestEntry `yaml:"templates"`
}

type manifestEntry struct {
	ID           string   `yaml:"id"`
	Subject      string   `yaml:"subject"`
	Body         string   `yaml:"body"`
	Placeholders []string `yaml:"placeholders"`
}
