package scrape

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the declarative per-organization scrape configuration:
// list-page configs, detail-page configs and the category seed rules.
type Registry struct {
	Orgs       []ScrapeConfig   `yaml:"orgs"`
	Details    []DetailConfig   `yaml:"details"`
	Categories []CategoryConfig `yaml:"categories"`
}

// FieldRule declares how one field is extracted relative to a row (list
// pages) or the document root (detail pages).
type FieldRule struct {
	Key          string `yaml:"key" json:"key"`
	Locator      string `yaml:"locator" json:"locator"`
	Target       string `yaml:"target,omitempty" json:"target,omitempty"`       // text | first | html | innerhtml | attr:<name>
	Transform    string `yaml:"transform,omitempty" json:"transform,omitempty"` // named post-processing, see transform.go
	TransformArg string `yaml:"transform_arg,omitempty" json:"transform_arg,omitempty"`
}

// RenderConfig tunes the headless fallback tier for one organization.
type RenderConfig struct {
	WaitLocator string `yaml:"wait,omitempty"`   // default: the root row locator
	Scroll      bool   `yaml:"scroll,omitempty"` // scroll pass before extraction (lazy-loaded lists)
}

// ScrapeConfig is one organization's list-page configuration.
type ScrapeConfig struct {
	OrgID          string       `yaml:"org_id,omitempty"`
	OrgName        string       `yaml:"org_name"`
	URL            string       `yaml:"url"`            // may contain the ${i} page placeholder
	PagingLocator  string       `yaml:"paging,omitempty"` // used when the URL has no placeholder
	StartPage      int          `yaml:"start_page,omitempty"`
	EndPage        int          `yaml:"end_page,omitempty"`
	Enabled        bool         `yaml:"enabled"`
	RowLocator     string       `yaml:"rows"`
	ExceptionRow   string       `yaml:"exception_row,omitempty"` // presence marks a row for exclusion
	Fields         []FieldRule  `yaml:"fields"`
	Render         RenderConfig `yaml:"render,omitempty"`
	Referer        string       `yaml:"referer,omitempty"`
	TimeoutSeconds int          `yaml:"timeout_seconds,omitempty"`
}

// DetailConfig is one organization's detail-page configuration.
type DetailConfig struct {
	OrgName   string      `yaml:"org_name"`
	SampleURL string      `yaml:"sample_url,omitempty"` // known-good URL for health checks
	Encoder   string      `yaml:"encoder,omitempty"`    // attachment URL encoder, see encoders.go
	Fields    []FieldRule `yaml:"fields"`
}

// CategoryConfig seeds one weighted keyword rule. Keywords is a
// comma-separated list of "keyword" or "keyword*weight" entries.
type CategoryConfig struct {
	Category   string `yaml:"category"`
	Keywords   string `yaml:"keywords"`
	Exclusions string `yaml:"exclusions,omitempty"`
	MinPoint   int    `yaml:"min_point"`
	Priority   int    `yaml:"priority"`
}

// PagePlaceholder is substituted with the page number in URL templates.
const PagePlaceholder = "${i}"

// LoadRegistry reads the embedded sources.yaml, falling back to the given
// filesystem path for local development. Environment variables in the YAML
// are expanded before parsing.
func LoadRegistry(path string) (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if err != nil {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, err
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate rejects configs that must never reach a fetch: missing identity
// or row locator, inverted page ranges, and unregistered transform or
// encoder names.
func (r *Registry) Validate() error {
	seen := make(map[string]bool, len(r.Orgs))
	for i := range r.Orgs {
		cfg := &r.Orgs[i]
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("orgs[%d]: %w", i, err)
		}
		if seen[cfg.OrgName] {
			return fmt.Errorf("orgs[%d]: duplicate org_name %q", i, cfg.OrgName)
		}
		seen[cfg.OrgName] = true
	}

	for i := range r.Details {
		d := &r.Details[i]
		if strings.TrimSpace(d.OrgName) == "" {
			return fmt.Errorf("details[%d]: org_name is required", i)
		}
		if d.Encoder != "" && !KnownEncoder(d.Encoder) {
			return fmt.Errorf("details[%d] (%s): unknown encoder %q", i, d.OrgName, d.Encoder)
		}
		if err := validateFields(d.Fields); err != nil {
			return fmt.Errorf("details[%d] (%s): %w", i, d.OrgName, err)
		}
	}

	for i := range r.Categories {
		c := &r.Categories[i]
		if strings.TrimSpace(c.Category) == "" {
			return fmt.Errorf("categories[%d]: category name is required", i)
		}
		if strings.TrimSpace(c.Keywords) == "" {
			return fmt.Errorf("categories[%d] (%s): keywords are required", i, c.Category)
		}
	}

	return nil
}

// Validate checks the invariants of one list config.
func (c *ScrapeConfig) Validate() error {
	if strings.TrimSpace(c.OrgName) == "" {
		return fmt.Errorf("org_name is required")
	}
	if strings.TrimSpace(c.RowLocator) == "" {
		return fmt.Errorf("%s: rows locator is required", c.OrgName)
	}
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("%s: url is required", c.OrgName)
	}
	if c.StartPage == 0 {
		c.StartPage = 1
	}
	if c.EndPage == 0 {
		c.EndPage = c.StartPage
	}
	if c.StartPage > c.EndPage {
		return fmt.Errorf("%s: start_page %d > end_page %d", c.OrgName, c.StartPage, c.EndPage)
	}
	return validateFields(c.Fields)
}

// FindOrg returns the list config for an organization name.
func (r *Registry) FindOrg(orgName string) (*ScrapeConfig, bool) {
	for i := range r.Orgs {
		if r.Orgs[i].OrgName == orgName {
			return &r.Orgs[i], true
		}
	}
	return nil, false
}

// FindDetail returns the detail config for an organization name.
func (r *Registry) FindDetail(orgName string) (*DetailConfig, bool) {
	for i := range r.Details {
		if r.Details[i].OrgName == orgName {
			return &r.Details[i], true
		}
	}
	return nil, false
}

// EnabledOrgs lists the names of all enabled organizations in config order.
func (r *Registry) EnabledOrgs() []string {
	var names []string
	for i := range r.Orgs {
		if r.Orgs[i].Enabled {
			names = append(names, r.Orgs[i].OrgName)
		}
	}
	return names
}

func validateFields(fields []FieldRule) error {
	for _, f := range fields {
		if strings.TrimSpace(f.Key) == "" {
			return fmt.Errorf("field with empty key")
		}
		if !ValidTarget(f.Target) {
			return fmt.Errorf("field %s: invalid target %q", f.Key, f.Target)
		}
		if !KnownTransform(f.Transform) {
			return fmt.Errorf("field %s: unknown transform %q", f.Key, f.Transform)
		}
	}
	return nil
}
