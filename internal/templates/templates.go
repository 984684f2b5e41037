// Package templates holds the static catalog of document templates the
// compiler renders. Templates are versioned configuration, not user data.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

var (
	ErrNotFound = errors.New("template not found")
	ErrInvalid  = errors.New("invalid template")
)

// Section is one ordered part of a template. A section with no claim types
// and no tags accepts every included claim.
type Section struct {
	Key          string   `yaml:"key" json:"key"`
	Title        string   `yaml:"title" json:"title"`
	ClaimTypes   []string `yaml:"claim_types" json:"claim_types,omitempty"`
	Tags         []string `yaml:"tags" json:"tags,omitempty"`
	AlwaysRender bool     `yaml:"always_render" json:"always_render"`
	Placeholder  string   `yaml:"placeholder" json:"placeholder,omitempty"`
}

// Matches reports whether a claim with the type and tags belongs in the
// section.
func (s Section) Matches(claimType string, tags []string) bool {
	return matches(s.ClaimTypes, s.Tags, claimType, tags)
}

// Template defines what a compiled document contains and the evidentiary
// bar its claims must meet.
type Template struct {
	Key                    string    `yaml:"key" json:"key"`
	Version                string    `yaml:"version" json:"version"`
	Title                  string    `yaml:"title" json:"title"`
	Description            string    `yaml:"description" json:"description,omitempty"`
	RequiredClaimTypes     []string  `yaml:"required_claim_types" json:"required_claim_types,omitempty"`
	RequiredTags           []string  `yaml:"required_tags" json:"required_tags,omitempty"`
	RequiredCitationCount  int       `yaml:"required_citation_count" json:"required_citation_count"`
	AllowMissingInfoClaims bool      `yaml:"allow_missing_info_claims" json:"allow_missing_info_claims"`
	Sections               []Section `yaml:"sections" json:"sections"`
}

// Includes reports whether a claim with the type and tags is in scope for
// the template.
func (t Template) Includes(claimType string, tags []string) bool {
	return matches(t.RequiredClaimTypes, t.RequiredTags, claimType, tags)
}

func matches(types, wantTags []string, claimType string, tags []string) bool {
	if len(types) > 0 && !slices.Contains(types, strings.ToLower(claimType)) {
		return false
	}
	if len(wantTags) == 0 {
		return true
	}
	for _, tag := range tags {
		if slices.Contains(wantTags, strings.ToLower(tag)) {
			return true
		}
	}
	return false
}

func (t *Template) validate() error {
	if t.Key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalid)
	}
	if t.Version == "" {
		return fmt.Errorf("%w: %s: version is required", ErrInvalid, t.Key)
	}
	if t.RequiredCitationCount < 0 {
		return fmt.Errorf("%w: %s: required_citation_count must not be negative", ErrInvalid, t.Key)
	}
	if len(t.Sections) == 0 {
		return fmt.Errorf("%w: %s: at least one section is required", ErrInvalid, t.Key)
	}

	seen := make(map[string]bool, len(t.Sections))
	for _, s := range t.Sections {
		if s.Key == "" || s.Title == "" {
			return fmt.Errorf("%w: %s: sections need a key and title", ErrInvalid, t.Key)
		}
		if seen[s.Key] {
			return fmt.Errorf("%w: %s: duplicate section %q", ErrInvalid, t.Key, s.Key)
		}
		seen[s.Key] = true
	}

	t.RequiredClaimTypes = lower(t.RequiredClaimTypes)
	t.RequiredTags = lower(t.RequiredTags)
	for i := range t.Sections {
		t.Sections[i].ClaimTypes = lower(t.Sections[i].ClaimTypes)
		t.Sections[i].Tags = lower(t.Sections[i].Tags)
	}
	return nil
}

func lower(values []string) []string {
	for i, v := range values {
		values[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return values
}

// Catalog is an immutable set of templates keyed by Key.
type Catalog struct {
	templates map[string]Template
	keys      []string
}

// Default loads the templates shipped with the service.
func Default() (*Catalog, error) {
	return Load(catalogFS, "catalog")
}

// Load parses every .yaml file in dir of fsys into a Catalog.
func Load(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}

	c := &Catalog{templates: make(map[string]Template)}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}

		t, err := parseFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := c.templates[t.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q in %s", ErrInvalid, t.Key, e.Name())
		}
		c.templates[t.Key] = t
		c.keys = append(c.keys, t.Key)
	}

	slices.Sort(c.keys)
	return c, nil
}

func parseFile(fsys fs.FS, name string) (Template, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return Template{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var t Template
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Template{}, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	if err := t.validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Get returns the template with key.
func (c *Catalog) Get(key string) (Template, error) {
	t, ok := c.templates[key]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return t, nil
}

// List returns every template ordered by key.
func (c *Catalog) List() []Template {
	out := make([]Template, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.templates[k])
	}
	return out
}
