// Package modelcatalog holds the fixed set of models users can pick from.
// Identifiers are gateway-style ("openai/gpt-4o") and pass through to the
// completion API unchanged.
package modelcatalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var rawCatalog []byte

type Model struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

type Catalog struct {
	defaultID string
	models    []Model
	index     map[string]Model
}

type catalogFile struct {
	Default string  `yaml:"default"`
	Models  []Model `yaml:"models"`
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return parse(rawCatalog)
}

func parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("model catalog has no models")
	}

	c := &Catalog{
		defaultID: strings.TrimSpace(file.Default),
		models:    make([]Model, 0, len(file.Models)),
		index:     make(map[string]Model, len(file.Models)),
	}
	for _, m := range file.Models {
		m.ID = strings.TrimSpace(m.ID)
		m.Label = strings.TrimSpace(m.Label)
		if m.ID == "" {
			return nil, fmt.Errorf("model catalog entry missing id")
		}
		if _, dup := c.index[m.ID]; dup {
			return nil, fmt.Errorf("model catalog duplicate id: %s", m.ID)
		}
		if m.Label == "" {
			m.Label = m.ID
		}
		c.models = append(c.models, m)
		c.index[m.ID] = m
	}
	if c.defaultID == "" {
		c.defaultID = c.models[0].ID
	}
	if _, ok := c.index[c.defaultID]; !ok {
		return nil, fmt.Errorf("model catalog default %q not in models", c.defaultID)
	}
	return c, nil
}

// Default returns the catalog's default model ID.
func (c *Catalog) Default() string {
	return c.defaultID
}

// Models returns the catalog entries in file order.
func (c *Catalog) Models() []Model {
	out := make([]Model, len(c.models))
	copy(out, c.models)
	return out
}

// Has reports whether the ID is a selectable model.
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[strings.TrimSpace(id)]
	return ok
}

// Label returns the display label for the ID, falling back to the ID itself.
func (c *Catalog) Label(id string) string {
	if m, ok := c.index[strings.TrimSpace(id)]; ok {
		return m.Label
	}
	return strings.TrimSpace(id)
}
