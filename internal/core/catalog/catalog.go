// Package catalog maps category codes to display metadata, analysis templates and keywords.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

type entry struct {
	Code            string   `yaml:"code"`
	Name            string   `yaml:"name"`
	Icon            string   `yaml:"icon"`
	Color           string   `yaml:"color"`
	Description     string   `yaml:"description"`
	Alias           string   `yaml:"alias"`
	Role            string   `yaml:"role"`
	Focus           []string `yaml:"focus"`
	Sections        []string `yaml:"sections"`
	SummaryHint     string   `yaml:"summary_hint"`
	FallbackSummary string   `yaml:"fallback_summary"`
	Keywords        []string `yaml:"keywords"`
}

type document struct {
	Formatting         string  `yaml:"formatting"`
	DefaultSummaryHint string  `yaml:"default_summary_hint"`
	Categories         []entry `yaml:"categories"`
}

type Catalog struct {
	order       []domain.CategoryCode
	descriptors map[domain.CategoryCode]domain.CategoryDescriptor
	templates   map[domain.CategoryCode]InstructionTemplate
	keywords    map[domain.CategoryCode][]string
	hints       map[domain.CategoryCode]string
	fallbacks   map[domain.CategoryCode]string
}

// Load decodes a catalog document and checks that every category code is covered.
func Load(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if strings.TrimSpace(doc.Formatting) == "" {
		return nil, errors.New("catalog: formatting contract is required")
	}

	entries := make(map[domain.CategoryCode]entry, len(doc.Categories))
	for _, e := range doc.Categories {
		code, ok := domain.ParseCategoryCode(e.Code)
		if !ok {
			return nil, fmt.Errorf("catalog: unknown category code %q", e.Code)
		}
		if _, dup := entries[code]; dup {
			return nil, fmt.Errorf("catalog: duplicate category code %q", e.Code)
		}
		entries[code] = e
	}

	other, ok := entries[domain.CategoryOther]
	if !ok || len(other.Focus) == 0 || len(other.Sections) == 0 {
		return nil, errors.New("catalog: a complete entry for \"other\" is required")
	}

	c := &Catalog{
		descriptors: make(map[domain.CategoryCode]domain.CategoryDescriptor, len(entries)),
		templates:   make(map[domain.CategoryCode]InstructionTemplate, len(entries)),
		keywords:    make(map[domain.CategoryCode][]string, len(entries)),
		hints:       make(map[domain.CategoryCode]string, len(entries)),
		fallbacks:   make(map[domain.CategoryCode]string, len(entries)),
	}

	for _, code := range domain.Categories() {
		e, ok := entries[code]
		if !ok {
			return nil, fmt.Errorf("catalog: category %q has no entry", code)
		}
		if e.Name == "" || e.FallbackSummary == "" {
			return nil, fmt.Errorf("catalog: category %q needs name and fallback_summary", code)
		}

		source := e
		switch e.Alias {
		case "":
			if len(e.Focus) == 0 || len(e.Sections) == 0 || e.Role == "" {
				return nil, fmt.Errorf("catalog: category %q has no template and no alias", code)
			}
		case string(domain.CategoryOther):
			source = other
		default:
			return nil, fmt.Errorf("catalog: category %q may only alias %q", code, domain.CategoryOther)
		}

		c.order = append(c.order, code)
		c.descriptors[code] = domain.CategoryDescriptor{
			Code:        code,
			Name:        e.Name,
			Icon:        e.Icon,
			Color:       e.Color,
			Description: e.Description,
		}
		c.templates[code] = InstructionTemplate{
			Category:   code,
			Role:       source.Role,
			Focus:      append([]string(nil), source.Focus...),
			Sections:   append([]string(nil), source.Sections...),
			Formatting: strings.TrimSpace(doc.Formatting),
		}
		c.keywords[code] = normalizeKeywords(e.Keywords)
		c.fallbacks[code] = e.FallbackSummary

		hint := e.SummaryHint
		if hint == "" {
			hint = doc.DefaultSummaryHint
		}
		c.hints[code] = hint
	}

	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. It panics if the embedded data is inconsistent.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(embeddedCatalog)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// PromptFor is total: unknown codes get the template of CategoryOther.
func (c *Catalog) PromptFor(code domain.CategoryCode) InstructionTemplate {
	if tpl, ok := c.templates[code]; ok {
		return tpl
	}
	return c.templates[domain.CategoryOther]
}

func (c *Catalog) Descriptor(code domain.CategoryCode) domain.CategoryDescriptor {
	if d, ok := c.descriptors[code]; ok {
		return d
	}
	return c.descriptors[domain.CategoryOther]
}

// All returns descriptors in catalog order.
func (c *Catalog) All() []domain.CategoryDescriptor {
	out := make([]domain.CategoryDescriptor, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.descriptors[code])
	}
	return out
}

// Keywords returns lowercased classification keywords. CategoryOther has none.
func (c *Catalog) Keywords(code domain.CategoryCode) []string {
	return c.keywords[code]
}

func (c *Catalog) SummaryHint(code domain.CategoryCode) string {
	if hint, ok := c.hints[code]; ok {
		return hint
	}
	return c.hints[domain.CategoryOther]
}

func (c *Catalog) FallbackSummary(code domain.CategoryCode) string {
	if msg, ok := c.fallbacks[code]; ok {
		return msg
	}
	return c.fallbacks[domain.CategoryOther]
}

func normalizeKeywords(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
