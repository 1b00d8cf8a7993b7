// Package template holds the section templates a journal draft is classified into.
//
// A Template is immutable once built. Reloading produces a new Template; sessions
// keep resolving against the snapshot they were handed until they ask again.
package template

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SectionDef describes one section of a template.
type SectionDef struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases"`
}

// Template is an ordered, validated set of sections.
type Template struct {
	name     string
	sections []SectionDef
	index    map[string]int // normalized name or alias -> section position
}

// New validates sections and builds a Template.
// Section names must be unique after normalization, and no alias may
// collide with another section's name or alias.
func New(name string, sections []SectionDef) (*Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("template %q has no sections", name)
	}

	t := &Template{
		name:     name,
		sections: make([]SectionDef, 0, len(sections)),
		index:    make(map[string]int, len(sections)*2),
	}

	for i, s := range sections {
		sectionName := strings.TrimSpace(s.Name)
		key := Normalize(sectionName)
		if key == "" {
			return nil, fmt.Errorf("sections[%d]: name is required", i)
		}
		if prev, ok := t.index[key]; ok {
			return nil, fmt.Errorf("sections[%d]: %q collides with section %q", i, sectionName, t.sections[prev].Name)
		}
		t.index[key] = i
		t.sections = append(t.sections, SectionDef{
			Name:        sectionName,
			Description: strings.TrimSpace(s.Description),
		})
	}

	// Aliases are indexed after every name so an alias can never shadow a name.
	for i, s := range sections {
		var aliases []string
		for _, alias := range s.Aliases {
			key := Normalize(alias)
			if key == "" {
				continue
			}
			if prev, ok := t.index[key]; ok {
				if prev == i {
					continue
				}
				return nil, fmt.Errorf("section %q: alias %q collides with section %q", t.sections[i].Name, alias, t.sections[prev].Name)
			}
			t.index[key] = i
			aliases = append(aliases, strings.TrimSpace(alias))
		}
		t.sections[i].Aliases = aliases
	}

	return t, nil
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.name
}

// Sections returns a copy of the section definitions in template order.
func (t *Template) Sections() []SectionDef {
	out := make([]SectionDef, len(t.sections))
	for i, s := range t.sections {
		out[i] = SectionDef{
			Name:        s.Name,
			Description: s.Description,
			Aliases:     append([]string(nil), s.Aliases...),
		}
	}
	return out
}

// SectionNames returns the canonical section names in template order.
func (t *Template) SectionNames() []string {
	names := make([]string, len(t.sections))
	for i, s := range t.sections {
		names[i] = s.Name
	}
	return names
}

// Resolve maps a candidate name to its canonical section name by exact
// name or alias, case-insensitively.
func (t *Template) Resolve(candidate string) (string, bool) {
	i, ok := t.index[Normalize(candidate)]
	if !ok {
		return "", false
	}
	return t.sections[i].Name, true
}

// Position returns the template order of a canonical section name, or -1.
func (t *Template) Position(section string) int {
	i, ok := t.index[Normalize(section)]
	if !ok || t.sections[i].Name != section {
		return -1
	}
	return i
}

type templateJSON struct {
	Name     string       `json:"name"`
	Sections []SectionDef `json:"sections"`
}

// MarshalJSON encodes the template as {name, sections}.
func (t *Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(templateJSON{Name: t.name, Sections: t.Sections()})
}
