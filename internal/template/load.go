package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a template from disk. The format follows the extension:
// .yaml/.yml for YAML, .md/.markdown for Markdown.
func LoadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".md", ".markdown":
		return ParseMarkdown(data)
	default:
		return nil, fmt.Errorf("unsupported template format %q (want .yaml, .yml or .md)", filepath.Ext(path))
	}
}

type yamlTemplate struct {
	Name     string       `yaml:"name"`
	Sections []SectionDef `yaml:"sections"`
}

// ParseYAML parses a template of the form:
//
//	name: Daily Journal
//	sections:
//	  - name: Events
//	    description: Things that happened
//	    aliases: [happenings]
func ParseYAML(data []byte) (*Template, error) {
	var doc yamlTemplate
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse template yaml: %w", err)
	}
	return New(doc.Name, doc.Sections)
}

// aliasPrefix introduces the alias line under a Markdown section heading.
const aliasPrefix = "aliases:"

// ParseMarkdown parses a template written as Markdown. The first level-1
// heading names the template, each level-2 heading starts a section, paragraph
// lines under it form the description and a line starting with "Aliases:"
// lists comma-separated aliases.
func ParseMarkdown(data []byte) (*Template, error) {
	doc := goldmark.DefaultParser().Parse(text.NewReader(data))

	var (
		name     string
		sections []SectionDef
		current  *SectionDef
	)

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(blockText(node, data))
			switch node.Level {
			case 1:
				if name == "" {
					name = title
				}
			case 2:
				sections = append(sections, SectionDef{Name: title})
				current = &sections[len(sections)-1]
			}
		case *ast.Paragraph:
			if current == nil {
				continue
			}
			for _, line := range strings.Split(blockText(node, data), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if strings.HasPrefix(strings.ToLower(line), aliasPrefix) {
					current.Aliases = append(current.Aliases, splitList(line[len(aliasPrefix):])...)
					continue
				}
				if current.Description != "" {
					current.Description += " "
				}
				current.Description += line
			}
		}
	}

	if name == "" {
		return nil, fmt.Errorf("markdown template has no level-1 heading")
	}
	return New(name, sections)
}

// blockText joins the raw source lines of a block node, one per line.
func blockText(n ast.Node, source []byte) string {
	lines := n.Lines()
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.WriteString(strings.TrimRight(string(seg.Value(source)), "\r\n"))
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
