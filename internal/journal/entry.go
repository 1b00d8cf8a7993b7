// Package journal defines finalized journal entries and their section content.
package journal

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Entry is an immutable finalized journal record.
type Entry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	CreatedAt time.Time      `json:"created_at"`
	RawText   string         `json:"raw_text"`
	Data      StructuredData `json:"structured_data"`
}

// StructuredData is the finalized draft plus metadata.
type StructuredData struct {
	Sections map[string]Content `json:"sections"`
	Order    []string           `json:"order,omitempty"`
	Metadata Metadata           `json:"metadata"`
}

// Metadata records where and when an entry was generated.
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	SessionID   string    `json:"session_id"`
	Template    string    `json:"template,omitempty"`
}

// Summary is the list view of an entry.
type Summary struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Sections  []string  `json:"sections"`
	Chars     int       `json:"chars"`
}

// SectionOrder returns section names in recorded order followed by any
// remaining names sorted alphabetically.
func (d StructuredData) SectionOrder() []string {
	seen := make(map[string]bool, len(d.Sections))
	out := make([]string, 0, len(d.Sections))
	for _, name := range d.Order {
		if _, ok := d.Sections[name]; ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	var rest []string
	for name := range d.Sections {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Lookup returns the content of the first section whose name matches one of
// names case-insensitively.
func (d StructuredData) Lookup(names ...string) (Content, bool) {
	order := d.SectionOrder()
	for _, want := range names {
		for _, name := range order {
			if strings.EqualFold(strings.TrimSpace(name), want) {
				return d.Sections[name], true
			}
		}
	}
	return Content{}, false
}

// Summarize builds the list view of e.
func (e Entry) Summarize() Summary {
	return Summary{
		ID:        e.ID,
		SessionID: e.SessionID,
		CreatedAt: e.CreatedAt,
		Sections:  e.Data.SectionOrder(),
		Chars:     len([]rune(e.RawText)),
	}
}

// Markdown renders the entry as a Markdown document.
func (e Entry) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Journal entry %s\n", e.CreatedAt.UTC().Format("2006-01-02 15:04"))
	for _, name := range e.Data.SectionOrder() {
		c := e.Data.Sections[name]
		fmt.Fprintf(&b, "\n## %s\n\n", name)
		if c.IsSequence() {
			for _, item := range c.Values() {
				fmt.Fprintf(&b, "- %s\n", item)
			}
			continue
		}
		b.WriteString(c.String())
		b.WriteString("\n")
	}
	return b.String()
}

// SearchHit is one full-text search result.
type SearchHit struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Snippet   string    `json:"snippet"`
}
