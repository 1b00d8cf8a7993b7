// Package draft holds per-session journal drafts and the engine that merges
// classified fragments into them.
package draft

import (
	"time"

	"github.com/hpungsan/quire/internal/journal"
	"github.com/hpungsan/quire/internal/template"
)

// Draft is the in-progress content of one session.
type Draft struct {
	SessionID string                     `json:"session_id"`
	UserID    string                     `json:"user_id"`
	Template  string                     `json:"template,omitempty"`
	Sections  map[string]journal.Content `json:"sections"`
	Order     []string                   `json:"order,omitempty"` // first-touch order
	Turns     []string                   `json:"turns,omitempty"` // raw text of contributing turns
	UpdatedAt time.Time                  `json:"updated_at,omitempty"`
	// Revision counts checkpoints of this draft. A checkpoint is written only
	// over the revision it was merged from.
	Revision int64 `json:"revision"`
}

func newDraft(sessionID, userID string) *Draft {
	return &Draft{
		SessionID: sessionID,
		UserID:    userID,
		Sections:  make(map[string]journal.Content),
	}
}

// Clone returns a deep copy.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	out := *d
	out.Sections = make(map[string]journal.Content, len(d.Sections))
	for name, c := range d.Sections {
		out.Sections[name] = c.Clone()
	}
	out.Order = append([]string(nil), d.Order...)
	out.Turns = append([]string(nil), d.Turns...)
	return &out
}

// IsEmpty reports whether no section holds non-blank content.
func (d *Draft) IsEmpty() bool {
	if d == nil {
		return true
	}
	for _, c := range d.Sections {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// Chars counts the characters held across all sections.
func (d *Draft) Chars() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, c := range d.Sections {
		for _, v := range c.Values() {
			n += template.CountChars(v)
		}
	}
	return n
}

func (d *Draft) revision() int64 {
	if d == nil {
		return 0
	}
	return d.Revision
}

// SectionLen returns the length of a section: 1 for a scalar, the item
// count for a list, 0 when absent.
func (d *Draft) SectionLen(section string) int {
	if d == nil {
		return 0
	}
	return d.Sections[section].Len()
}
