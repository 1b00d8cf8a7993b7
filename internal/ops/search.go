package ops

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/quire/internal/assembler"
	"github.com/hpungsan/quire/internal/db"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/journal"
)

// Search limits
const (
	MaxQueryLength  = 500
	MaxSnippetChars = 300
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	UserID string // required
	Query  string // required
	Limit  int    // default: 10, max: 50
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Query string `json:"query"`
	// Snippets are HTML-safe: entry text is escaped; only <b>...</b>
	// highlight tags are present.
	Items []journal.SearchHit `json:"items"`
	Sort  string              `json:"sort"` // "relevance"
}

// Search performs full-text search across the user's finalized entries.
func (s *Service) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	userID, err := requireUser(input.UserID)
	if err != nil {
		return nil, err
	}
	query := strings.TrimSpace(input.Query)
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength))
	}

	res, err := s.assembler.Search(ctx, userID, assembler.SearchArgs{Query: query, Limit: input.Limit})
	if err != nil {
		return nil, err
	}
	return &SearchOutput{Query: res.Query, Items: res.Hits, Sort: "relevance"}, nil
}

// truncateSnippet cuts s to at most maxChars bytes on a rune boundary. A
// trailing partial tag or entity is dropped, a word break is preferred and
// any open <b> is closed.
func truncateSnippet(s string, maxChars int) string {
	if maxChars <= 0 {
		return "..."
	}
	if len(s) <= maxChars {
		return s
	}

	cut := maxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	out := s[:cut]

	for _, pair := range [][2]string{{"<", ">"}, {"&", ";"}} {
		if i := strings.LastIndex(out, pair[0]); i >= 0 && !strings.Contains(out[i:], pair[1]) {
			out = out[:i]
		}
	}
	if i := strings.LastIndexByte(out, ' '); i > cut/2 {
		out = out[:i]
	}
	if open := strings.Count(out, "<b>") - strings.Count(out, "</b>"); open > 0 {
		out += strings.Repeat("</b>", open)
	}
	return out + "..."
}

// escapeSnippetHTML escapes entry text in a snippet and turns the FTS5
// highlight markers into <b> tags.
func escapeSnippetHTML(s string) string {
	const (
		openPlaceholder  = "\x00QUIRE_B_OPEN\x00"
		closePlaceholder = "\x00QUIRE_B_CLOSE\x00"
	)

	s = strings.ReplaceAll(s, db.SnippetOpen, openPlaceholder)
	s = strings.ReplaceAll(s, db.SnippetClose, closePlaceholder)

	s = html.EscapeString(s)

	s = strings.ReplaceAll(s, openPlaceholder, "<b>")
	s = strings.ReplaceAll(s, closePlaceholder, "</b>")

	return s
}
