package ops

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/quire/internal/errors"
)

func finalizeEntry(t *testing.T, env *testEnv, userID string, sections map[string]string) string {
	t.Helper()
	ctx := context.Background()
	sessionID := env.startSession(t, userID)
	_, err := env.svc.Structure(ctx, StructureInput{UserID: userID, SessionID: sessionID, Sections: sections})
	require.NoError(t, err)
	out, err := env.svc.Finalize(ctx, SessionInput{UserID: userID, SessionID: sessionID})
	require.NoError(t, err)
	return out.Entry.ID
}

func TestSearch_BasicMatch(t *testing.T) {
	env := newTestEnv(t, nil)
	id := finalizeEntry(t, env, "alice", map[string]string{"Events": "dinner with Sam at the <b>new</b> place"})
	finalizeEntry(t, env, "bob", map[string]string{"Events": "dinner alone"})

	out, err := env.svc.Search(context.Background(), SearchInput{UserID: "alice", Query: "dinner"})
	require.NoError(t, err)
	require.Equal(t, "relevance", out.Sort)
	require.Len(t, out.Items, 1)
	require.Equal(t, id, out.Items[0].ID)

	snippet := out.Items[0].Snippet
	require.Contains(t, snippet, "<b>dinner</b>")
	require.NotContains(t, snippet, "<b>new</b>", "entry markup must be escaped")
	require.Contains(t, snippet, "&lt;b&gt;new&lt;/b&gt;")
}

func TestSearch_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input SearchInput
	}{
		{"empty query", SearchInput{UserID: "alice", Query: ""}},
		{"whitespace query", SearchInput{UserID: "alice", Query: "  \t\n "}},
		{"missing user", SearchInput{Query: "dinner"}},
		{"query too long", SearchInput{UserID: "alice", Query: strings.Repeat("a", MaxQueryLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Search(ctx, tt.input)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("Search error = %v, want INVALID_REQUEST", err)
			}
		})
	}
}

func TestSearch_NoResults(t *testing.T) {
	env := newTestEnv(t, nil)
	finalizeEntry(t, env, "alice", map[string]string{"Mood": "calm"})

	out, err := env.svc.Search(context.Background(), SearchInput{UserID: "alice", Query: "volcano"})
	require.NoError(t, err)
	require.NotNil(t, out.Items)
	require.Empty(t, out.Items)
}

func TestTruncateSnippet(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxChars int
		want     string
	}{
		{"short string unchanged", "hello world", 300, "hello world"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"cuts at word boundary", "hello world this is a test", 15, "hello world..."},
		{"non-positive max", "hello", 0, "..."},
		{"drops partial entity", "foo &amp; bar baz", 7, "foo ..."},
		{"drops partial tag", "<b>match</b> trailing", 2, "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateSnippet(tt.input, tt.maxChars); got != tt.want {
				t.Errorf("truncateSnippet(%q, %d) = %q, want %q", tt.input, tt.maxChars, got, tt.want)
			}
		})
	}
}

func TestTruncateSnippet_UTF8AndMarkup(t *testing.T) {
	tests := []struct {
		input    string
		maxChars int
	}{
		{"测试内容很长很长", 10},
		{"Hello 😀 World 🎉 Test", 10},
		{"<b>picnic</b> by the lake", 10},
		{"<b>test</b> <b>more</b> content", 15},
		{"<b>outer <b>inner</b> still</b> end", 20},
	}
	for _, tt := range tests {
		got := truncateSnippet(tt.input, tt.maxChars)
		if !utf8.ValidString(got) {
			t.Errorf("truncateSnippet(%q, %d) = %q, invalid UTF-8", tt.input, tt.maxChars, got)
		}
		if open, closed := strings.Count(got, "<b>"), strings.Count(got, "</b>"); open != closed {
			t.Errorf("truncateSnippet(%q, %d) = %q, %d open vs %d close tags", tt.input, tt.maxChars, got, open, closed)
		}
	}
}

func TestEscapeSnippetHTML(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello world", "hello world"},
		{"[[[B]]]match[[[/B]]]", "<b>match</b>"},
		{"<script>alert('x')</script>", "&lt;script&gt;alert(&#39;x&#39;)&lt;/script&gt;"},
		{"<b>match</b>", "&lt;b&gt;match&lt;/b&gt;"},
		{"tea & [[[B]]]cake[[[/B]]]", "tea &amp; <b>cake</b>"},
		{`[[[B]]]x[[[/B]]] onclick="evil()"`, `<b>x</b> onclick=&#34;evil()&#34;`},
	}
	for _, tt := range tests {
		if got := escapeSnippetHTML(tt.input); got != tt.want {
			t.Errorf("escapeSnippetHTML(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
