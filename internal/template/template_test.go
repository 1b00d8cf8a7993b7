package template

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Events", "events"},
		{"  Things   Done ", "things done"},
		{"OPEN\treflection", "open reflection"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	tmpl := Default()

	tests := []struct {
		candidate string
		want      string
		ok        bool
	}{
		{"Events", "Events", true},
		{"events", "Events", true},
		{"  THINGS done", "Things Done", true},
		{"accomplishments", "Things Done", true},
		{"ToDo", "Tasks", true},
		{"feelings", "Mood", true},
		{"Dreams", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			got, ok := tmpl.Resolve(tt.candidate)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.candidate, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		sections []SectionDef
	}{
		{"no sections", nil},
		{"blank name", []SectionDef{{Name: "  "}}},
		{"duplicate name", []SectionDef{{Name: "Mood"}, {Name: "mood"}}},
		{"alias shadows name", []SectionDef{{Name: "Mood"}, {Name: "Feelings", Aliases: []string{"MOOD"}}}},
		{"alias collides", []SectionDef{{Name: "A", Aliases: []string{"x"}}, {Name: "B", Aliases: []string{"x"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("T", tt.sections)
			require.Error(t, err)
		})
	}

	_, err := New("", []SectionDef{{Name: "A"}})
	require.Error(t, err)
}

func TestNew_AliasEqualToOwnNameIsIgnored(t *testing.T) {
	tmpl, err := New("T", []SectionDef{{Name: "Mood", Aliases: []string{"mood", "feeling"}}})
	require.NoError(t, err)
	require.Equal(t, []string{"feeling"}, tmpl.Sections()[0].Aliases)
}

func TestSections_ReturnsCopy(t *testing.T) {
	tmpl := Default()
	sections := tmpl.Sections()
	sections[0].Name = "mutated"
	sections[0].Aliases[0] = "mutated"

	require.Equal(t, "Events", tmpl.Sections()[0].Name)
	name, ok := tmpl.Resolve("happenings")
	require.True(t, ok)
	require.Equal(t, "Events", name)
}

func TestMarshalJSON(t *testing.T) {
	tmpl, err := New("Mini", []SectionDef{{Name: "Mood", Description: "feelings"}})
	require.NoError(t, err)

	data, err := json.Marshal(tmpl)
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Mini","sections":[{"name":"Mood","description":"feelings"}]}`, string(data))
}

func TestParseYAML(t *testing.T) {
	src := []byte(`
name: Work Log
sections:
  - name: Shipped
    description: What went out
    aliases: [released, deployed]
  - name: Blockers
`)
	tmpl, err := ParseYAML(src)
	require.NoError(t, err)
	require.Equal(t, "Work Log", tmpl.Name())
	require.Equal(t, []string{"Shipped", "Blockers"}, tmpl.SectionNames())

	name, ok := tmpl.Resolve("Deployed")
	require.True(t, ok)
	require.Equal(t, "Shipped", name)

	_, err = ParseYAML([]byte("name: [unterminated"))
	require.Error(t, err)
}

func TestParseMarkdown(t *testing.T) {
	src := []byte(`# Evening Review

Intro text is ignored.

## Wins
Things that went well today.
Aliases: highlights, good stuff

## Lessons
What to do differently.
`)
	tmpl, err := ParseMarkdown(src)
	require.NoError(t, err)
	require.Equal(t, "Evening Review", tmpl.Name())

	sections := tmpl.Sections()
	require.Len(t, sections, 2)
	require.Equal(t, "Wins", sections[0].Name)
	require.Equal(t, "Things that went well today.", sections[0].Description)
	require.Equal(t, []string{"highlights", "good stuff"}, sections[0].Aliases)
	require.Equal(t, "What to do differently.", sections[1].Description)

	name, ok := tmpl.Resolve("GOOD STUFF")
	require.True(t, ok)
	require.Equal(t, "Wins", name)
}

func TestParseMarkdown_NoTitle(t *testing.T) {
	_, err := ParseMarkdown([]byte("## Only a section\n"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "t.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("name: Y\nsections:\n  - name: A\n"), 0600))
	tmpl, err := LoadFile(yamlPath)
	require.NoError(t, err)
	require.Equal(t, "Y", tmpl.Name())

	mdPath := filepath.Join(dir, "t.md")
	require.NoError(t, os.WriteFile(mdPath, []byte("# M\n\n## A\n"), 0600))
	tmpl, err = LoadFile(mdPath)
	require.NoError(t, err)
	require.Equal(t, "M", tmpl.Name())

	txtPath := filepath.Join(dir, "t.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0600))
	_, err = LoadFile(txtPath)
	require.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestRegistry_Reload(t *testing.T) {
	var calls atomic.Int32
	names := []string{"First", "Second"}
	load := func() (*Template, error) {
		n := calls.Add(1)
		if n > int32(len(names)) {
			return nil, errors.New("source unavailable")
		}
		return New(names[n-1], []SectionDef{{Name: "A"}})
	}

	reg, err := NewRegistry(load, nil)
	require.NoError(t, err)
	snapshot := reg.Current()
	require.Equal(t, "First", snapshot.Name())
	require.Equal(t, 1, reg.Version())

	tmpl, err := reg.Reload(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Second", tmpl.Name())
	require.Equal(t, "Second", reg.Current().Name())
	require.Equal(t, 2, reg.Version())

	// Snapshots handed out earlier are unaffected.
	require.Equal(t, "First", snapshot.Name())

	// A failing reload keeps the previous template.
	_, err = reg.Reload(context.Background())
	require.Error(t, err)
	require.Equal(t, "Second", reg.Current().Name())
	require.Equal(t, 2, reg.Version())
}

func TestRegistry_ConcurrentReloads(t *testing.T) {
	reg, err := NewRegistry(FileLoader(""), nil)
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, err := reg.Reload(context.Background())
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, DefaultName, reg.Current().Name())
	require.GreaterOrEqual(t, reg.Version(), 2)
}

func TestRegistry_InitialLoadFails(t *testing.T) {
	_, err := NewRegistry(FileLoader(filepath.Join(t.TempDir(), "missing.md")), nil)
	require.Error(t, err)
}
