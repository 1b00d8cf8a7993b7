package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/quire/internal/errors"
)

func TestExport_ExplicitPath(t *testing.T) {
	env := newTestEnv(t, nil)
	finalizeEntry(t, env, "alice", map[string]string{"Mood": "calm"})
	finalizeEntry(t, env, "alice", map[string]string{"Mood": "restless"})
	finalizeEntry(t, env, "bob", map[string]string{"Mood": "sleepy"})

	dir, err := env.svc.ExportsDir()
	require.NoError(t, err)
	path := filepath.Join(dir, "alice.jsonl")

	out, err := env.svc.Export(context.Background(), ExportInput{UserID: "alice", Path: path})
	require.NoError(t, err)
	require.Equal(t, path, out.Path)
	require.Equal(t, 2, out.Count)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// No temp files left behind.
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestExport_RejectsPathsOutsideExportsDir(t *testing.T) {
	env := newTestEnv(t, nil)
	dir, err := env.svc.ExportsDir()
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
	}{
		{"wrong extension", filepath.Join(dir, "alice.json")},
		{"traversal", filepath.Join(dir, "..", "alice.jsonl")},
		{"subdirectory", filepath.Join(dir, "nested", "alice.jsonl")},
		{"other directory", filepath.Join(t.TempDir(), "alice.jsonl")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Export(context.Background(), ExportInput{UserID: "alice", Path: tt.path})
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("Export(%s) error = %v, want INVALID_REQUEST", tt.path, err)
			}
		})
	}
}

func TestExport_RejectsSymlink(t *testing.T) {
	env := newTestEnv(t, nil)
	dir, err := env.svc.ExportsDir()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0700))

	target := filepath.Join(t.TempDir(), "target.jsonl")
	require.NoError(t, os.WriteFile(target, []byte("keep"), 0600))
	link := filepath.Join(dir, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err = env.svc.Export(context.Background(), ExportInput{UserID: "alice", Path: link})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "keep", string(data))
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/home/u/.quire/exports/a.jsonl", false},
		{"../a.jsonl", true},
		{"/home/u/../a.jsonl", true},
		{"a..b.jsonl", false},
	}
	for _, tt := range tests {
		if got := containsTraversal(tt.path); got != tt.want {
			t.Errorf("containsTraversal(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"../../etc/passwd", "etc-passwd"},
		{"a b\x00c", "a-bc"},
		{"///", "unnamed"},
	}
	for _, tt := range tests {
		if got := SanitizeForFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
