package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/quire/internal/errors"
)

// ValidateExportPath checks that path is a .jsonl file directly inside
// exportsDir. Subdirectories are rejected so no intermediate directory can be
// swapped for a symlink between validation and open; the final component is
// opened with O_NOFOLLOW.
func ValidateExportPath(path, exportsDir string) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ".jsonl" {
		return errors.NewInvalidRequest("path must have .jsonl extension")
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	allowed, err := filepath.Abs(filepath.Clean(exportsDir))
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid exports directory: %v", err))
	}

	parentDir := filepath.Dir(absPath)
	if parentDir != allowed {
		return errors.NewInvalidRequest(fmt.Sprintf("file must be directly in %s", allowed))
	}
	if info, err := os.Lstat(parentDir); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("exports directory must not be a symlink")
	}
	if info, err := os.Lstat(absPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// containsTraversal reports whether any path component is "..".
func containsTraversal(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	}) {
		if part == ".." {
			return true
		}
	}
	return false
}

// SanitizeForFilename makes s safe to embed in a file name.
func SanitizeForFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r == '.' || r == ' ':
			b.WriteRune('-')
		case r < 32 || r == 127:
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	out = strings.Trim(out, "-")
	if out == "" {
		return "unnamed"
	}
	return out
}
