package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hpungsan/quire/internal/db"
	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/journal"
)

// ExportSchemaVersion is written in the header line of every export.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	UserID string // required
	Path   string // optional, default: <base>/exports/<user>-<timestamp>.jsonl
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of a JSONL export file.
type ExportHeader struct {
	QuireExport   bool   `json:"_quire_export"`
	SchemaVersion string `json:"schema_version"`
	UserID        string `json:"user_id"`
	ExportedAt    int64  `json:"exported_at"`
}

// Export writes a user's entries to a JSONL file, one entry per line after
// the header. The file is written to a temp path and renamed into place so
// an existing export survives a failure.
func (s *Service) Export(ctx context.Context, input ExportInput) (*ExportOutput, error) {
	userID, err := requireUser(input.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	exportsDir, err := s.ExportsDir()
	if err != nil {
		return nil, err
	}
	exportPath := input.Path
	if exportPath == "" {
		name := fmt.Sprintf("%s-%s.jsonl", SanitizeForFilename(userID), now.UTC().Format("2006-01-02T150405"))
		exportPath = filepath.Join(exportsDir, name)
	}
	if err := ValidateExportPath(exportPath, exportsDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	if err := enc.Encode(ExportHeader{
		QuireExport:   true,
		SchemaVersion: ExportSchemaVersion,
		UserID:        userID,
		ExportedAt:    now.Unix(),
	}); err != nil {
		return nil, errors.NewInternal(err)
	}

	count := 0
	err = db.EachEntry(ctx, s.db, userID, func(e journal.Entry) error {
		if err := ctx.Err(); err != nil {
			return errors.NewTurnInterrupted(count, 0, err)
		}
		if err := enc.Encode(e); err != nil {
			return errors.NewInternal(err)
		}
		count++
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := w.Flush(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("path must not be a symlink")
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{Path: exportPath, Count: count, ExportedAt: now.Unix()}, nil
}

// ExportsDir returns the directory exports are written to.
func (s *Service) ExportsDir() (string, error) {
	base := s.baseDir
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
		}
		base = filepath.Join(home, ".quire")
	}
	return filepath.Join(base, "exports"), nil
}
