package backend

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/csm-companion/internal/db"
	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

// ExportInput contains parameters for Export.
type ExportInput struct {
	Path string    // optional, default: <Dir>/backend-<timestamp>.yaml
	Dir  string    // directory for the default path
	Now  time.Time // optional, default: time.Now()
}

// ExportOutput is the result of Export.
type ExportOutput struct {
	Path        string `json:"path"`
	Automations int    `json:"automations"`
	Pulses      int    `json:"pulses"`
	ExportedAt  int64  `json:"exported_at"`
}

// Snapshot reads the database into a seed document. Pulse fields are kept
// raw so the snapshot applies back byte for byte.
func Snapshot(ctx context.Context, database *sql.DB) (*Seed, error) {
	automations, err := db.AllAutomations(database)
	if err != nil {
		return nil, err
	}
	pulses, err := db.ListPulses(ctx, database)
	if err != nil {
		return nil, err
	}

	s := &Seed{Automations: automations, Pulses: make(map[string]SeedPulse, len(pulses))}
	for _, p := range pulses {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewInternal(err)
		}
		s.Pulses[p.CaseID] = seedPulseFrom(p.Record)
	}
	return s, nil
}

func seedPulseFrom(r *pulse.Record) SeedPulse {
	sp := SeedPulse{Raw: true, Fields: map[string]string{}, UpdatedOn: r.UpdatedOn, UpdatedBy: r.UpdatedBy}
	for _, name := range pulse.TextFields {
		if v := r.Field(name); v != nil {
			sp.Fields[name] = *v
		}
	}
	return sp
}

// Export writes a snapshot of the emulator database to a YAML seed file.
func Export(ctx context.Context, database *sql.DB, input ExportInput) (*ExportOutput, error) {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	exportPath := input.Path
	if exportPath == "" {
		if input.Dir == "" {
			return nil, errors.NewInvalidRequest("export path or directory is required")
		}
		exportPath = DefaultExportPath(input.Dir, now)
	}
	if err := ValidateExportPath(exportPath); err != nil {
		return nil, err
	}

	seed, err := Snapshot(ctx, database)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(seed)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}
	if err := writeAtomic(exportPath, data); err != nil {
		return nil, err
	}

	return &ExportOutput{
		Path:        exportPath,
		Automations: len(seed.Automations),
		Pulses:      len(seed.Pulses),
		ExportedAt:  now.Unix(),
	}, nil
}

// writeAtomic writes data to a temp sibling and renames it over path. The
// existing file survives any failure.
func writeAtomic(path string, data []byte) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRequest) {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
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

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename; Windows refuses to rename open files.
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename follows a symlink at the destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path must not be a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}

// DefaultExportPath is <dir>/backend-<timestamp>.yaml.
func DefaultExportPath(dir string, now time.Time) string {
	return filepath.Join(dir, "backend-"+now.Format("2006-01-02T150405")+".yaml")
}

// ValidateExportPath rejects traversal, non-YAML extensions and symlinks at
// the file or its parent directory.
func ValidateExportPath(path string) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	switch strings.ToLower(filepath.Ext(cleaned)) {
	case ".yaml", ".yml":
	default:
		return errors.NewInvalidRequest("path must have .yaml or .yml extension")
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	if info, err := os.Lstat(filepath.Dir(absPath)); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("parent directory must not be a symlink")
	}
	if info, err := os.Lstat(absPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// containsTraversal checks each path component for "..", splitting on both
// separators so user input with forward slashes is covered on Windows.
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
