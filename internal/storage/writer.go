// Package storage persists extracted images and serialized dumps.
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Writer is a write-only sink addressed by slash-separated relative paths.
type Writer interface {
	Write(path string, data []byte) error
	WriteString(path, content string) error
}

// ErrPathEscapesRoot is returned for paths that resolve outside the writer's root.
var ErrPathEscapesRoot = errors.New("path escapes writer root")

// FileWriter writes below a root directory, creating parents as needed.
type FileWriter struct {
	root   string
	logger *slog.Logger
}

func NewFileWriter(root string, logger *slog.Logger) *FileWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWriter{root: root, logger: logger}
}

// Resolve maps path to its location on disk. Absolute paths are used as-is.
func (w *FileWriter) Resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	full := filepath.Join(w.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(w.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, path)
	}
	return full, nil
}

func (w *FileWriter) Write(path string, data []byte) error {
	full, err := w.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		w.logger.Error("write failed", "path", full, "error", err)
		return err
	}
	w.logger.Debug("wrote file", "path", full, "bytes", len(data))
	return nil
}

func (w *FileWriter) WriteString(path, content string) error {
	return w.Write(path, []byte(content))
}
