// Package ingest locates documents and their layout-model output on disk.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/dataset"
	"github.com/joseph-ayodele/docrouter/internal/schema"
)

// Document is a loaded document with its model output.
type Document struct {
	Path      string
	ModelPath string
	Format    string
	HashHex   string
	Size      int64
	Records   []map[string]any
	Dataset   dataset.Dataset
}

// Loader reads documents and model output from the local filesystem.
type Loader struct {
	// SkipValidation disables the JSON-schema check of model output.
	SkipValidation bool
	logger         *slog.Logger
}

func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// ModelPathFor returns the conventional model-output path next to doc:
// "scan.pdf" -> "scan_model.json".
func ModelPathFor(doc string) string {
	stem := strings.TrimSuffix(doc, filepath.Ext(doc))
	return stem + constants.ModelOutputSuffix
}

// AllowedExt checks if a file extension is in the allowed set.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// Load reads the document at path and the model output at modelPath
// (ModelPathFor(path) when empty).
func (l *Loader) Load(ctx context.Context, path, modelPath string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	format := constants.MapExtToFormat(ext)
	if format == "" {
		l.logger.Error("unsupported or missing extension", "path", abs, "ext", ext)
		return nil, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("unsupported extension %q", ext))
	}
	if modelPath == "" {
		modelPath = ModelPathFor(abs)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	sum := sha256.Sum256(data)

	ds, err := dataset.FromBytes(data, format)
	if err != nil {
		l.logger.Error("failed to open dataset", "path", abs, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
	}

	records, err := l.LoadRecords(modelPath)
	if err != nil {
		return nil, err
	}
	if len(records) != ds.Len() {
		l.logger.Warn("model output page count differs from document",
			"path", abs, "records", len(records), "pages", ds.Len())
	}

	doc := &Document{
		Path:      abs,
		ModelPath: modelPath,
		Format:    format,
		HashHex:   hex.EncodeToString(sum[:]),
		Size:      int64(len(data)),
		Records:   records,
		Dataset:   ds,
	}
	l.logger.Debug("loaded document", "path", abs, "format", format, "pages", ds.Len(), "hash", doc.HashHex)
	return doc, nil
}

// LoadRecords reads and validates a model-output JSON file.
func (l *Loader) LoadRecords(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model output: %w", err)
	}
	if !l.SkipValidation {
		if err := schema.ValidateJSON(data); err != nil {
			l.logger.Error("model output failed validation", "path", path, "error", err)
			return nil, fmt.Errorf("%w: %s: %w", common.ErrValidation, path, err)
		}
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: decode model output: %w", common.ErrInvalidInput, err)
	}
	return records, nil
}
