// Package inference owns a document's raw layout-model output and routes it
// through the TXT or OCR extraction procedure on isolated copies.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tiendc/go-deepcopy"

	"github.com/joseph-ayodele/docrouter/internal/classify"
	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/dataset"
	"github.com/joseph-ayodele/docrouter/internal/draw"
	"github.com/joseph-ayodele/docrouter/internal/parse"
	"github.com/joseph-ayodele/docrouter/internal/pipe"
	"github.com/joseph-ayodele/docrouter/internal/storage"
)

// Config wires the collaborators used by a Result. Zero fields get defaults.
type Config struct {
	// Version is written to every extraction result as _version_name.
	Version    string
	Extract    pipe.ExtractFunc
	Classifier classify.Classifier
	Renderer   draw.Renderer
}

// ApplyFunc receives an isolated copy of the stored records.
type ApplyFunc func(ctx context.Context, records []map[string]any, args ...any) (any, error)

// Result is the layout-model output for one document plus its dataset.
// Exported operations never mutate the stored records.
type Result struct {
	records []map[string]any
	ds      dataset.Dataset
	cfg     Config
	logger  *slog.Logger
	copier  func(dst, src any) error
}

func New(records []map[string]any, ds dataset.Dataset, cfg Config, logger *slog.Logger) *Result {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = common.Version
	}
	if cfg.Extract == nil {
		cfg.Extract = parse.New(parse.Config{}, nil, logger).Parse
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.NewHeuristic(classify.Config{}, logger)
	}
	if cfg.Renderer == nil {
		cfg.Renderer = draw.NewBoxRenderer(draw.Config{Labels: true}, logger)
	}
	return &Result{records: records, ds: ds, cfg: cfg, logger: logger, copier: copyRecords}
}

// Dataset returns the document the records describe.
func (r *Result) Dataset() dataset.Dataset { return r.ds }

// Version returns the version string stamped on extraction results.
func (r *Result) Version() string { return r.cfg.Version }

// Apply runs proc on a fresh deep copy of the stored records. Errors from
// proc are returned unchanged.
func (r *Result) Apply(ctx context.Context, proc ApplyFunc, args ...any) (any, error) {
	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	return proc(ctx, snap, args...)
}

func copyRecords(dst, src any) error { return deepcopy.Copy(dst, src) }

func (r *Result) snapshot() ([]map[string]any, error) {
	if r.records == nil {
		return nil, nil
	}
	var out []map[string]any
	if err := r.copier(&out, r.records); err != nil {
		return nil, fmt.Errorf("%w: copy inference records: %w", common.ErrInternal, err)
	}
	return out, nil
}

// PipeAutoMode classifies the document and runs the matching mode.
func (r *Result) PipeAutoMode(ctx context.Context, imageWriter storage.Writer, opts ...pipe.Option) (*pipe.PipeResult, error) {
	if r.ds == nil {
		return nil, common.WrapError(common.ErrInvalidInput, "pipe: result has no dataset")
	}
	s, err := r.cfg.Classifier.Classify(r.ds.DataBits())
	if err != nil {
		r.logger.Error("classification failed", "error", err)
		return nil, err
	}
	switch s {
	case pipe.TXT:
		return r.PipeTxtMode(ctx, imageWriter, opts...)
	case pipe.OCR:
		return r.PipeOCRMode(ctx, imageWriter, opts...)
	default:
		return nil, fmt.Errorf("classifier returned unsupported strategy %v", s)
	}
}

// PipeTxtMode extracts using the embedded text layer.
func (r *Result) PipeTxtMode(ctx context.Context, imageWriter storage.Writer, opts ...pipe.Option) (*pipe.PipeResult, error) {
	return r.pipe(ctx, pipe.TXT, imageWriter, pipe.NewParams(opts...))
}

// PipeOCRMode extracts using OCR detections.
func (r *Result) PipeOCRMode(ctx context.Context, imageWriter storage.Writer, opts ...pipe.Option) (*pipe.PipeResult, error) {
	return r.pipe(ctx, pipe.OCR, imageWriter, pipe.NewParams(opts...))
}

func (r *Result) pipe(ctx context.Context, s pipe.Strategy, imageWriter storage.Writer, params pipe.Params) (*pipe.PipeResult, error) {
	end := -1
	if params.EndPageID != nil {
		end = *params.EndPageID
	}
	logger := r.logger.With(
		"strategy", s.Tag(),
		"start_page", params.StartPageID,
		"end_page", end,
		"debug", params.DebugMode,
	)
	if id := common.RequestIDFromContext(ctx); id != "" {
		logger = logger.With("request_id", id)
	}

	out, err := r.Apply(ctx, func(ctx context.Context, records []map[string]any, _ ...any) (any, error) {
		res, err := r.cfg.Extract(ctx, records, r.ds, imageWriter, s, params)
		if err != nil {
			return nil, err
		}
		if res == nil {
			res = pipe.ExtractionResult{}
		}
		res.Annotate(s, r.cfg.Version, params.Lang)
		return pipe.NewPipeResult(res, r.ds), nil
	})
	if err != nil {
		logger.Error("extraction failed", "error", err)
		return nil, err
	}
	logger.Info("extraction complete", "pages", len(out.(*pipe.PipeResult).PDFInfo()))
	return out.(*pipe.PipeResult), nil
}

// GetInferRes returns the stored records for inspection. The returned value
// is a deep copy; modifying it does not affect later operations.
func (r *Result) GetInferRes() ([]map[string]any, error) {
	snap, err := r.snapshot()
	if err != nil {
		r.logger.Error("snapshot failed", "error", err)
		return nil, err
	}
	return snap, nil
}

// DrawModel renders the detections to outputPath, creating its directory.
func (r *Result) DrawModel(ctx context.Context, outputPath string) error {
	if outputPath == "" {
		return common.WrapError(common.ErrInvalidInput, "draw: empty output path")
	}
	dir, name := filepath.Dir(outputPath), filepath.Base(outputPath)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	snap, err := r.snapshot()
	if err != nil {
		return err
	}
	return r.cfg.Renderer.Render(ctx, snap, r.ds, dir, name)
}

// DumpModel writes the stored records as 4-space indented JSON through w.
func (r *Result) DumpModel(w storage.Writer, outputPath string) error {
	s, err := MarshalRecords(r.records)
	if err != nil {
		return err
	}
	return w.WriteString(outputPath, s)
}

// MarshalRecords encodes records the way DumpModel writes them: 4-space
// indent, non-ASCII and HTML characters left unescaped.
func MarshalRecords(records []map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if records == nil {
		records = []map[string]any{}
	}
	if err := enc.Encode(records); err != nil {
		return "", fmt.Errorf("encode inference records: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
