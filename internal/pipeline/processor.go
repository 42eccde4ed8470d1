// Package pipeline runs one document through load, pipe, dump and the run ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/entity"
	"github.com/joseph-ayodele/docrouter/internal/inference"
	"github.com/joseph-ayodele/docrouter/internal/ingest"
	"github.com/joseph-ayodele/docrouter/internal/pipe"
	"github.com/joseph-ayodele/docrouter/internal/repository"
	"github.com/joseph-ayodele/docrouter/internal/storage"
)

// Output file suffixes written next to each other under Config.OutputDir/<stem>.
const (
	MiddleSuffix = "_middle.json"
	ModelSuffix  = "_model.json"
	LayoutSuffix = "_layout.png"
	ImagesDir    = "images"
)

// Request is one document to route.
type Request struct {
	Path string
	// ModelPath defaults to ingest.ModelPathFor(Path).
	ModelPath string
	// Mode is constants.ModeAuto (default), ModeTXT or ModeOCR.
	Mode      string
	StartPage int
	EndPage   *int
	Lang      *string
	Debug     bool
	Draw      bool
}

// Outcome describes a successful run.
type Outcome struct {
	RunID      uuid.UUID
	Path       string
	ParseType  string
	PageCount  int
	OutputDir  string
	MiddlePath string
	ModelPath  string
	LayoutPath string
	Records    []map[string]any
	Result     *pipe.PipeResult
	Elapsed    time.Duration
}

type Config struct {
	OutputDir string
	Inference inference.Config
}

// Processor routes documents and records each attempt in the run ledger.
type Processor struct {
	logger *slog.Logger
	loader *ingest.Loader
	runs   repository.RunRepository
	cfg    Config
}

// NewProcessor builds a processor. runs may be nil to skip the ledger.
func NewProcessor(logger *slog.Logger, loader *ingest.Loader, runs repository.RunRepository, cfg Config) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if loader == nil {
		loader = ingest.NewLoader(logger)
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./output"
	}
	return &Processor{logger: logger, loader: loader, runs: runs, cfg: cfg}
}

// Options converts the request's window and hints into pipe options.
func (r Request) Options() []pipe.Option {
	opts := []pipe.Option{pipe.WithStartPage(r.StartPage), pipe.WithDebug(r.Debug), pipe.WithLang(r.Lang)}
	if r.EndPage != nil {
		opts = append(opts, pipe.WithEndPage(*r.EndPage))
	}
	return opts
}

// Process loads req.Path, pipes it in the requested mode and writes the
// middle JSON, the model dump and, when asked, the layout drawing.
func (p *Processor) Process(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = constants.ModeAuto
	}
	err := common.NewValidator().
		Field("path", req.Path, common.Required).
		Field("mode", mode, common.OneOf(constants.ModeAuto, constants.ModeTXT, constants.ModeOCR)).
		Field("start_page", req.StartPage, common.NonNegative).
		Field("end_page", req.EndPage, common.NonNegative).
		Error()
	if err != nil {
		return nil, err
	}
	ctx, requestID := common.EnsureRequestID(ctx)
	log := p.logger.With("request_id", requestID, "path", req.Path, "mode", mode)

	doc, err := p.loader.Load(ctx, req.Path, req.ModelPath)
	if err != nil {
		log.Error("processor.load.failed", "err", err)
		return nil, err
	}

	run, err := p.startRun(ctx, doc, mode, req)
	if err != nil {
		return nil, err
	}

	out, err := p.route(ctx, doc, mode, req)
	if err != nil {
		log.Error("processor.pipe.failed", "err", err)
		p.finishFailure(ctx, run, err)
		return nil, err
	}
	out.RunID = run.ID
	out.Elapsed = time.Since(start)

	if p.runs != nil {
		err := p.runs.FinishSuccess(context.WithoutCancel(ctx), run.ID, repository.RunOutcome{
			ParseType:  out.ParseType,
			PageCount:  out.PageCount,
			OutputPath: out.MiddlePath,
		})
		if err != nil {
			return out, err
		}
	}
	log.Info("processor.ok",
		"run_id", run.ID,
		"parse_type", out.ParseType,
		"pages", out.PageCount,
		"output", out.MiddlePath,
		"elapsed_ms", out.Elapsed.Milliseconds(),
	)
	return out, nil
}

func (p *Processor) route(ctx context.Context, doc *ingest.Document, mode string, req Request) (*Outcome, error) {
	res := inference.New(doc.Records, doc.Dataset, p.cfg.Inference, p.logger)

	stem := strings.TrimSuffix(filepath.Base(doc.Path), filepath.Ext(doc.Path))
	dir := filepath.Join(p.cfg.OutputDir, stem)
	files := storage.NewFileWriter(dir, p.logger)
	images := storage.NewFileWriter(filepath.Join(dir, ImagesDir), p.logger)

	var (
		pr  *pipe.PipeResult
		err error
	)
	switch mode {
	case constants.ModeTXT:
		pr, err = res.PipeTxtMode(ctx, images, req.Options()...)
	case constants.ModeOCR:
		pr, err = res.PipeOCRMode(ctx, images, req.Options()...)
	default:
		pr, err = res.PipeAutoMode(ctx, images, req.Options()...)
	}
	if err != nil {
		return nil, err
	}

	middle, err := pr.JSON(true)
	if err != nil {
		return nil, fmt.Errorf("%w: encode middle json: %w", common.ErrInternal, err)
	}
	if err := files.Write(stem+MiddleSuffix, middle); err != nil {
		return nil, err
	}
	if err := res.DumpModel(files, stem+ModelSuffix); err != nil {
		return nil, err
	}

	records, err := res.GetInferRes()
	if err != nil {
		return nil, err
	}
	out := &Outcome{
		Path:       doc.Path,
		ParseType:  pr.ParseType(),
		PageCount:  len(pr.PDFInfo()),
		OutputDir:  dir,
		MiddlePath: filepath.Join(dir, stem+MiddleSuffix),
		ModelPath:  filepath.Join(dir, stem+ModelSuffix),
		Records:    records,
		Result:     pr,
	}
	if req.Draw {
		out.LayoutPath = filepath.Join(dir, stem+LayoutSuffix)
		if err := res.DrawModel(ctx, out.LayoutPath); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Processor) startRun(ctx context.Context, doc *ingest.Document, mode string, req Request) (*entity.PipeRun, error) {
	run := &entity.PipeRun{
		ID:           uuid.New(),
		DocumentPath: doc.Path,
		ContentHash:  doc.HashHex,
		Format:       doc.Format,
		Mode:         mode,
		StartPage:    req.StartPage,
		EndPage:      req.EndPage,
		Lang:         req.Lang,
		Version:      p.version(),
		PageCount:    doc.Dataset.Len(),
	}
	if p.runs == nil {
		return run, nil
	}
	return p.runs.Start(ctx, run)
}

func (p *Processor) finishFailure(ctx context.Context, run *entity.PipeRun, cause error) {
	if p.runs == nil {
		return
	}
	// The ledger row is closed even when ctx was canceled.
	if err := p.runs.FinishFailure(context.WithoutCancel(ctx), run.ID, cause.Error()); err != nil {
		p.logger.Error("processor.ledger.failed", "run_id", run.ID, "err", errors.Join(cause, err))
	}
}

func (p *Processor) version() string {
	if p.cfg.Inference.Version != "" {
		return p.cfg.Inference.Version
	}
	return common.Version
}
