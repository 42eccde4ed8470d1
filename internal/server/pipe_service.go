package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/async"
	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/entity"
	"github.com/joseph-ayodele/docrouter/internal/export"
	"github.com/joseph-ayodele/docrouter/internal/ingest"
	"github.com/joseph-ayodele/docrouter/internal/pipeline"
	"github.com/joseph-ayodele/docrouter/internal/repository"
)

// PipeService serves docrouter.v1.PipeService.
type PipeService struct {
	proc     async.Processor
	queue    async.Queue
	runs     repository.RunRepository
	exporter *export.Service
	loader   *ingest.Loader
	logger   *slog.Logger
}

// NewPipeService builds the service. queue and runs may be nil; the methods
// needing them then answer Unavailable.
func NewPipeService(proc async.Processor, queue async.Queue, runs repository.RunRepository, logger *slog.Logger) *PipeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipeService{
		proc:     proc,
		queue:    queue,
		runs:     runs,
		exporter: export.NewService(runs, logger),
		loader:   ingest.NewLoader(logger),
		logger:   logger,
	}
}

// Pipe routes one document synchronously.
//
// Request fields: path (required), model_path, mode, start_page, end_page,
// lang, debug, draw, include_result.
func (s *PipeService) Pipe(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := requestFrom(in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("starting pipe", "path", req.Path, "mode", req.Mode)
	out, err := s.proc.Process(ctx, req)
	if err != nil {
		s.logger.Error("pipe.failed", "path", req.Path, "err", err)
		return nil, common.ToStatus(err)
	}

	resp := map[string]any{
		"run_id":      out.RunID.String(),
		"path":        out.Path,
		"parse_type":  out.ParseType,
		"page_count":  out.PageCount,
		"middle_path": out.MiddlePath,
		"model_path":  out.ModelPath,
		"elapsed_ms":  out.Elapsed.Milliseconds(),
	}
	if out.LayoutPath != "" {
		resp["layout_path"] = out.LayoutPath
	}
	if boolField(in, "include_result") && out.Result != nil {
		resp["result"] = out.Result.Result()
	}
	return toStruct(resp)
}

// Submit queues one or more documents (path or paths) for background routing.
func (s *PipeService) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.queue == nil {
		return nil, status.Error(codes.Unavailable, "batch queue is not enabled")
	}
	paths := stringList(in, "paths")
	if p := stringField(in, "path"); p != "" {
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		return nil, common.InvalidArgumentError("path or paths is required")
	}
	base, err := requestFrom(withPath(in, paths[0]))
	if err != nil {
		return nil, err
	}
	traceID := common.RequestIDFromContext(ctx)

	accepted := 0
	for _, p := range paths {
		req := base
		req.Path = p
		req.ModelPath = ""
		if err := s.queue.Enqueue(ctx, async.Job{Request: req, TraceID: traceID}); err != nil {
			s.logger.Warn("submit stopped", "path", p, "accepted", accepted, "err", err)
			if accepted == 0 {
				return nil, status.Error(codes.Unavailable, err.Error())
			}
			break
		}
		accepted++
	}
	return toStruct(map[string]any{"accepted": accepted, "requested": len(paths)})
}

// Runs returns one ledger row (id) or a filtered listing (status, content_hash, limit).
func (s *PipeService) Runs(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.runs == nil {
		return nil, status.Error(codes.Unavailable, "run ledger is not enabled")
	}
	if raw := stringField(in, "id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, common.InvalidArgumentError("id must be a UUID")
		}
		run, err := s.runs.Get(ctx, id)
		if err != nil {
			return nil, common.ToStatus(err)
		}
		return toStruct(map[string]any{"runs": []*entity.PipeRun{run}})
	}

	filter, err := filterFrom(in)
	if err != nil {
		return nil, err
	}
	runs, err := s.runs.List(ctx, filter)
	if err != nil {
		s.logger.Error("runs.list.failed", "err", err)
		return nil, common.ToStatus(err)
	}
	if runs == nil {
		runs = []*entity.PipeRun{}
	}
	return toStruct(map[string]any{"runs": runs})
}

// Export builds an XLSX workbook for the documents in paths and, with
// include_runs, the ledger rows matching status/content_hash/limit.
func (s *PipeService) Export(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var docs []export.Document
	for _, p := range stringList(in, "paths") {
		records, err := s.loader.LoadRecords(ingest.ModelPathFor(p))
		if err != nil {
			return nil, common.ToStatus(fmt.Errorf("%w: %s: %w", common.ErrInvalidInput, p, err))
		}
		docs = append(docs, export.Document{Path: p, Records: records})
	}

	var filter *repository.ListFilter
	if boolField(in, "include_runs") {
		if s.runs == nil {
			return nil, status.Error(codes.Unavailable, "run ledger is not enabled")
		}
		f, err := filterFrom(in)
		if err != nil {
			return nil, err
		}
		filter = &f
	}

	xlsx, err := s.exporter.ExportXLSX(ctx, docs, filter)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "err", err)
		return nil, common.ToStatus(err)
	}
	return toStruct(map[string]any{"xlsx_base64": base64.StdEncoding.EncodeToString(xlsx)})
}

func requestFrom(in *structpb.Struct) (pipeline.Request, error) {
	path := strings.TrimSpace(stringField(in, "path"))
	if path == "" {
		return pipeline.Request{}, common.InvalidArgumentError("path is required")
	}
	req := pipeline.Request{
		Path:      path,
		ModelPath: stringField(in, "model_path"),
		Mode:      stringField(in, "mode"),
		Debug:     boolField(in, "debug"),
		Draw:      boolField(in, "draw"),
	}
	start, ok, err := intField(in, "start_page")
	if err != nil {
		return req, err
	}
	if ok {
		req.StartPage = start
	}
	end, ok, err := intField(in, "end_page")
	if err != nil {
		return req, err
	}
	if ok {
		req.EndPage = &end
	}
	if v, ok := in.GetFields()["lang"]; ok {
		if _, isNull := v.GetKind().(*structpb.Value_NullValue); !isNull {
			lang := v.GetStringValue()
			req.Lang = &lang
		}
	}
	return req, nil
}

func filterFrom(in *structpb.Struct) (repository.ListFilter, error) {
	f := repository.ListFilter{
		Status:      constants.RunStatus(strings.ToUpper(stringField(in, "status"))),
		ContentHash: stringField(in, "content_hash"),
	}
	switch f.Status {
	case "", constants.RunStatusQueued, constants.RunStatusRunning, constants.RunStatusSucceeded, constants.RunStatusFailed:
	default:
		return f, common.InvalidArgumentErrorf("unknown status %q", f.Status)
	}
	n, ok, err := intField(in, "limit")
	if err != nil {
		return f, err
	}
	if ok {
		f.Limit = n
	}
	return f, nil
}

func withPath(in *structpb.Struct, path string) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(in.GetFields())+1)
	for k, v := range in.GetFields() {
		fields[k] = v
	}
	fields["path"] = structpb.NewStringValue(path)
	return &structpb.Struct{Fields: fields}
}

func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func boolField(in *structpb.Struct, key string) bool {
	return in.GetFields()[key].GetBoolValue()
}

func intField(in *structpb.Struct, key string) (int, bool, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, false, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return 0, false, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, false, common.InvalidArgumentErrorf("%s must be an integer", key)
	}
	return int(n.NumberValue), true, nil
}

func stringList(in *structpb.Struct, key string) []string {
	var out []string
	for _, v := range in.GetFields()[key].GetListValue().GetValues() {
		if s := strings.TrimSpace(v.GetStringValue()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// toStruct converts v to a Struct through its JSON form so typed values
// (slices of maps, structs, times) become plain JSON values first.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, common.InternalErrorf("decode response: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalErrorf("build response: %v", err)
	}
	return s, nil
}
