package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/entity"
	"github.com/joseph-ayodele/docrouter/internal/utils"
)

const runsTable = "pipe_runs"

var runColumns = []string{
	"id", "document_path", "content_hash", "format", "mode", "parse_type", "status",
	"start_page", "end_page", "lang", "version", "page_count", "output_path",
	"error_message", "started_at", "finished_at",
}

// RunOutcome is what a successful run records.
type RunOutcome struct {
	ParseType  string
	PageCount  int
	OutputPath string
}

// ListFilter narrows List. Zero values mean no constraint.
type ListFilter struct {
	Status      constants.RunStatus
	ContentHash string
	Limit       int
}

type RunRepository interface {
	Start(ctx context.Context, run *entity.PipeRun) (*entity.PipeRun, error)
	FinishSuccess(ctx context.Context, id uuid.UUID, out RunOutcome) error
	FinishFailure(ctx context.Context, id uuid.UUID, message string) error
	Get(ctx context.Context, id uuid.UUID) (*entity.PipeRun, error)
	List(ctx context.Context, filter ListFilter) ([]*entity.PipeRun, error)
}

type runRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepo{db: db, log: log, now: time.Now}
}

// runRow mirrors the pipe_runs columns for entsql.ScanSlice.
type runRow struct {
	ID           string  `sql:"id"`
	DocumentPath string  `sql:"document_path"`
	ContentHash  string  `sql:"content_hash"`
	Format       string  `sql:"format"`
	Mode         string  `sql:"mode"`
	ParseType    string  `sql:"parse_type"`
	Status       string  `sql:"status"`
	StartPage    int     `sql:"start_page"`
	EndPage      *int64  `sql:"end_page"`
	Lang         *string `sql:"lang"`
	Version      string  `sql:"version"`
	PageCount    int     `sql:"page_count"`
	OutputPath   string  `sql:"output_path"`
	ErrorMessage string  `sql:"error_message"`
	StartedAt    string  `sql:"started_at"`
	FinishedAt   string  `sql:"finished_at"`
}

func (r *runRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect())
}

func (r *runRepo) Start(ctx context.Context, run *entity.PipeRun) (*entity.PipeRun, error) {
	if run == nil {
		return nil, common.WrapError(common.ErrInvalidInput, "start run: nil run")
	}
	out := *run
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	out.Status = string(constants.RunStatusRunning)
	out.StartedAt = r.now().UTC()
	out.FinishedAt = nil

	var endPage any
	if out.EndPage != nil {
		endPage = *out.EndPage
	}
	var lang any
	if out.Lang != nil {
		lang = *out.Lang
	}
	query, args := r.builder().Insert(runsTable).
		Columns("id", "document_path", "content_hash", "format", "mode", "status",
			"start_page", "end_page", "lang", "version", "page_count", "started_at").
		Values(out.ID.String(), out.DocumentPath, out.ContentHash, out.Format, out.Mode, out.Status,
			out.StartPage, endPage, lang, out.Version, out.PageCount, formatTime(out.StartedAt)).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.log.Error("pipe_run start failed", "document", out.DocumentPath, "err", err)
		return nil, fmt.Errorf("%w: insert pipe_run: %w", common.ErrDatabase, err)
	}
	r.log.Info("pipe_run started", "run_id", out.ID, "document", out.DocumentPath, "mode", out.Mode)
	return &out, nil
}

func (r *runRepo) FinishSuccess(ctx context.Context, id uuid.UUID, out RunOutcome) error {
	upd := r.builder().Update(runsTable).
		Set("status", string(constants.RunStatusSucceeded)).
		Set("page_count", out.PageCount).
		Set("finished_at", formatTime(r.now().UTC()))
	if out.ParseType != "" {
		upd.Set("parse_type", out.ParseType)
	}
	if out.OutputPath != "" {
		upd.Set("output_path", out.OutputPath)
	}
	query, args := upd.Where(entsql.EQ("id", id.String())).Query()
	if err := r.exec1(ctx, query, args); err != nil {
		r.log.Error("pipe_run finish(OK) failed", "run_id", id, "err", err)
		return err
	}
	r.log.Info("pipe_run finished (SUCCEEDED)", "run_id", id, "parse_type", out.ParseType, "pages", out.PageCount)
	return nil
}

func (r *runRepo) FinishFailure(ctx context.Context, id uuid.UUID, message string) error {
	query, args := r.builder().Update(runsTable).
		Set("status", string(constants.RunStatusFailed)).
		Set("error_message", message).
		Set("finished_at", formatTime(r.now().UTC())).
		Where(entsql.EQ("id", id.String())).
		Query()
	if err := r.exec1(ctx, query, args); err != nil {
		r.log.Error("pipe_run finish(FAILED) failed", "run_id", id, "err", err)
		return err
	}
	r.log.Warn("pipe_run finished (FAILED)", "run_id", id, "error", message)
	return nil
}

// exec1 runs an update that must touch exactly one row.
func (r *runRepo) exec1(ctx context.Context, query string, args []any) error {
	var res entsql.Result
	if err := r.db.drv.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("%w: update pipe_run: %w", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", common.ErrDatabase, err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *runRepo) Get(ctx context.Context, id uuid.UUID) (*entity.PipeRun, error) {
	b := r.builder()
	query, args := b.Select(runColumns...).
		From(b.Table(runsTable)).
		Where(entsql.EQ("id", id.String())).
		Query()
	runs, err := r.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, common.ErrNotFound
	}
	return runs[0], nil
}

func (r *runRepo) List(ctx context.Context, filter ListFilter) ([]*entity.PipeRun, error) {
	b := r.builder()
	sel := b.Select(runColumns...).From(b.Table(runsTable))
	var preds []*entsql.Predicate
	if filter.Status != "" {
		preds = append(preds, entsql.EQ("status", string(filter.Status)))
	}
	if filter.ContentHash != "" {
		preds = append(preds, entsql.EQ("content_hash", filter.ContentHash))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(entsql.Desc("started_at"), entsql.Desc("id"))
	if filter.Limit > 0 {
		sel.Limit(filter.Limit)
	}
	query, args := sel.Query()
	return r.query(ctx, query, args)
}

func (r *runRepo) query(ctx context.Context, query string, args []any) ([]*entity.PipeRun, error) {
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: query pipe_runs: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var scanned []runRow
	if err := entsql.ScanSlice(rows, &scanned); err != nil {
		return nil, fmt.Errorf("%w: scan pipe_runs: %w", common.ErrDatabase, err)
	}
	out := make([]*entity.PipeRun, 0, len(scanned))
	for _, row := range scanned {
		run, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (row runRow) toEntity() (*entity.PipeRun, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad run id %q: %w", common.ErrDatabase, row.ID, err)
	}
	started, err := parseTime(row.StartedAt)
	if err != nil {
		return nil, err
	}
	run := &entity.PipeRun{
		ID:           id,
		DocumentPath: row.DocumentPath,
		ContentHash:  row.ContentHash,
		Format:       row.Format,
		Mode:         row.Mode,
		Status:       row.Status,
		StartPage:    row.StartPage,
		Lang:         row.Lang,
		Version:      row.Version,
		PageCount:    row.PageCount,
		StartedAt:    started,
		ParseType:    utils.StrPtr(row.ParseType),
		OutputPath:   utils.StrPtr(row.OutputPath),
		ErrorMessage: utils.StrPtr(row.ErrorMessage),
	}
	if row.EndPage != nil {
		end := int(*row.EndPage)
		run.EndPage = &end
	}
	if row.FinishedAt != "" {
		finished, err := parseTime(row.FinishedAt)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &finished
	}
	return run, nil
}

// Timestamps are stored as fixed-width RFC 3339 text so they sort lexically
// and read back identically on both backends.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q: %w", common.ErrDatabase, s, err)
	}
	return t, nil
}

// IsNotFound reports whether err means the run does not exist.
func IsNotFound(err error) bool { return errors.Is(err, common.ErrNotFound) }
