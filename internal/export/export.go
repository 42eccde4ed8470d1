// Package export produces XLSX summaries of routed documents and the run ledger.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/entity"
	"github.com/joseph-ayodele/docrouter/internal/layout"
	"github.com/joseph-ayodele/docrouter/internal/repository"
	"github.com/joseph-ayodele/docrouter/internal/utils"
)

const (
	PagesSheet = "Pages"
	RunsSheet  = "Runs"
)

// Document is one routed document to summarise.
type Document struct {
	Path      string
	ParseType string
	Records   []map[string]any
}

// Service is a tiny façade over the run ledger that produces XLSX bytes.
type Service struct {
	runs   repository.RunRepository
	logger *slog.Logger
}

// NewService builds an exporter. runs may be nil when no Runs sheet is wanted.
func NewService(runs repository.RunRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, logger: logger}
}

// PagesHeaders returns the Pages sheet header row.
func PagesHeaders() []string {
	h := []string{"Document", "Page", "Width", "Height", "Parse Type"}
	h = append(h, constants.AsStringSlice()...)
	return append(h, "Total", "Skipped")
}

// ExportXLSX returns a workbook with one Pages row per record of every
// document and, when the service has a ledger, a Runs sheet filtered by filter.
func (s *Service) ExportXLSX(ctx context.Context, docs []Document, filter *repository.ListFilter) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("xlsx close failed", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", PagesSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	rows, err := s.writePages(f, docs)
	if err != nil {
		return nil, err
	}

	runCount := 0
	if s.runs != nil && filter != nil {
		runs, err := s.runs.List(ctx, *filter)
		if err != nil {
			return nil, fmt.Errorf("query runs: %w", err)
		}
		if err := writeRuns(f, runs); err != nil {
			return nil, err
		}
		runCount = len(runs)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"documents", len(docs),
		"rows", rows,
		"runs", runCount,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writePages(f *excelize.File, docs []Document) (int, error) {
	headers := PagesHeaders()
	if err := writeRow(f, PagesSheet, 1, toAny(headers)); err != nil {
		return 0, err
	}
	categories := constants.AsStringSlice()

	row := 2
	for _, doc := range docs {
		pages, err := layout.ParsePages(doc.Records)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", doc.Path, err)
		}
		for _, p := range pages {
			counts := p.CategoryCounts()
			values := []any{doc.Path, p.PageNo, p.Width, p.Height, doc.ParseType}
			for _, c := range categories {
				values = append(values, counts[c])
			}
			values = append(values, len(p.Dets), p.Skipped)
			if err := writeRow(f, PagesSheet, row, values); err != nil {
				return 0, err
			}
			row++
		}
	}

	_ = f.SetColWidth(PagesSheet, "A", "A", 48) // document
	_ = f.SetColWidth(PagesSheet, "B", "E", 10)
	_ = f.SetPanes(PagesSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return row - 2, nil
}

func writeRuns(f *excelize.File, runs []*entity.PipeRun) error {
	if _, err := f.NewSheet(RunsSheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	headers := []any{"Run ID", "Document", "Mode", "Parse Type", "Status", "Pages",
		"Started At", "Duration", "Output", "Error"}
	if err := writeRow(f, RunsSheet, 1, headers); err != nil {
		return err
	}
	for i, r := range runs {
		duration := ""
		if r.FinishedAt != nil {
			duration = utils.FormatDuration(r.Duration())
		}
		values := []any{
			r.ID.String(),
			r.DocumentPath,
			r.Mode,
			utils.StrOrEmpty(r.ParseType),
			r.Status,
			r.PageCount,
			utils.FormatRFC3339(r.StartedAt),
			duration,
			utils.StrOrEmpty(r.OutputPath),
			truncate(utils.StrOrEmpty(r.ErrorMessage), 140),
		}
		if err := writeRow(f, RunsSheet, i+2, values); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(RunsSheet, "A", "A", 38) // uuid
	_ = f.SetColWidth(RunsSheet, "B", "B", 48) // document
	_ = f.SetColWidth(RunsSheet, "J", "J", 60) // error
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("xlsx row %d: %w", row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
