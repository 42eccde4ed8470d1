package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/dataset"
	"github.com/joseph-ayodele/docrouter/internal/inference"
	"github.com/joseph-ayodele/docrouter/internal/ingest"
	"github.com/joseph-ayodele/docrouter/internal/pipe"
	"github.com/joseph-ayodele/docrouter/internal/repository"
	"github.com/joseph-ayodele/docrouter/internal/storage"
	"github.com/joseph-ayodele/docrouter/internal/testutil"
)

type fixture struct {
	dir  string
	doc  string
	runs repository.RunRepository
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	doc := filepath.Join(dir, "in", "report.pdf")
	if err := os.MkdirAll(filepath.Dir(doc), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(doc, testutil.PDF([]string{strings.Repeat("Page one of the quarterly report. ", 3), strings.Repeat("Page two closes the report. ", 3)}), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(testutil.LetterRecords(2))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ingest.ModelPathFor(doc), b, 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := repository.Open(ctx, repository.Config{DSN: "sqlite://" + filepath.Join(dir, "ledger.db")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close(nil) })
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return fixture{dir: dir, doc: doc, runs: repository.NewRunRepository(db, nil)}
}

func TestProcessAuto(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	p := NewProcessor(nil, nil, fx.runs, Config{
		OutputDir: filepath.Join(fx.dir, "out"),
		Inference: inference.Config{Version: "9.9.9"},
	})

	out, err := p.Process(ctx, Request{Path: fx.doc, Draw: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.ParseType != constants.ParseTypeTXT || out.PageCount != 2 {
		t.Errorf("parse_type = %q pages = %d", out.ParseType, out.PageCount)
	}
	for _, path := range []string{out.MiddlePath, out.ModelPath, out.LayoutPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing output %s: %v", path, err)
		}
	}

	var middle map[string]any
	data, err := os.ReadFile(out.MiddlePath)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &middle); err != nil {
		t.Fatal(err)
	}
	if middle[pipe.KeyParseType] != "txt" || middle[pipe.KeyVersionName] != "9.9.9" {
		t.Errorf("middle annotations = %v / %v", middle[pipe.KeyParseType], middle[pipe.KeyVersionName])
	}

	var dumped []map[string]any
	data, err = os.ReadFile(out.ModelPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &dumped); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(out.Records, dumped); diff != "" {
		t.Errorf("dumped model mismatch (-want +got):\n%s", diff)
	}

	run, err := fx.runs.Get(ctx, out.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != string(constants.RunStatusSucceeded) || *run.ParseType != "txt" || run.Version != "9.9.9" {
		t.Errorf("run = %+v", run)
	}
	if *run.OutputPath != out.MiddlePath {
		t.Errorf("output path = %q, want %q", *run.OutputPath, out.MiddlePath)
	}
}

func TestProcessModes(t *testing.T) {
	tests := []struct {
		mode string
		want string
	}{
		{"", constants.ParseTypeTXT},
		{"TXT", constants.ParseTypeTXT},
		{"ocr", constants.ParseTypeOCR},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			fx := setup(t)
			p := NewProcessor(nil, nil, nil, Config{OutputDir: filepath.Join(fx.dir, "out")})
			out, err := p.Process(context.Background(), Request{Path: fx.doc, Mode: tt.mode})
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if out.ParseType != tt.want {
				t.Errorf("parse_type = %q, want %q", out.ParseType, tt.want)
			}
		})
	}
}

func TestProcessWindowAndLang(t *testing.T) {
	fx := setup(t)
	end := 1
	lang := "en"
	p := NewProcessor(nil, nil, fx.runs, Config{OutputDir: filepath.Join(fx.dir, "out")})
	out, err := p.Process(context.Background(), Request{Path: fx.doc, Mode: constants.ModeTXT, EndPage: &end, Lang: &lang})
	if err != nil {
		t.Fatal(err)
	}
	if out.PageCount != 1 {
		t.Errorf("pages = %d, want 1", out.PageCount)
	}
	if got, ok := out.Result.Result().Lang(); !ok || got != "en" {
		t.Errorf("lang = %q, %v", got, ok)
	}
	run, err := fx.runs.Get(context.Background(), out.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.EndPage == nil || *run.EndPage != 1 || run.Lang == nil || *run.Lang != "en" {
		t.Errorf("run window = %v lang = %v", run.EndPage, run.Lang)
	}
}

func TestProcessForwardsLangHint(t *testing.T) {
	hints := []string{"korean", "japan", "chinese_cht", "latin", "arabic", "cyrillic", "devanagari", "ch", ""}
	for _, hint := range hints {
		t.Run(hint, func(t *testing.T) {
			fx := setup(t)
			lang := hint
			p := NewProcessor(nil, nil, fx.runs, Config{OutputDir: filepath.Join(fx.dir, "out")})
			out, err := p.Process(context.Background(), Request{Path: fx.doc, Mode: constants.ModeTXT, Lang: &lang})
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			got, ok := out.Result.Result().Lang()
			if !ok || got != hint {
				t.Errorf("lang = %q, %v, want %q", got, ok, hint)
			}
			if v, ok := out.Result.Result()[pipe.KeyLang]; !ok || v != hint {
				t.Errorf("result[%q] = %v, %v", pipe.KeyLang, v, ok)
			}
		})
	}
}

func TestProcessExtractionFailure(t *testing.T) {
	fx := setup(t)
	boom := errors.New("boom")
	p := NewProcessor(nil, nil, fx.runs, Config{
		OutputDir: filepath.Join(fx.dir, "out"),
		Inference: inference.Config{
			Extract: func(context.Context, []map[string]any, dataset.Dataset, storage.Writer, pipe.Strategy, pipe.Params) (pipe.ExtractionResult, error) {
				return nil, boom
			},
		},
	})
	if _, err := p.Process(context.Background(), Request{Path: fx.doc}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	runs, err := fx.runs.List(context.Background(), repository.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != string(constants.RunStatusFailed) || *runs[0].ErrorMessage != "boom" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestProcessRejects(t *testing.T) {
	fx := setup(t)
	p := NewProcessor(nil, nil, fx.runs, Config{OutputDir: filepath.Join(fx.dir, "out")})

	if _, err := p.Process(context.Background(), Request{Path: fx.doc, Mode: "fast"}); !errors.Is(err, common.ErrValidation) {
		t.Errorf("unknown mode err = %v", err)
	}
	if _, err := p.Process(context.Background(), Request{Path: fx.doc, StartPage: -1}); !errors.Is(err, common.ErrValidation) {
		t.Errorf("negative start err = %v", err)
	}
	if _, err := p.Process(context.Background(), Request{Path: filepath.Join(fx.dir, "missing.pdf")}); err == nil {
		t.Error("expected load error")
	}
	runs, err := fx.runs.List(context.Background(), repository.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("rejected requests left %d ledger rows", len(runs))
	}
}
