package inference

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/docrouter/internal/classify"
	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/dataset"
	"github.com/joseph-ayodele/docrouter/internal/pipe"
	"github.com/joseph-ayodele/docrouter/internal/storage"
	"github.com/joseph-ayodele/docrouter/internal/testutil"
)

const testVersion = "1.2.3-test"

func threePages(t *testing.T) dataset.Dataset {
	t.Helper()
	ds, err := dataset.NewPDF(testutil.PDF([]string{"Page one", "Page two", "Page three"}))
	if err != nil {
		t.Fatalf("NewPDF() error = %v", err)
	}
	return ds
}

// mutatingExtract records what it saw and then trashes its input.
type mutatingExtract struct {
	mu     sync.Mutex
	seen   [][]map[string]any
	params []pipe.Params
}

func (m *mutatingExtract) extract(_ context.Context, records []map[string]any, _ dataset.Dataset, _ storage.Writer, s pipe.Strategy, p pipe.Params) (pipe.ExtractionResult, error) {
	m.mu.Lock()
	m.seen = append(m.seen, testutilClone(records))
	m.params = append(m.params, p)
	m.mu.Unlock()

	for _, rec := range records {
		dets := rec["layout_dets"].([]any)
		dets[0].(map[string]any)["poly"].([]any)[0] = -1.0
		rec["page_info"].(map[string]any)["width"] = 0
		delete(rec, "layout_dets")
	}
	return pipe.ExtractionResult{"pages": len(records), "strategy_seen": s.Tag()}, nil
}

// testutilClone copies through JSON so later mutation by the extractor
// cannot touch the recorded view.
func testutilClone(records []map[string]any) []map[string]any {
	b, _ := json.Marshal(records)
	var out []map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}

func normalized(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestPipe_IsolatesStoredRecords(t *testing.T) {
	m := &mutatingExtract{}
	r := New(testutil.LetterRecords(3), threePages(t), Config{Version: testVersion, Extract: m.extract}, nil)
	want := normalized(t, testutil.LetterRecords(3))

	for i := 0; i < 2; i++ {
		if _, err := r.PipeTxtMode(context.Background(), nil); err != nil {
			t.Fatalf("PipeTxtMode() call %d error = %v", i, err)
		}
	}
	if _, err := r.PipeOCRMode(context.Background(), nil); err != nil {
		t.Fatalf("PipeOCRMode() error = %v", err)
	}
	for i, seen := range m.seen {
		if diff := cmp.Diff(want, normalized(t, seen)); diff != "" {
			t.Errorf("call %d saw modified records (-want +got):\n%s", i, diff)
		}
	}
	if diff := cmp.Diff(want, normalized(t, inferRes(t, r))); diff != "" {
		t.Errorf("stored records changed (-want +got):\n%s", diff)
	}
}

func inferRes(t *testing.T, r *Result) []map[string]any {
	t.Helper()
	recs, err := r.GetInferRes()
	if err != nil {
		t.Fatalf("GetInferRes() error = %v", err)
	}
	return recs
}

func TestGetInferRes_CopyFailure(t *testing.T) {
	r := New(testutil.LetterRecords(1), threePages(t), Config{Version: testVersion}, nil)
	boom := errors.New("boom")
	r.copier = func(dst, src any) error { return boom }

	recs, err := r.GetInferRes()
	if !errors.Is(err, boom) || !errors.Is(err, common.ErrInternal) {
		t.Fatalf("GetInferRes() error = %v, want boom wrapped in ErrInternal", err)
	}
	if recs != nil {
		t.Errorf("GetInferRes() records = %v, want nil", recs)
	}
	if _, err := r.PipeTxtMode(context.Background(), nil); !errors.Is(err, boom) {
		t.Errorf("PipeTxtMode() error = %v, want boom", err)
	}
}

func TestGetInferRes_MutationDoesNotLeak(t *testing.T) {
	ds := threePages(t)
	r := New(testutil.LetterRecords(3), ds, Config{Version: testVersion}, nil)
	before, err := r.PipeTxtMode(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	got := inferRes(t, r)
	got[0]["layout_dets"] = []any{}
	got[2]["page_info"].(map[string]any)["width"] = 1.0

	after, err := r.PipeTxtMode(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before.Result(), after.Result()); diff != "" {
		t.Errorf("result changed after external mutation (-before +after):\n%s", diff)
	}
}

func TestPipeAutoMode_MatchesDirectMode(t *testing.T) {
	ds := threePages(t)
	tests := []struct {
		name     string
		strategy pipe.Strategy
		direct   func(*Result) (*pipe.PipeResult, error)
	}{
		{"txt", pipe.TXT, func(r *Result) (*pipe.PipeResult, error) {
			return r.PipeTxtMode(context.Background(), nil, pipe.WithStartPage(1), pipe.WithDebug(true))
		}},
		{"ocr", pipe.OCR, func(r *Result) (*pipe.PipeResult, error) {
			return r.PipeOCRMode(context.Background(), nil, pipe.WithStartPage(1), pipe.WithDebug(true))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var classified [][]byte
			c := classify.Func(func(data []byte) (pipe.Strategy, error) {
				classified = append(classified, data)
				return tt.strategy, nil
			})
			r := New(testutil.LetterRecords(3), ds, Config{Version: testVersion, Classifier: c}, nil)

			auto, err := r.PipeAutoMode(context.Background(), nil, pipe.WithStartPage(1), pipe.WithDebug(true))
			if err != nil {
				t.Fatalf("PipeAutoMode() error = %v", err)
			}
			direct, err := tt.direct(r)
			if err != nil {
				t.Fatalf("direct mode error = %v", err)
			}
			if diff := cmp.Diff(direct.Result(), auto.Result()); diff != "" {
				t.Errorf("auto differs from direct (-direct +auto):\n%s", diff)
			}
			if auto.ParseType() != tt.strategy.Tag() {
				t.Errorf("ParseType() = %q, want %q", auto.ParseType(), tt.strategy.Tag())
			}
			if len(classified) != 1 || len(classified[0]) != len(ds.DataBits()) {
				t.Errorf("classifier not called with document bytes")
			}
		})
	}
}

func TestPipeAutoMode_HeuristicClassifier(t *testing.T) {
	text := strings.Repeat("The committee approved the annual budget. ", 3)
	ds, err := dataset.NewPDF(testutil.PDF([]string{text, text}))
	if err != nil {
		t.Fatal(err)
	}
	r := New(testutil.LetterRecords(2), ds, Config{Version: testVersion}, nil)
	res, err := r.PipeAutoMode(context.Background(), nil)
	if err != nil {
		t.Fatalf("PipeAutoMode() error = %v", err)
	}
	if res.ParseType() != "txt" {
		t.Errorf("ParseType() = %q, want txt", res.ParseType())
	}
}

func TestPipe_Annotations(t *testing.T) {
	ds := threePages(t)
	en := "en"
	tests := []struct {
		name      string
		run       func(*Result, ...pipe.Option) (*pipe.PipeResult, error)
		opts      []pipe.Option
		wantType  string
		wantLang  string
		wantHasLn bool
	}{
		{"txt no lang", (*Result).txt, nil, "txt", "", false},
		{"ocr nil lang", (*Result).ocr, []pipe.Option{pipe.WithLang(nil)}, "ocr", "", false},
		{"txt en", (*Result).txt, []pipe.Option{pipe.WithLang(&en)}, "txt", "en", true},
		{"ocr en", (*Result).ocr, []pipe.Option{pipe.WithLang(&en)}, "ocr", "en", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(testutil.LetterRecords(3), ds, Config{Version: testVersion}, nil)
			out, err := tt.run(r, tt.opts...)
			if err != nil {
				t.Fatalf("pipe error = %v", err)
			}
			res := out.Result()
			if res[pipe.KeyParseType] != tt.wantType {
				t.Errorf("_parse_type = %v, want %q", res[pipe.KeyParseType], tt.wantType)
			}
			if res[pipe.KeyVersionName] != testVersion {
				t.Errorf("_version_name = %v, want %q", res[pipe.KeyVersionName], testVersion)
			}
			lang, ok := res.Lang()
			if ok != tt.wantHasLn || lang != tt.wantLang {
				t.Errorf("lang = %q present=%v, want %q present=%v", lang, ok, tt.wantLang, tt.wantHasLn)
			}
			if out.Dataset() != ds {
				t.Error("PipeResult does not reference the dataset")
			}
		})
	}
}

func (r *Result) txt(opts ...pipe.Option) (*pipe.PipeResult, error) {
	return r.PipeTxtMode(context.Background(), nil, opts...)
}

func (r *Result) ocr(opts ...pipe.Option) (*pipe.PipeResult, error) {
	return r.PipeOCRMode(context.Background(), nil, opts...)
}

func TestPipe_DefaultVersion(t *testing.T) {
	r := New(testutil.LetterRecords(3), threePages(t), Config{}, nil)
	out, err := r.PipeTxtMode(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result().VersionName() != common.Version {
		t.Errorf("_version_name = %q, want %q", out.Result().VersionName(), common.Version)
	}
}

func TestPipe_EndPageOmittedReachesLastPage(t *testing.T) {
	r := New(testutil.LetterRecords(3), threePages(t), Config{Version: testVersion}, nil)
	out, err := r.PipeTxtMode(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	pages := out.PDFInfo()
	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	b, err := out.JSON(false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "Page three") {
		t.Errorf("page 3 content missing from %s", b)
	}
}

func TestPipe_WindowPassedThroughUnvalidated(t *testing.T) {
	m := &mutatingExtract{}
	r := New(testutil.LetterRecords(3), threePages(t), Config{Version: testVersion, Extract: m.extract}, nil)
	if _, err := r.PipeOCRMode(context.Background(), nil, pipe.WithStartPage(5), pipe.WithEndPage(2)); err != nil {
		t.Fatalf("inverted window should be delegated, got %v", err)
	}
	p := m.params[0]
	if p.StartPageID != 5 || p.EndPageID == nil || *p.EndPageID != 2 {
		t.Errorf("params = %+v", p)
	}
}

func TestPipe_ErrorsPropagateUnchanged(t *testing.T) {
	ds := threePages(t)
	boom := errors.New("extraction exploded")
	failing := func(context.Context, []map[string]any, dataset.Dataset, storage.Writer, pipe.Strategy, pipe.Params) (pipe.ExtractionResult, error) {
		return pipe.ExtractionResult{"partial": true}, boom
	}
	r := New(testutil.LetterRecords(3), ds, Config{Version: testVersion, Extract: failing}, nil)
	out, err := r.PipeTxtMode(context.Background(), nil)
	if err != boom {
		t.Errorf("error = %v, want the extractor's error unchanged", err)
	}
	if out != nil {
		t.Error("failed extraction produced a PipeResult")
	}

	classifyErr := errors.New("cannot classify")
	called := false
	r = New(testutil.LetterRecords(3), ds, Config{
		Version: testVersion,
		Classifier: classify.Func(func([]byte) (pipe.Strategy, error) {
			return nil, classifyErr
		}),
		Extract: func(context.Context, []map[string]any, dataset.Dataset, storage.Writer, pipe.Strategy, pipe.Params) (pipe.ExtractionResult, error) {
			called = true
			return pipe.ExtractionResult{}, nil
		},
	}, nil)
	if _, err := r.PipeAutoMode(context.Background(), nil); err != classifyErr {
		t.Errorf("PipeAutoMode() error = %v, want classifier error unchanged", err)
	}
	if called {
		t.Error("extraction ran after classification failure")
	}

	if _, err := New(nil, nil, Config{}, nil).PipeAutoMode(context.Background(), nil); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("nil dataset: error = %v", err)
	}
}

func TestApply(t *testing.T) {
	r := New(testutil.LetterRecords(1), nil, Config{}, nil)
	got, err := r.Apply(context.Background(), func(_ context.Context, records []map[string]any, args ...any) (any, error) {
		records[0]["page_info"] = nil
		return len(records) + args[0].(int), nil
	}, 41)
	if err != nil || got != 42 {
		t.Errorf("Apply() = %v, %v", got, err)
	}
	if inferRes(t, r)[0]["page_info"] == nil {
		t.Error("Apply() leaked mutation into stored records")
	}

	sentinel := errors.New("proc failed")
	if _, err := r.Apply(context.Background(), func(context.Context, []map[string]any, ...any) (any, error) {
		return nil, sentinel
	}); err != sentinel {
		t.Errorf("Apply() error = %v, want sentinel", err)
	}
}

func TestDrawModel_CreatesDirectory(t *testing.T) {
	r := New(testutil.LetterRecords(3), threePages(t), Config{}, nil)
	out := filepath.Join(t.TempDir(), "out", "boxes.png")
	if err := r.DrawModel(context.Background(), out); err != nil {
		t.Fatalf("DrawModel() error = %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("rendered file missing: %v", err)
	}
}

func TestDrawModel_RendererGetsCopy(t *testing.T) {
	var gotDir, gotName string
	renderer := rendererFunc(func(_ context.Context, records []map[string]any, _ dataset.Dataset, dir, name string) error {
		gotDir, gotName = dir, name
		records[0]["layout_dets"] = nil
		return nil
	})
	r := New(testutil.LetterRecords(1), nil, Config{Renderer: renderer}, nil)
	base := t.TempDir()
	if err := r.DrawModel(context.Background(), filepath.Join(base, "a", "b", "doc.png")); err != nil {
		t.Fatal(err)
	}
	if gotDir != filepath.Join(base, "a", "b") || gotName != "doc.png" {
		t.Errorf("renderer got dir=%q name=%q", gotDir, gotName)
	}
	if inferRes(t, r)[0]["layout_dets"] == nil {
		t.Error("renderer mutation leaked into stored records")
	}
	if err := r.DrawModel(context.Background(), ""); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("empty path: error = %v", err)
	}
}

type rendererFunc func(ctx context.Context, records []map[string]any, ds dataset.Dataset, dir, name string) error

func (f rendererFunc) Render(ctx context.Context, records []map[string]any, ds dataset.Dataset, dir, name string) error {
	return f(ctx, records, ds, dir, name)
}

func TestDumpModel(t *testing.T) {
	records := []map[string]any{testutil.Record(0, 100, 100,
		testutil.Det(1, 0, 0, 10, 10, "text", "café <b> & ü"),
	)}
	r := New(records, nil, Config{}, nil)
	dir := t.TempDir()
	if err := r.DumpModel(storage.NewFileWriter(dir, nil), "doc_model.json"); err != nil {
		t.Fatalf("DumpModel() error = %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "doc_model.json"))
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.Contains(s, "café <b> & ü") {
		t.Errorf("non-ASCII or HTML escaped in dump: %s", s)
	}
	if !strings.Contains(s, "\n    {\n        \"layout_dets\"") {
		t.Errorf("dump not indented with 4 spaces: %s", s)
	}
	var back any
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(normalized(t, records), back); diff != "" {
		t.Errorf("dump does not round-trip (-want +got):\n%s", diff)
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write(string, []byte) error {
	return w.err
}

func (w failingWriter) WriteString(string, string) error {
	return w.err
}

func TestDumpModel_WriterError(t *testing.T) {
	boom := errors.New("disk full")
	r := New(testutil.LetterRecords(1), nil, Config{}, nil)
	if err := r.DumpModel(failingWriter{boom}, "x.json"); err != boom {
		t.Errorf("DumpModel() error = %v, want writer error unchanged", err)
	}
}

func TestConcurrentPipes(t *testing.T) {
	m := &mutatingExtract{}
	renderer := rendererFunc(func(_ context.Context, records []map[string]any, _ dataset.Dataset, _, _ string) error {
		for _, rec := range records {
			delete(rec, "page_info")
		}
		return nil
	})
	r := New(testutil.LetterRecords(3), threePages(t), Config{Version: testVersion, Extract: m.extract, Renderer: renderer}, nil)
	want := normalized(t, testutil.LetterRecords(3))
	dir := t.TempDir()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers*3)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.PipeTxtMode(context.Background(), nil); err != nil {
				errs <- err
			}
			if _, err := r.PipeOCRMode(context.Background(), nil); err != nil {
				errs <- err
			}
			if err := r.DrawModel(context.Background(), filepath.Join(dir, "boxes.png")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent call failed: %v", err)
	}
	if len(m.seen) != workers*2 {
		t.Fatalf("extractor ran %d times, want %d", len(m.seen), workers*2)
	}
	for i, seen := range m.seen {
		if diff := cmp.Diff(want, normalized(t, seen)); diff != "" {
			t.Fatalf("call %d saw modified records:\n%s", i, diff)
		}
	}
	if diff := cmp.Diff(want, normalized(t, inferRes(t, r))); diff != "" {
		t.Errorf("stored records changed:\n%s", diff)
	}
}
