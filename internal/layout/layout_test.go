package layout

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/testutil"
)

func TestParsePage(t *testing.T) {
	rec := testutil.Record(2, 1000, 2000,
		testutil.Det(1, 10, 20, 110, 60, "text", "hi"),
		testutil.Det(99, 0, 0, 1, 1),
		map[string]any{"category_id": 3, "poly": []any{1, 2}},
		testutil.Det(15, 5, 5, 50, 50),
	)
	p, err := ParsePage(rec)
	if err != nil {
		t.Fatalf("ParsePage() error = %v", err)
	}
	if p.PageNo != 2 || p.Width != 1000 || p.Height != 2000 {
		t.Errorf("page info = %d %v %v", p.PageNo, p.Width, p.Height)
	}
	if p.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", p.Skipped)
	}
	want := []Det{
		{Category: constants.Text, BBox: BBox{10, 20, 110, 60}, Score: 0.95, Text: "hi"},
		{Category: constants.OCRText, BBox: BBox{5, 5, 50, 50}, Score: 0.95},
	}
	if diff := cmp.Diff(want, p.Dets); diff != "" {
		t.Errorf("Dets mismatch (-want +got):\n%s", diff)
	}
	if got := p.CategoryCounts(); got["text"] != 1 || got["ocr_text"] != 1 {
		t.Errorf("CategoryCounts() = %v", got)
	}
}

func TestParsePage_DecodedJSON(t *testing.T) {
	raw := `{"layout_dets":[{"category_id":0,"poly":[1,2,9,2,9,8,1,8],"score":0.5}],
	         "page_info":{"page_no":0,"width":100,"height":200}}`
	var rec map[string]any
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatal(err)
	}
	p, err := ParsePage(rec)
	if err != nil {
		t.Fatalf("ParsePage() error = %v", err)
	}
	if len(p.Dets) != 1 || p.Dets[0].Category != constants.Title || p.Dets[0].BBox != (BBox{1, 2, 9, 8}) {
		t.Errorf("Dets = %+v", p.Dets)
	}
	sx, sy := p.ScaleTo(50, 400)
	if sx != 0.5 || sy != 2 {
		t.Errorf("ScaleTo() = %v,%v", sx, sy)
	}
}

func TestParsePages_MissingInfo(t *testing.T) {
	if _, err := ParsePages([]map[string]any{{"layout_dets": []any{}}}); err == nil {
		t.Error("ParsePages() should fail without page_info")
	}
}

func TestBBox(t *testing.T) {
	b := BBox{0, 0, 10, 20}
	tests := []struct {
		x, y float64
		want bool
	}{
		{0, 0, true},
		{9.99, 19.99, true},
		{10, 5, false},
		{5, 20, false},
		{11, 0, false},
		{-0.01, 5, false},
	}
	for _, tt := range tests {
		if got := b.Contains(tt.x, tt.y); got != tt.want {
			t.Errorf("Contains(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
	below := BBox{0, 20, 10, 40}
	if b.Contains(5, 20) == below.Contains(5, 20) {
		t.Error("a point on a shared edge must belong to exactly one box")
	}
	if b.Area() != 200 {
		t.Errorf("Area() = %v", b.Area())
	}
	if got := b.Scale(0.5, 2); got != (BBox{0, 0, 5, 40}) {
		t.Errorf("Scale() = %v", got)
	}
	if diff := cmp.Diff([]float64{0.33, 0, 1, 1}, BBox{1.0 / 3, 0, 1, 1}.Slice()); diff != "" {
		t.Errorf("Slice() mismatch:\n%s", diff)
	}
}

func TestSortReadingOrder(t *testing.T) {
	dets := []Det{
		{BBox: BBox{50, 100, 60, 110}},
		{BBox: BBox{10, 100, 20, 110}},
		{BBox: BBox{0, 10, 5, 20}},
	}
	SortReadingOrder(dets)
	if dets[0].BBox[1] != 10 || dets[1].BBox[0] != 10 || dets[2].BBox[0] != 50 {
		t.Errorf("order = %v", dets)
	}
}
