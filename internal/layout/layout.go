// Package layout reads the per-page records emitted by the layout model.
package layout

import (
	"fmt"
	"math"
	"sort"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/utils"
)

// BBox is an axis-aligned box [x0, y0, x1, y1] with a top-left origin.
type BBox [4]float64

func (b BBox) Width() float64  { return b[2] - b[0] }
func (b BBox) Height() float64 { return b[3] - b[1] }
func (b BBox) Area() float64   { return math.Max(b.Width(), 0) * math.Max(b.Height(), 0) }

// Contains reports whether the point lies inside the half-open box
// [x0, x1) x [y0, y1). A point on an edge shared by two boxes belongs to one.
func (b BBox) Contains(x, y float64) bool {
	return x >= b[0] && x < b[2] && y >= b[1] && y < b[3]
}

// Scale multiplies x coordinates by sx and y coordinates by sy.
func (b BBox) Scale(sx, sy float64) BBox {
	return BBox{b[0] * sx, b[1] * sy, b[2] * sx, b[3] * sy}
}

// Slice returns the box as a JSON-friendly []float64 rounded to two decimals.
func (b BBox) Slice() []float64 {
	out := make([]float64, 4)
	for i, v := range b {
		out[i] = math.Round(v*100) / 100
	}
	return out
}

// Det is one layout detection.
type Det struct {
	Category constants.Category
	BBox     BBox
	Score    float64
	Text     string
	Latex    string
}

// Page is one decoded model record.
type Page struct {
	PageNo int
	Width  float64
	Height float64
	Dets   []Det
	// Skipped counts detections that could not be decoded.
	Skipped int
}

// ScaleTo returns the factors mapping model coordinates onto a page of the
// given size. Unknown model dimensions map 1:1.
func (p Page) ScaleTo(width, height float64) (sx, sy float64) {
	sx, sy = 1, 1
	if p.Width > 0 && width > 0 {
		sx = width / p.Width
	}
	if p.Height > 0 && height > 0 {
		sy = height / p.Height
	}
	return sx, sy
}

// CategoryCounts tallies detections by category name.
func (p Page) CategoryCounts() map[string]int {
	out := make(map[string]int)
	for _, d := range p.Dets {
		out[d.Category.String()]++
	}
	return out
}

// ParsePage decodes one record. Malformed detections are counted in Skipped
// rather than failing the page; a record without page_info is an error.
func ParsePage(rec map[string]any) (Page, error) {
	info, ok := rec["page_info"].(map[string]any)
	if !ok {
		return Page{}, fmt.Errorf("record has no page_info")
	}
	var p Page
	p.PageNo, _ = utils.ToInt(info["page_no"])
	p.Width, _ = utils.ToFloat64(info["width"])
	p.Height, _ = utils.ToFloat64(info["height"])

	for _, raw := range asList(rec["layout_dets"]) {
		m, ok := raw.(map[string]any)
		if !ok {
			p.Skipped++
			continue
		}
		d, ok := parseDet(m)
		if !ok {
			p.Skipped++
			continue
		}
		p.Dets = append(p.Dets, d)
	}
	return p, nil
}

// ParsePages decodes every record in order.
func ParsePages(records []map[string]any) ([]Page, error) {
	out := make([]Page, 0, len(records))
	for i, rec := range records {
		p, err := ParsePage(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func parseDet(m map[string]any) (Det, bool) {
	id, ok := utils.ToInt(m["category_id"])
	if !ok {
		return Det{}, false
	}
	cat := constants.Category(id)
	if !cat.Known() {
		return Det{}, false
	}
	poly := asList(m["poly"])
	if len(poly) < 8 || len(poly)%2 != 0 {
		return Det{}, false
	}
	box := BBox{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for i := 0; i < len(poly); i += 2 {
		x, okx := utils.ToFloat64(poly[i])
		y, oky := utils.ToFloat64(poly[i+1])
		if !okx || !oky {
			return Det{}, false
		}
		box[0] = math.Min(box[0], x)
		box[1] = math.Min(box[1], y)
		box[2] = math.Max(box[2], x)
		box[3] = math.Max(box[3], y)
	}
	d := Det{Category: cat, BBox: box}
	d.Score, _ = utils.ToFloat64(m["score"])
	d.Text, _ = m["text"].(string)
	d.Latex, _ = m["latex"].(string)
	return d, true
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out
	case []float64:
		out := make([]any, len(l))
		for i, f := range l {
			out[i] = f
		}
		return out
	case []int:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out
	}
	return nil
}

// SortReadingOrder orders boxes top to bottom, then left to right.
func SortReadingOrder(dets []Det) {
	sort.SliceStable(dets, func(i, j int) bool {
		a, b := dets[i].BBox, dets[j].BBox
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[0] < b[0]
	})
}
