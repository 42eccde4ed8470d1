package dataset

import (
	"bytes"
	"fmt"
	"image"
	"sort"

	"rsc.io/pdf"

	"github.com/joseph-ayodele/docrouter/constants"
)

// US Letter, used when a page carries no MediaBox anywhere in its tree.
const (
	defaultPageWidth  = 612
	defaultPageHeight = 792
)

// PDF is a Dataset backed by rsc.io/pdf.
type PDF struct {
	data   []byte
	reader *pdf.Reader
}

// NewPDF parses data as a PDF document.
func NewPDF(data []byte) (*PDF, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &PDF{data: data, reader: r}, nil
}

func (d *PDF) DataBits() []byte { return d.data }
func (d *PDF) Len() int         { return d.reader.NumPage() }
func (d *PDF) Kind() string     { return constants.PDF }

func (d *PDF) Page(idx int) (Page, error) {
	if idx < 0 || idx >= d.Len() {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, idx, d.Len())
	}
	p := d.reader.Page(idx + 1)
	if p.V.IsNull() {
		return nil, fmt.Errorf("pdf page %d: missing page object", idx)
	}
	w, h := mediaBox(p.V)
	return &pdfPage{idx: idx, page: p, width: w, height: h}, nil
}

type pdfPage struct {
	idx           int
	page          pdf.Page
	width, height float64
}

func (p *pdfPage) Index() int               { return p.idx }
func (p *pdfPage) Size() (float64, float64) { return p.width, p.height }
func (p *pdfPage) Image() image.Image       { return nil }

func (p *pdfPage) Text() (spans []TextSpan, err error) {
	// rsc.io/pdf panics on malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			spans, err = nil, fmt.Errorf("pdf page %d: read content: %v", p.idx, r)
		}
	}()
	content := p.page.Content()
	spans = make([]TextSpan, 0, len(content.Text))
	for _, t := range content.Text {
		if t.S == "" {
			continue
		}
		top := p.height - t.Y - t.FontSize
		spans = append(spans, TextSpan{
			Text:     t.S,
			X0:       t.X,
			Y0:       top,
			X1:       t.X + t.W,
			Y1:       p.height - t.Y,
			FontSize: t.FontSize,
		})
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Y1 != spans[j].Y1 {
			return spans[i].Y1 < spans[j].Y1
		}
		return spans[i].X0 < spans[j].X0
	})
	return spans, nil
}

// mediaBox walks the page tree for an inherited MediaBox.
func mediaBox(v pdf.Value) (float64, float64) {
	for depth := 0; depth < 32 && v.Kind() == pdf.Dict; depth++ {
		mb := v.Key("MediaBox")
		if mb.Kind() == pdf.Array && mb.Len() == 4 {
			w := mb.Index(2).Float64() - mb.Index(0).Float64()
			h := mb.Index(3).Float64() - mb.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return defaultPageWidth, defaultPageHeight
}
