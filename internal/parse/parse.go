// Package parse is the default extraction procedure: it walks a window of
// pages and turns layout detections into ordered blocks with text.
package parse

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"golang.org/x/image/draw"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/dataset"
	"github.com/joseph-ayodele/docrouter/internal/layout"
	"github.com/joseph-ayodele/docrouter/internal/ocr"
	"github.com/joseph-ayodele/docrouter/internal/pipe"
	"github.com/joseph-ayodele/docrouter/internal/storage"
)

// Block types written to para_blocks.
const (
	BlockTitle    = "title"
	BlockText     = "text"
	BlockEquation = "interline_equation"
)

type Config struct {
	// MinScore drops detections scored below it; 0 keeps everything.
	MinScore float64
	// OCRFallback runs the recognizer on OCR-mode text blocks that no
	// ocr_text detection covers. It needs a raster page.
	OCRFallback bool
}

type Parser struct {
	cfg        Config
	recognizer ocr.Recognizer
	logger     *slog.Logger
}

// New builds a Parser. recognizer may be nil when OCRFallback is off.
func New(cfg Config, recognizer ocr.Recognizer, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{cfg: cfg, recognizer: recognizer, logger: logger}
}

var _ pipe.ExtractFunc = (*Parser)(nil).Parse

// Parse implements pipe.ExtractFunc. records must not be shared with other
// callers; the dispatcher hands in an isolated copy.
func (p *Parser) Parse(
	ctx context.Context,
	records []map[string]any,
	ds dataset.Dataset,
	imageWriter storage.Writer,
	s pipe.Strategy,
	params pipe.Params,
) (pipe.ExtractionResult, error) {
	if ds == nil {
		return nil, errors.New("parse: nil dataset")
	}
	if s == nil {
		return nil, errors.New("parse: nil strategy")
	}
	start, end := params.Window(ds.Len())
	lang := ""
	if params.Lang != nil {
		lang = *params.Lang
	}

	pages := make([]map[string]any, 0, max(end-start, 0))
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := ds.Page(i)
		if err != nil {
			return nil, fmt.Errorf("parse page %d: %w", i, err)
		}
		var rec layout.Page
		if i < len(records) && records[i] != nil {
			rec, err = layout.ParsePage(records[i])
			if err != nil {
				return nil, fmt.Errorf("parse page %d: %w", i, err)
			}
		}
		info, err := p.parsePage(ctx, page, rec, imageWriter, s, lang, params.DebugMode)
		if err != nil {
			return nil, fmt.Errorf("parse page %d: %w", i, err)
		}
		pages = append(pages, info)
	}

	p.logger.Debug("parsed pages", "strategy", s.Tag(), "start_page", start, "end_page", end, "pages", len(pages))
	return pipe.ExtractionResult{pipe.KeyPDFInfo: pages}, nil
}

type pageStats struct {
	dropped    int
	spans      int
	ocrDets    int
	recognized int
	crops      int
}

func (p *Parser) parsePage(
	ctx context.Context,
	page dataset.Page,
	rec layout.Page,
	w storage.Writer,
	s pipe.Strategy,
	lang string,
	debug bool,
) (map[string]any, error) {
	pw, ph := page.Size()
	sx, sy := rec.ScaleTo(pw, ph)
	stats := pageStats{dropped: rec.Skipped}

	var blocks, ocrDets []layout.Det
	for _, d := range rec.Dets {
		if d.Score < p.cfg.MinScore {
			stats.dropped++
			continue
		}
		d.BBox = d.BBox.Scale(sx, sy)
		if d.Category == constants.OCRText {
			ocrDets = append(ocrDets, d)
			continue
		}
		blocks = append(blocks, d)
	}
	layout.SortReadingOrder(blocks)
	stats.ocrDets = len(ocrDets)

	var spans []dataset.TextSpan
	if s == pipe.TXT {
		var err error
		spans, err = page.Text()
		if err != nil {
			return nil, err
		}
		stats.spans = len(spans)
	}

	paraBlocks := make([]map[string]any, 0, len(blocks))
	images := make([]map[string]any, 0)
	tables := make([]map[string]any, 0)
	discarded := make([]map[string]any, 0)

	for _, d := range blocks {
		entry := map[string]any{
			"type":  d.Category.String(),
			"bbox":  d.BBox.Slice(),
			"score": d.Score,
		}
		switch {
		case d.Category == constants.Abandon:
			entry["text"] = p.blockText(ctx, page, d, spans, ocrDets, s, lang, &stats)
			discarded = append(discarded, entry)
		case d.Category == constants.Figure || d.Category == constants.Table:
			path, err := p.writeCrop(page, d.BBox, w)
			if err != nil {
				return nil, err
			}
			if path != "" {
				entry["image_path"] = path
				stats.crops++
			}
			if d.Category == constants.Figure {
				images = append(images, entry)
			} else {
				tables = append(tables, entry)
			}
		case d.Category == constants.IsolateFormula || d.Category == constants.IsolatedFormula:
			entry["type"] = BlockEquation
			if d.Latex != "" {
				entry["latex"] = d.Latex
			}
			paraBlocks = append(paraBlocks, entry)
		case d.Category.IsTextual():
			if d.Category == constants.Title {
				entry["type"] = BlockTitle
			}
			entry["text"] = p.blockText(ctx, page, d, spans, ocrDets, s, lang, &stats)
			paraBlocks = append(paraBlocks, entry)
		default:
			// inline formulas are folded into their enclosing text block
			stats.dropped++
		}
	}

	info := map[string]any{
		"page_idx":         page.Index(),
		"page_size":        []float64{pw, ph},
		"para_blocks":      paraBlocks,
		"images":           images,
		"tables":           tables,
		"discarded_blocks": discarded,
	}
	if debug {
		info["debug"] = map[string]any{
			"det_count":     len(rec.Dets),
			"dropped":       stats.dropped,
			"scale":         []float64{sx, sy},
			"span_count":    stats.spans,
			"ocr_det_count": stats.ocrDets,
			"recognized":    stats.recognized,
			"crops":         stats.crops,
		}
		p.logger.Debug("parsed page",
			"page", page.Index(),
			"blocks", len(paraBlocks),
			"images", len(images),
			"tables", len(tables),
			"dropped", stats.dropped,
		)
	}
	return info, nil
}

// blockText collects the text inside d: from the embedded text layer in TXT
// mode, from ocr_text detections (or the fallback recognizer) in OCR mode.
func (p *Parser) blockText(
	ctx context.Context,
	page dataset.Page,
	d layout.Det,
	spans []dataset.TextSpan,
	ocrDets []layout.Det,
	s pipe.Strategy,
	lang string,
	stats *pageStats,
) string {
	if s == pipe.TXT {
		return JoinSpans(SpansIn(spans, d.BBox))
	}
	if t := joinOCR(d.BBox, ocrDets); t != "" {
		return t
	}
	if d.Text != "" {
		return d.Text
	}
	if !p.cfg.OCRFallback || p.recognizer == nil {
		return ""
	}
	crop := Crop(page.Image(), d.BBox)
	if crop == nil {
		return ""
	}
	r, err := p.recognizer.Recognize(ctx, crop, lang)
	if err != nil {
		if !errors.Is(err, ocr.ErrNoText) {
			p.logger.Warn("ocr fallback failed", "page", page.Index(), "error", err)
		}
		return ""
	}
	stats.recognized++
	return r.Text
}

func joinOCR(box layout.BBox, dets []layout.Det) string {
	var inside []layout.Det
	for _, o := range dets {
		cx, cy := (o.BBox[0]+o.BBox[2])/2, (o.BBox[1]+o.BBox[3])/2
		if o.Text != "" && box.Contains(cx, cy) {
			inside = append(inside, o)
		}
	}
	layout.SortReadingOrder(inside)
	var b bytes.Buffer
	for i, o := range inside {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(o.Text)
	}
	return b.String()
}

// writeCrop encodes the region of a raster page and writes it under its
// content hash. Pages without a raster produce no file.
func (p *Parser) writeCrop(page dataset.Page, box layout.BBox, w storage.Writer) (string, error) {
	if w == nil {
		return "", nil
	}
	crop := Crop(page.Image(), box)
	if crop == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return "", fmt.Errorf("encode crop: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	name := hex.EncodeToString(sum[:]) + ".png"
	if err := w.Write(name, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write crop: %w", err)
	}
	return name, nil
}

// Crop copies box out of img, clipped to its bounds. It returns nil when img
// is nil or the clipped region is empty.
func Crop(img image.Image, box layout.BBox) image.Image {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	r := image.Rect(
		b.Min.X+int(box[0]), b.Min.Y+int(box[1]),
		b.Min.X+int(box[2]+0.5), b.Min.Y+int(box[3]+0.5),
	).Intersect(b)
	if r.Empty() {
		return nil
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
