// Package classify decides whether a document is extracted from its text layer or by OCR.
package classify

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/docrouter/internal/dataset"
	"github.com/joseph-ayodele/docrouter/internal/pipe"
)

// ErrUnsupportedDocument is returned for bytes that are neither a PDF nor a known raster format.
var ErrUnsupportedDocument = errors.New("unsupported document type")

// Classifier maps raw document bytes to an extraction strategy.
type Classifier interface {
	Classify(data []byte) (pipe.Strategy, error)
}

// Func adapts a plain function to Classifier.
type Func func(data []byte) (pipe.Strategy, error)

func (f Func) Classify(data []byte) (pipe.Strategy, error) { return f(data) }

// Config holds the text-layer thresholds.
type Config struct {
	MaxPages         int     // pages sampled from the start; default 10
	MinCharsPerPage  int     // printable runes for a page to count as text; default 50
	MinTextPageRatio float64 // share of sampled pages with text for TXT; default 0.5
	MaxGarbledRatio  float64 // share of garbled runes tolerated on a text page; default 0.1
}

// Heuristic classifies PDFs by sampling their text layer; rasters are always OCR.
type Heuristic struct {
	cfg    Config
	logger *slog.Logger
}

func NewHeuristic(cfg Config, logger *slog.Logger) *Heuristic {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.MinCharsPerPage <= 0 {
		cfg.MinCharsPerPage = 50
	}
	if cfg.MinTextPageRatio <= 0 {
		cfg.MinTextPageRatio = 0.5
	}
	if cfg.MaxGarbledRatio <= 0 {
		cfg.MaxGarbledRatio = 0.1
	}
	return &Heuristic{cfg: cfg, logger: logger}
}

func (h *Heuristic) Classify(data []byte) (pipe.Strategy, error) {
	switch sniff(data) {
	case kindPDF:
		return h.classifyPDF(data)
	case kindRaster:
		h.logger.Debug("classified raster document", "strategy", pipe.OCR.Tag())
		return pipe.OCR, nil
	default:
		return nil, ErrUnsupportedDocument
	}
}

func (h *Heuristic) classifyPDF(data []byte) (pipe.Strategy, error) {
	ds, err := dataset.NewPDF(data)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	n := ds.Len()
	if n == 0 {
		return nil, fmt.Errorf("classify: %w: pdf has no pages", ErrUnsupportedDocument)
	}
	if n > h.cfg.MaxPages {
		n = h.cfg.MaxPages
	}

	textPages := 0
	for i := 0; i < n; i++ {
		page, err := ds.Page(i)
		if err != nil {
			return nil, fmt.Errorf("classify: %w", err)
		}
		spans, err := page.Text()
		if err != nil {
			// unreadable content stream counts as a scanned page
			h.logger.Debug("page text unreadable", "page", i, "error", err)
			continue
		}
		var b strings.Builder
		for _, s := range spans {
			b.WriteString(s.Text)
		}
		chars, garbled := scoreText(b.String())
		if chars >= h.cfg.MinCharsPerPage && float64(garbled) <= h.cfg.MaxGarbledRatio*float64(chars+garbled) {
			textPages++
		}
	}

	ratio := float64(textPages) / float64(n)
	strategy := pipe.OCR
	if ratio >= h.cfg.MinTextPageRatio {
		strategy = pipe.TXT
	}
	h.logger.Debug("classified pdf",
		"sampled_pages", n, "text_pages", textPages, "ratio", ratio, "strategy", strategy.Tag())
	return strategy, nil
}

// scoreText counts printable runes and garbled ones (replacement chars,
// control chars, unmapped "(cid:N)" glyph references).
func scoreText(s string) (printable, garbled int) {
	garbled = strings.Count(s, "(cid:")
	s = strings.ReplaceAll(s, "(cid:", "")
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		switch {
		case r == utf8.RuneError:
			garbled++
		case unicode.IsControl(r):
			if r != '\n' && r != '\t' && r != '\r' {
				garbled++
			}
		case unicode.IsSpace(r):
		case unicode.IsPrint(r):
			printable++
		}
	}
	return printable, garbled
}

type docKind int

const (
	kindUnknown docKind = iota
	kindPDF
	kindRaster
)

var rasterMagic = [][]byte{
	[]byte("\x89PNG\r\n\x1a\n"),
	[]byte("\xff\xd8\xff"),
	[]byte("GIF87a"),
	[]byte("GIF89a"),
	[]byte("II*\x00"),
	[]byte("MM\x00*"),
	[]byte("BM"),
}

func sniff(data []byte) docKind {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if bytes.Contains(head, []byte("%PDF-")) {
		return kindPDF
	}
	for _, m := range rasterMagic {
		if bytes.HasPrefix(data, m) {
			return kindRaster
		}
	}
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return kindRaster
	}
	return kindUnknown
}
