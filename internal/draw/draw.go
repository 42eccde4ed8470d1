// Package draw renders layout detections over their pages for inspection.
package draw

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/dataset"
	"github.com/joseph-ayodele/docrouter/internal/layout"
	"github.com/joseph-ayodele/docrouter/internal/storage"
)

// Renderer visualizes model records. It writes its output under dir using
// name as the file name and must not modify records.
type Renderer interface {
	Render(ctx context.Context, records []map[string]any, ds dataset.Dataset, dir, name string) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, records []map[string]any, ds dataset.Dataset, dir, name string) error

func (f RendererFunc) Render(ctx context.Context, records []map[string]any, ds dataset.Dataset, dir, name string) error {
	return f(ctx, records, ds, dir, name)
}

type Config struct {
	PageWidth int // rendered width of each page in pixels; default 816
	Gap       int // separator between pages; default 8
	Labels    bool
}

// BoxRenderer stacks every page into a single PNG with one outlined box per
// detection, colored by category.
type BoxRenderer struct {
	cfg    Config
	logger *slog.Logger
}

func NewBoxRenderer(cfg Config, logger *slog.Logger) *BoxRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageWidth <= 0 {
		cfg.PageWidth = 816
	}
	if cfg.Gap < 0 {
		cfg.Gap = 0
	} else if cfg.Gap == 0 {
		cfg.Gap = 8
	}
	return &BoxRenderer{cfg: cfg, logger: logger}
}

var palette = map[constants.Category]color.RGBA{
	constants.Title:           {0xd6, 0x27, 0x28, 0xff},
	constants.Text:            {0x1f, 0x77, 0xb4, 0xff},
	constants.Abandon:         {0x7f, 0x7f, 0x7f, 0xff},
	constants.Figure:          {0x2c, 0xa0, 0x2c, 0xff},
	constants.FigureCaption:   {0x98, 0xdf, 0x8a, 0xff},
	constants.Table:           {0xff, 0x7f, 0x0e, 0xff},
	constants.TableCaption:    {0xff, 0xbb, 0x78, 0xff},
	constants.TableFootnote:   {0xc4, 0x9c, 0x94, 0xff},
	constants.IsolateFormula:  {0x94, 0x67, 0xbd, 0xff},
	constants.FormulaCaption:  {0xc5, 0xb0, 0xd5, 0xff},
	constants.InlineFormula:   {0xe3, 0x77, 0xc2, 0xff},
	constants.IsolatedFormula: {0x94, 0x67, 0xbd, 0xff},
	constants.OCRText:         {0x17, 0xbe, 0xcf, 0xff},
}

// ColorFor returns the outline color used for c.
func ColorFor(c constants.Category) color.RGBA {
	if col, ok := palette[c]; ok {
		return col
	}
	return color.RGBA{0, 0, 0, 0xff}
}

var (
	spanShade = color.RGBA{0xe6, 0xe6, 0xe6, 0xff}
	gapShade  = color.RGBA{0x99, 0x99, 0x99, 0xff}
)

func (r *BoxRenderer) Render(ctx context.Context, records []map[string]any, ds dataset.Dataset, dir, name string) error {
	if ds == nil {
		return fmt.Errorf("draw: nil dataset")
	}
	n := ds.Len()
	canvases := make([]*image.RGBA, 0, n)
	boxes := 0
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := ds.Page(i)
		if err != nil {
			return fmt.Errorf("draw page %d: %w", i, err)
		}
		var rec layout.Page
		if i < len(records) {
			if rec, err = layout.ParsePage(records[i]); err != nil {
				return fmt.Errorf("draw page %d: %w", i, err)
			}
		}
		canvas, err := r.renderPage(page, rec)
		if err != nil {
			return fmt.Errorf("draw page %d: %w", i, err)
		}
		canvases = append(canvases, canvas)
		boxes += len(rec.Dets)
	}

	out := r.stack(canvases)
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if err := storage.NewFileWriter(dir, r.logger).Write(name, buf.Bytes()); err != nil {
		return err
	}
	r.logger.Info("rendered model boxes", "dir", dir, "name", name, "pages", n, "boxes", boxes)
	return nil
}

func (r *BoxRenderer) renderPage(page dataset.Page, rec layout.Page) (*image.RGBA, error) {
	pw, ph := page.Size()
	if pw <= 0 || ph <= 0 {
		return nil, fmt.Errorf("page has empty size %vx%v", pw, ph)
	}
	scale := float64(r.cfg.PageWidth) / pw
	canvas := image.NewRGBA(image.Rect(0, 0, r.cfg.PageWidth, max(int(ph*scale+0.5), 1)))
	xdraw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, xdraw.Src)

	if img := page.Image(); img != nil {
		xdraw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	} else if spans, err := page.Text(); err == nil {
		for _, s := range spans {
			fillRect(canvas, toPixels(layout.BBox{s.X0, s.Y0, s.X1, s.Y1}, scale, scale), spanShade)
		}
	}

	sx, sy := rec.ScaleTo(pw, ph)
	for _, d := range rec.Dets {
		rect := toPixels(d.BBox.Scale(sx, sy), scale, scale)
		col := ColorFor(d.Category)
		strokeRect(canvas, rect, col, 2)
		if r.cfg.Labels {
			label(canvas, rect.Min, d.Category.String(), col)
		}
	}
	return canvas, nil
}

func (r *BoxRenderer) stack(pages []*image.RGBA) *image.RGBA {
	h := 0
	for i, p := range pages {
		if i > 0 {
			h += r.cfg.Gap
		}
		h += p.Bounds().Dy()
	}
	out := image.NewRGBA(image.Rect(0, 0, r.cfg.PageWidth, max(h, 1)))
	xdraw.Draw(out, out.Bounds(), image.NewUniform(gapShade), image.Point{}, xdraw.Src)
	y := 0
	for i, p := range pages {
		if i > 0 {
			y += r.cfg.Gap
		}
		dst := image.Rect(0, y, p.Bounds().Dx(), y+p.Bounds().Dy())
		xdraw.Draw(out, dst, p, image.Point{}, xdraw.Src)
		y += p.Bounds().Dy()
	}
	return out
}

func toPixels(b layout.BBox, sx, sy float64) image.Rectangle {
	return image.Rect(int(b[0]*sx), int(b[1]*sy), int(b[2]*sx+0.5), int(b[3]*sy+0.5))
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	xdraw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, xdraw.Src)
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color, width int) {
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c)
	fillRect(dst, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func label(dst *image.RGBA, at image.Point, text string, c color.Color) {
	face := basicfont.Face7x13
	y := at.Y - 2
	if y < face.Ascent {
		y = at.Y + face.Ascent + 2
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(at.X+2, y),
	}
	d.DrawString(text)
}
