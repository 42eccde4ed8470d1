// Package testutil builds small documents and model outputs for tests.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
)

// PDF returns a minimal valid PDF with one US Letter page per entry of pages.
// Each page shows its text with a monospace-width Helvetica at 12pt, one line
// per "\n", starting at (72, 720).
func PDF(pages []string) []byte {
	var objs []string
	n := len(pages)
	// 1 catalog, 2 pages, 3 font, then (page, content) pairs.
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>", strings.Join(kids, " "), n),
		fontObject(),
	)
	for i, text := range pages {
		stream := contentStream(text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objs)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func fontObject() string {
	widths := make([]string, 95)
	for i := range widths {
		widths[i] = "600"
	}
	return "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding " +
		"/FirstChar 32 /LastChar 126 /Widths [" + strings.Join(widths, " ") + "] >>"
}

func contentStream(text string) string {
	if text == "" {
		return "q Q"
	}
	var b strings.Builder
	b.WriteString("BT /F1 12 Tf 14 TL 72 720 Td")
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString(" T*")
		}
		fmt.Fprintf(&b, " (%s) Tj", escape(line))
	}
	b.WriteString(" ET")
	return b.String()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// PNG returns a w x h PNG filled with c.
func PNG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var b bytes.Buffer
	if err := png.Encode(&b, img); err != nil {
		panic(err)
	}
	return b.Bytes()
}

// Det builds one layout detection with an axis-aligned poly.
func Det(category int, x0, y0, x1, y1 float64, extra ...any) map[string]any {
	d := map[string]any{
		"category_id": category,
		"poly":        []any{x0, y0, x1, y0, x1, y1, x0, y1},
		"score":       0.95,
	}
	for i := 0; i+1 < len(extra); i += 2 {
		d[extra[i].(string)] = extra[i+1]
	}
	return d
}

// Record builds one page of model output.
func Record(pageNo int, width, height float64, dets ...map[string]any) map[string]any {
	list := make([]any, len(dets))
	for i, d := range dets {
		list[i] = d
	}
	return map[string]any{
		"layout_dets": list,
		"page_info": map[string]any{
			"page_no": pageNo,
			"width":   width,
			"height":  height,
		},
	}
}

// LetterRecords builds model output for n US Letter pages, each with a single
// text block covering the first line written by PDF.
func LetterRecords(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = Record(i, 612, 792,
			Det(1, 60, 60, 560, 120),
		)
	}
	return out
}
