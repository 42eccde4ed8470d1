package parse

import (
	"math"
	"strings"

	"github.com/joseph-ayodele/docrouter/internal/dataset"
	"github.com/joseph-ayodele/docrouter/internal/layout"
)

// SpansIn returns the spans whose centers fall inside box, in input order.
func SpansIn(spans []dataset.TextSpan, box layout.BBox) []dataset.TextSpan {
	var out []dataset.TextSpan
	for _, s := range spans {
		if box.Contains(s.Center()) {
			out = append(out, s)
		}
	}
	return out
}

// JoinSpans assembles glyph runs sorted top-down, left-right into text. Runs
// on the same baseline are joined, with a space where the horizontal gap
// exceeds a quarter of the font size; baselines further apart than half the
// font size start a new line.
func JoinSpans(spans []dataset.TextSpan) string {
	var b strings.Builder
	for i, s := range spans {
		if i > 0 {
			prev := spans[i-1]
			size := math.Max(math.Max(s.FontSize, prev.FontSize), 1)
			switch {
			case math.Abs(s.Y1-prev.Y1) > size/2:
				b.WriteByte('\n')
			case s.X0-prev.X1 > size/4:
				b.WriteByte(' ')
			}
		}
		b.WriteString(s.Text)
	}
	return b.String()
}
