// Package dataset exposes a document's raw bytes and per-page content to the router.
package dataset

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/docrouter/constants"
)

// ErrPageOutOfRange is returned by Page for an index outside [0, Len()).
var ErrPageOutOfRange = errors.New("page index out of range")

// Dataset is the document behind an inference result. Implementations are read-only.
type Dataset interface {
	// DataBits returns the raw document bytes. Callers must not modify them.
	DataBits() []byte
	Len() int
	Page(idx int) (Page, error)
	// Kind is constants.PDF or constants.IMAGE.
	Kind() string
}

// Page is one page of a Dataset.
type Page interface {
	Index() int
	// Size is the page size in the dataset's native units (points for PDF, pixels for images).
	Size() (width, height float64)
	// Text returns the embedded text layer; rasters have none.
	Text() ([]TextSpan, error)
	// Image returns the page raster, or nil when the page is not a raster.
	Image() image.Image
}

// TextSpan is a run of embedded text with a top-left-origin bounding box.
type TextSpan struct {
	Text     string
	X0, Y0   float64
	X1, Y1   float64
	FontSize float64
}

// Center returns the midpoint of the span's bounding box.
func (s TextSpan) Center() (float64, float64) {
	return (s.X0 + s.X1) / 2, (s.Y0 + s.Y1) / 2
}

// Open reads path and builds the dataset matching its extension.
func Open(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return FromBytes(data, constants.MapExtToFormat(filepath.Ext(path)))
}

// FromBytes builds a dataset of the given format (constants.PDF or constants.IMAGE).
func FromBytes(data []byte, format string) (Dataset, error) {
	switch format {
	case constants.PDF:
		return NewPDF(data)
	case constants.IMAGE:
		return NewImage(data)
	default:
		return nil, fmt.Errorf("unsupported document format: %q", format)
	}
}
