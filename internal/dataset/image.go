package dataset

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/joseph-ayodele/docrouter/constants"
)

// Image is a single-page Dataset over a raster scan or photo.
type Image struct {
	data   []byte
	img    image.Image
	format string
}

// NewImage decodes data with the registered image decoders.
func NewImage(data []byte) (*Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &Image{data: data, img: img, format: format}, nil
}

// NewImageFrom wraps an already decoded image; DataBits returns data verbatim.
func NewImageFrom(img image.Image, data []byte) *Image {
	return &Image{data: data, img: img}
}

func (d *Image) DataBits() []byte { return d.data }
func (d *Image) Len() int         { return 1 }
func (d *Image) Kind() string     { return constants.IMAGE }

// Format is the decoder name reported by image.Decode ("png", "jpeg", ...).
func (d *Image) Format() string { return d.format }

func (d *Image) Page(idx int) (Page, error) {
	if idx != 0 {
		return nil, fmt.Errorf("%w: %d of 1", ErrPageOutOfRange, idx)
	}
	return imagePage{img: d.img}, nil
}

type imagePage struct {
	img image.Image
}

func (p imagePage) Index() int { return 0 }
func (p imagePage) Size() (float64, float64) {
	b := p.img.Bounds()
	return float64(b.Dx()), float64(b.Dy())
}
func (p imagePage) Text() ([]TextSpan, error) { return nil, nil }
func (p imagePage) Image() image.Image        { return p.img }
