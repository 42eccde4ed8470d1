package pipe

import (
	"fmt"

	"github.com/joseph-ayodele/docrouter/constants"
)

// Strategy selects the extraction procedure variant. The set is closed:
// TXT and OCR are its only values.
type Strategy interface {
	// Tag is the parse type written into results ("txt" or "ocr").
	Tag() string
	sealed()
}

type textStrategy struct{}
type ocrStrategy struct{}

func (textStrategy) Tag() string    { return constants.ParseTypeTXT }
func (textStrategy) sealed()        {}
func (textStrategy) String() string { return "TXT" }
func (ocrStrategy) Tag() string     { return constants.ParseTypeOCR }
func (ocrStrategy) sealed()         {}
func (ocrStrategy) String() string  { return "OCR" }

var (
	// TXT extracts text from the document's embedded text layer.
	TXT Strategy = textStrategy{}
	// OCR extracts text from recognition output.
	OCR Strategy = ocrStrategy{}
)

// ParseStrategy maps a parse type tag back to its Strategy.
func ParseStrategy(tag string) (Strategy, error) {
	switch tag {
	case constants.ParseTypeTXT:
		return TXT, nil
	case constants.ParseTypeOCR:
		return OCR, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", tag)
	}
}
