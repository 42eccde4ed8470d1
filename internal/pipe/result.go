// Package pipe holds the types shared by the dispatcher and the extraction procedure.
package pipe

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/joseph-ayodele/docrouter/internal/dataset"
	"github.com/joseph-ayodele/docrouter/internal/storage"
)

// Keys set on every ExtractionResult by the dispatcher.
const (
	KeyParseType   = "_parse_type"
	KeyVersionName = "_version_name"
	KeyLang        = "lang"
	KeyPDFInfo     = "pdf_info"
)

// ExtractionResult is the mapping produced by an extraction procedure.
type ExtractionResult map[string]any

// ParseType returns the strategy tag, or "" before annotation.
func (r ExtractionResult) ParseType() string {
	s, _ := r[KeyParseType].(string)
	return s
}

// VersionName returns the producing release, or "" before annotation.
func (r ExtractionResult) VersionName() string {
	s, _ := r[KeyVersionName].(string)
	return s
}

// Lang reports the language hint and whether it is present at all.
func (r ExtractionResult) Lang() (string, bool) {
	v, ok := r[KeyLang]
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

// PDFInfo returns the per-page entries written by the extraction procedure.
func (r ExtractionResult) PDFInfo() []map[string]any {
	switch v := r[KeyPDFInfo].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// Annotate tags r with strategy and version, and with lang only when non-nil.
func (r ExtractionResult) Annotate(s Strategy, version string, lang *string) {
	r[KeyParseType] = s.Tag()
	r[KeyVersionName] = version
	if lang != nil {
		r[KeyLang] = *lang
	}
}

// ExtractFunc is the per-page extraction procedure. It receives an isolated
// copy of the inference records and may mutate it freely.
type ExtractFunc func(ctx context.Context, records []map[string]any, ds dataset.Dataset, imageWriter storage.Writer, s Strategy, p Params) (ExtractionResult, error)

// PipeResult carries an annotated extraction result and its dataset to later stages.
type PipeResult struct {
	result  ExtractionResult
	dataset dataset.Dataset
}

func NewPipeResult(res ExtractionResult, ds dataset.Dataset) *PipeResult {
	return &PipeResult{result: res, dataset: ds}
}

func (p *PipeResult) Result() ExtractionResult  { return p.result }
func (p *PipeResult) Dataset() dataset.Dataset  { return p.dataset }
func (p *PipeResult) ParseType() string         { return p.result.ParseType() }
func (p *PipeResult) PDFInfo() []map[string]any { return p.result.PDFInfo() }

// JSON encodes the result without HTML escaping, indented when indent is set.
func (p *PipeResult) JSON(indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "    ")
	}
	if err := enc.Encode(p.result); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
