// Package schema validates layout-model output before it reaches the router.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/docrouter/constants"
)

// BuildModelJSONSchema returns the JSON-Schema for a list of per-page model records.
func BuildModelJSONSchema() map[string]any {
	categories := make([]any, 0, len(constants.AllCategories()))
	for _, c := range constants.AllCategories() {
		categories = append(categories, int(c))
	}

	det := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"category_id": map[string]any{"type": "integer", "enum": categories},
			"poly": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "number"},
				"minItems": 8,
				"maxItems": 8,
			},
			"score": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"text":  map[string]any{"type": "string"},
			"latex": map[string]any{"type": "string"},
		},
		"required": []string{"category_id", "poly"},
	}

	pageInfo := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"page_no": map[string]any{"type": "integer", "minimum": 0},
			"width":   map[string]any{"type": "number", "exclusiveMinimum": 0},
			"height":  map[string]any{"type": "number", "exclusiveMinimum": 0},
		},
		"required": []string{"page_no", "width", "height"},
	}

	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"layout_dets": map[string]any{"type": "array", "items": det},
				"page_info":   pageInfo,
			},
			"required": []string{"layout_dets", "page_info"},
		},
	}
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func modelSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(BuildModelJSONSchema())
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("model.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile("model.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// ValidateJSON validates raw model output bytes.
func ValidateJSON(data []byte) error {
	s, err := modelSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal model output: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("model output does not match schema: %w", err)
	}
	return nil
}

// Validate validates in-memory records. They are round-tripped through JSON
// so Go numeric types are checked the same way as decoded input.
func Validate(records []map[string]any) error {
	b, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal model output: %w", err)
	}
	return ValidateJSON(b)
}
