package constants

// Category is a layout-model detection class.
type Category int

const (
	Title           Category = 0
	Text            Category = 1
	Abandon         Category = 2
	Figure          Category = 3
	FigureCaption   Category = 4
	Table           Category = 5
	TableCaption    Category = 6
	TableFootnote   Category = 7
	IsolateFormula  Category = 8
	FormulaCaption  Category = 9
	InlineFormula   Category = 13
	IsolatedFormula Category = 14
	OCRText         Category = 15
)

var categoryNames = map[Category]string{
	Title:           "title",
	Text:            "text",
	Abandon:         "abandon",
	Figure:          "figure",
	FigureCaption:   "figure_caption",
	Table:           "table",
	TableCaption:    "table_caption",
	TableFootnote:   "table_footnote",
	IsolateFormula:  "isolate_formula",
	FormulaCaption:  "formula_caption",
	InlineFormula:   "inline_formula",
	IsolatedFormula: "isolated_formula",
	OCRText:         "ocr_text",
}

var allCategories = []Category{
	Title,
	Text,
	Abandon,
	Figure,
	FigureCaption,
	Table,
	TableCaption,
	TableFootnote,
	IsolateFormula,
	FormulaCaption,
	InlineFormula,
	IsolatedFormula,
	OCRText,
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return "unknown"
}

// AllCategories returns the known categories in id order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// AsStringSlice returns the category names in id order.
func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = cat.String()
	}
	return result
}

// IsTextual reports whether blocks of this category carry running text.
func (c Category) IsTextual() bool {
	switch c {
	case Title, Text, FigureCaption, TableCaption, TableFootnote, FormulaCaption:
		return true
	}
	return false
}

// Known reports whether c is one of the model's categories.
func (c Category) Known() bool {
	_, ok := categoryNames[c]
	return ok
}
