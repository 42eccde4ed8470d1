package pipeline

import (
	"log/slog"

	"github.com/joseph-ayodele/docrouter/internal/classify"
	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/draw"
	"github.com/joseph-ayodele/docrouter/internal/inference"
	"github.com/joseph-ayodele/docrouter/internal/ocr"
	"github.com/joseph-ayodele/docrouter/internal/parse"
)

// ConfigFrom wires the processor's collaborators from the application config.
func ConfigFrom(cfg *common.Config, logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}
	var recognizer ocr.Recognizer
	if cfg.OCR.Enabled {
		recognizer = ocr.NewTesseract(ocr.Config{
			Tesseract:   cfg.OCR.Tesseract,
			TessdataDir: cfg.OCR.TessdataDir,
		}, nil, logger)
	}
	return Config{
		OutputDir: cfg.Pipeline.OutputDir,
		Inference: inference.Config{
			Version: cfg.Version,
			Extract: parse.New(parse.Config{OCRFallback: cfg.OCR.Enabled}, recognizer, logger).Parse,
			Classifier: classify.NewHeuristic(classify.Config{
				MaxPages:         cfg.Classifier.MaxPages,
				MinCharsPerPage:  cfg.Classifier.MinCharsPerPage,
				MinTextPageRatio: cfg.Classifier.MinTextPageRatio,
			}, logger),
			Renderer: draw.NewBoxRenderer(draw.Config{Labels: true}, logger),
		},
	}
}
