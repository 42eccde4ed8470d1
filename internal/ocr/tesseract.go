// Package ocr recognizes text in page crops by shelling out to tesseract.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// ErrNoText is returned when the engine recognized nothing in the crop.
var ErrNoText = errors.New("no text recognized")

// Recognition is the text found in one crop.
type Recognition struct {
	Text string
	// Confidence is the mean word confidence in [0,1]; 0 when the engine reports none.
	Confidence float64
}

// Recognizer turns an image region into text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, lang string) (Recognition, error)
}

type Config struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	TessdataDir string
	DefaultLang string // BCP 47 tag used when the caller passes none; default "en"
	PSM         int    // page segmentation mode; 6 suits a single block
	OEM         int    // 1 = LSTM; leave 0 to use default
}

// Tesseract runs the tesseract CLI in TSV mode on a temporary PNG.
type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg Config, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = execRunner{}
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.DefaultLang == "" {
		cfg.DefaultLang = "en"
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 6
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image, lang string) (Recognition, error) {
	if img == nil || img.Bounds().Empty() {
		return Recognition{}, ErrNoText
	}
	if lang == "" {
		lang = t.cfg.DefaultLang
	}
	code, err := TesseractLang(lang)
	if err != nil {
		return Recognition{}, err
	}

	f, err := os.CreateTemp("", "docrouter-ocr-*.png")
	if err != nil {
		return Recognition{}, fmt.Errorf("create temp image: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil {
			t.logger.Warn("failed to remove temp image", "path", path, "error", err)
		}
	}()
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return Recognition{}, fmt.Errorf("encode crop: %w", err)
	}
	if err := f.Close(); err != nil {
		return Recognition{}, fmt.Errorf("close temp image: %w", err)
	}

	args := []string{path, "stdout", "-l", code, "--psm", strconv.Itoa(t.cfg.PSM)}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.logger, args...)
	if err != nil {
		return Recognition{}, fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	rec := ParseTSV(string(out))
	if rec.Text == "" {
		return rec, ErrNoText
	}
	return rec, nil
}

// modelLangs maps the layout model's OCR language names to traineddata codes.
var modelLangs = map[string]string{
	"ch":          "chi_sim",
	"chinese_cht": "chi_tra",
	"japan":       "jpn",
	"korean":      "kor",
	"latin":       "lat",
	"arabic":      "ara",
	"cyrillic":    "rus",
	"devanagari":  "hin",
}

// TesseractLang maps a language hint to the code tesseract expects for its
// traineddata. Model language names ("korean", "ch") and BCP 47 tags ("en",
// "de-AT") are translated; anything else that already looks like a
// traineddata name ("chi_sim", "eng+deu") is passed through.
func TesseractLang(hint string) (string, error) {
	hint = strings.TrimSpace(hint)
	if code, ok := modelLangs[strings.ToLower(hint)]; ok {
		return code, nil
	}
	if strings.ContainsAny(hint, "_+") && isTraineddataName(hint) {
		return hint, nil
	}
	if t, err := language.Parse(hint); err == nil {
		base, _ := t.Base()
		if code := base.ISO3(); code != "" && code != "und" {
			return code, nil
		}
	}
	if isTraineddataName(hint) {
		return hint, nil
	}
	return "", fmt.Errorf("no tesseract language for %q", hint)
}

func isTraineddataName(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, "+") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && r != '_' {
				return false
			}
		}
	}
	return true
}

// ParseTSV assembles words from tesseract TSV output into lines and
// averages their confidence.
func ParseTSV(out string) Recognition {
	type lineKey struct{ block, par, line int }
	var (
		order []lineKey
		words = map[lineKey][]string{}
		sum   float64
		n     float64
	)
	for i, ln := range strings.Split(out, "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		text := strings.TrimSpace(cols[11])
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 || text == "" {
			continue
		}
		block, _ := strconv.Atoi(cols[2])
		par, _ := strconv.Atoi(cols[3])
		line, _ := strconv.Atoi(cols[4])
		k := lineKey{block, par, line}
		if _, ok := words[k]; !ok {
			order = append(order, k)
		}
		words[k] = append(words[k], text)
		sum += conf
		n++
	}
	lines := make([]string, 0, len(order))
	for _, k := range order {
		lines = append(lines, strings.Join(words[k], " "))
	}
	rec := Recognition{Text: Normalize(strings.Join(lines, "\n"))}
	if n > 0 {
		rec.Confidence = sum / n / 100
	}
	return rec
}
