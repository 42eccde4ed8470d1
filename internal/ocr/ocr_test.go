package ocr

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"strings"
	"testing"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t100\t40\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t2\t2\t30\t10\t90\tHello\n" +
	"5\t1\t1\t1\t1\t2\t40\t2\t30\t10\t80\tworld\n" +
	"5\t1\t1\t1\t2\t1\t2\t20\t30\t10\t70\tagain\n"

func TestParseTSV(t *testing.T) {
	rec := ParseTSV(sampleTSV)
	if rec.Text != "Hello world\nagain" {
		t.Errorf("Text = %q", rec.Text)
	}
	if rec.Confidence < 0.79 || rec.Confidence > 0.81 {
		t.Errorf("Confidence = %v, want 0.8", rec.Confidence)
	}
	if got := ParseTSV(""); got.Text != "" || got.Confidence != 0 {
		t.Errorf("ParseTSV(\"\") = %+v", got)
	}
}

func TestTesseractLang(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"en", "eng", false},
		{"en-US", "eng", false},
		{"de", "deu", false},
		{"fr", "fra", false},
		{"korean", "kor", false},
		{"ch", "chi_sim", false},
		{"chinese_cht", "chi_tra", false},
		{"japan", "jpn", false},
		{"cyrillic", "rus", false},
		{"chi_sim", "chi_sim", false},
		{"eng+deu", "eng+deu", false},
		{"not a tag!", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := TesseractLang(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("TesseractLang(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("TesseractLang(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTesseract_Recognize(t *testing.T) {
	var gotArgs []string
	runner := RunnerFunc(func(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
		if name != "tess" {
			t.Errorf("binary = %q", name)
		}
		gotArgs = args
		return []byte(sampleTSV), nil, nil
	})
	tr := NewTesseract(Config{Tesseract: "tess", TessdataDir: "/td"}, runner, nil)
	rec, err := tr.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), "de")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if !strings.HasPrefix(rec.Text, "Hello world") {
		t.Errorf("Text = %q", rec.Text)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"stdout -l deu --psm 6", "--tessdata-dir /td", "tsv"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

func TestTesseract_RecognizeFailures(t *testing.T) {
	empty := RunnerFunc(func(context.Context, string, *slog.Logger, ...string) ([]byte, []byte, error) {
		return []byte("level\tconf\ttext\n"), nil, nil
	})
	tr := NewTesseract(Config{}, empty, nil)
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	if _, err := tr.Recognize(context.Background(), img, ""); !errors.Is(err, ErrNoText) {
		t.Errorf("empty output: error = %v, want ErrNoText", err)
	}
	if _, err := tr.Recognize(context.Background(), nil, ""); !errors.Is(err, ErrNoText) {
		t.Errorf("nil image: error = %v, want ErrNoText", err)
	}

	failing := RunnerFunc(func(context.Context, string, *slog.Logger, ...string) ([]byte, []byte, error) {
		return nil, []byte("boom"), errors.New("exit status 1")
	})
	if _, err := NewTesseract(Config{}, failing, nil).Recognize(context.Background(), img, "en"); err == nil {
		t.Error("Recognize() should surface runner failure")
	}
}

func TestNormalize(t *testing.T) {
	in := "a\t\tb   c\r\n-----\n\n\n\nd  "
	if got := Normalize(in); got != "a b c\n\nd" {
		t.Errorf("Normalize() = %q", got)
	}
}
