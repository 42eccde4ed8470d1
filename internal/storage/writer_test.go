package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileWriter_WriteCreatesParents(t *testing.T) {
	root := t.TempDir()
	w := NewFileWriter(root, nil)
	if err := w.WriteString("images/a/b.txt", "hello"); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, "images", "a", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q", got)
	}
}

func TestFileWriter_RejectsEscape(t *testing.T) {
	w := NewFileWriter(t.TempDir(), nil)
	for _, p := range []string{"../x", "a/../../x"} {
		if err := w.Write(p, nil); !errors.Is(err, ErrPathEscapesRoot) {
			t.Errorf("Write(%q) error = %v, want ErrPathEscapesRoot", p, err)
		}
	}
}

func TestFileWriter_AbsolutePath(t *testing.T) {
	other := filepath.Join(t.TempDir(), "dump.json")
	w := NewFileWriter(t.TempDir(), nil)
	if err := w.WriteString(other, "{}"); err != nil {
		t.Fatalf("WriteString(abs) error = %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("absolute target not written: %v", err)
	}
}
