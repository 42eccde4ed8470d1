package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/docrouter/constants"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	AllowedExts []string      // document extensions; constants.AllowedExtensions when empty
	InitialScan bool          // if true, walk roots and emit existing documents
	Debounce    time.Duration // coalesce rapid update/rename bursts
}

// StartWatcher watches the roots and emits the path of every document whose
// file or model output was created or written, once both exist.
// Both channels are closed when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("watcher start failed: no roots provided")
		return nil, nil, errors.New("no roots provided")
	}
	exts := map[string]struct{}{}
	for _, e := range cfg.AllowedExts {
		exts[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != root && IsHidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if cfg.InitialScan && !IsHidden(path) && allowed(path, exts) && ready(path) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("failed to add root directory", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("failed to close watcher", "error", err)
			}
		}()

		emit := func(p string) bool {
			select {
			case evCh <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, p := range initial {
			if !emit(p) {
				return
			}
		}

		pending := map[string]struct{}{}
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		flush := func() bool {
			for p := range pending {
				delete(pending, p)
				if !ready(p) {
					continue
				}
				if !emit(p) {
					return false
				}
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if !flush() {
					return
				}
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create == fsnotify.Create {
					if fi, err := os.Stat(e.Name); err == nil && fi.IsDir() && !IsHidden(e.Name) {
						if err := w.Add(e.Name); err != nil {
							logger.Warn("failed to add new directory to watcher", "path", e.Name, "error", err)
						}
					}
				}
				if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				doc, ok := documentFor(e.Name, exts)
				if !ok {
					continue
				}
				pending[doc] = struct{}{}
				if cfg.Debounce > 0 {
					timer.Reset(cfg.Debounce)
				} else if !flush() {
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// documentFor maps a changed path to the document it belongs to. Model output
// files map back to the document with the same stem.
func documentFor(path string, exts map[string]struct{}) (string, bool) {
	if IsHidden(path) {
		return "", false
	}
	if stem, ok := strings.CutSuffix(path, constants.ModelOutputSuffix); ok {
		matches, _ := filepath.Glob(globEscape(stem) + ".*")
		for _, m := range matches {
			if allowed(m, exts) {
				return m, true
			}
		}
		return "", false
	}
	if allowed(path, exts) {
		return path, true
	}
	return "", false
}

func allowed(path string, exts map[string]struct{}) bool {
	if len(exts) == 0 {
		return AllowedExt(filepath.Ext(path))
	}
	_, ok := exts[strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")]
	return ok
}

// ready reports whether both the document and its model output exist.
func ready(doc string) bool {
	if _, err := os.Stat(doc); err != nil {
		return false
	}
	_, err := os.Stat(ModelPathFor(doc))
	return err == nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}
