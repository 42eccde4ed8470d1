package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type FileResult struct {
	Path string
	Err  string
}

type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32 // matched documents without model output
	Failed  uint32
}

// ScanDirectory walks root and returns every document with an allowed
// extension (all of constants.AllowedExtensions when includeExts is empty)
// that has model output next to it.
func ScanDirectory(ctx context.Context, root string, includeExts []string, skipHidden bool) ([]string, []FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, nil, DirStats{}, errors.New("root path is required")
	}

	exts := map[string]struct{}{}
	for _, e := range includeExts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts[e] = struct{}{}
		}
	}
	match := func(path string) bool {
		if len(exts) == 0 {
			return AllowedExt(filepath.Ext(path))
		}
		_, ok := exts[strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))]
		return ok
	}

	var docs []string
	var problems []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			problems = append(problems, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil // continue walking
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !match(path) {
			return nil
		}
		stats.Matched++
		if _, err := os.Stat(ModelPathFor(path)); err != nil {
			problems = append(problems, FileResult{Path: path, Err: "no model output"})
			stats.Skipped++
			return nil
		}
		docs = append(docs, path)
		return nil
	})
	if err != nil {
		return docs, problems, stats, fmt.Errorf("walk: %w", err)
	}
	return docs, problems, stats, nil
}
