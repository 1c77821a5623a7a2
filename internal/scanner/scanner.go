// Package scanner discovers markdown and PDF files below a vault root.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// indexableExtensions are the only file types the corpus can contain
// (spec §4.6: "enumerates all markdown and PDF files below it").
var indexableExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".pdf":      true,
}

// FileInfo describes one discovered file.
type FileInfo struct {
	Path    string // absolute path
	Size    int64
	ModTime time.Time
}

// Result streams either a discovered file or the error that ended the walk.
// Paths that cannot be stat'ed or read are skipped without a Result, so a
// failing entry never aborts the rest of the walk.
type Result struct {
	File *FileInfo
	Err  error
}

// Scanner walks a vault root looking for indexable files.
type Scanner struct{}

// New creates a Scanner. It holds no state; the type exists so the rest of
// the codebase constructs it the way it constructs the other adapters.
func New() *Scanner {
	return &Scanner{}
}

// Scan walks root and streams every markdown/PDF file found below it. The
// returned channel is closed once the walk completes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root is not a directory: %s", absRoot)
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, results)
	}()
	return results, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // skip paths we can't stat/read; don't abort the walk
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !indexableExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}

		select {
		case results <- Result{File: &FileInfo{Path: path, Size: fi.Size(), ModTime: fi.ModTime()}}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Err: err}:
		case <-ctx.Done():
		}
	}
}
