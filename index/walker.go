package index

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"procdocs/config"
)

// FileWalker discovers candidate files under a root in a stable order
type FileWalker struct {
	// absolute paths that must never be indexed (the artifact and its companions)
	exclude map[string]bool
}

// WalkFile is one discovered file
type WalkFile struct {
	Path string // absolute path
	Rel  string // path relative to the root, forward slashes
	Size int64
}

// NewFileWalker creates a walker that skips the given artifact path along with
// its temp and lock companions
func NewFileWalker(artifact string) *FileWalker {
	fw := &FileWalker{exclude: make(map[string]bool)}
	if artifact != "" {
		abs, err := filepath.Abs(artifact)
		if err != nil {
			abs = artifact
		}
		for _, p := range []string{abs, abs + tmpSuffix, abs + lockSuffix} {
			fw.exclude[p] = true
		}
	}
	return fw
}

// shouldSkipFile filters the artifact, office lock files and hidden files
func (fw *FileWalker) shouldSkipFile(path string) bool {
	if fw.exclude[path] {
		return true
	}
	return config.IsLockFile(path) || config.IsHiddenFile(path)
}

// Walk returns every non-skipped regular file sorted by relative path.
// Unreadable entries are skipped.
func (fw *FileWalker) Walk(root string) ([]WalkFile, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []WalkFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // Skip files we can't access
		}

		if d.IsDir() {
			if path != root && config.ShouldSkipDirectory(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || fw.shouldSkipFile(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, WalkFile{Path: path, Rel: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// WalkDir is lexical per directory; sort on the full relative path so the
	// order never depends on separators
	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// CountSupported counts files the indexer would extract
func (fw *FileWalker) CountSupported(root string) (int, error) {
	files, err := fw.Walk(root)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if config.IsSupported(f.Rel) {
			n++
		}
	}
	return n, nil
}

// isVirtualTitle reports titles that name archive members rather than files
func isVirtualTitle(title string) bool {
	return strings.HasPrefix(title, "zip://") || strings.HasPrefix(title, "rar://")
}
