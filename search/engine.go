package search

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"procdocs/index"
)

// ErrArtifactNotFound is returned when the index artifact does not exist.
var ErrArtifactNotFound = errors.New("index artifact not found")

// Source supplies the entries to search: a flat artifact or the SQLite index.
type Source interface {
	Entries(ctx context.Context) ([]index.Entry, error)
}

var _ Source = index.FileSource{}

// SearchArtifact parses the artifact at path and searches it.
func SearchArtifact(path string, keywords []string, opts Options) ([]Match, error) {
	return SearchSource(context.Background(), index.FileSource{Path: path}, keywords, opts)
}

// SearchSource loads entries from src and searches them. A missing artifact
// is reported as ErrArtifactNotFound.
func SearchSource(ctx context.Context, src Source, keywords []string, opts Options) ([]Match, error) {
	entries, err := src.Entries(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrArtifactNotFound, err)
		}
		return nil, fmt.Errorf("loading entries: %w", err)
	}
	return NewSearcher(opts).Search(entries, keywords), nil
}
