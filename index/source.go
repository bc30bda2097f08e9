package index

import "context"

// FileSource reads entries from a flat artifact file.
type FileSource struct {
	Path string
}

// Entries parses the artifact. A missing artifact yields an error wrapping
// fs.ErrNotExist.
func (s FileSource) Entries(_ context.Context) ([]Entry, error) {
	return ParseFile(s.Path)
}
