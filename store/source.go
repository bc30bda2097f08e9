package store

import (
	"context"

	"procdocs/index"
)

// IndexSource exposes one owner's stored entries to the searcher.
type IndexSource struct {
	Store *Store
	Owner string
}

// Entries returns the owner's entries in insertion order.
func (s IndexSource) Entries(ctx context.Context) ([]index.Entry, error) {
	return s.Store.Entries(ctx, s.Owner)
}
