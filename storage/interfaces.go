package storage

import (
	"context"
	"iter"

	"rental-scraper/models"
)

// UpsertResult reports what an upsert did.
type UpsertResult struct {
	ID       int64
	Inserted bool
}

// ListingStore is the durable, identity-keyed listing collection.
type ListingStore interface {
	// Upsert inserts a new identity or merges non-null fields into the
	// existing record and refreshes its last-seen time.
	Upsert(ctx context.Context, l *models.Listing) (UpsertResult, error)
	// Query returns the records matching every predicate in f, in insertion
	// order. The sequence is restartable: each range re-runs the query.
	Query(ctx context.Context, f models.Filter) iter.Seq2[*models.Listing, error]
	Get(ctx context.Context, source, url string) (*models.Listing, error)
	Stats(ctx context.Context) (*models.StoreStats, error)
	Close() error
}

// ListingExporter writes a finished listing set somewhere outside the store.
type ListingExporter interface {
	Export(listings iter.Seq2[*models.Listing, error]) (int, error)
	Close() error
}
