package storage

import (
	"context"
	"errors"

	"timeshare-deals/models"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrRunFinalized is returned when finishing a run that is no longer running.
	ErrRunFinalized = errors.New("storage: run already finalized")
)

// Store is everything the services need from persistence.
type Store interface {
	// UpsertListing inserts or updates by source id and reports whether the
	// row was newly created. Updating re-activates the listing.
	UpsertListing(ctx context.Context, l *models.Listing) (created bool, err error)
	Listings(ctx context.Context, activeOnly bool) ([]*models.Listing, error)
	// DeactivateMissing soft-deletes active listings of source whose source
	// id is not in seen, returning how many were deactivated.
	DeactivateMissing(ctx context.Context, source models.Source, seen []string) (int, error)

	// ReplaceReferenceFees swaps the whole reference table atomically.
	ReplaceReferenceFees(ctx context.Context, fees []*models.ReferenceFee) error
	ReferenceFees(ctx context.Context) ([]*models.ReferenceFee, error)

	CreateRun(ctx context.Context, source string) (*models.ScrapeRun, error)
	FinishRun(ctx context.Context, run *models.ScrapeRun) error
	RecentRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error)

	Stats(ctx context.Context) (*models.StoreStats, error)
	Close() error
}

// DealWriter exports enriched deals.
type DealWriter interface {
	WriteDeals(deals []*models.Deal) error
	Close() error
}
