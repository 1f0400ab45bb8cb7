package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/PuerkitoBio/goquery"

	"timeshare-deals/models"
	"timeshare-deals/utils"
)

// ErrUnknownSource is returned when no extractor is registered for a source.
var ErrUnknownSource = errors.New("unknown source")

// PageFetcher is the part of the fetch layer an extractor needs.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values) (string, error)
}

// Filters narrows a scrape. Nil bounds are open.
type Filters struct {
	PriceMin *float64
	PriceMax *float64
}

// Allows reports whether a price passes the bounds. Unknown prices always do.
func (f Filters) Allows(price *float64) bool {
	if price == nil {
		return true
	}
	if f.PriceMin != nil && *price < *f.PriceMin {
		return false
	}
	if f.PriceMax != nil && *price > *f.PriceMax {
		return false
	}
	return true
}

// RecordContext carries what a card parser knows about the page it sits on.
type RecordContext struct {
	PageURL      string
	ResortName   string
	LocationHint string
	ScrapedAt    time.Time
}

// Result is the outcome of parsing one record: a listing or a skip reason.
type Result struct {
	Listing *models.RawListing
	Reason  string
}

// Ok wraps a parsed listing.
func Ok(l *models.RawListing) Result { return Result{Listing: l} }

// Skip records why a node produced no listing.
func Skip(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

func (r Result) Skipped() bool { return r.Listing == nil }

// Extractor scrapes one resale marketplace.
//
// ScrapeListings may return partial results together with an error when a
// page fails after some listings were already collected.
type Extractor interface {
	Source() models.Source
	ScrapeListings(ctx context.Context, filters Filters) ([]*models.RawListing, error)
	ParseRecord(sel *goquery.Selection, rc RecordContext) Result
}

// Deps are the collaborators handed to every extractor.
type Deps struct {
	Fetcher      PageFetcher
	Logger       *utils.Logger
	Keywords     []string
	FetchDetails bool
}

// Factory builds an extractor for a single run.
type Factory func(Deps) Extractor

// Registry maps sources to their extractor factories.
type Registry struct {
	factories map[models.Source]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[models.Source]Factory)}
}

// Register adds or replaces the factory for a source.
func (r *Registry) Register(src models.Source, f Factory) {
	r.factories[src] = f
}

// Build constructs the extractor for src.
func (r *Registry) Build(src models.Source, deps Deps) (Extractor, error) {
	f, ok := r.factories[src]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, src)
	}
	if deps.Logger == nil {
		deps.Logger = utils.NewDiscardLogger()
	}
	if len(deps.Keywords) == 0 {
		deps.Keywords = DefaultKeywords
	}
	return f(deps), nil
}

// Has reports whether src has a registered extractor.
func (r *Registry) Has(src models.Source) bool {
	_, ok := r.factories[src]
	return ok
}

// Sources lists the registered sources in a stable order.
func (r *Registry) Sources() []models.Source {
	out := make([]models.Source, 0, len(r.factories))
	for src := range r.factories {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
