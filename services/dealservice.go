package services

import (
	"context"
	"fmt"

	"timeshare-deals/config"
	"timeshare-deals/models"
	"timeshare-deals/storage"
	"timeshare-deals/utils"
)

// DealService builds the presentation view: active listings joined with
// reference fees, scored, filtered and sorted. Nothing it computes is stored.
type DealService struct {
	store    storage.Store
	enricher *Enricher
	insights *InsightService
	logger   *utils.Logger
}

func NewDealService(store storage.Store, policy *config.Policy, logger *utils.Logger) *DealService {
	return &DealService{
		store:    store,
		enricher: NewEnricher(policy),
		insights: NewInsightService(logger),
		logger:   logger,
	}
}

// Deals returns the filtered, sorted deal table.
func (s *DealService) Deals(ctx context.Context, f DealFilter, key SortKey) ([]*models.Deal, error) {
	listings, err := s.store.Listings(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("deals: %w", err)
	}
	refs, err := s.store.ReferenceFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("deals: %w", err)
	}

	deals := ApplyFilter(s.enricher.Enrich(listings, refs), f)
	SortDeals(deals, key)
	s.logger.Debug("[deals] %d active listings, %d reference rows, %d deals after filter",
		len(listings), len(refs), len(deals))
	return deals, nil
}

// Summary aggregates the deals passing f.
func (s *DealService) Summary(ctx context.Context, f DealFilter) (*models.Summary, error) {
	deals, err := s.Deals(ctx, f, SortMFPerPointAsc)
	if err != nil {
		return nil, err
	}
	return s.insights.Generate(deals), nil
}

// Export writes the deal table through w and returns how many rows it wrote.
func (s *DealService) Export(ctx context.Context, f DealFilter, key SortKey, w storage.DealWriter) (int, error) {
	deals, err := s.Deals(ctx, f, key)
	if err != nil {
		return 0, err
	}
	if err := w.WriteDeals(deals); err != nil {
		return 0, fmt.Errorf("deals: export: %w", err)
	}
	return len(deals), nil
}

// Insights exposes the report printer used by the CLI.
func (s *DealService) Insights() *InsightService { return s.insights }
