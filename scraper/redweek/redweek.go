package redweek

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"timeshare-deals/fetch"
	"timeshare-deals/models"
	"timeshare-deals/scraper"
	"timeshare-deals/utils"
)

const (
	baseURL      = "https://www.redweek.com"
	directoryURL = "https://www.redweek.com/timeshare-companies/hgvc/resort-directory"
)

var (
	postingIDRe    = regexp.MustCompile(`/posting/([A-Z0-9]+)`)
	maintFeeRe     = regexp.MustCompile(`(?i)Maint\.?\s*fee:?\s*\$?([\d,]+)`)
	annualPointsRe = regexp.MustCompile(`(?i)ANNUAL\s*POINTS[:\s]+([0-9,.]+)`)
)

// Resort is one entry of the program resort directory.
type Resort struct {
	Name string
	URL  string
}

// Scraper crawls the RedWeek resort directory, then each resort's resale
// page. Points only appear on posting detail pages.
type Scraper struct {
	fetcher      scraper.PageFetcher
	logger       *utils.Logger
	keywords     []string
	fetchDetails bool
	now          func() time.Time
}

func New(deps scraper.Deps) scraper.Extractor {
	return &Scraper{
		fetcher:      deps.Fetcher,
		logger:       deps.Logger,
		keywords:     deps.Keywords,
		fetchDetails: deps.FetchDetails,
		now:          time.Now,
	}
}

func (s *Scraper) Source() models.Source { return models.SourceRedWeek }

func (s *Scraper) ScrapeListings(ctx context.Context, filters scraper.Filters) ([]*models.RawListing, error) {
	s.logger.Info("[redweek] Reading resort directory")

	resorts, err := s.Resorts(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("[redweek] %d program resorts found", len(resorts))

	var listings []*models.RawListing
	seen := utils.NewSeenSet()

	for _, resort := range resorts {
		if err := ctx.Err(); err != nil {
			return listings, err
		}
		s.logger.Info("[redweek] Scraping %s", resort.Name)

		pageURL := resort.URL + "/timeshare-resales"
		html, err := s.fetcher.Fetch(ctx, pageURL, nil)
		if err != nil {
			if fetch.IsFailure(err) {
				s.logger.Warn("[redweek] Skipping %s: %v", resort.Name, err)
				continue
			}
			return listings, fmt.Errorf("redweek: resale page %s: %w", resort.Name, err)
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			s.logger.Warn("[redweek] Unparseable page for %s: %v", resort.Name, err)
			continue
		}

		rc := scraper.RecordContext{PageURL: pageURL, ResortName: resort.Name, ScrapedAt: s.now().UTC()}
		var cardErr error
		doc.Find(".posting-card").EachWithBreak(func(_ int, card *goquery.Selection) bool {
			res := s.ParseRecord(card, rc)
			if res.Skipped() {
				s.logger.Debug("[redweek] Skipping card: %s", res.Reason)
				return true
			}
			l := res.Listing
			if !filters.Allows(l.AskingPrice) || !seen.Add(l.ExternalID) {
				return true
			}
			if s.fetchDetails && l.Points == nil {
				pts, err := s.DetailPoints(ctx, l.ListingURL)
				if err != nil {
					cardErr = err
					return false
				}
				l.Points = pts
			}
			listings = append(listings, l)
			return true
		})
		if cardErr != nil {
			return listings, cardErr
		}
	}

	s.logger.Info("[redweek] %d listings collected", len(listings))
	return listings, nil
}

// Resorts lists program resorts from the directory, deduplicated by URL.
func (s *Scraper) Resorts(ctx context.Context) ([]Resort, error) {
	html, err := s.fetcher.Fetch(ctx, directoryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("redweek: resort directory: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("redweek: parse resort directory: %w", err)
	}

	var resorts []Resort
	seen := utils.NewSeenSet()
	doc.Find(`a[href*="/resort/"]`).Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		href, _ := a.Attr("href")
		if name == "" || !scraper.MatchesKeywords(name, s.keywords) {
			return
		}
		full := strings.TrimRight(scraper.Resolve(baseURL, href), "/")
		if seen.Add(full) {
			resorts = append(resorts, Resort{Name: name, URL: full})
		}
	})
	return resorts, nil
}

// DetailPoints reads ANNUAL POINTS from a posting page. An exhausted fetch
// or a page without the field yields nil points, not an error.
func (s *Scraper) DetailPoints(ctx context.Context, postingURL string) (*int, error) {
	html, err := s.fetcher.Fetch(ctx, postingURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("[redweek] No detail page for %s: %v", postingURL, err)
		return nil, nil
	}
	return PointsFromDetail(html), nil
}

// PointsFromDetail parses "ANNUAL POINTS: 2000.0" style text.
func PointsFromDetail(html string) *int {
	m := annualPointsRe.FindStringSubmatch(html)
	if m == nil {
		return nil
	}
	return scraper.ParseCount(strings.TrimRight(m[1], "."))
}

// ParseRecord reads one .posting-card. Resort name comes from the page context.
func (s *Scraper) ParseRecord(card *goquery.Selection, rc scraper.RecordContext) scraper.Result {
	path := strings.TrimSpace(card.AttrOr("data-posting-path", ""))
	if path == "" {
		return scraper.Skip("card without posting path")
	}
	m := postingIDRe.FindStringSubmatch(path)
	if m == nil {
		return scraper.Skip("no posting id in %q", path)
	}
	if strings.TrimSpace(rc.ResortName) == "" {
		return scraper.Skip("posting %s has no resort name", m[1])
	}

	l := &models.RawListing{
		Source:      models.SourceRedWeek,
		ExternalID:  m[1],
		ResortName:  strings.TrimSpace(rc.ResortName),
		ListingURL:  scraper.Resolve(baseURL, path),
		AskingPrice: scraper.ExtractNumber(card.AttrOr("data-price", "")),
		Usage:       usageFromAttr(card.AttrOr("data-use", "")),
		// Floating and fixed weeks alike are sold as Platinum.
		Season:    "Platinum",
		ScrapedAt: rc.ScrapedAt,
	}

	if bed := scraper.ExtractNumber(card.AttrOr("data-bedrooms", "")); bed != nil {
		n := int(*bed)
		l.Bedrooms = &n
		l.UnitType = scraper.UnitTypeFor(n)
	}
	l.Bathrooms = scraper.ExtractNumber(card.AttrOr("data-bathrooms", ""))

	if fm := maintFeeRe.FindStringSubmatch(scraper.NodeText(card)); fm != nil {
		l.AnnualMF = scraper.ParseAmount(fm[1])
	}

	return scraper.Ok(l)
}

func usageFromAttr(use string) models.Usage {
	lower := strings.ToLower(use)
	switch {
	case strings.Contains(lower, "even"):
		return models.UsageEOYEven
	case strings.Contains(lower, "odd"):
		return models.UsageEOYOdd
	case strings.Contains(lower, "every other"), strings.Contains(lower, "biennial"):
		return models.UsageEOY
	}
	return models.UsageAnnual
}
