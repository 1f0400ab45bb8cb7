package tug

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"timeshare-deals/models"
	"timeshare-deals/scraper"
	"timeshare-deals/utils"
)

const (
	baseURL   = "https://tug2.com"
	searchURL = "https://tug2.com/timesharemarketplace/search"
)

var (
	listingIDRe = regexp.MustCompile(`/classified-listing/(\d+)`)
	priceRe     = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{2})?)`)
	feesRe      = regexp.MustCompile(`(?i)Fees?\s*\$\s*([\d,]+(?:\.\d{2})?)`)
	digitsRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

	pointsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)([\d,]+)\s*(?:Hilton Grand Vacation|HGVC|Hilton Vacation).*?Points`),
		regexp.MustCompile(`(?i)([\d,]+)\s*Points`),
	}
)

// Scraper reads the TUG marketplace search results. Everything it needs is
// on the result rows, so no detail pages are fetched.
type Scraper struct {
	fetcher  scraper.PageFetcher
	logger   *utils.Logger
	keywords []string
	now      func() time.Time
}

// New builds a TUG extractor.
func New(deps scraper.Deps) scraper.Extractor {
	return &Scraper{
		fetcher:  deps.Fetcher,
		logger:   deps.Logger,
		keywords: deps.Keywords,
		now:      time.Now,
	}
}

func (s *Scraper) Source() models.Source { return models.SourceTUG }

// SearchParams are the query parameters for a program search.
func SearchParams(f scraper.Filters) url.Values {
	params := url.Values{
		"ForSale": {"True"},
		"q":       {"HGVC"},
	}
	if f.PriceMax != nil {
		params.Set("PriceMax", strconv.FormatFloat(*f.PriceMax, 'f', -1, 64))
	}
	if f.PriceMin != nil {
		params.Set("PriceMin", strconv.FormatFloat(*f.PriceMin, 'f', -1, 64))
	}
	return params
}

func (s *Scraper) ScrapeListings(ctx context.Context, filters scraper.Filters) ([]*models.RawListing, error) {
	params := SearchParams(filters)
	s.logger.Info("[tug] Searching %s (%s)", searchURL, params.Encode())

	html, err := s.fetcher.Fetch(ctx, searchURL, params)
	if err != nil {
		return nil, fmt.Errorf("tug: search page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("tug: parse search page: %w", err)
	}

	rc := scraper.RecordContext{PageURL: searchURL, ScrapedAt: s.now().UTC()}
	rows := doc.Find(".listing-row")

	var (
		listings []*models.RawListing
		relevant int
		seen     = utils.NewSeenSet()
	)
	rows.Each(func(_ int, row *goquery.Selection) {
		if !scraper.MatchesKeywords(row.Text(), s.keywords) {
			return
		}
		relevant++

		res := s.ParseRecord(row, rc)
		if res.Skipped() {
			s.logger.Debug("[tug] Skipping row: %s", res.Reason)
			return
		}
		if !seen.Add(res.Listing.ExternalID) {
			return
		}
		listings = append(listings, res.Listing)
	})

	s.logger.Info("[tug] %d rows, %d program rows, %d listings parsed", rows.Length(), relevant, len(listings))
	return listings, nil
}

// ParseRecord reads one .listing-row.
func (s *Scraper) ParseRecord(row *goquery.Selection, rc scraper.RecordContext) scraper.Result {
	text := scraper.NodeText(row)

	link := row.Find(`a[href*="classified-listing"]`).First()
	href, ok := link.Attr("href")
	if !ok {
		return scraper.Skip("no listing link")
	}
	m := listingIDRe.FindStringSubmatch(href)
	if m == nil {
		return scraper.Skip("no listing id in %q", href)
	}

	resort := row.Find(`a[href*="/resorts/resort/"][href*="/description"]`).First()
	if resort.Length() == 0 {
		resort = row.Find(`a[href*="/resorts/resort/"]`).First()
	}
	name := strings.TrimSpace(resort.Text())
	if name == "" {
		return scraper.Skip("listing %s has no resort name", m[1])
	}

	l := &models.RawListing{
		Source:     models.SourceTUG,
		ExternalID: m[1],
		ResortName: name,
		ListingURL: scraper.Resolve(baseURL, href),
		Usage:      scraper.InferUsage(text),
		Season:     scraper.ExtractSeason(text),
		ScrapedAt:  rc.ScrapedAt,
	}

	if pm := priceRe.FindStringSubmatch(strings.TrimSpace(row.Find(".text-success").First().Text())); pm != nil {
		l.AskingPrice = scraper.ParseAmount(pm[1])
	}
	if l.AskingPrice == nil {
		lower := strings.ToLower(text)
		if strings.Contains(lower, "free") || strings.Contains(text, "$0") {
			l.AskingPrice = models.FloatPtr(0)
		}
	}

	if fm := feesRe.FindStringSubmatch(strings.TrimSpace(row.Find(".text-muted").First().Text())); fm != nil {
		l.AnnualMF = scraper.ParseAmount(fm[1])
	}

	if pts, ok := scraper.FirstMatch(text, pointsPatterns...); ok {
		l.Points = scraper.ParseCount(pts)
	}

	if bed := strings.ToLower(strings.TrimSpace(row.Find(".detail-item.bedroom").First().Text())); bed != "" {
		if strings.Contains(bed, "studio") {
			l.Bedrooms = models.IntPtr(0)
		} else if dm := digitsRe.FindStringSubmatch(bed); dm != nil {
			l.Bedrooms = scraper.ParseCount(dm[1])
		}
		if l.Bedrooms != nil {
			l.UnitType = scraper.UnitTypeFor(*l.Bedrooms)
		}
	}
	if bath := strings.TrimSpace(row.Find(".detail-item.bathroom").First().Text()); bath != "" {
		if dm := digitsRe.FindStringSubmatch(bath); dm != nil {
			l.Bathrooms = scraper.ParseAmount(dm[1])
		}
	}

	return scraper.Ok(l)
}
