package smtsn

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

const baseURL = "https://www.sellmytimesharenow.com"

// Resort is a program resort with the location the marketplace files it under.
type Resort struct {
	Name     string
	Location string
}

// Resorts is the fixed list of resort pages to visit. The marketplace has no
// usable program directory, so the list is maintained by hand.
var Resorts = []Resort{
	{"Elara, a Hilton Grand Vacations Club", "Las Vegas"},
	{"Hilton Grand Vacations Club on the Boulevard", "Las Vegas"},
	{"Hilton Grand Vacations Club at the Flamingo", "Las Vegas"},
	{"Hilton Grand Vacations Club at Trump International", "Las Vegas"},
	{"Hilton Grand Vacations Club on Paradise", "Las Vegas"},
	{"Hilton Grand Vacations Club at Parc Soleil", "Orlando"},
	{"Hilton Grand Vacations Club at SeaWorld", "Orlando"},
	{"Hilton Grand Vacations Club at Tuscany Village", "Orlando"},
	{"Hilton Grand Vacations Club at Las Palmeras", "Orlando"},
	{"Hilton Grand Vacations Club Ocean Tower", "Hawaii"},
	{"Hilton Grand Vacations Club at Kings Land", "Hawaii"},
	{"Hilton Grand Vacations Club at Lagoon Tower", "Hawaii"},
	{"Hilton Grand Vacations Club Grand Islander", "Hawaii"},
	{"Hilton Grand Vacations Club Grand Waikikian", "Hawaii"},
	{"Hilton Grand Vacations Club at Waikoloa Beach", "Hawaii"},
	{"Hilton Grand Vacations Club at MarBrisa", "California"},
	{"Hilton Grand Vacations Club at Anderson Ocean", "South Carolina"},
	{"Hilton Grand Vacations Club at Ocean 22", "South Carolina"},
	{"Hilton Club New York", "New York"},
	{"West 57th Street by Hilton Club", "New York"},
	{"Hilton Grand Vacations Club at Sunrise Lodge", "Utah"},
	{"Hilton Grand Vacations Club at Valdoro Mountain Lodge", "Colorado"},
	{"Hilton Grand Vacations Club at Craigendarroch", "Scotland"},
}

var (
	adNumberRe   = regexp.MustCompile(`AD\s*#\s*(\d+)`)
	firstPrice   = regexp.MustCompile(`\$([\d,]+)`)
	bedroomRe    = regexp.MustCompile(`(?i)(\d+)\s*(?:bed(?:room)?|BR)`)
	cardPoints   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)([\d,]+)\s*(?:even|odd)?\s*(?:year)?\s*points`),
		regexp.MustCompile(`(?i)([\d,]+)\s*HGVC\s*points`),
		regexp.MustCompile(`(?i)([\d,]+)\s*Hilton.*?points`),
	}
	detailPoints = []*regexp.Regexp{
		regexp.MustCompile(`(?i)"Points"[:\s]*(\d+)`),
		regexp.MustCompile(`(?i)Points[:\s]+(\d[\d,]*)`),
		regexp.MustCompile(`(?i)(\d[\d,]+)\s*points`),
		regexp.MustCompile(`(?i)ANNUAL\s*POINTS[:\s]+(\d[\d,]*)`),
	}
)

type Scraper struct {
	fetcher      scraper.PageFetcher
	logger       *utils.Logger
	resorts      []Resort
	keywords     []string
	fetchDetails bool
	now          func() time.Time
}

func New(deps scraper.Deps) scraper.Extractor {
	keywords := deps.Keywords
	if len(keywords) == 0 {
		keywords = scraper.DefaultKeywords
	}
	return &Scraper{
		fetcher:      deps.Fetcher,
		logger:       deps.Logger,
		resorts:      Resorts,
		keywords:     keywords,
		fetchDetails: deps.FetchDetails,
		now:          time.Now,
	}
}

func (s *Scraper) Source() models.Source { return models.SourceSMTSN }

// ResortURL builds the buy page of a resort. Spaces become '+', commas stay.
func ResortURL(name string) string {
	return baseURL + "/timeshare/" + strings.ReplaceAll(name, " ", "+") + "/resort/buy-timeshare/"
}

func (s *Scraper) ScrapeListings(ctx context.Context, filters scraper.Filters) ([]*models.RawListing, error) {
	s.logger.Info("[smtsn] Scraping %d resorts", len(s.resorts))

	var listings []*models.RawListing
	seen := utils.NewSeenSet()

	for _, resort := range s.resorts {
		if err := ctx.Err(); err != nil {
			return listings, err
		}
		if !scraper.MatchesKeywords(resort.Name, s.keywords) {
			s.logger.Debug("[smtsn] %s does not match the program keywords, skipping", resort.Name)
			continue
		}

		pageURL := ResortURL(resort.Name)
		html, err := s.fetcher.Fetch(ctx, pageURL, nil)
		if err != nil {
			if fetch.IsFailure(err) {
				s.logger.Warn("[smtsn] Skipping %s: %v", resort.Name, err)
				continue
			}
			return listings, fmt.Errorf("smtsn: resort page %s: %w", resort.Name, err)
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			s.logger.Warn("[smtsn] Unparseable page for %s: %v", resort.Name, err)
			continue
		}

		rc := scraper.RecordContext{
			PageURL:      pageURL,
			ResortName:   resort.Name,
			LocationHint: resort.Location,
			ScrapedAt:    s.now().UTC(),
		}

		var cardErr error
		found := 0
		doc.Find(".result-box.result-city-resort-listing").EachWithBreak(func(_ int, card *goquery.Selection) bool {
			res := s.ParseRecord(card, rc)
			if res.Skipped() {
				s.logger.Debug("[smtsn] Skipping card: %s", res.Reason)
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
			found++
			return true
		})
		if cardErr != nil {
			return listings, cardErr
		}
		s.logger.Debug("[smtsn] %s: %d listings", resort.Name, found)
	}

	s.logger.Info("[smtsn] %d listings collected", len(listings))
	return listings, nil
}

// DetailPoints tries the detail page when a card has no points. Missing
// pages and pages without a points figure both give nil.
func (s *Scraper) DetailPoints(ctx context.Context, listingURL string) (*int, error) {
	html, err := s.fetcher.Fetch(ctx, listingURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("[smtsn] No detail page for %s: %v", listingURL, err)
		return nil, nil
	}
	return PointsFromDetail(html), nil
}

// PointsFromDetail tries each detail-page pattern in order.
func PointsFromDetail(html string) *int {
	for _, re := range detailPoints {
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		if n := scraper.ParseCount(m[1]); n != nil && *n > 0 {
			return n
		}
	}
	return nil
}

// ParseRecord reads one result card. The resort comes from the page being
// scraped, since cards only repeat it as a heading.
func (s *Scraper) ParseRecord(card *goquery.Selection, rc scraper.RecordContext) scraper.Result {
	text := scraper.NodeText(card)

	m := adNumberRe.FindStringSubmatch(text)
	if m == nil {
		return scraper.Skip("card without AD number")
	}
	ad := m[1]

	name := strings.TrimSpace(rc.ResortName)
	if name == "" {
		name = strings.TrimSpace(card.Find("h5").First().Text())
	}
	if name == "" {
		return scraper.Skip("ad %s has no resort name", ad)
	}

	l := &models.RawListing{
		Source:       models.SourceSMTSN,
		ExternalID:   ad,
		ResortName:   name,
		LocationHint: rc.LocationHint,
		Usage:        scraper.InferUsage(text),
		Season:       "Platinum",
		ScrapedAt:    rc.ScrapedAt,
	}

	if href, ok := card.Find(`a[href*="/timeshares/"]`).First().Attr("href"); ok {
		l.ListingURL = scraper.Resolve(baseURL, href)
	} else {
		l.ListingURL = fmt.Sprintf("%s/timeshares/index/content/details/AdNumber/%s/sale", baseURL, ad)
	}

	if price := card.Find(`[class*=price]`).First(); price.Length() > 0 {
		l.AskingPrice = scraper.ExtractNumber(price.Text())
	} else if pm := firstPrice.FindStringSubmatch(text); pm != nil {
		l.AskingPrice = scraper.ParseAmount(pm[1])
	}

	if pts, ok := scraper.FirstMatch(text, cardPoints...); ok {
		if n := scraper.ParseCount(pts); n != nil && *n > 0 {
			l.Points = n
		}
	}

	if bm := bedroomRe.FindStringSubmatch(text); bm != nil {
		l.Bedrooms = scraper.ParseCount(bm[1])
	} else if strings.Contains(strings.ToLower(text), "studio") {
		l.Bedrooms = models.IntPtr(0)
	}
	if l.Bedrooms != nil {
		l.UnitType = scraper.UnitTypeFor(*l.Bedrooms)
	}

	return scraper.Ok(l)
}
