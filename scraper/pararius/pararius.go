// Package pararius adapts pararius.com, a static HTML rental site.
package pararius

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"rental-scraper/config"
	"rental-scraper/models"
	"rental-scraper/scraper"
	"rental-scraper/utils"
)

const Kind = "pararius"

func init() {
	scraper.Register(Kind, func(src config.SourceConfig, f scraper.Fetcher) (scraper.Adapter, error) {
		return New(src, f), nil
	})
}

// Adapter scrapes pararius search results and listing pages.
type Adapter struct {
	src     config.SourceConfig
	fetcher scraper.Fetcher
}

func New(src config.SourceConfig, f scraper.Fetcher) *Adapter {
	if src.MaxPages <= 0 {
		src.MaxPages = 50
	}
	return &Adapter{src: src, fetcher: f}
}

func (a *Adapter) Name() string { return a.src.Name }

func (a *Adapter) searchURL(page int) string {
	u := strings.TrimRight(a.src.SearchURLFor(page), "/")
	if page > 1 {
		u += fmt.Sprintf("/page-%d", page)
	}
	return u
}

// ListPages walks the search results until a page has no listings, has no
// next link, or MaxPages is reached.
func (a *Adapter) ListPages(ctx context.Context) iter.Seq2[scraper.PageHandle, error] {
	return func(yield func(scraper.PageHandle, error) bool) {
		for page := 1; page <= a.src.MaxPages; page++ {
			p, err := a.fetcher.Fetch(ctx, a.searchURL(page))
			if err != nil {
				yield(scraper.PageHandle{}, fmt.Errorf("pararius: search page %d: %w", page, err))
				return
			}
			doc, err := p.Document()
			if err != nil {
				yield(scraper.PageHandle{}, err)
				return
			}

			links := doc.Find("a.listing-search-item__link")
			if links.Length() == 0 {
				links = doc.Find(`a[href*="/apartment-for-rent/"]`)
			}
			// Cards often link a listing more than once.
			seen := utils.NewURLSet()
			found := 0
			for _, n := range links.Nodes {
				href, _ := goquery.NewDocumentFromNode(n).Attr("href")
				if !strings.Contains(href, "-for-rent/") {
					continue
				}
				abs := utils.ResolveURL(a.src.BaseURL, href)
				if abs == "" || !seen.Add(abs) {
					continue
				}
				found++
				if !yield(scraper.PageHandle{URL: abs, SearchPage: page}, nil) {
					return
				}
			}
			if found == 0 {
				return
			}
			if doc.Find(`a[rel="next"], .pagination__link--next`).Length() == 0 {
				return
			}
		}
	}
}

// ExtractCandidates reads the structured summary and feature list of one
// listing page. Numbers stay as text for the pattern recognizers.
func (a *Adapter) ExtractCandidates(ctx context.Context, h scraper.PageHandle) (*models.RawCandidate, error) {
	p, err := a.fetcher.Fetch(ctx, h.URL)
	if err != nil {
		return nil, err
	}
	doc, err := p.Document()
	if err != nil {
		return nil, err
	}

	c := &models.RawCandidate{
		Source:    a.src.Name,
		URL:       h.URL,
		Pass:      models.PassPattern,
		City:      a.src.City,
		Currency:  a.src.Currency,
		HTML:      p.HTML,
		ScrapedAt: time.Now(),
	}
	c.Title = text(doc.Find("h1.listing-detail-summary__title"))
	c.PriceText = text(doc.Find(".listing-detail-summary__price"))
	c.Address = text(doc.Find(".listing-detail-summary__location"))
	c.Description = text(doc.Find(".listing-detail-description__content"))

	doc.Find(".listing-features__main-description li").Each(func(_ int, li *goquery.Selection) {
		t := text(li)
		lower := strings.ToLower(t)
		switch {
		case strings.Contains(lower, "m²") || strings.Contains(lower, "m2"):
			c.SurfaceText = t
		case strings.Contains(lower, "room"):
			c.RoomsText = t
		case strings.Contains(lower, "furnished") || strings.Contains(lower, "upholstered"):
			c.Furnished = models.Bool(!strings.Contains(lower, "unfurnished") && !strings.Contains(lower, "upholstered"))
		}
	})

	// Term/description pairs of the details table.
	doc.Find("dt.listing-features__term").Each(func(_ int, dt *goquery.Selection) {
		term := strings.ToLower(text(dt))
		value := text(dt.NextFiltered("dd"))
		switch {
		case strings.Contains(term, "available"):
			c.AvailableFrom = value
		case strings.Contains(term, "energy"):
			c.EnergyLabel = value
		case strings.Contains(term, "type") && c.PropertyType == "":
			c.PropertyType = value
		case strings.Contains(term, "neighbourhood") || strings.Contains(term, "neighborhood"):
			c.Neighborhood = value
		}
	})
	return c, nil
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.First().Text()), " ")
}
