// Package kamernet adapts kamernet.nl. Its search results are rendered
// client-side, so the source is normally configured with needs_js and a
// browser fetcher.
package kamernet

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"rental-scraper/config"
	"rental-scraper/models"
	"rental-scraper/scraper"
	"rental-scraper/utils"
)

const Kind = "kamernet"

func init() {
	scraper.Register(Kind, func(src config.SourceConfig, f scraper.Fetcher) (scraper.Adapter, error) {
		return New(src, f), nil
	})
}

// Listing URLs look like /huren/kamer-amsterdam/kinkerstraat/kamer-123456.
var (
	listingPath = regexp.MustCompile(`/huren/(kamer|appartement|studio|woning)-[^/]+/[^/]+/(kamer|appartement|studio|woning)-\d+$`)
	pathParts   = regexp.MustCompile(`/huren/([a-z]+)-[^/]+/([^/]+)/`)
	euroAmount  = regexp.MustCompile(`€\s*[\d.,]+`)
	energyLabel = regexp.MustCompile(`\b([A-G]\+*)$`)
)

var propertyTypes = map[string]string{
	"kamer":       "room",
	"appartement": "apartment",
	"studio":      "studio",
	"woning":      "house",
}

type Adapter struct {
	src     config.SourceConfig
	fetcher scraper.Fetcher
}

func New(src config.SourceConfig, f scraper.Fetcher) *Adapter {
	if src.MaxPages <= 0 {
		src.MaxPages = 10
	}
	return &Adapter{src: src, fetcher: f}
}

func (a *Adapter) Name() string { return a.src.Name }

func (a *Adapter) searchURL(page int) string {
	u := a.src.SearchURLFor(page)
	if page <= 1 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spageNo=%d", u, sep, page)
}

func (a *Adapter) ListPages(ctx context.Context) iter.Seq2[scraper.PageHandle, error] {
	return func(yield func(scraper.PageHandle, error) bool) {
		for page := 1; page <= a.src.MaxPages; page++ {
			p, err := a.fetcher.Fetch(ctx, a.searchURL(page))
			if err != nil {
				yield(scraper.PageHandle{}, fmt.Errorf("kamernet: search page %d: %w", page, err))
				return
			}
			doc, err := p.Document()
			if err != nil {
				yield(scraper.PageHandle{}, err)
				return
			}

			// Cards often link a listing more than once.
			seen := utils.NewURLSet()
			found := 0
			for _, n := range doc.Find(`a[href*="/huren/"]`).Nodes {
				href, _ := goquery.NewDocumentFromNode(n).Attr("href")
				if !listingPath.MatchString(strings.TrimRight(href, "/")) {
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
			next := fmt.Sprintf(`a[href*="pageNo=%d"], .pagination .next:not(.disabled)`, page+1)
			if doc.Find(next).Length() == 0 {
				return
			}
		}
	}
}

type jsonLD struct {
	Type        any    `json:"@type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

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

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var ld jsonLD
		if json.Unmarshal([]byte(s.Text()), &ld) != nil {
			return true
		}
		switch ld.Type {
		case "Product", "Apartment", "Room", "Residence":
			c.Title = strings.TrimSpace(ld.Name)
			c.Description = strings.TrimSpace(ld.Description)
			return false
		}
		return true
	})

	if c.Title == "" {
		c.Title = text(doc.Find("h1, .room-title, .listing-title"))
	}
	kind, street := a.fromPath(h.URL)
	if c.Title == "" && street != "" {
		c.Title = fmt.Sprintf("%s - %s, %s", titleCase(kind), street, titleCase(a.src.City))
	}

	doc.Find(`.rent-price, [class*="price"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := euroAmount.FindString(s.Text()); m != "" {
			c.PriceText = m
			return false
		}
		return true
	})

	c.Address = text(doc.Find(`.address, [class*="address"], .location`))
	if c.Address == "" && street != "" {
		c.Address = street
	}
	if c.Description == "" {
		c.Description = text(doc.Find(`.description, .room-description, [class*="description"]`))
	}
	c.PropertyType = propertyTypes[kind]

	doc.Find(".detail-item, .feature, .spec").Each(func(_ int, s *goquery.Selection) {
		t := text(s)
		if !strings.Contains(strings.ToLower(t), "energ") {
			return
		}
		if m := energyLabel.FindStringSubmatch(strings.ToUpper(t)); m != nil {
			c.EnergyLabel = m[1]
		}
	})
	return c, nil
}

// fromPath derives the property kind and street from a listing URL.
func (a *Adapter) fromPath(url string) (kind, street string) {
	m := pathParts.FindStringSubmatch(url)
	if m == nil {
		return "", ""
	}
	return m[1], titleCase(strings.ReplaceAll(m[2], "-", " "))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.First().Text()), " ")
}
