// Package mock is an offline adapter that synthesizes deterministic listing
// pages. It backs the demo mode and the pipeline tests.
package mock

import (
	"context"
	"fmt"
	"html"
	"iter"
	"strings"
	"time"

	"rental-scraper/config"
	"rental-scraper/models"
	"rental-scraper/scraper"
)

const Kind = "mock"

func init() {
	scraper.Register(Kind, func(src config.SourceConfig, _ scraper.Fetcher) (scraper.Adapter, error) {
		return New(src), nil
	})
}

type street struct {
	name, postal, district string
}

var streets = []street{
	{"Prinsengracht 263", "1016 GV", "Centrum"},
	{"Kinkerstraat 112", "1053 ED", "Oud-West"},
	{"Javastraat 54", "1094 HK", "Indische Buurt"},
	{"Van Woustraat 80", "1073 LN", "De Pijp"},
	{"Buikslotermeerplein 12", "1025 XL", "Noord"},
	{"Haarlemmerdijk 20", "1013 JD", "Centrum"},
	{"Overtoom 301", "1054 HW", "Oud-West"},
	{"Linnaeusstraat 35", "1093 EH", "Oost"},
	{"Osdorpplein 400", "1068 EV", "Nieuw-West"},
	{"Westerstraat 187", "1015 MA", "Jordaan"},
}

// Adapter yields PerPage listings on each of MaxPages pages. Identical
// configuration always yields identical listings.
type Adapter struct {
	src     config.SourceConfig
	perPage int
	pages   int
}

func New(src config.SourceConfig) *Adapter {
	a := &Adapter{src: src, perPage: src.PerPage, pages: src.MaxPages}
	if a.perPage <= 0 {
		a.perPage = 4
	}
	if a.pages <= 0 {
		a.pages = 3
	}
	return a
}

func (a *Adapter) Name() string { return a.src.Name }

func (a *Adapter) ListPages(ctx context.Context) iter.Seq2[scraper.PageHandle, error] {
	return func(yield func(scraper.PageHandle, error) bool) {
		base := strings.TrimRight(a.src.BaseURL, "/")
		for page := 1; page <= a.pages; page++ {
			for i := 0; i < a.perPage; i++ {
				if err := ctx.Err(); err != nil {
					yield(scraper.PageHandle{}, err)
					return
				}
				n := (page-1)*a.perPage + i
				h := scraper.PageHandle{URL: fmt.Sprintf("%s/listing/%d", base, n), SearchPage: page}
				if !yield(h, nil) {
					return
				}
			}
		}
	}
}

func (a *Adapter) ExtractCandidates(ctx context.Context, h scraper.PageHandle) (*models.RawCandidate, error) {
	var n int
	if _, err := fmt.Sscanf(h.URL[strings.LastIndex(h.URL, "/")+1:], "%d", &n); err != nil {
		return nil, fmt.Errorf("mock: bad listing url %q", h.URL)
	}
	l := synthesize(n)
	return &models.RawCandidate{
		Source:       a.src.Name,
		URL:          h.URL,
		Pass:         models.PassPattern,
		Title:        l.title,
		Address:      l.street.name,
		City:         a.src.City,
		PostalCode:   l.street.postal,
		Neighborhood: l.street.district,
		Currency:     a.src.Currency,
		HTML:         l.render(a.src.City),
		ScrapedAt:    time.Now(),
	}, nil
}

type listing struct {
	street  street
	title   string
	price   int
	surface int
	rooms   int
	room    bool
}

func synthesize(n int) listing {
	s := streets[n%len(streets)]
	l := listing{
		street:  s,
		price:   900 + (n*137)%1400,
		surface: 30 + (n*7)%70,
		rooms:   1 + n%4,
		room:    n%5 == 4,
	}
	if l.room {
		l.title = "Kamer te huur " + s.name
		l.surface = 12 + n%10
		l.rooms = 1
		l.price = 550 + (n*31)%300
	} else {
		l.title = fmt.Sprintf("Apartment %s", s.name)
	}
	return l
}

// render writes the page in Dutch notation so the pattern recognizers do the
// number parsing.
func (l listing) render(city string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>")
	b.WriteString(html.EscapeString(l.title))
	b.WriteString("</title></head><body><article>")
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(l.title))
	fmt.Fprintf(&b, "<p class=\"price\">€ %s /maand</p>", thousands(l.price))
	fmt.Fprintf(&b, "<ul><li>%d m²</li><li>%d kamers</li></ul>", l.surface, l.rooms)
	fmt.Fprintf(&b, "<p class=\"address\">%s, %s %s</p>",
		html.EscapeString(l.street.name), l.street.postal, html.EscapeString(city))
	fmt.Fprintf(&b, "<p>Lichte woning in %s, direct beschikbaar. Gemeubileerd.</p>", html.EscapeString(l.street.district))
	b.WriteString("</article></body></html>")
	return b.String()
}

func thousands(v int) string {
	if v < 1000 {
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("%d.%03d", v/1000, v%1000)
}
