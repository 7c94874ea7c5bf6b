// Package scraper defines the site adapter contract and the page fetchers
// adapters are built on.
package scraper

import (
	"context"
	"fmt"
	"iter"
	"net"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"rental-scraper/models"
)

// PageHandle identifies one listing page yielded by an adapter.
type PageHandle struct {
	URL string
	// SearchPage is the results page the listing was found on, starting at 1.
	SearchPage int
}

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	HTML       string
	FetchedAt  time.Time
}

// Document parses the page HTML.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.URL, err)
	}
	return doc, nil
}

// Fetcher retrieves one URL. Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Adapter translates one site into raw listing candidates. Adapters never
// deduplicate across runs or filter; that is the pipeline's job.
type Adapter interface {
	Name() string
	// ListPages lazily yields listing pages in site order. The sequence is
	// finite and starts over on every call. A non-nil error ends it.
	ListPages(ctx context.Context) iter.Seq2[PageHandle, error]
	// ExtractCandidates turns one listing page into raw field candidates.
	ExtractCandidates(ctx context.Context, h PageHandle) (*models.RawCandidate, error)
}

// FetchError describes a failed fetch. It exposes the HTTP status and
// whether the failure is worth retrying.
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	switch {
	case e.Cause != nil && e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// HTTPStatus returns the response status, or 0 when no response arrived.
func (e *FetchError) HTTPStatus() int { return e.StatusCode }

// Temporary reports timeouts, 429 and 5xx responses.
func (e *FetchError) Temporary() bool {
	if e.StatusCode == 429 || e.StatusCode >= 500 {
		return true
	}
	if ne, ok := e.Cause.(net.Error); ok && ne.Timeout() {
		return true
	}
	return false
}
