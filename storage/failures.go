package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"rental-scraper/models"
)

// FailureEntry is one listing needing review.
type FailureEntry struct {
	Source     string `yaml:"source"`
	URL        string `yaml:"url"`
	Title      string `yaml:"title,omitempty"`
	Address    string `yaml:"address,omitempty"`
	PostalCode string `yaml:"postal_code,omitempty"`
	Detail     string `yaml:"detail,omitempty"`
}

// FailureReport collects failed and incomplete listings grouped by category
// (fetch_failed, extraction_failed, missing_price, missing_coordinates, ...).
// It is safe for concurrent use.
type FailureReport struct {
	mu    sync.Mutex
	byCat map[string][]FailureEntry
}

// NewFailureReport returns an empty report.
func NewFailureReport() *FailureReport {
	return &FailureReport{byCat: make(map[string][]FailureEntry)}
}

// Add records a failure in category.
func (r *FailureReport) Add(category string, e FailureEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCat[category] = append(r.byCat[category], e)
}

// Inspect records the missing-field categories of a persisted listing.
func (r *FailureReport) Inspect(l *models.Listing) {
	e := FailureEntry{Source: l.Source, URL: l.URL, Title: l.Title, Address: l.Address, PostalCode: l.PostalCode}
	if l.Price == nil {
		r.Add("missing_price", e)
	}
	if !l.HasCoordinates() {
		r.Add("missing_coordinates", e)
	}
	if l.Address == "" {
		r.Add("missing_address", e)
	}
	if l.Surface == nil {
		r.Add("missing_surface", e)
	}
	if l.Rooms == nil {
		r.Add("missing_rooms", e)
	}
}

// Counts returns the number of entries per category.
func (r *FailureReport) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.byCat))
	for k, v := range r.byCat {
		out[k] = len(v)
	}
	return out
}

type failureDoc struct {
	Generated  time.Time                 `yaml:"generated"`
	Dataset    string                    `yaml:"dataset"`
	Total      int                       `yaml:"total"`
	Categories []string                  `yaml:"categories"`
	Issues     map[string][]FailureEntry `yaml:"issues"`
}

// WriteYAML writes the report to path. Nothing is written for an empty report.
func (r *FailureReport) WriteYAML(path, dataset string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.byCat) == 0 {
		return false, nil
	}
	doc := failureDoc{Generated: time.Now().UTC(), Dataset: dataset, Issues: r.byCat}
	for k, v := range r.byCat {
		doc.Categories = append(doc.Categories, k)
		doc.Total += len(v)
	}
	sort.Strings(doc.Categories)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("failures: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failures: create output dir: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return false, fmt.Errorf("failures: write %q: %w", path, err)
	}
	return true, nil
}
