package storage

import (
	"encoding/csv"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"rental-scraper/models"
)

var csvHeader = []string{
	"source", "url", "title", "price", "surface_m2", "rooms", "price_per_m2",
	"address", "postal_code", "city", "category", "furnished",
	"latitude", "longitude", "cycling_min", "driving_min", "transit_min", "transit_estimated",
	"neighborhood", "neighborhood_score", "first_seen", "last_seen",
}

var _ ListingExporter = (*CSVWriter)(nil)

// CSVWriter exports normalized listings to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Export writes every listing in the sequence and returns the row count.
func (c *CSVWriter) Export(listings iter.Seq2[*models.Listing, error]) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for l, err := range listings {
		if err != nil {
			c.writer.Flush()
			return n, err
		}
		if err := c.writer.Write(csvRow(l)); err != nil {
			return n, fmt.Errorf("csv: write row: %w", err)
		}
		n++
	}

	c.writer.Flush()
	return n, c.writer.Error()
}

func csvRow(l *models.Listing) []string {
	c := l.Commute
	if c == nil {
		c = &models.CommuteMetrics{}
	}
	var nbName, nbScore string
	if l.Neighborhood != nil {
		nbName = l.Neighborhood.Name
		nbScore = fmtFloat(&l.Neighborhood.Overall, 1)
	}
	var ppm string
	if v := l.PricePerSquareMeter(); v > 0 {
		ppm = fmtFloat(&v, 2)
	}
	var furnished string
	if l.Furnished != nil {
		furnished = strconv.FormatBool(*l.Furnished)
	}
	var estimated string
	if c.TransitMinutes != nil {
		estimated = strconv.FormatBool(c.TransitEstimated)
	}

	return []string{
		l.Source, l.URL, l.Title, fmtFloat(l.Price, 0), fmtFloat(l.Surface, 1), fmtInt(l.Rooms), ppm,
		l.Address, l.PostalCode, l.City, string(l.Category), furnished,
		fmtFloat(l.Latitude, 6), fmtFloat(l.Longitude, 6),
		fmtFloat(c.CyclingMinutes, 0), fmtFloat(c.DrivingMinutes, 0), fmtFloat(c.TransitMinutes, 0), estimated,
		nbName, nbScore, l.FirstSeen.Format(time.RFC3339), l.LastSeen.Format(time.RFC3339),
	}
}

func fmtFloat(f *float64, prec int) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', prec, 64)
}

func fmtInt(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
