package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"rental-scraper/models"
	"rental-scraper/utils"
)

// ErrExtraction marks a listing dropped because neither pass produced a
// price or a title.
var ErrExtraction = errors.New("extraction failed")

// ModelPass is the optional model-based extraction oracle. Implementations
// return (nil, nil) when the model is unavailable.
type ModelPass interface {
	Extract(ctx context.Context, source, url, pageText string) (*models.RawCandidate, error)
}

// Bounds are the plausible ranges for numeric fields. Values outside are
// discarded as if the pass had not produced them.
type Bounds struct {
	PriceMin, PriceMax     float64 // reference currency
	SurfaceMin, SurfaceMax float64 // m²
	RoomsMin, RoomsMax     int
	DepositMax             float64
}

// DefaultBounds suits monthly residential rents.
var DefaultBounds = Bounds{
	PriceMin:   50,
	PriceMax:   50000,
	SurfaceMin: 5,
	SurfaceMax: 2000,
	RoomsMin:   1,
	RoomsMax:   50,
	DepositMax: 200000,
}

// Resolver merges the model-based and pattern-based passes into one
// normalized listing.
type Resolver struct {
	model       ModelPass
	patterns    *PatternExtractor
	rates       *RateTable
	refCurrency string
	bounds      Bounds
	logger      *utils.Logger
}

// NewResolver builds a Resolver. model may be nil to run the pattern pass only.
func NewResolver(model ModelPass, patterns *PatternExtractor, rates *RateTable, refCurrency string, logger *utils.Logger) *Resolver {
	return &Resolver{
		model:       model,
		patterns:    patterns,
		rates:       rates,
		refCurrency: strings.ToUpper(refCurrency),
		bounds:      DefaultBounds,
		logger:      logger.With("resolver"),
	}
}

// Resolve produces exactly one listing for a candidate, or an error wrapping
// ErrExtraction when the listing has to be dropped. Enrichment fields are
// left empty.
func (r *Resolver) Resolve(ctx context.Context, in *models.RawCandidate) (*models.Listing, error) {
	if in.PageText == "" && in.HTML != "" {
		in.PageText = PageText(in.URL, in.HTML)
	}

	var model *models.RawCandidate
	if r.model != nil {
		mc, err := r.model.Extract(ctx, in.Source, in.URL, in.PageText)
		if err != nil {
			r.logger.Warn("Model pass failed for %s: %v", in.URL, err)
		} else {
			model = mc
		}
		if model != nil && model.Currency == "" {
			model.Currency = in.Currency
		}
	}

	pattern := overlay(r.patterns, in, r.patterns.Extract(in))

	l := &models.Listing{
		Source: strings.ToLower(strings.TrimSpace(in.Source)),
		URL:    utils.CanonicalURL(in.URL),
	}

	l.Price, l.Currency = r.resolvePrice(model, pattern)
	l.Surface = pickFloat(r.bounds.SurfaceMin, r.bounds.SurfaceMax, surfaceOf(model), surfaceOf(pattern))
	l.Rooms = pickRooms(r.bounds, roomsOf(model), roomsOf(pattern))
	l.Deposit = r.resolveDeposit(model, pattern)
	l.Furnished = pickBool(furnishedOf(model), furnishedOf(pattern))

	l.Title = pickText(textOf(model, func(c *models.RawCandidate) string { return c.Title }), pattern.Title)
	l.Address = pickText(textOf(model, func(c *models.RawCandidate) string { return c.Address }), pattern.Address)
	l.City = pickText(textOf(model, func(c *models.RawCandidate) string { return c.City }), pattern.City)
	l.District = pickText(textOf(model, func(c *models.RawCandidate) string { return c.Neighborhood }), pattern.Neighborhood)
	l.PostalCode = pickText(r.postalOf(model), pattern.PostalCode)
	l.Description = pickText(textOf(model, func(c *models.RawCandidate) string { return c.Description }), pattern.Description)
	l.EnergyLabel = pickText(textOf(model, func(c *models.RawCandidate) string { return strings.ToUpper(c.EnergyLabel) }), pattern.EnergyLabel)
	l.AvailableFrom = pickText(textOf(model, func(c *models.RawCandidate) string { return c.AvailableFrom }), pattern.AvailableFrom)

	var modelType string
	if model != nil && model.PropertyType != "" {
		modelType = parsePropertyType(model.PropertyType)
	}
	l.PropertyType = pickText(modelType, pattern.PropertyType)
	l.Category = categorize(l.PropertyType, l.URL, l.Title)

	if l.Price == nil && l.Title == "" {
		return nil, fmt.Errorf("%w: no price or title for %s", ErrExtraction, l.URL)
	}
	return l, nil
}

// overlay lays the adapter's own structured fields over the regex results.
// Both are deterministic and together form the pattern-based pass.
func overlay(patterns *PatternExtractor, adapter, regex *models.RawCandidate) *models.RawCandidate {
	out := *regex
	out.Title = normaliseText(adapter.Title)
	out.Address = normaliseText(adapter.Address)
	out.City = normaliseText(adapter.City)
	out.Neighborhood = normaliseText(adapter.Neighborhood)
	out.Description = strings.TrimSpace(adapter.Description)
	if adapter.Price != nil {
		out.Price = adapter.Price
		out.Currency = adapter.Currency
	}
	if out.Price != nil && out.Currency == "" {
		out.Currency = adapter.Currency
	}
	if adapter.Surface != nil {
		out.Surface = adapter.Surface
	}
	if adapter.Rooms != nil {
		out.Rooms = adapter.Rooms
	}
	if adapter.Deposit != nil {
		out.Deposit = adapter.Deposit
	}
	if adapter.Furnished != nil {
		out.Furnished = adapter.Furnished
	}
	if pc := strings.TrimSpace(adapter.PostalCode); pc != "" {
		if norm, ok := patterns.NormalizePostalCode(pc); ok {
			pc = norm
		}
		out.PostalCode = strings.ToUpper(pc)
	}
	if adapter.EnergyLabel != "" {
		out.EnergyLabel = strings.ToUpper(adapter.EnergyLabel)
	}
	if adapter.AvailableFrom != "" {
		out.AvailableFrom = adapter.AvailableFrom
	}
	if pt := parsePropertyType(adapter.PropertyType); pt != "" {
		out.PropertyType = pt
	}
	return &out
}

func (r *Resolver) resolvePrice(candidates ...*models.RawCandidate) (*float64, string) {
	for _, c := range candidates {
		if c == nil || c.Price == nil {
			continue
		}
		cur := c.Currency
		if cur == "" {
			cur = r.refCurrency
		}
		v, err := r.rates.Convert(*c.Price, cur, r.refCurrency)
		if err != nil {
			r.logger.Debug("Price %v %s for %s not convertible: %v", *c.Price, cur, c.URL, err)
			continue
		}
		if v < r.bounds.PriceMin || v > r.bounds.PriceMax {
			r.logger.Debug("Price %.2f out of range for %s (%s pass)", v, c.URL, c.Pass)
			continue
		}
		return models.Float(v), r.refCurrency
	}
	return nil, ""
}

func (r *Resolver) resolveDeposit(candidates ...*models.RawCandidate) *float64 {
	for _, c := range candidates {
		if c == nil || c.Deposit == nil {
			continue
		}
		cur := c.Currency
		if cur == "" {
			cur = r.refCurrency
		}
		v, err := r.rates.Convert(*c.Deposit, cur, r.refCurrency)
		if err != nil || v < 0 || v > r.bounds.DepositMax {
			continue
		}
		return models.Float(v)
	}
	return nil
}

func (r *Resolver) postalOf(c *models.RawCandidate) string {
	if c == nil || c.PostalCode == "" {
		return ""
	}
	if pc, ok := r.patterns.NormalizePostalCode(c.PostalCode); ok {
		return pc
	}
	return ""
}

func surfaceOf(c *models.RawCandidate) *float64 {
	if c == nil {
		return nil
	}
	return c.Surface
}

func roomsOf(c *models.RawCandidate) *int {
	if c == nil {
		return nil
	}
	return c.Rooms
}

func furnishedOf(c *models.RawCandidate) *bool {
	if c == nil {
		return nil
	}
	return c.Furnished
}

func textOf(c *models.RawCandidate, field func(*models.RawCandidate) string) string {
	if c == nil {
		return ""
	}
	return normaliseText(field(c))
}

func pickFloat(min, max float64, vals ...*float64) *float64 {
	for _, v := range vals {
		if v == nil || math.IsNaN(*v) || *v < min || *v >= max {
			continue
		}
		return models.Float(math.Round(*v*10) / 10)
	}
	return nil
}

func pickRooms(b Bounds, vals ...*int) *int {
	for _, v := range vals {
		if v == nil || *v < b.RoomsMin || *v > b.RoomsMax {
			continue
		}
		return models.Int(*v)
	}
	return nil
}

func pickBool(vals ...*bool) *bool {
	for _, v := range vals {
		if v != nil {
			return models.Bool(*v)
		}
	}
	return nil
}

func pickText(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// categorize derives apartment vs room/shared from the property type, the
// URL and the title.
func categorize(propertyType, url, title string) models.Category {
	t := strings.ToLower(title)
	u := strings.ToLower(url)
	if propertyType == "room" || strings.Contains(u, "/kamer-") || strings.Contains(u, "/room-") ||
		strings.Contains(t, "shared") || strings.HasPrefix(t, "room ") || strings.HasPrefix(t, "kamer ") {
		return models.CategoryRoom
	}
	return models.CategoryApartment
}
