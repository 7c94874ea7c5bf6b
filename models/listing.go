package models

import "time"

// Pass identifies which extraction strategy produced a RawCandidate.
type Pass string

const (
	PassModel   Pass = "model"
	PassPattern Pass = "pattern"
)

// Category is the derived property category of a listing.
type Category string

const (
	CategoryApartment Category = "apartment"
	CategoryRoom      Category = "room"
)

// RawCandidate is the per-listing, per-pass bag of optional fields produced by
// an adapter or an extraction pass. Empty strings and nil pointers mean absent.
// It is discarded once the listing has been resolved.
type RawCandidate struct {
	Source string
	URL    string
	Pass   Pass

	Title        string
	PriceText    string
	SurfaceText  string
	RoomsText    string
	Address      string
	City         string
	PostalCode   string
	Neighborhood string
	PropertyType string
	Description  string
	Currency     string

	Price     *float64
	Surface   *float64
	Rooms     *int
	Deposit   *float64
	Furnished *bool

	EnergyLabel   string
	AvailableFrom string

	// HTML and PageText carry the page content for the extraction passes.
	HTML     string
	PageText string

	ScrapedAt time.Time
}

// Listing is the canonical, normalized record persisted in the store.
// Identity is (Source, URL) where URL is canonical. Text fields use "" for
// unknown; numeric and enrichment fields are nil until known.
type Listing struct {
	ID     int64
	Source string
	URL    string

	Title        string
	Price        *float64 // reference currency, per month
	Currency     string
	Surface      *float64 // square meters
	Rooms        *int
	Address      string
	City         string
	District     string // neighborhood text as published
	PostalCode   string
	PropertyType string
	Category     Category
	Description  string

	Deposit       *float64
	Furnished     *bool
	EnergyLabel   string
	AvailableFrom string

	Latitude     *float64
	Longitude    *float64
	Commute      *CommuteMetrics
	Neighborhood *NeighborhoodScore

	FirstSeen time.Time
	LastSeen  time.Time
}

// HasCoordinates reports whether the listing has been geocoded.
func (l *Listing) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// PricePerSquareMeter returns price/surface, or 0 when either is unknown.
func (l *Listing) PricePerSquareMeter() float64 {
	if l.Price == nil || l.Surface == nil || *l.Surface <= 0 {
		return 0
	}
	return *l.Price / *l.Surface
}

// CommuteMetrics holds travel times from a listing to the fixed destination.
// Each sub-metric is nil when its oracle call failed.
type CommuteMetrics struct {
	CyclingMinutes   *float64
	CyclingKm        *float64
	DrivingMinutes   *float64
	DrivingKm        *float64
	TransitMinutes   *float64
	TransitTransfers *int
	TransitEstimated bool
	StraightLineKm   *float64
	CyclingRoute     string
}

// Empty reports whether no commute metric is known.
func (c *CommuteMetrics) Empty() bool {
	return c == nil || (c.CyclingMinutes == nil && c.DrivingMinutes == nil &&
		c.TransitMinutes == nil && c.StraightLineKm == nil)
}

// NeighborhoodScore holds six 1-10 ratings plus the weighted overall score.
type NeighborhoodScore struct {
	Name           string
	Safety         int
	GreenSpace     int
	Amenities      int
	Dining         int
	FamilyFriendly int
	ExpatFriendly  int
	Overall        float64
}

// Filter is a conjunction of optional predicates. Nil fields do not constrain.
type Filter struct {
	PriceMin       *float64 `validate:"omitempty,gte=0"`
	PriceMax       *float64 `validate:"omitempty,gte=0"`
	SurfaceMin     *float64 `validate:"omitempty,gte=0"`
	RoomsMin       *int     `validate:"omitempty,gte=0"`
	Source         string
	ScoreMin       *float64 `validate:"omitempty,gte=0,lte=10"`
	ApartmentsOnly bool
	Limit          int `validate:"gte=0"`
}

// StoreStats holds aggregate counts over the store.
type StoreStats struct {
	Total     int
	BySource  map[string]int
	Geocoded  int
	WithScore int
	Oldest    time.Time
	Newest    time.Time
}

// InsightReport holds the computed analytics over the stored dataset.
type InsightReport struct {
	TotalListings          int
	ListingsBySource       map[string]int
	AveragePrice           float64
	MinPrice               float64
	MaxPrice               float64
	AveragePricePerM2      float64
	MostExpensive          *Listing
	BestNeighborhoods      []*Listing
	ShortestCommutes       []*Listing
	ListingsByNeighborhood map[string]int
}
