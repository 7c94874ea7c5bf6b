package api

import (
	"time"

	"rental-scraper/models"
)

type commuteJSON struct {
	CyclingMinutes   *float64 `json:"cycling_minutes"`
	CyclingKm        *float64 `json:"cycling_km"`
	DrivingMinutes   *float64 `json:"driving_minutes"`
	DrivingKm        *float64 `json:"driving_km"`
	TransitMinutes   *float64 `json:"transit_minutes"`
	TransitTransfers *int     `json:"transit_transfers"`
	TransitEstimated bool     `json:"transit_estimated"`
	StraightLineKm   *float64 `json:"straight_line_km"`
}

type neighborhoodJSON struct {
	Name           string  `json:"name"`
	Safety         int     `json:"safety"`
	GreenSpace     int     `json:"green_space"`
	Amenities      int     `json:"amenities"`
	Dining         int     `json:"dining"`
	FamilyFriendly int     `json:"family_friendly"`
	ExpatFriendly  int     `json:"expat_friendly"`
	Overall        float64 `json:"overall"`
}

type listingJSON struct {
	ID            int64             `json:"id"`
	Source        string            `json:"source"`
	URL           string            `json:"url"`
	Title         string            `json:"title,omitempty"`
	Price         *float64          `json:"price"`
	Currency      string            `json:"currency,omitempty"`
	Surface       *float64          `json:"surface_m2"`
	Rooms         *int              `json:"rooms"`
	Address       string            `json:"address,omitempty"`
	City          string            `json:"city,omitempty"`
	District      string            `json:"district,omitempty"`
	PostalCode    string            `json:"postal_code,omitempty"`
	PropertyType  string            `json:"property_type,omitempty"`
	Category      string            `json:"category,omitempty"`
	Deposit       *float64          `json:"deposit,omitempty"`
	Furnished     *bool             `json:"furnished,omitempty"`
	EnergyLabel   string            `json:"energy_label,omitempty"`
	AvailableFrom string            `json:"available_from,omitempty"`
	Latitude      *float64          `json:"latitude"`
	Longitude     *float64          `json:"longitude"`
	Commute       *commuteJSON      `json:"commute"`
	Neighborhood  *neighborhoodJSON `json:"neighborhood"`
	FirstSeen     time.Time         `json:"first_seen"`
	LastSeen      time.Time         `json:"last_seen"`
}

func toJSON(l *models.Listing) listingJSON {
	out := listingJSON{
		ID:            l.ID,
		Source:        l.Source,
		URL:           l.URL,
		Title:         l.Title,
		Price:         l.Price,
		Currency:      l.Currency,
		Surface:       l.Surface,
		Rooms:         l.Rooms,
		Address:       l.Address,
		City:          l.City,
		District:      l.District,
		PostalCode:    l.PostalCode,
		PropertyType:  l.PropertyType,
		Category:      string(l.Category),
		Deposit:       l.Deposit,
		Furnished:     l.Furnished,
		EnergyLabel:   l.EnergyLabel,
		AvailableFrom: l.AvailableFrom,
		Latitude:      l.Latitude,
		Longitude:     l.Longitude,
		FirstSeen:     l.FirstSeen,
		LastSeen:      l.LastSeen,
	}
	if c := l.Commute; c != nil {
		out.Commute = &commuteJSON{
			CyclingMinutes:   c.CyclingMinutes,
			CyclingKm:        c.CyclingKm,
			DrivingMinutes:   c.DrivingMinutes,
			DrivingKm:        c.DrivingKm,
			TransitMinutes:   c.TransitMinutes,
			TransitTransfers: c.TransitTransfers,
			TransitEstimated: c.TransitEstimated,
			StraightLineKm:   c.StraightLineKm,
		}
	}
	if n := l.Neighborhood; n != nil {
		nj := neighborhoodJSON(*n)
		out.Neighborhood = &nj
	}
	return out
}
