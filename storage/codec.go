package storage

import (
	"database/sql"
	"time"

	"rental-scraper/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// listingArgs flattens l into listingColumns order. Empty text and nil
// pointers become SQL NULL so the merge keeps existing values.
func listingArgs(l *models.Listing, seen int64) []any {
	c := l.Commute
	if c == nil {
		c = &models.CommuteMetrics{}
	}
	var transitEstimated any
	if c.TransitMinutes != nil {
		transitEstimated = boolInt(c.TransitEstimated)
	}

	nb := l.Neighborhood
	var nbName, nbSafety, nbGreen, nbAmen, nbDining, nbFamily, nbExpat, nbOverall any
	if nb != nil {
		nbName, nbOverall = nb.Name, nb.Overall
		nbSafety, nbGreen, nbAmen = nb.Safety, nb.GreenSpace, nb.Amenities
		nbDining, nbFamily, nbExpat = nb.Dining, nb.FamilyFriendly, nb.ExpatFriendly
	}

	var furnished any
	if l.Furnished != nil {
		furnished = boolInt(*l.Furnished)
	}

	return []any{
		l.Source, l.URL, text(l.Title), num(l.Price), text(l.Currency), num(l.Surface), integer(l.Rooms),
		text(l.Address), text(l.City), text(l.District), text(l.PostalCode), text(l.PropertyType), text(string(l.Category)), text(l.Description),
		num(l.Deposit), furnished, text(l.EnergyLabel), text(l.AvailableFrom),
		num(l.Latitude), num(l.Longitude),
		num(c.CyclingMinutes), num(c.CyclingKm), num(c.DrivingMinutes), num(c.DrivingKm),
		num(c.TransitMinutes), integer(c.TransitTransfers), transitEstimated, num(c.StraightLineKm), text(c.CyclingRoute),
		nbName, nbSafety, nbGreen, nbAmen, nbDining, nbFamily, nbExpat, nbOverall,
		seen, seen,
	}
}

func scanListing(r rowScanner) (*models.Listing, error) {
	var (
		l                                                 models.Listing
		title, currency, address, city, postal, ptype     sql.NullString
		category, desc, energy, available, route, nbName  sql.NullString
		district                                          sql.NullString
		price, surface, deposit, lat, lon                 sql.NullFloat64
		cycMin, cycKm, drvMin, drvKm, trMin, straight     sql.NullFloat64
		nbOverall                                         sql.NullFloat64
		rooms, furnished, transfers, estimated            sql.NullInt64
		nbSafety, nbGreen, nbAmen, nbDining, nbFam, nbExp sql.NullInt64
		firstSeen, lastSeen                               int64
	)

	err := r.Scan(
		&l.ID,
		&l.Source, &l.URL, &title, &price, &currency, &surface, &rooms,
		&address, &city, &district, &postal, &ptype, &category, &desc,
		&deposit, &furnished, &energy, &available,
		&lat, &lon,
		&cycMin, &cycKm, &drvMin, &drvKm,
		&trMin, &transfers, &estimated, &straight, &route,
		&nbName, &nbSafety, &nbGreen, &nbAmen, &nbDining, &nbFam, &nbExp, &nbOverall,
		&firstSeen, &lastSeen,
	)
	if err != nil {
		return nil, err
	}

	l.Title, l.Currency, l.Address, l.City = title.String, currency.String, address.String, city.String
	l.District = district.String
	l.PostalCode, l.PropertyType, l.Description = postal.String, ptype.String, desc.String
	l.Category = models.Category(category.String)
	l.EnergyLabel, l.AvailableFrom = energy.String, available.String
	l.Price, l.Surface, l.Deposit = floatPtr(price), floatPtr(surface), floatPtr(deposit)
	l.Rooms = intPtr(rooms)
	l.Latitude, l.Longitude = floatPtr(lat), floatPtr(lon)
	if furnished.Valid {
		l.Furnished = models.Bool(furnished.Int64 != 0)
	}

	commute := &models.CommuteMetrics{
		CyclingMinutes:   floatPtr(cycMin),
		CyclingKm:        floatPtr(cycKm),
		DrivingMinutes:   floatPtr(drvMin),
		DrivingKm:        floatPtr(drvKm),
		TransitMinutes:   floatPtr(trMin),
		TransitTransfers: intPtr(transfers),
		TransitEstimated: estimated.Valid && estimated.Int64 != 0,
		StraightLineKm:   floatPtr(straight),
		CyclingRoute:     route.String,
	}
	if !commute.Empty() {
		l.Commute = commute
	}

	if nbOverall.Valid {
		l.Neighborhood = &models.NeighborhoodScore{
			Name:           nbName.String,
			Safety:         int(nbSafety.Int64),
			GreenSpace:     int(nbGreen.Int64),
			Amenities:      int(nbAmen.Int64),
			Dining:         int(nbDining.Int64),
			FamilyFriendly: int(nbFam.Int64),
			ExpatFriendly:  int(nbExp.Int64),
			Overall:        nbOverall.Float64,
		}
	}

	l.FirstSeen = time.Unix(0, firstSeen).UTC()
	l.LastSeen = time.Unix(0, lastSeen).UTC()
	return &l, nil
}

func text(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func num(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func integer(i *int) any {
	if i == nil {
		return nil
	}
	return int64(*i)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return models.Float(n.Float64)
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	return models.Int(int(n.Int64))
}
