package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"rental-scraper/models"
	"rental-scraper/utils"
)

// EnricherConfig wires the oracles. Any oracle may be nil: a nil geocoder or
// router skips its fields, a nil transit router falls back to the heuristic.
type EnricherConfig struct {
	Geocoder    Geocoder
	Router      Router
	Transit     TransitRouter
	Table       *NeighborhoodTable
	Destination Point
	Country     string
	Logger      *utils.Logger
}

// Enricher adds coordinates, commute metrics and a neighborhood score to
// resolved listings. Oracle failures leave their fields empty.
type Enricher struct {
	cfg    EnricherConfig
	logger *utils.Logger
}

func NewEnricher(cfg EnricherConfig) *Enricher {
	return &Enricher{cfg: cfg, logger: cfg.Logger.With("enrich")}
}

// Enrich fills the enrichment fields of l in place. The returned error joins
// every oracle failure; l is always safe to persist afterwards. When
// geocoding fails no commute or neighborhood data is attached.
func (e *Enricher) Enrich(ctx context.Context, l *models.Listing) error {
	if !l.HasCoordinates() && e.cfg.Geocoder != nil {
		if q := GeocodeQuery(l, e.cfg.Country); q != "" {
			p, err := e.cfg.Geocoder.Geocode(ctx, q)
			if err != nil {
				return fmt.Errorf("geocode %q: %w", q, err)
			}
			l.Latitude, l.Longitude = models.Float(p.Lat), models.Float(p.Lng)
		}
	}

	var errs []error
	if l.HasCoordinates() {
		var commuteErrs []error
		l.Commute, commuteErrs = e.commute(ctx, Point{Lat: *l.Latitude, Lng: *l.Longitude})
		errs = append(errs, commuteErrs...)
	}
	if nb := e.cfg.Table.Match(l.District, l.City, l.Address, l.PostalCode); nb != nil {
		l.Neighborhood = nb
	}
	return errors.Join(errs...)
}

// commute queries the routing and transit oracles concurrently. Each
// sub-metric is independent: one failing leaves only its own fields empty.
func (e *Enricher) commute(ctx context.Context, from Point) (*models.CommuteMetrics, []error) {
	dest := e.cfg.Destination
	km := Haversine(from, dest)
	c := &models.CommuteMetrics{StraightLineKm: models.Float(round(km, 2))}

	var (
		mu   sync.Mutex
		errs []error
		trip *TransitTrip
		g    errgroup.Group
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	if e.cfg.Router != nil {
		g.Go(func() error {
			r, err := e.cfg.Router.Route(ctx, from, dest, ProfileCycling)
			if err != nil {
				fail(fmt.Errorf("cycling route: %w", err))
				return nil
			}
			c.CyclingMinutes = models.Float(round(r.Duration/60, 1))
			c.CyclingKm = models.Float(round(r.Distance/1000, 2))
			c.CyclingRoute = r.Polyline
			return nil
		})
		g.Go(func() error {
			r, err := e.cfg.Router.Route(ctx, from, dest, ProfileDriving)
			if err != nil {
				fail(fmt.Errorf("driving route: %w", err))
				return nil
			}
			c.DrivingMinutes = models.Float(round(r.Duration/60, 1))
			c.DrivingKm = models.Float(round(r.Distance/1000, 2))
			return nil
		})
	}
	if e.cfg.Transit != nil {
		g.Go(func() error {
			t, err := e.cfg.Transit.Transit(ctx, from, dest)
			if err != nil {
				fail(fmt.Errorf("transit: %w", err))
				return nil
			}
			trip = t
			return nil
		})
	}
	_ = g.Wait()

	if trip != nil {
		c.TransitMinutes = models.Float(round(trip.Duration/60, 1))
		c.TransitTransfers = models.Int(trip.Transfers)
	} else {
		c.TransitMinutes = models.Float(EstimateTransitMinutes(km))
		c.TransitEstimated = true
	}
	return c, errs
}

// GeocodeQuery builds the free-text geocoding query for l: the address, plus
// postal code, city and country when the address does not already name them.
// It returns "" when there is nothing to geocode.
func GeocodeQuery(l *models.Listing, country string) string {
	addr := strings.TrimSpace(l.Address)
	if addr == "" && l.PostalCode == "" {
		return ""
	}
	parts := []string{}
	if addr != "" {
		parts = append(parts, addr)
	}
	for _, extra := range []string{l.PostalCode, l.City, country} {
		extra = strings.TrimSpace(extra)
		if extra == "" || containsFold(strings.Join(parts, ", "), extra) {
			continue
		}
		parts = append(parts, extra)
	}
	return strings.Join(parts, ", ")
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
