package pipeline

import (
	"fmt"
	"strings"

	"rental-scraper/models"
)

// preFilter applies the caller's price, surface, room and category
// predicates before enrichment. Unknown values pass: a listing without a
// price is kept so the store records it.
func preFilter(f models.Filter, l *models.Listing) (bool, string) {
	if l.Price != nil {
		if f.PriceMin != nil && *l.Price < *f.PriceMin {
			return false, fmt.Sprintf("price %.0f below %.0f", *l.Price, *f.PriceMin)
		}
		if f.PriceMax != nil && *l.Price > *f.PriceMax {
			return false, fmt.Sprintf("price %.0f above %.0f", *l.Price, *f.PriceMax)
		}
	}
	if l.Surface != nil && f.SurfaceMin != nil && *l.Surface < *f.SurfaceMin {
		return false, fmt.Sprintf("surface %.0f below %.0f", *l.Surface, *f.SurfaceMin)
	}
	if l.Rooms != nil && f.RoomsMin != nil && *l.Rooms < *f.RoomsMin {
		return false, fmt.Sprintf("rooms %d below %d", *l.Rooms, *f.RoomsMin)
	}
	if f.ApartmentsOnly && l.Category == models.CategoryRoom {
		return false, "room or shared"
	}
	if f.Source != "" && !strings.EqualFold(f.Source, l.Source) {
		return false, "source " + l.Source
	}
	return true, ""
}

// postFilter applies predicates that need enrichment data.
func postFilter(f models.Filter, l *models.Listing) (bool, string) {
	if f.ScoreMin != nil && l.Neighborhood != nil && l.Neighborhood.Overall < *f.ScoreMin {
		return false, fmt.Sprintf("neighborhood score %.1f below %.1f", l.Neighborhood.Overall, *f.ScoreMin)
	}
	return true, ""
}
