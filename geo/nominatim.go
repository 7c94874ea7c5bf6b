package geo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Nominatim geocodes addresses against an OpenStreetMap Nominatim server.
type Nominatim struct {
	c *oracleClient
}

// NewNominatim returns a geocoder for the server at o.BaseURL.
func NewNominatim(o ClientOptions) *Nominatim {
	return &Nominatim{c: newOracleClient("nominatim", o)}
}

type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode returns the best match for query, or ErrNotFound.
func (n *Nominatim) Geocode(ctx context.Context, query string) (Point, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")

	var places []nominatimPlace
	if err := n.c.getJSON(ctx, strings.TrimRight(n.c.baseURL, "/")+"/search?"+q.Encode(), &places); err != nil {
		return Point{}, err
	}
	if len(places) == 0 {
		return Point{}, fmt.Errorf("%w: %q", ErrNotFound, query)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Point{}, fmt.Errorf("nominatim: bad latitude %q: %w", places[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Point{}, fmt.Errorf("nominatim: bad longitude %q: %w", places[0].Lon, err)
	}
	return Point{Lat: lat, Lng: lng}, nil
}
