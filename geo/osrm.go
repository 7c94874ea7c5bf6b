package geo

import (
	"context"
	"fmt"
	"strings"
)

// OSRM routes between points using an OSRM HTTP server.
type OSRM struct {
	c *oracleClient
	// profiles maps a travel profile to the server's profile path segment.
	profiles map[Profile]string
}

// NewOSRM returns a router for the server at o.BaseURL.
func NewOSRM(o ClientOptions) *OSRM {
	return &OSRM{
		c: newOracleClient("osrm", o),
		profiles: map[Profile]string{
			ProfileCycling: "bike",
			ProfileDriving: "driving",
		},
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
		Geometry string  `json:"geometry"`
	} `json:"routes"`
}

// Route returns the fastest route for profile. The polyline is OSRM's
// encoded geometry at full overview.
func (o *OSRM) Route(ctx context.Context, from, to Point, profile Profile) (*Route, error) {
	seg, ok := o.profiles[profile]
	if !ok {
		return nil, fmt.Errorf("osrm: unsupported profile %q", profile)
	}
	u := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=polyline",
		strings.TrimRight(o.c.baseURL, "/"), seg, from.Lng, from.Lat, to.Lng, to.Lat)

	var resp osrmResponse
	if err := o.c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "Ok" {
		if resp.Code == "NoRoute" || resp.Code == "NoSegment" {
			return nil, fmt.Errorf("%w: osrm %s", ErrNotFound, resp.Code)
		}
		return nil, fmt.Errorf("osrm: %s: %s", resp.Code, resp.Message)
	}
	if len(resp.Routes) == 0 {
		return nil, fmt.Errorf("%w: osrm returned no routes", ErrNotFound)
	}
	r := resp.Routes[0]
	return &Route{Duration: r.Duration, Distance: r.Distance, Polyline: r.Geometry}, nil
}
