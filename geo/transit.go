package geo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// OTP plans transit trips with an OpenTripPlanner server.
type OTP struct {
	c *oracleClient
}

// NewOTP returns a transit router for the server at o.BaseURL.
func NewOTP(o ClientOptions) *OTP {
	return &OTP{c: newOracleClient("otp", o)}
}

type otpResponse struct {
	Plan *struct {
		Itineraries []struct {
			Duration  float64 `json:"duration"`
			Transfers int     `json:"transfers"`
		} `json:"itineraries"`
	} `json:"plan"`
	Error *struct {
		ID  int    `json:"id"`
		Msg string `json:"msg"`
	} `json:"error"`
}

// Transit returns the quickest itinerary between from and to.
func (o *OTP) Transit(ctx context.Context, from, to Point) (*TransitTrip, error) {
	q := url.Values{}
	q.Set("fromPlace", from.String())
	q.Set("toPlace", to.String())
	q.Set("mode", "TRANSIT,WALK")
	q.Set("numItineraries", "3")

	var resp otpResponse
	u := strings.TrimRight(o.c.baseURL, "/") + "/otp/routers/default/plan?" + q.Encode()
	if err := o.c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: otp %d %s", ErrNotFound, resp.Error.ID, resp.Error.Msg)
	}
	if resp.Plan == nil || len(resp.Plan.Itineraries) == 0 {
		return nil, fmt.Errorf("%w: otp returned no itineraries", ErrNotFound)
	}

	best := resp.Plan.Itineraries[0]
	for _, it := range resp.Plan.Itineraries[1:] {
		if it.Duration < best.Duration {
			best = it
		}
	}
	return &TransitTrip{Duration: best.Duration, Transfers: best.Transfers}, nil
}
