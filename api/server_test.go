package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-scraper/models"
	"rental-scraper/storage"
	"rental-scraper/utils"
)

func seededServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rows := []struct {
		source, url string
		price       float64
		rooms       int
		score       float64
	}{
		{"pararius", "https://www.pararius.com/a", 950, 1, 6.5},
		{"pararius", "https://www.pararius.com/b", 1250, 2, 7.4},
		{"kamernet", "https://kamernet.nl/c", 1450, 3, 8.1},
		{"pararius", "https://www.pararius.com/d", 1800, 3, 7.9},
	}
	for _, r := range rows {
		_, err := store.Upsert(context.Background(), &models.Listing{
			Source:       r.source,
			URL:          r.url,
			Title:        "Listing " + r.url,
			Price:        models.Float(r.price),
			Currency:     "EUR",
			Rooms:        models.Int(r.rooms),
			Category:     models.CategoryApartment,
			Neighborhood: &models.NeighborhoodScore{Name: "Oost", Overall: r.score},
		})
		require.NoError(t, err)
	}

	srv := httptest.NewServer(NewHandler(store, utils.NewNopLogger()).Router())
	t.Cleanup(srv.Close)
	return srv
}

type listingsResponse struct {
	Count    int           `json:"count"`
	Listings []listingJSON `json:"listings"`
}

func getListings(t *testing.T, srv *httptest.Server, query string) (int, listingsResponse) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/listings?" + query)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body listingsResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp.StatusCode, body
}

func TestListingsConjunction(t *testing.T) {
	srv := seededServer(t)

	status, body := getListings(t, srv, "price_min=1000&price_max=1500&rooms_min=2")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "https://www.pararius.com/b", body.Listings[0].URL)
	assert.Equal(t, "https://kamernet.nl/c", body.Listings[1].URL)
}

func TestListingsSourceScoreAndLimit(t *testing.T) {
	srv := seededServer(t)

	_, body := getListings(t, srv, "source=pararius&score_min=7")
	require.Equal(t, 2, body.Count)
	assert.Equal(t, 7.4, body.Listings[0].Neighborhood.Overall)

	_, body = getListings(t, srv, "limit=1")
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "https://www.pararius.com/a", body.Listings[0].URL)

	_, body = getListings(t, srv, "")
	assert.Equal(t, 4, body.Count)
}

func TestListingsBadRequest(t *testing.T) {
	srv := seededServer(t)

	for _, q := range []string{"price_min=abc", "rooms_min=2.5", "price_min=2000&price_max=1000", "score_min=11", "apartments_only=maybe"} {
		status, _ := getListings(t, srv, q)
		assert.Equal(t, http.StatusBadRequest, status, q)
	}
}

func TestStats(t *testing.T) {
	srv := seededServer(t)

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Total     int            `json:"total"`
		BySource  map[string]int `json:"by_source"`
		WithScore int            `json:"with_score"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 4, body.Total)
	assert.Equal(t, map[string]int{"pararius": 3, "kamernet": 1}, body.BySource)
	assert.Equal(t, 4, body.WithScore)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := seededServer(t)
	resp, err := http.Post(srv.URL+"/listings", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(url.Values{"surface_min": {"40"}, "source": {" Pararius "}, "apartments_only": {"true"}})
	require.NoError(t, err)
	require.NotNil(t, f.SurfaceMin)
	assert.Equal(t, 40.0, *f.SurfaceMin)
	assert.Equal(t, "pararius", f.Source)
	assert.True(t, f.ApartmentsOnly)
	assert.Nil(t, f.PriceMin)

	_, err = ParseFilter(url.Values{"apartments_only": {"yes"}})
	assert.ErrorIs(t, err, models.ErrInvalidFilter)
}
