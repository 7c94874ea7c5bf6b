package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-scraper/config"
	"rental-scraper/scraper"
)

func demoSource() config.SourceConfig {
	return config.SourceConfig{
		Name:     "demo",
		Kind:     Kind,
		BaseURL:  "https://demo.rentals.local/",
		City:     "amsterdam",
		Currency: "EUR",
		MaxPages: 2,
		PerPage:  3,
	}
}

func urls(t *testing.T, a scraper.Adapter) []string {
	t.Helper()
	var out []string
	for h, err := range a.ListPages(context.Background()) {
		require.NoError(t, err)
		out = append(out, h.URL)
	}
	return out
}

func TestListPagesDeterministic(t *testing.T) {
	a, err := scraper.New(demoSource(), nil)
	require.NoError(t, err)

	first := urls(t, a)
	assert.Len(t, first, 6)
	assert.Equal(t, "https://demo.rentals.local/listing/0", first[0])
	assert.Equal(t, first, urls(t, a))
}

func TestListPagesStopsEarly(t *testing.T) {
	a := New(demoSource())
	n := 0
	for range a.ListPages(context.Background()) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestExtractCandidates(t *testing.T) {
	a := New(demoSource())
	c, err := a.ExtractCandidates(context.Background(), scraper.PageHandle{URL: "https://demo.rentals.local/listing/11"})
	require.NoError(t, err)

	assert.Equal(t, "demo", c.Source)
	assert.Equal(t, "Apartment Kinkerstraat 112", c.Title)
	assert.Equal(t, "1053 ED", c.PostalCode)
	assert.Equal(t, "Oud-West", c.Neighborhood)
	assert.Contains(t, c.HTML, "€ 1.007 /maand")
	assert.Contains(t, c.HTML, "<li>37 m²</li><li>4 kamers</li>")

	room, err := a.ExtractCandidates(context.Background(), scraper.PageHandle{URL: "https://demo.rentals.local/listing/4"})
	require.NoError(t, err)
	assert.Contains(t, room.Title, "Kamer te huur")

	_, err = a.ExtractCandidates(context.Background(), scraper.PageHandle{URL: "https://demo.rentals.local/listing/x"})
	assert.Error(t, err)
}
