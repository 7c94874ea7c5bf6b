package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-scraper/models"
)

func setupTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleListing(url string, price float64, rooms int) *models.Listing {
	return &models.Listing{
		Source:   "pararius",
		URL:      url,
		Title:    "Apartment " + url,
		Price:    models.Float(price),
		Currency: "EUR",
		Surface:  models.Float(60),
		Rooms:    models.Int(rooms),
		Address:  "Kinkerstraat 1, Amsterdam",
		Category: models.CategoryApartment,
	}
}

func collect(t *testing.T, s *SQLStore, f models.Filter) []*models.Listing {
	t.Helper()
	var out []*models.Listing
	for l, err := range s.Query(context.Background(), f) {
		require.NoError(t, err)
		out = append(out, l)
	}
	return out
}

func withoutLastSeen(l *models.Listing) models.Listing {
	c := *l
	c.LastSeen = time.Time{}
	return c
}

func TestUpsertIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := sampleListing("https://www.pararius.com/a", 1450, 3)
	res, err := s.Upsert(ctx, first)
	require.NoError(t, err)
	assert.True(t, res.Inserted)

	before, err := s.Get(ctx, "pararius", "https://www.pararius.com/a")
	require.NoError(t, err)

	res, err = s.Upsert(ctx, sampleListing("https://www.pararius.com/a", 1450, 3))
	require.NoError(t, err)
	assert.False(t, res.Inserted)
	assert.Equal(t, before.ID, res.ID)

	after, err := s.Get(ctx, "pararius", "https://www.pararius.com/a")
	require.NoError(t, err)
	assert.Equal(t, withoutLastSeen(before), withoutLastSeen(after))
	assert.True(t, after.LastSeen.After(before.LastSeen))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
}

func TestUpsertNeverRegressesToNull(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	full := sampleListing("https://www.pararius.com/b", 1600, 2)
	full.Latitude, full.Longitude = models.Float(52.37), models.Float(4.89)
	full.Neighborhood = &models.NeighborhoodScore{Name: "oud-west", Safety: 8, GreenSpace: 6, Amenities: 9, Dining: 9, FamilyFriendly: 7, ExpatFriendly: 9, Overall: 8.0}
	full.Commute = &models.CommuteMetrics{CyclingMinutes: models.Float(22)}
	_, err := s.Upsert(ctx, full)
	require.NoError(t, err)

	partial := &models.Listing{Source: "pararius", URL: "https://www.pararius.com/b", Price: models.Float(1550)}
	_, err = s.Upsert(ctx, partial)
	require.NoError(t, err)

	got, err := s.Get(ctx, "pararius", "https://www.pararius.com/b")
	require.NoError(t, err)
	assert.Equal(t, 1550.0, *got.Price, "non-null incoming value corrects the stored one")
	require.NotNil(t, got.Surface)
	assert.Equal(t, 60.0, *got.Surface)
	require.NotNil(t, got.Rooms)
	assert.Equal(t, 2, *got.Rooms)
	assert.Equal(t, "Kinkerstraat 1, Amsterdam", got.Address)
	assert.True(t, got.HasCoordinates())
	require.NotNil(t, got.Neighborhood)
	assert.Equal(t, "oud-west", got.Neighborhood.Name)
	require.NotNil(t, got.Commute)
	assert.Equal(t, 22.0, *got.Commute.CyclingMinutes)
	assert.Equal(t, models.CategoryApartment, got.Category)
}

func TestUpsertMergesTransitAsOneTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	url := "https://www.pararius.com/transit"

	routed := sampleListing(url, 1450, 3)
	routed.Commute = &models.CommuteMetrics{
		TransitMinutes:   models.Float(20),
		TransitTransfers: models.Int(2),
	}
	_, err := s.Upsert(ctx, routed)
	require.NoError(t, err)

	estimated := sampleListing(url, 1450, 3)
	estimated.Commute = &models.CommuteMetrics{
		TransitMinutes:   models.Float(31),
		TransitEstimated: true,
	}
	_, err = s.Upsert(ctx, estimated)
	require.NoError(t, err)

	got, err := s.Get(ctx, "pararius", url)
	require.NoError(t, err)
	require.NotNil(t, got.Commute)
	require.NotNil(t, got.Commute.TransitMinutes)
	assert.Equal(t, 20.0, *got.Commute.TransitMinutes)
	assert.False(t, got.Commute.TransitEstimated)
	require.NotNil(t, got.Commute.TransitTransfers)
	assert.Equal(t, 2, *got.Commute.TransitTransfers)

	// A later routed trip replaces the whole group.
	rerouted := sampleListing(url, 1450, 3)
	rerouted.Commute = &models.CommuteMetrics{
		TransitMinutes:   models.Float(24),
		TransitTransfers: models.Int(1),
	}
	_, err = s.Upsert(ctx, rerouted)
	require.NoError(t, err)

	got, err = s.Get(ctx, "pararius", url)
	require.NoError(t, err)
	assert.Equal(t, 24.0, *got.Commute.TransitMinutes)
	assert.Equal(t, 1, *got.Commute.TransitTransfers)
}

func TestUpsertEstimateReplacesEstimate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	url := "https://www.pararius.com/estimate"

	first := sampleListing(url, 1450, 3)
	first.Commute = &models.CommuteMetrics{TransitMinutes: models.Float(31), TransitEstimated: true}
	_, err := s.Upsert(ctx, first)
	require.NoError(t, err)

	second := sampleListing(url, 1450, 3)
	second.Commute = &models.CommuteMetrics{TransitMinutes: models.Float(28), TransitEstimated: true}
	_, err = s.Upsert(ctx, second)
	require.NoError(t, err)

	got, err := s.Get(ctx, "pararius", url)
	require.NoError(t, err)
	require.NotNil(t, got.Commute)
	assert.Equal(t, 28.0, *got.Commute.TransitMinutes)
	assert.True(t, got.Commute.TransitEstimated)
	assert.Nil(t, got.Commute.TransitTransfers)
}

func TestQueryConjunctionInInsertionOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seed := []struct {
		url   string
		price float64
		rooms int
	}{
		{"https://x.nl/1", 900, 3},
		{"https://x.nl/2", 1200, 2},
		{"https://x.nl/3", 1500, 1},
		{"https://x.nl/4", 1400, 4},
		{"https://x.nl/5", 1600, 3},
		{"https://x.nl/6", 1000, 2},
	}
	for _, r := range seed {
		_, err := s.Upsert(ctx, sampleListing(r.url, r.price, r.rooms))
		require.NoError(t, err)
	}
	// A record with unknown price never satisfies a price predicate.
	_, err := s.Upsert(ctx, &models.Listing{Source: "pararius", URL: "https://x.nl/7", Rooms: models.Int(5)})
	require.NoError(t, err)

	got := collect(t, s, models.Filter{PriceMin: models.Float(1000), PriceMax: models.Float(1500), RoomsMin: models.Int(2)})
	var urls []string
	for _, l := range got {
		urls = append(urls, l.URL)
	}
	assert.Equal(t, []string{"https://x.nl/2", "https://x.nl/4", "https://x.nl/6"}, urls)
}

func TestQueryRestartable(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, u := range []string{"https://x.nl/a", "https://x.nl/b"} {
		_, err := s.Upsert(ctx, sampleListing(u, 1000, 2))
		require.NoError(t, err)
	}

	seq := s.Query(ctx, models.Filter{})
	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())
}

func TestQueryScoreAndSource(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := sampleListing("https://x.nl/a", 1000, 2)
	a.Neighborhood = &models.NeighborhoodScore{Name: "zuid", Overall: 8.8}
	b := sampleListing("https://x.nl/b", 1000, 2)
	b.Neighborhood = &models.NeighborhoodScore{Name: "noord", Overall: 6.2}
	c := sampleListing("https://y.nl/c", 1000, 2)
	c.Source = "kamernet"
	for _, l := range []*models.Listing{a, b, c} {
		_, err := s.Upsert(ctx, l)
		require.NoError(t, err)
	}

	got := collect(t, s, models.Filter{ScoreMin: models.Float(7)})
	require.Len(t, got, 1)
	assert.Equal(t, "https://x.nl/a", got[0].URL)

	got = collect(t, s, models.Filter{Source: "kamernet"})
	require.Len(t, got, 1)
	assert.Equal(t, "https://y.nl/c", got[0].URL)
}

func TestQueryInvalidFilter(t *testing.T) {
	s := setupTestStore(t)
	for _, err := range s.Query(context.Background(), models.Filter{PriceMin: models.Float(2000), PriceMax: models.Float(1000)}) {
		assert.ErrorIs(t, err, models.ErrInvalidFilter)
	}
}

func TestConcurrentUpsertsKeepIdentityUnique(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := s.Upsert(ctx, sampleListing("https://x.nl/shared", 1200, 2))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, map[string]int{"pararius": 1}, st.BySource)
}

func TestGetNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Get(context.Background(), "pararius", "https://nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRebindPostgres(t *testing.T) {
	s := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", s.rebind("a = ? AND b = ?"))
}
