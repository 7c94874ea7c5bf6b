package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-scraper/models"
	"rental-scraper/scraper"
	"rental-scraper/utils"
)

type countingFetcher struct {
	calls    atomic.Int32
	failures int32
	status   int
}

func (f *countingFetcher) Fetch(_ context.Context, url string) (*scraper.Page, error) {
	if n := f.calls.Add(1); n <= f.failures {
		return nil, &scraper.FetchError{URL: url, StatusCode: f.status}
	}
	return &scraper.Page{URL: url, StatusCode: 200, HTML: "<html></html>"}, nil
}

func testScheduler() *Scheduler {
	return NewScheduler(SchedulerConfig{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		Timeout:     time.Second,
		Logger:      utils.NewNopLogger(),
	})
}

func TestSchedulerRetriesTransient(t *testing.T) {
	inner := &countingFetcher{failures: 2, status: 503}
	p, err := testScheduler().For("src", inner).Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, 200, p.StatusCode)
	assert.EqualValues(t, 3, inner.calls.Load())
}

func TestSchedulerGivesUpOnPermanent(t *testing.T) {
	inner := &countingFetcher{failures: 5, status: 404}
	_, err := testScheduler().For("src", inner).Fetch(context.Background(), "https://example.com/a")
	var fe *scraper.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 404, fe.StatusCode)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestSchedulerExhaustsRetries(t *testing.T) {
	inner := &countingFetcher{failures: 10, status: 500}
	_, err := testScheduler().For("src", inner).Fetch(context.Background(), "https://example.com/a")
	assert.Error(t, err)
	assert.EqualValues(t, 3, inner.calls.Load())
}

func TestSchedulerSpacesRequestsPerSource(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		DelayMin:    30 * time.Millisecond,
		DelayMax:    30 * time.Millisecond,
		MaxAttempts: 1,
		Logger:      utils.NewNopLogger(),
	})
	a := s.For("a", &countingFetcher{})
	b := s.For("b", &countingFetcher{})
	ctx := context.Background()

	start := time.Now()
	_, _ = a.Fetch(ctx, "https://a.example/1")
	_, _ = b.Fetch(ctx, "https://b.example/1")
	assert.Less(t, time.Since(start), 25*time.Millisecond, "sources share no clock")

	_, _ = a.Fetch(ctx, "https://a.example/2")
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestFilters(t *testing.T) {
	apartment := &models.Listing{
		Source:   "demo",
		Price:    models.Float(1400),
		Surface:  models.Float(50),
		Rooms:    models.Int(2),
		Category: models.CategoryApartment,
	}
	unknown := &models.Listing{Source: "demo", Category: models.CategoryApartment}
	room := &models.Listing{Source: "demo", Price: models.Float(600), Category: models.CategoryRoom}

	tests := []struct {
		name string
		f    models.Filter
		l    *models.Listing
		want bool
	}{
		{"no predicates", models.Filter{}, apartment, true},
		{"price in range", models.Filter{PriceMin: models.Float(1000), PriceMax: models.Float(1500)}, apartment, true},
		{"price too high", models.Filter{PriceMax: models.Float(1200)}, apartment, false},
		{"surface too small", models.Filter{SurfaceMin: models.Float(60)}, apartment, false},
		{"rooms too few", models.Filter{RoomsMin: models.Int(3)}, apartment, false},
		{"unknown values kept", models.Filter{PriceMax: models.Float(10), SurfaceMin: models.Float(60), RoomsMin: models.Int(3)}, unknown, true},
		{"apartments only drops room", models.Filter{ApartmentsOnly: true}, room, false},
		{"other source", models.Filter{Source: "pararius"}, apartment, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := preFilter(tt.f, tt.l)
			assert.Equal(t, tt.want, got)
		})
	}

	scored := &models.Listing{Neighborhood: &models.NeighborhoodScore{Overall: 6.2}}
	ok, _ := postFilter(models.Filter{ScoreMin: models.Float(7)}, scored)
	assert.False(t, ok)
	ok, _ = postFilter(models.Filter{ScoreMin: models.Float(7)}, &models.Listing{})
	assert.True(t, ok)
}

func TestScope(t *testing.T) {
	s := NewScope(2)
	assert.True(t, s.take())
	s.Reduce(5)
	assert.True(t, s.take())
	assert.False(t, s.take())
	assert.Equal(t, 2, s.Taken())

	s = NewScope(0)
	for i := 0; i < 100; i++ {
		require.True(t, s.take())
	}
	s.Stop()
	assert.False(t, s.take())
}
