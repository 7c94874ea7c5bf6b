package pipeline

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-scraper/config"
	"rental-scraper/models"
	"rental-scraper/scraper"
	_ "rental-scraper/scraper/mock"
	"rental-scraper/services"
	"rental-scraper/storage"
	"rental-scraper/utils"
)

var testSources = []config.SourceConfig{
	{Name: "demo", Kind: "mock", BaseURL: "https://demo.rentals.local", City: "amsterdam", Currency: "EUR", MaxPages: 2, PerPage: 3},
	{Name: "flaky", Kind: "flaky-test", BaseURL: "https://flaky.local", Currency: "EUR"},
}

// flakyAdapter yields three listings; the second cannot be fetched and the
// third has no usable content.
type flakyAdapter struct{}

func (flakyAdapter) Name() string { return "flaky" }

func (flakyAdapter) ListPages(context.Context) iter.Seq2[scraper.PageHandle, error] {
	return func(yield func(scraper.PageHandle, error) bool) {
		for _, u := range []string{"ok", "gone", "empty"} {
			if !yield(scraper.PageHandle{URL: "https://flaky.local/" + u, SearchPage: 1}, nil) {
				return
			}
		}
	}
}

func (flakyAdapter) ExtractCandidates(_ context.Context, h scraper.PageHandle) (*models.RawCandidate, error) {
	switch {
	case strings.HasSuffix(h.URL, "/gone"):
		return nil, &scraper.FetchError{URL: h.URL, StatusCode: 404}
	case strings.HasSuffix(h.URL, "/empty"):
		return &models.RawCandidate{Source: "flaky", URL: h.URL, Pass: models.PassPattern}, nil
	}
	return &models.RawCandidate{
		Source:    "flaky",
		URL:       h.URL,
		Pass:      models.PassPattern,
		Title:     "Studio Overtoom",
		PriceText: "€ 1.200 per maand",
		Currency:  "EUR",
	}, nil
}

func init() {
	scraper.Register("flaky-test", func(config.SourceConfig, scraper.Fetcher) (scraper.Adapter, error) {
		return flakyAdapter{}, nil
	})
}

type fakeEnricher struct {
	mu       sync.Mutex
	calls    int
	fail     bool
	onEnrich func()
}

func (f *fakeEnricher) Enrich(_ context.Context, l *models.Listing) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.onEnrich != nil {
		f.onEnrich()
	}
	if f.fail {
		return errors.New("geocode: not found")
	}
	if !l.HasCoordinates() {
		l.Latitude, l.Longitude = models.Float(52.37), models.Float(4.89)
	}
	l.Neighborhood = &models.NeighborhoodScore{Name: "Centrum", Overall: 7.1}
	return nil
}

type harness struct {
	orch     *Orchestrator
	store    *storage.SQLStore
	enricher *fakeEnricher
	failures *storage.FailureReport
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rates, err := services.DefaultRates()
	require.NoError(t, err)
	logger := utils.NewNopLogger()
	resolver := services.NewResolver(nil, services.NewPatternExtractor("nl", "EUR"), rates, "EUR", logger)

	h := &harness{store: store, enricher: &fakeEnricher{}, failures: storage.NewFailureReport()}
	h.orch, err = New(Config{
		Sources:     testSources,
		Fetchers:    func(config.SourceConfig) scraper.Fetcher { return nil },
		Scheduler:   NewScheduler(SchedulerConfig{MaxAttempts: 1, Logger: logger}),
		Resolver:    resolver,
		Enricher:    h.enricher,
		Store:       store,
		Failures:    h.failures,
		Concurrency: 2,
		Logger:      logger,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) all(t *testing.T) []*models.Listing {
	t.Helper()
	var out []*models.Listing
	for l, err := range h.store.Query(context.Background(), models.Filter{}) {
		require.NoError(t, err)
		out = append(out, l)
	}
	return out
}

func TestRunTwiceDeduplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.orch.Run(ctx, []string{"demo"}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 6, first.Source("demo").New)
	before := h.all(t)
	require.Len(t, before, 6)

	second, err := h.orch.Run(ctx, []string{"demo"}, RunOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 0, second.Source("demo").New)
	assert.Equal(t, 6, second.Source("demo").Updated)

	after := h.all(t)
	require.Len(t, after, 6)
	for i := range after {
		assert.Equal(t, before[i].URL, after[i].URL)
		assert.Equal(t, before[i].FirstSeen, after[i].FirstSeen)
		assert.True(t, after[i].LastSeen.After(before[i].LastSeen))
	}

	stats, err := h.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Total)
}

func TestResolvedFieldsPersisted(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Run(context.Background(), []string{"demo"}, RunOptions{})
	require.NoError(t, err)

	l, err := h.store.Get(context.Background(), "demo", "https://demo.rentals.local/listing/1")
	require.NoError(t, err)
	require.NotNil(t, l.Price)
	assert.Equal(t, 1037.0, *l.Price)
	require.NotNil(t, l.Surface)
	assert.Equal(t, 37.0, *l.Surface)
	assert.Equal(t, "1053 ED", l.PostalCode)
	assert.Equal(t, "Oud-West", l.District)
	assert.True(t, l.HasCoordinates())
	require.NotNil(t, l.Neighborhood)
	assert.Equal(t, "Centrum", l.Neighborhood.Name)
}

func TestGeocodeFailureStillPersists(t *testing.T) {
	h := newHarness(t)
	h.enricher.fail = true

	rep, err := h.orch.Run(context.Background(), []string{"demo"}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Source("demo").Persisted)
	assert.Zero(t, rep.Source("demo").Failed)

	for _, l := range h.all(t) {
		assert.False(t, l.HasCoordinates())
		assert.Nil(t, l.Commute)
		assert.Nil(t, l.Neighborhood)
	}
	assert.Equal(t, 6, h.failures.Counts()["missing_coordinates"])
}

func TestPerListingFailuresAreReported(t *testing.T) {
	h := newHarness(t)

	rep, err := h.orch.Run(context.Background(), []string{"flaky"}, RunOptions{})
	require.NoError(t, err)

	src := rep.Source("flaky")
	assert.Equal(t, 3, src.Seen)
	assert.Equal(t, 1, src.Persisted)
	assert.Equal(t, 2, src.Failed)
	assert.Equal(t, map[string]int{FailFetch: 1, FailExtraction: 1}, src.FailedBy)
	assert.Equal(t, []string{FailExtraction, FailFetch}, rep.FailureCategories())
}

func TestMisconfigurationIsFatal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orch.Run(ctx, []string{"nowhere"}, RunOptions{})
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = h.orch.Run(ctx, nil, RunOptions{Filter: models.Filter{
		PriceMin: models.Float(2000),
		PriceMax: models.Float(1000),
	}})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	assert.Empty(t, h.all(t))
}

func TestPreFilters(t *testing.T) {
	h := newHarness(t)

	rep, err := h.orch.Run(context.Background(), []string{"demo"}, RunOptions{Filter: models.Filter{
		PriceMax:       models.Float(1200),
		ApartmentsOnly: true,
	}})
	require.NoError(t, err)

	src := rep.Source("demo")
	assert.Equal(t, 3, src.Persisted)
	assert.Equal(t, 3, src.Filtered)
	assert.Equal(t, 3, h.enricher.calls)
	for _, l := range h.all(t) {
		assert.LessOrEqual(t, *l.Price, 1200.0)
		assert.Equal(t, models.CategoryApartment, l.Category)
	}
}

func TestMaxItemsAndScope(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t)
	rep, err := h.orch.Run(ctx, []string{"demo"}, RunOptions{MaxItems: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Source("demo").Seen)

	scope := NewScope(0)
	scope.Reduce(4)
	scope.Reduce(10)
	rep, err = newHarness(t).orch.Run(ctx, []string{"demo", "flaky"}, RunOptions{Scope: scope})
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Totals().Seen)
	assert.Equal(t, 4, scope.Taken())

	stopped := NewScope(0)
	stopped.Stop()
	rep, err = newHarness(t).orch.Run(ctx, []string{"demo"}, RunOptions{Scope: stopped})
	require.NoError(t, err)
	assert.Zero(t, rep.Totals().Seen)
}

func TestCancelAbortsInFlightListing(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.enricher.onEnrich = cancel

	rep, err := h.orch.Run(ctx, []string{"demo"}, RunOptions{})
	require.NoError(t, err)

	src := rep.Source("demo")
	assert.Equal(t, 1, src.Seen)
	assert.Zero(t, src.Persisted)
	assert.Equal(t, map[string]int{FailAborted: 1}, src.FailedBy)
	assert.Empty(t, h.all(t))
}

func TestObserverEvents(t *testing.T) {
	h := newHarness(t)

	var events []models.ProgressEvent
	rep, err := h.orch.Run(context.Background(), []string{"demo"}, RunOptions{
		Observer: func(ev models.ProgressEvent) { events = append(events, ev) },
	})
	require.NoError(t, err)

	stages := map[models.Stage]int{}
	for _, ev := range events {
		assert.Equal(t, rep.RunID, ev.RunID)
		stages[ev.Stage]++
	}
	assert.Equal(t, 1, stages[models.StagePending])
	assert.Equal(t, 6, stages[models.StagePersisted])
	assert.Equal(t, 1, stages[models.StageDone])

	last := events[len(events)-1]
	assert.Equal(t, models.StageDone, last.Stage)
	assert.Equal(t, 6, last.Stored)
}
