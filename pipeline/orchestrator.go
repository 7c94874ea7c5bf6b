// Package pipeline drives configured sources through fetching, extraction,
// enrichment and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rental-scraper/config"
	"rental-scraper/models"
	"rental-scraper/scraper"
	"rental-scraper/services"
	"rental-scraper/storage"
	"rental-scraper/utils"
)

var (
	ErrUnknownSource = config.ErrUnknownSource
	ErrInvalidFilter = models.ErrInvalidFilter
)

// Failure categories recorded in reports.
const (
	FailFetch      = "fetch_failed"
	FailExtraction = "extraction_failed"
	FailStore      = "store_failed"
	FailAborted    = "aborted"
)

// Resolver turns one raw candidate into a listing.
type Resolver interface {
	Resolve(ctx context.Context, c *models.RawCandidate) (*models.Listing, error)
}

// Enricher fills enrichment fields in place. Errors are informational; the
// listing is persisted regardless.
type Enricher interface {
	Enrich(ctx context.Context, l *models.Listing) error
}

// FetcherFunc picks the base fetcher for a source, before scheduling.
type FetcherFunc func(src config.SourceConfig) scraper.Fetcher

// Observer receives progress events. Calls are serialized.
type Observer func(models.ProgressEvent)

// Config wires an Orchestrator. Enricher and Failures may be nil.
type Config struct {
	Sources     []config.SourceConfig
	Fetchers    FetcherFunc
	Scheduler   *Scheduler
	Resolver    Resolver
	Enricher    Enricher
	Store       storage.ListingStore
	Failures    *storage.FailureReport
	Concurrency int
	Logger      *utils.Logger
}

// RunOptions scope one run. MaxItems caps listings per source; Scope caps
// and stops the run as a whole, letting in-flight listings finish. Cancelling
// the run context aborts in-flight listings too.
type RunOptions struct {
	Filter   models.Filter
	MaxItems int
	Observer Observer
	Scope    *Scope
}

type Orchestrator struct {
	cfg    Config
	logger *utils.Logger
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Resolver == nil || cfg.Store == nil || cfg.Scheduler == nil || cfg.Fetchers == nil {
		return nil, errors.New("pipeline: resolver, store, scheduler and fetchers are required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{cfg: cfg, logger: cfg.Logger.With("pipeline")}, nil
}

// Run scrapes the named sources, or every enabled one when names is empty.
// Only misconfiguration is returned as an error, before any work starts;
// per-listing failures end up in the report.
func (o *Orchestrator) Run(ctx context.Context, names []string, opts RunOptions) (*Report, error) {
	if err := opts.Filter.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if opts.MaxItems < 0 {
		return nil, fmt.Errorf("pipeline: negative max items %d", opts.MaxItems)
	}
	sources, err := config.SelectSources(o.cfg.Sources, names)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	adapters := make([]scraper.Adapter, 0, len(sources))
	for _, src := range sources {
		if opts.Filter.PriceMin != nil {
			src.MinPrice = int(*opts.Filter.PriceMin)
		}
		if opts.Filter.PriceMax != nil {
			src.MaxPrice = int(*opts.Filter.PriceMax)
		}
		a, err := scraper.New(src, o.cfg.Scheduler.For(src.Name, o.cfg.Fetchers(src)))
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		adapters = append(adapters, a)
	}

	if opts.Scope == nil {
		opts.Scope = NewScope(0)
	}
	r := &runner{
		o:     o,
		opts:  opts,
		runID: uuid.NewString(),
	}
	report := &Report{RunID: r.runID, Started: time.Now()}
	for _, a := range adapters {
		report.Sources = append(report.Sources, newSourceReport(a.Name()))
	}

	o.logger.Info("Run %s starting: %d source(s)", r.runID, len(adapters))
	pool := utils.NewWorkerPool(o.cfg.Concurrency)
	for i, a := range adapters {
		rep := report.Sources[i]
		if !pool.Submit(ctx, func() { r.runSource(ctx, a, rep) }) {
			rep.Error = ctx.Err().Error()
		}
	}
	pool.Wait()
	report.Finished = time.Now()

	t := report.Totals()
	o.logger.Info("Run %s done in %s: seen %d, persisted %d (%d new), filtered %d, failed %d",
		r.runID, report.Finished.Sub(report.Started).Round(time.Millisecond),
		t.Seen, t.Persisted, t.New, t.Filtered, t.Failed)
	return report, nil
}

type runner struct {
	o     *Orchestrator
	opts  RunOptions
	runID string

	obsMu sync.Mutex
}

// runSource processes one source's listings in pagination order.
func (r *runner) runSource(ctx context.Context, a scraper.Adapter, rep *SourceReport) {
	log := r.o.logger.With(a.Name())
	r.emit(rep, "", models.StagePending, "")

	n := 0
	for h, err := range a.ListPages(ctx) {
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("Pagination stopped: %v", err)
			}
			rep.update(func(rep *SourceReport) { rep.Error = err.Error() })
			break
		}
		if ctx.Err() != nil {
			break
		}
		if r.opts.MaxItems > 0 && n >= r.opts.MaxItems {
			break
		}
		if !r.opts.Scope.take() {
			break
		}
		n++
		rep.update(func(rep *SourceReport) { rep.Seen++ })

		r.process(ctx, a, h, rep, log)
	}
	r.emit(rep, "", models.StageDone, "")
	log.Info("Source finished: seen %d, persisted %d, filtered %d, failed %d",
		rep.Seen, rep.Persisted, rep.Filtered, rep.Failed)
}

func (r *runner) process(ctx context.Context, a scraper.Adapter, h scraper.PageHandle, rep *SourceReport, log *utils.Logger) {
	failures := r.o.cfg.Failures

	r.emit(rep, h.URL, models.StageFetching, "")
	c, err := a.ExtractCandidates(ctx, h)
	if err != nil {
		r.fail(ctx, rep, h.URL, FailFetch, err, log)
		return
	}

	r.emit(rep, h.URL, models.StageExtracting, "")
	l, err := r.o.cfg.Resolver.Resolve(ctx, c)
	if err != nil {
		r.fail(ctx, rep, h.URL, FailExtraction, err, log)
		return
	}

	if ok, why := preFilter(r.opts.Filter, l); !ok {
		r.filtered(rep, l.URL, why, log)
		return
	}

	if r.o.cfg.Enricher != nil {
		r.emit(rep, l.URL, models.StageEnriching, "")
		r.reuseCoordinates(ctx, l)
		if err := r.o.cfg.Enricher.Enrich(ctx, l); err != nil {
			log.Warn("Enrichment incomplete for %s: %v", l.URL, err)
		}
		// A half-enriched record from an aborted run is not stored.
		if err := ctx.Err(); err != nil {
			r.fail(ctx, rep, l.URL, FailAborted, err, log)
			return
		}
		if ok, why := postFilter(r.opts.Filter, l); !ok {
			r.filtered(rep, l.URL, why, log)
			return
		}
	}

	res, err := r.o.cfg.Store.Upsert(ctx, l)
	if err != nil {
		r.fail(ctx, rep, l.URL, FailStore, err, log)
		return
	}
	rep.update(func(rep *SourceReport) {
		rep.Persisted++
		if res.Inserted {
			rep.New++
		} else {
			rep.Updated++
		}
	})
	if failures != nil {
		failures.Inspect(l)
	}
	r.emit(rep, l.URL, models.StagePersisted, "")
}

// reuseCoordinates copies stored coordinates when the address is unchanged,
// sparing a geocoder call on re-seen listings.
func (r *runner) reuseCoordinates(ctx context.Context, l *models.Listing) {
	prev, err := r.o.cfg.Store.Get(ctx, l.Source, l.URL)
	if err != nil || prev == nil || !prev.HasCoordinates() {
		return
	}
	if prev.Address == l.Address && prev.PostalCode == l.PostalCode {
		l.Latitude, l.Longitude = prev.Latitude, prev.Longitude
	}
}

// fail records a dropped listing. Failures caused by an aborted run are
// reported as such rather than as fetch or extraction errors.
func (r *runner) fail(ctx context.Context, rep *SourceReport, url, category string, err error, log *utils.Logger) {
	if ctx.Err() != nil {
		category = FailAborted
	}
	log.Warn("Listing dropped (%s) %s: %v", category, url, err)
	rep.fail(category)
	if r.o.cfg.Failures != nil {
		r.o.cfg.Failures.Add(category, storage.FailureEntry{Source: rep.Source, URL: url, Detail: err.Error()})
	}
	r.emit(rep, url, models.StageFailed, category)
}

func (r *runner) filtered(rep *SourceReport, url, why string, log *utils.Logger) {
	log.Debug("Filtered %s: %s", url, why)
	rep.update(func(rep *SourceReport) { rep.Filtered++ })
	r.emit(rep, url, models.StageFiltered, why)
}

func (r *runner) emit(rep *SourceReport, url string, stage models.Stage, reason string) {
	if r.opts.Observer == nil {
		return
	}
	ev := models.ProgressEvent{
		RunID:  r.runID,
		Source: rep.Source,
		URL:    url,
		Stage:  stage,
		Reason: reason,
		Time:   time.Now(),
	}
	rep.update(func(rep *SourceReport) {
		ev.Seen, ev.Stored, ev.Failed = rep.Seen, rep.Persisted, rep.Failed
	})

	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.opts.Observer(ev)
}

var _ Resolver = (*services.Resolver)(nil)
