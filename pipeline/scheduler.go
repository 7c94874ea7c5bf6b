package pipeline

import (
	"context"
	"time"

	"rental-scraper/scraper"
	"rental-scraper/utils"
)

// Scheduler paces and retries the fetches adapters issue. Each source keeps
// its own next-allowed-time clock; sources never wait on each other.
type Scheduler struct {
	throttle *utils.Throttle
	retry    utils.RetryConfig
	timeout  time.Duration
}

// SchedulerConfig controls request pacing.
type SchedulerConfig struct {
	DelayMin    time.Duration
	DelayMax    time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	Timeout     time.Duration
	Logger      *utils.Logger
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	return &Scheduler{
		throttle: utils.NewThrottle(cfg.DelayMin, cfg.DelayMax),
		retry: utils.RetryConfig{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseBackoff,
			MaxDelay:    30 * time.Second,
			Logger:      cfg.Logger.With("fetch"),
		},
		timeout: cfg.Timeout,
	}
}

// For wraps inner so that every fetch for source waits its turn and is
// retried on transient failure.
func (s *Scheduler) For(source string, inner scraper.Fetcher) scraper.Fetcher {
	return &scheduledFetcher{s: s, key: source, inner: inner}
}

type scheduledFetcher struct {
	s     *Scheduler
	key   string
	inner scraper.Fetcher
}

func (f *scheduledFetcher) Fetch(ctx context.Context, url string) (*scraper.Page, error) {
	var page *scraper.Page
	err := f.s.retry.Do(ctx, "fetch "+url, func(ctx context.Context) error {
		if err := f.s.throttle.Wait(ctx, f.key); err != nil {
			return err
		}
		if f.s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.s.timeout)
			defer cancel()
		}
		p, err := f.inner.Fetch(ctx, url)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	return page, err
}
