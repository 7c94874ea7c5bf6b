package main

import (
	"context"
	"fmt"
	"net/http"

	"rental-scraper/config"
	"rental-scraper/geo"
	"rental-scraper/llm"
	"rental-scraper/pipeline"
	"rental-scraper/scraper"
	_ "rental-scraper/scraper/kamernet"
	_ "rental-scraper/scraper/mock"
	_ "rental-scraper/scraper/pararius"
	"rental-scraper/services"
	"rental-scraper/storage"
)

// openStore opens the store for the configured dataset.
func openStore() (*storage.SQLStore, error) {
	if cfg.StoreDriver == "postgres" {
		logger.Info("Connecting to PostgreSQL %s:%s/%s", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
		return storage.OpenPostgres(cfg.DSN())
	}
	logger.Info("Using store %s", cfg.StorePath())
	return storage.OpenSQLite(cfg.StorePath())
}

// newResolver wires the pattern pass and, when a provider is configured,
// the model pass. The returned cleanup closes the model client.
func newResolver(ctx context.Context) (*services.Resolver, func(), error) {
	rates, err := services.DefaultRates()
	if err != nil {
		return nil, nil, err
	}
	patterns := services.NewPatternExtractor(cfg.Country, cfg.ReferenceCurrency)

	client, err := llm.NewClient(ctx, cfg.LLMProvider, cfg.LLMModel, cfg.GeminiAPIKey, cfg.OllamaURL)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		logger.Info("Model extraction disabled, using pattern pass only")
		return services.NewResolver(nil, patterns, rates, cfg.ReferenceCurrency, logger), func() {}, nil
	}

	logger.Info("Model extraction via %s (%s)", cfg.LLMProvider, client.Model())
	extractor := llm.NewExtractor(client, llm.Options{
		MaxInputChars: cfg.LLMMaxInputChars,
		RPS:           cfg.LLMRPS,
		MaxAttempts:   cfg.MaxRetries,
	}, logger)
	cleanup := func() { _ = client.Close() }
	return services.NewResolver(extractor, patterns, rates, cfg.ReferenceCurrency, logger), cleanup, nil
}

// newEnricher wires the geo oracles. offline keeps only text-based
// neighborhood matching.
func newEnricher(offline bool) (*geo.Enricher, error) {
	table, err := geo.LoadNeighborhoods(cfg.Region)
	if err != nil {
		return nil, err
	}
	ec := geo.EnricherConfig{
		Table:       table,
		Destination: geo.Point{Lat: cfg.WorkLat, Lng: cfg.WorkLng},
		Country:     cfg.Country,
		Logger:      logger,
	}
	if offline {
		return geo.NewEnricher(ec), nil
	}

	opts := func(base string, rps float64) geo.ClientOptions {
		return geo.ClientOptions{
			BaseURL:   base,
			UserAgent: cfg.UserAgent,
			RPS:       rps,
			Timeout:   cfg.OracleTimeout,
			Retries:   cfg.MaxRetries,
			HTTP:      &http.Client{},
			Logger:    logger,
		}
	}
	if cfg.NominatimURL != "" {
		ec.Geocoder = geo.NewNominatim(opts(cfg.NominatimURL, cfg.GeocodeRPS))
	}
	if cfg.OSRMURL != "" {
		ec.Router = geo.NewOSRM(opts(cfg.OSRMURL, cfg.RoutingRPS))
	}
	if cfg.TransitURL != "" {
		ec.Transit = geo.NewOTP(opts(cfg.TransitURL, cfg.TransitRPS))
	} else {
		logger.Info("No transit router configured, transit times are estimated")
	}
	return geo.NewEnricher(ec), nil
}

// fetchers hands out the base fetcher per source. JS-only sources share one
// headless browser, started on first use.
type fetchers struct {
	http    *scraper.HTTPFetcher
	browser *scraper.BrowserFetcher
}

func newFetchers() *fetchers {
	return &fetchers{
		http:    scraper.NewHTTPFetcher(cfg.UserAgent, cfg.FetchTimeout),
		browser: scraper.NewBrowserFetcher(cfg.ChromeBin, cfg.UserAgent, 2*cfg.FetchTimeout, logger),
	}
}

func (f *fetchers) For(src config.SourceConfig) scraper.Fetcher {
	if src.NeedsJS {
		return f.browser
	}
	return f.http
}

func (f *fetchers) Close() { f.browser.Close() }

func newOrchestrator(store storage.ListingStore, resolver pipeline.Resolver, enricher pipeline.Enricher,
	failures *storage.FailureReport, f *fetchers) (*pipeline.Orchestrator, error) {
	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	o, err := pipeline.New(pipeline.Config{
		Sources:  sources,
		Fetchers: f.For,
		Scheduler: pipeline.NewScheduler(pipeline.SchedulerConfig{
			DelayMin:    cfg.RequestDelayMin,
			DelayMax:    cfg.RequestDelayMax,
			MaxAttempts: cfg.MaxRetries,
			Timeout:     cfg.FetchTimeout,
			Logger:      logger,
		}),
		Resolver:    resolver,
		Enricher:    enricher,
		Store:       store,
		Failures:    failures,
		Concurrency: cfg.MaxConcurrency,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return o, nil
}
