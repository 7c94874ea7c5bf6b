package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rental-scraper/api"
	"rental-scraper/models"
	"rental-scraper/pipeline"
	"rental-scraper/services"
	"rental-scraper/storage"
)

// filterFlags are the query predicates shared by scrape, query and export.
type filterFlags struct {
	priceMin, priceMax, surfaceMin, scoreMin float64
	roomsMin                                 int
	source                                   string
	apartmentsOnly                           bool
	limit                                    int
}

func (f *filterFlags) bind(cmd *cobra.Command, withSource bool) {
	fl := cmd.Flags()
	fl.Float64Var(&f.priceMin, "price-min", 0, "Minimum monthly price")
	fl.Float64Var(&f.priceMax, "price-max", 0, "Maximum monthly price")
	fl.Float64Var(&f.surfaceMin, "surface-min", 0, "Minimum surface in m²")
	fl.IntVar(&f.roomsMin, "rooms-min", 0, "Minimum number of rooms")
	fl.Float64Var(&f.scoreMin, "score-min", 0, "Minimum neighborhood score (1-10)")
	fl.BoolVar(&f.apartmentsOnly, "apartments-only", false, "Skip rooms and shared housing")
	if withSource {
		fl.StringVar(&f.source, "source", "", "Only listings from this source")
		fl.IntVar(&f.limit, "limit", 0, "Maximum number of results (0 = all)")
	}
}

// filter builds a models.Filter from the flags the user actually set.
func (f *filterFlags) filter(cmd *cobra.Command) models.Filter {
	changed := cmd.Flags().Changed
	var out models.Filter
	if changed("price-min") {
		out.PriceMin = models.Float(f.priceMin)
	}
	if changed("price-max") {
		out.PriceMax = models.Float(f.priceMax)
	}
	if changed("surface-min") {
		out.SurfaceMin = models.Float(f.surfaceMin)
	}
	if changed("rooms-min") {
		out.RoomsMin = models.Int(f.roomsMin)
	}
	if changed("score-min") {
		out.ScoreMin = models.Float(f.scoreMin)
	}
	out.Source = f.source
	out.ApartmentsOnly = f.apartmentsOnly
	out.Limit = f.limit
	return out
}

var (
	scrapeFilters  filterFlags
	scrapeSources  []string
	scrapeMaxItems int
	scrapeDemo     bool
	scrapeCSV      bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the configured sources into the store",
	RunE:  runScrape,
}

var (
	queryFilters filterFlags
	exportOut    string
	serveAddr    string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "List stored listings matching the filters",
	RunE:  runQuery,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print insights over the stored listings",
	RunE:  runStats,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored listings matching the filters to CSV",
	RunE:  runExport,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the store over HTTP (GET /listings, GET /stats)",
	RunE:  runServe,
}

func init() {
	scrapeFilters.bind(scrapeCmd, false)
	scrapeCmd.Flags().StringSliceVar(&scrapeSources, "sources", nil, "Sources to scrape (default: all enabled)")
	scrapeCmd.Flags().IntVar(&scrapeMaxItems, "max-items", 0, "Maximum listings per source (default MAX_ITEMS)")
	scrapeCmd.Flags().BoolVar(&scrapeDemo, "demo", false, "Scrape the offline demo source without network oracles")
	scrapeCmd.Flags().BoolVar(&scrapeCSV, "csv", false, "Export the whole store to CSV_OUTPUT_PATH afterwards")

	queryFilters.bind(queryCmd, true)
	queryFilters.bind(exportCmd, true)
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default CSV_OUTPUT_PATH)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default API_ADDR)")

	rootCmd.AddCommand(scrapeCmd, queryCmd, statsCmd, exportCmd, serveCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	names := scrapeSources
	if scrapeDemo {
		names = []string{"demo"}
	}
	maxItems := scrapeMaxItems
	if !cmd.Flags().Changed("max-items") {
		maxItems = cfg.MaxItems
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver, closeModel, err := newResolver(ctx)
	if err != nil {
		return err
	}
	defer closeModel()

	enricher, err := newEnricher(scrapeDemo)
	if err != nil {
		return err
	}
	f := newFetchers()
	defer f.Close()

	failures := storage.NewFailureReport()
	orch, err := newOrchestrator(store, resolver, enricher, failures, f)
	if err != nil {
		return err
	}

	// First interrupt stops pagination and lets in-flight listings finish;
	// a second one aborts.
	scope := pipeline.NewScope(0)
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt)
	defer func() {
		signal.Stop(sig)
		close(sig)
	}()
	go func() {
		if _, ok := <-sig; !ok {
			return
		}
		logger.Warn("Interrupted: finishing in-flight listings (interrupt again to abort)")
		scope.Stop()
		if _, ok := <-sig; ok {
			cancel()
		}
	}()

	start := time.Now()
	report, err := orch.Run(ctx, names, pipeline.RunOptions{
		Filter:   scrapeFilters.filter(cmd),
		MaxItems: maxItems,
		Scope:    scope,
		Observer: func(ev models.ProgressEvent) {
			if ev.URL != "" {
				logger.Debug("[%s] %s %s %s", ev.Source, ev.Stage, ev.URL, ev.Reason)
			}
		},
	})
	if err != nil {
		return err
	}
	printReport(report, time.Since(start))

	if ok, err := failures.WriteYAML(cfg.FailedOutputPath, cfg.Dataset); err != nil {
		logger.Warn("Failure report not written: %v", err)
	} else if ok {
		logger.Info("Listings needing review written to %s", cfg.FailedOutputPath)
	}

	if scrapeCSV {
		return exportTo(cmd.Context(), store, models.Filter{}, cfg.CSVOutputPath)
	}
	return nil
}

func printReport(r *pipeline.Report, took time.Duration) {
	fmt.Printf("\nRun %s (%s)\n", r.RunID, took.Round(time.Second))
	fmt.Printf("  %-12s %6s %9s %5s %8s %8s %6s\n", "source", "seen", "persisted", "new", "updated", "filtered", "failed")
	rows := append(append([]*pipeline.SourceReport{}, r.Sources...), r.Totals())
	for _, s := range rows {
		fmt.Printf("  %-12s %6d %9d %5d %8d %8d %6d\n", s.Source, s.Seen, s.Persisted, s.New, s.Updated, s.Filtered, s.Failed)
		if s.Error != "" {
			fmt.Printf("  %-12s stopped early: %s\n", "", s.Error)
		}
	}
	for _, cat := range r.FailureCategories() {
		fmt.Printf("  %s: %d\n", cat, r.Totals().FailedBy[cat])
	}
	fmt.Println()
}

func runQuery(cmd *cobra.Command, _ []string) error {
	f := queryFilters.filter(cmd)
	if err := f.Validate(); err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n := 0
	for l, err := range store.Query(cmd.Context(), f) {
		if err != nil {
			return err
		}
		n++
		fmt.Printf("%-10s %8s %6s %5s %-6s %-16s %s\n",
			l.Source, money(l.Price), area(l.Surface), count(l.Rooms), score(l.Neighborhood),
			truncate(l.Title, 16), l.URL)
	}
	logger.Info("%d listing(s)", n)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	var all []*models.Listing
	for l, err := range store.Query(cmd.Context(), models.Filter{}) {
		if err != nil {
			return err
		}
		all = append(all, l)
	}
	insights := services.NewInsightService(logger)
	insights.Print(os.Stdout, insights.Generate(all), stats)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	f := queryFilters.filter(cmd)
	if err := f.Validate(); err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	out := exportOut
	if out == "" {
		out = cfg.CSVOutputPath
	}
	return exportTo(cmd.Context(), store, f, out)
}

func exportTo(ctx context.Context, store storage.ListingStore, f models.Filter, path string) error {
	w, err := storage.NewCSVWriter(path)
	if err != nil {
		return err
	}
	n, err := w.Export(store.Query(ctx, f))
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	logger.Info("Exported %d listing(s) to %s", n, path)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.APIAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(store, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	logger.Info("Serving dataset %q on %s", cfg.Dataset, addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func money(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("€%.0f", *v)
}

func area(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0fm²", *v)
}

func count(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func score(n *models.NeighborhoodScore) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", n.Overall)
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max-1]) + "…"
}
