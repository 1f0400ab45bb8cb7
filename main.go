package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"timeshare-deals/api"
	"timeshare-deals/config"
	"timeshare-deals/fetch"
	"timeshare-deals/models"
	"timeshare-deals/scraper"
	"timeshare-deals/scraper/redweek"
	"timeshare-deals/scraper/smtsn"
	"timeshare-deals/scraper/tug"
	"timeshare-deals/services"
	"timeshare-deals/storage"
	"timeshare-deals/utils"
)

const usage = `usage: timeshare-deals <command> [flags]

commands:
  scrape       scrape one source or all of them (-source tug|redweek|smtsn|all)
  import-fees  replace the reference fee table from a CSV or XLSX file (-file)
  report       print the deal summary and export the filtered deals to CSV
  runs         list recent scrape and import runs
  serve        run the HTTP API`

// app bundles the long-lived collaborators every command shares.
type app struct {
	cfg    *config.Config
	policy *config.Policy
	logger *utils.Logger
	store  storage.Store
	closer []func()
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "scrape":
		err = a.scrape(ctx, args)
	case "import-fees":
		err = a.importFees(ctx, args)
	case "report":
		err = a.report(ctx, args)
	case "runs":
		err = a.runs(ctx, args)
	case "serve":
		err = a.serve(ctx, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		a.close()
		os.Exit(2)
	}
	if err != nil {
		a.logger.Error("%s failed: %v", cmd, err)
		a.close()
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := utils.NewLoggerWithOptions(utils.LogOptions{
		Level:      utils.ParseLevel(cfg.LogLevel),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	a := &app{cfg: cfg, logger: logger}
	a.closer = append(a.closer, func() { _ = logger.Close() })

	if a.policy, err = config.LoadPolicy(cfg.PolicyFile); err != nil {
		a.close()
		return nil, err
	}

	switch cfg.DBDriver {
	case "postgres":
		a.store, err = storage.OpenPostgres(ctx, cfg.DSN(), logger)
	default:
		a.store, err = storage.OpenSQLite(ctx, cfg.SQLitePath)
	}
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}
	a.closer = append(a.closer, func() { _ = a.store.Close() })

	logger.Info("=== Timeshare deal finder (%s store) ===", cfg.DBDriver)
	return a, nil
}

// close runs cleanups in reverse order; calling it twice is harmless.
func (a *app) close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
	a.closer = nil
}

func (a *app) newRunner() *services.Runner {
	reg := scraper.NewRegistry()
	reg.Register(models.SourceTUG, tug.New)
	reg.Register(models.SourceRedWeek, redweek.New)
	reg.Register(models.SourceSMTSN, smtsn.New)

	var shared fetch.PageCache
	if a.cfg.RedisAddr != "" {
		rc := fetch.NewRedisCache(a.cfg.RedisAddr)
		a.closer = append(a.closer, func() { _ = rc.Close() })
		shared = rc
	}

	// Each run gets its own session: a fresh cookie jar or browser profile
	// and, without Redis, its own page cache. The runner closes it.
	factory := func(src models.Source, namespace string) scraper.PageFetcher {
		cache := shared
		if cache == nil && a.cfg.UseCache {
			cache = fetch.NewMemoryCache()
		}

		var transport fetch.Transport = fetch.NewHTTPTransport(a.cfg.RequestTimeout)
		if a.cfg.UseBrowser {
			transport = fetch.NewBrowserTransport(a.cfg.ChromeBin, a.cfg.RequestTimeout)
		}
		return fetch.New(transport, fetch.Options{
			Source:            string(src),
			DelayMin:          a.cfg.RequestDelayMin,
			DelayMax:          a.cfg.RequestDelayMax,
			MaxRetries:        a.cfg.MaxRetries,
			RequestsPerMinute: a.cfg.RequestsPerMinute,
			Cache:             cache,
			CacheTTL:          a.cfg.CacheTTL,
			Namespace:         namespace,
		}, a.logger)
	}

	return services.NewRunner(a.store, reg, services.NewNormalizer(a.policy, a.logger), factory,
		services.RunnerConfig{
			Keywords:     a.policy.ProgramKeywords,
			FetchDetails: a.cfg.FetchDetails,
		}, a.logger)
}

func (a *app) scrape(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	source := fs.String("source", "all", "tug, redweek, smtsn or all")
	priceMin := fs.Float64("price-min", 0, "minimum asking price (0 = no bound)")
	priceMax := fs.Float64("price-max", 0, "maximum asking price (0 = no bound)")
	_ = fs.Parse(args)

	filters := scraper.Filters{}
	if *priceMin > 0 {
		filters.PriceMin = priceMin
	}
	if *priceMax > 0 {
		filters.PriceMax = priceMax
	}

	runner := a.newRunner()
	if strings.EqualFold(*source, "all") {
		results, err := runner.RunAll(ctx, filters)
		for _, r := range results {
			printRun(r.Run)
		}
		return err
	}

	src, ok := models.ParseSource(*source)
	if !ok {
		return fmt.Errorf("unknown source %q", *source)
	}
	res, err := runner.Run(ctx, src, filters)
	if res != nil {
		printRun(res.Run)
	}
	return err
}

func (a *app) importFees(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-fees", flag.ExitOnError)
	path := fs.String("file", "", "CSV or XLSX file with resort_name and annual_mf columns")
	_ = fs.Parse(args)
	if *path == "" {
		return errors.New("-file is required")
	}

	format, err := services.FormatFromFilename(*path)
	if err != nil {
		return err
	}
	f, err := os.Open(*path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := services.NewImporter(a.store, a.policy, a.logger).Import(ctx, f, format)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d reference fees (%d rows skipped)\n", res.Imported, res.Skipped)
	return nil
}

func (a *app) report(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	sortKey := fs.String("sort", string(services.SortMFPerPointAsc), "sort key")
	season := fs.String("season", "", "comma separated seasons (empty = all)")
	usageTier := fs.String("usage", "all", "all, annual or annual_eoy")
	location := fs.String("location", "", "comma separated locations (empty = all)")
	maxMF := fs.Float64("max-mf-per-point", 0, "maximum fee per point (0 = no bound)")
	top := fs.Int("top", 10, "number of deals to print")
	out := fs.String("csv", a.cfg.ExportCSVPath, "CSV export path (empty = skip)")
	_ = fs.Parse(args)

	key, err := services.ParseSortKey(*sortKey)
	if err != nil {
		return err
	}
	tier, err := services.ParseUsageTier(*usageTier)
	if err != nil {
		return err
	}
	filter := services.DealFilter{
		Seasons:   splitFlag(*season),
		UsageTier: tier,
		Locations: splitFlag(*location),
	}
	if *maxMF > 0 {
		filter.MaxMFPerPoint = maxMF
	}

	svc := services.NewDealService(a.store, a.policy, a.logger)
	deals, err := svc.Deals(ctx, filter, key)
	if err != nil {
		return err
	}
	shown := deals
	if *top >= 0 && *top < len(shown) {
		shown = shown[:*top]
	}
	svc.Insights().Print(svc.Insights().Generate(deals), shown)

	if *out == "" {
		return nil
	}
	w, err := storage.NewCSVWriter(*out)
	if err != nil {
		return err
	}
	if err := w.WriteDeals(deals); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	a.logger.Info("Exported %d deals to %s", len(deals), *out)
	return nil
}

func (a *app) runs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of runs to list")
	_ = fs.Parse(args)

	runs, err := a.store.RecentRuns(ctx, *limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		printRun(r)
	}
	return nil
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", a.cfg.HTTPAddr, "listen address")
	_ = fs.Parse(args)

	srv := api.NewServer(ctx,
		services.NewDealService(a.store, a.policy, a.logger),
		a.store,
		a.newRunner(),
		services.NewImporter(a.store, a.policy, a.logger),
		a.logger)

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(os.Stdout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("[api] Listening on %s", *addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		a.logger.Info("[api] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("[api] Shutdown: %v", err)
		}
	}
	// background runs see the cancelled context and finalize their run logs
	srv.Wait()
	return nil
}

func printRun(r *models.ScrapeRun) {
	if r == nil {
		return
	}
	line := fmt.Sprintf("#%-4d %-8s %-9s found=%-4d new=%-4d updated=%-4d started=%s",
		r.ID, r.Source, r.Status, r.Found, r.New, r.Updated, r.StartedAt.Format(time.RFC3339))
	if r.ErrorMessage != "" {
		line += "  error: " + r.ErrorMessage
	}
	fmt.Println(line)
}

func splitFlag(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
