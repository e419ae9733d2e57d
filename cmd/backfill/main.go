// Command backfill runs the historical backfill driver standalone: it
// refreshes the universe registry from any configured listing exports,
// walks the universe, paces bulk-vendor requests, rotates the session and
// records a per-symbol pass/fail report. Exit code is always 0 regardless
// of per-symbol failures; the summary holds the failure list.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"aklineservice/internal/backfill"
	"aklineservice/internal/domain"
	"aklineservice/internal/registry"
	"aklineservice/internal/repository/postgres"
	"aklineservice/internal/trading/config"
	"aklineservice/internal/vendors/bulk"
	"aklineservice/pkg/database"
	"aklineservice/pkg/log"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string { return fmt.Sprintf("%v", []string(*s)) }
func (s *stringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	startDate := flag.String("start-date", "", "backfill window start (YYYY-MM-DD); defaults to config's backfill.default_start")
	endDate := flag.String("end-date", "", "backfill window end (YYYY-MM-DD); defaults to today")
	delay := flag.Float64("delay", 0.5, "seconds to pace between symbols")
	maxStocks := flag.Int("max-stocks", 0, "cap the number of symbols processed this run (0 = no cap)")
	reloginInterval := flag.Int("relogin-interval", 300, "rotate the bulk vendor session every N symbols")
	startIndex := flag.Int("start-index", 0, "0-based resumable cursor into the universe ordering")
	var sourceFiles stringSliceFlag
	var exchanges stringSliceFlag
	flag.Var(&sourceFiles, "source-file", "exchange listing CSV to re-ingest before the walk (code,name,list_date); repeatable")
	flag.Var(&exchanges, "exchange", "exchange tag (sh|sz|bj) paired positionally with --source-file; repeatable")
	flag.Parse()

	logConfig := log.DefaultConfig()
	log.InitWithConfig(logConfig)

	if len(sourceFiles) != len(exchanges) {
		log.Fatal("--source-file and --exchange must be supplied the same number of times (got %d source files, %d exchanges)",
			len(sourceFiles), len(exchanges))
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration: %v", err)
	}

	ctx := context.Background()
	zapLogger, _ := zap.NewProduction()

	dbCfg := database.Config{
		Host: cfg.Database.Host, Port: cfg.Database.Port, User: cfg.Database.User,
		Password: cfg.Database.Password, Name: cfg.Database.Name, SSLMode: cfg.Database.SSLMode,
		MaxOpenConnections: cfg.Database.MaxOpenConnections, MaxIdleConnections: cfg.Database.MaxIdleConnections,
		MaxConnectionLifeTime: cfg.Database.MaxConnectionLifeTime,
	}
	dbConn, cleanup, err := database.Open(ctx, zapLogger, dbCfg)
	if err != nil {
		log.Fatal("unable to connect to database: %v", err)
	}
	defer cleanup()

	candleRepo := postgres.NewCandleRepository(dbConn.SQLX)
	registryRepo := postgres.NewRegistryRepository(dbConn.GORM)

	bulkSession := bulk.NewHTTPSession(cfg.Bulk.BaseURL, cfg.Bulk.Username, cfg.Bulk.Password, cfg.Bulk.Timeout)
	bulkAdapter := bulk.New(bulkSession, cfg.Bulk.RatePerSecond, cfg.Bulk.Burst)

	defaultStart := cfg.Backfill.DefaultStart
	if *startDate != "" {
		parsed, err := time.Parse("2006-01-02", *startDate)
		if err != nil {
			log.Fatal("invalid --start-date %q: %v", *startDate, err)
		}
		defaultStart = parsed.Format("2006-01-02")
	}
	defaultStartTime, err := parseDefaultStart(defaultStart)
	if err != nil {
		log.Fatal("invalid backfill default start %q: %v", defaultStart, err)
	}

	now := time.Now
	if *endDate != "" {
		end, err := time.Parse("2006-01-02", *endDate)
		if err != nil {
			log.Fatal("invalid --end-date %q: %v", *endDate, err)
		}
		now = func() time.Time { return end }
	}

	driverCfg := backfill.Config{
		Delay:           time.Duration(*delay * float64(time.Second)),
		ReloginInterval: *reloginInterval,
		MaxSymbols:      *maxStocks,
		DefaultStart:    defaultStartTime,
	}

	var refresher backfill.UniverseRefresher
	if len(sourceFiles) > 0 {
		sources := make([]registry.Source, 0, len(sourceFiles))
		for i, path := range sourceFiles {
			listings, failures, err := registry.ReadListingCSV(path)
			if err != nil {
				log.Fatal("failed to read source file %s: %v", path, err)
			}
			if failures > 0 {
				log.Warn("skipped %d malformed rows in %s", failures, path)
			}
			sources = append(sources, registry.Source{
				Exchange: registry.Exchange(exchanges[i]),
				Listings: listings,
			})
		}
		refresher = &listingRefresher{ingestor: registry.New(registryRepo), sources: sources}
	}

	driver := backfill.New(candleRepo, registryRepo, bulkAdapter, refresher, driverCfg, now, time.Sleep)

	report, err := driver.Run(ctx, domain.AllResolutions, *startIndex)
	if err != nil {
		log.Fatal("backfill run aborted: %v", err)
	}

	fmt.Printf("backfill run %s complete: processed=%d succeeded=%d failed=%d logins=%d\n",
		report.RunID, report.Processed, report.Succeeded, len(report.Failed), report.LoginCalls)
	for _, f := range report.Failed {
		fmt.Printf("  FAILED %s: %v\n", f.Symbol, f.Err)
	}

	os.Exit(0)
}

func parseDefaultStart(s string) (time.Time, error) {
	if s == "" {
		return time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", s)
}

// listingRefresher adapts the registry ingestor and its parsed sources to
// backfill.UniverseRefresher, so the driver re-ingests reference data
// before each walk.
type listingRefresher struct {
	ingestor *registry.Ingestor
	sources  []registry.Source
}

func (r *listingRefresher) Refresh(ctx context.Context) (int, error) {
	return r.ingestor.IngestListings(ctx, r.sources)
}
