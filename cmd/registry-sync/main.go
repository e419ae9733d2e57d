// Command registry-sync refreshes the universe registry from one or more
// exchange listing exports. Each --source-file is a CSV export with
// columns (code, name, list_date) and is paired positionally with an
// --exchange flag of the same index. An optional --fund-splits-file
// records fund split dates for downstream adjustment consumers.
// Row-level failures are recorded and never abort the run, mirroring the
// backfill driver's per-symbol failure policy.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"aklineservice/internal/domain"
	"aklineservice/internal/registry"
	"aklineservice/internal/repository/postgres"
	"aklineservice/internal/trading/config"
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
	var sourceFiles stringSliceFlag
	var exchanges stringSliceFlag
	flag.Var(&sourceFiles, "source-file", "path to an exchange listing CSV export (code,name,list_date); repeatable")
	flag.Var(&exchanges, "exchange", "exchange tag (sh|sz|bj) paired positionally with --source-file; repeatable")
	fundSplitsFile := flag.String("fund-splits-file", "", "optional CSV of fund splits (fund_code,split_date) to record")
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

	registryRepo := postgres.NewRegistryRepository(dbConn.GORM)
	ingestor := registry.New(registryRepo)

	var sources []registry.Source
	var rowFailures int
	for i, path := range sourceFiles {
		listings, failures, err := registry.ReadListingCSV(path)
		if err != nil {
			log.Fatal("failed to read source file %s: %v", path, err)
		}
		rowFailures += failures
		sources = append(sources, registry.Source{
			Exchange: registry.Exchange(exchanges[i]),
			Listings: listings,
		})
	}

	n, err := ingestor.IngestListings(ctx, sources)
	if err != nil {
		log.Fatal("registry ingestion failed: %v", err)
	}

	var splitCount int
	if *fundSplitsFile != "" {
		splits, failures, err := readFundSplitCSV(*fundSplitsFile)
		if err != nil {
			log.Fatal("failed to read fund splits file %s: %v", *fundSplitsFile, err)
		}
		rowFailures += failures
		splitRepo := postgres.NewFundSplitRepository(dbConn.SQLX)
		if err := splitRepo.RecordSplits(ctx, splits); err != nil {
			log.Fatal("failed to record fund splits: %v", err)
		}
		splitCount = len(splits)
	}

	fmt.Printf("registry-sync complete: %d entries upserted, %d fund splits recorded, %d malformed rows skipped\n",
		n, splitCount, rowFailures)
	os.Exit(0)
}

// readFundSplitCSV parses a (fund_code, split_date) CSV. Rows with a
// missing column or an unparseable date are skipped and counted.
func readFundSplitCSV(path string) ([]domain.FundSplit, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var splits []domain.FundSplit
	failures := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		if len(record) < 2 {
			failures++
			continue
		}
		d, err := time.Parse("2006-01-02", record[1])
		if err != nil {
			failures++
			continue
		}
		splits = append(splits, domain.FundSplit{FundCode: record[0], SplitDate: d})
	}
	return splits, failures, nil
}
