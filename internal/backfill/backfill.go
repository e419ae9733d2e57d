// Package backfill implements the bulk historical backfill driver: it
// walks a symbol universe, paces vendor requests, rotates the bulk vendor
// session on a fixed interval, and records per-symbol outcomes without
// aborting the batch on a single failure. The walk is sequential on
// purpose: session rotation counts processed symbols, which requires a
// fixed processing order.
package backfill

import (
	"context"
	"time"

	"github.com/google/uuid"

	"aklineservice/internal/domain"
	"aklineservice/internal/store"
	"aklineservice/internal/vendors/bulk"
	"aklineservice/pkg/log"
)

// Registry is the read-only registry surface the driver needs to build
// its symbol universe and widen each symbol's start date to its
// list_date.
type Registry interface {
	All(ctx context.Context) ([]domain.UniverseEntry, error)
}

// Vendor is the bulk-history adapter surface the driver drives, including
// the full session lifecycle. Relogin must establish a fresh session even
// when one is already live; the driver uses it for periodic rotation.
type Vendor interface {
	Login(ctx context.Context) error
	Relogin(ctx context.Context) error
	Logout(ctx context.Context) error
	Fetch(ctx context.Context, symbol domain.Symbol, res domain.Resolution, begin, end time.Time, adj bulk.Adjustment) ([]bulk.Row, error)
}

// UniverseRefresher re-ingests the registry's reference data. The driver
// runs it once per Run, before loading the universe, so list_date data is
// fresh when the walk begins. Returns the number of entries written.
type UniverseRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// Failure records one symbol's outcome when any resolution fails.
type Failure struct {
	Symbol domain.Symbol
	Err    error
}

// Report summarises one Run. RunID correlates this run's log lines.
type Report struct {
	RunID      string
	Processed  int
	Succeeded  int
	Failed     []Failure
	LoginCalls int
}

// Driver walks the symbol universe and persists each symbol's history.
type Driver struct {
	hist            store.HistoricalStore
	registry        Registry
	vendor          Vendor
	refresher       UniverseRefresher
	delay           time.Duration
	reloginInterval int
	maxSymbols      int
	defaultStart    time.Time
	now             func() time.Time
	sleep           func(time.Duration)
}

// Config holds the driver's pacing, session-rotation and workload knobs,
// mirroring the backfill CLI's --delay, --relogin-interval and
// --max-stocks flags.
type Config struct {
	Delay           time.Duration
	ReloginInterval int
	MaxSymbols      int
	DefaultStart    time.Time
}

// New constructs a Driver. refresher may be nil when no reference-data
// sources are configured. now and sleep default to time.Now/time.Sleep
// when nil; tests override both to run without wall-clock waits.
func New(hist store.HistoricalStore, registry Registry, vendor Vendor, refresher UniverseRefresher, cfg Config, now func() time.Time, sleep func(time.Duration)) *Driver {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	if cfg.ReloginInterval <= 0 {
		cfg.ReloginInterval = 300
	}
	return &Driver{
		hist:            hist,
		registry:        registry,
		vendor:          vendor,
		refresher:       refresher,
		delay:           cfg.Delay,
		reloginInterval: cfg.ReloginInterval,
		maxSymbols:      cfg.MaxSymbols,
		defaultStart:    cfg.DefaultStart,
		now:             now,
		sleep:           sleep,
	}
}

// Run refreshes the universe registry (when a refresher is configured),
// then walks the universe (ordered by registry.All) starting at
// startIndex (a 0-based resumable cursor), fetching and persisting each
// resolution in resolutions for every symbol. MaxSymbols caps how much of
// the remaining walk runs this invocation, after startIndex has selected
// where it resumes. A single symbol's failure is recorded and the walk
// continues; the overall error return is reserved for failures that make
// the whole batch meaningless (universe unavailable, initial login
// failure).
func (d *Driver) Run(ctx context.Context, resolutions []domain.Resolution, startIndex int) (*Report, error) {
	if d.refresher != nil {
		if n, err := d.refresher.Refresh(ctx); err != nil {
			log.BackfillError("", "refresh_universe", "universe refresh failed, continuing with existing registry", err, nil)
		} else {
			log.BackfillInfo("", "refresh_universe", "universe registry refreshed", map[string]interface{}{
				"entries": n,
			})
		}
	}

	entries, err := d.registry.All(ctx)
	if err != nil {
		return nil, err
	}
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex > len(entries) {
		startIndex = len(entries)
	}
	entries = entries[startIndex:]
	if d.maxSymbols > 0 && d.maxSymbols < len(entries) {
		entries = entries[:d.maxSymbols]
	}

	report := &Report{RunID: uuid.New().String()}
	log.BackfillInfo("", "run_start", "backfill run starting", map[string]interface{}{
		"run_id": report.RunID, "symbols": len(entries), "start_index": startIndex,
	})

	if err := d.vendor.Login(ctx); err != nil {
		return nil, err
	}
	report.LoginCalls++

	for i, entry := range entries {
		if i > 0 && i%d.reloginInterval == 0 {
			log.BackfillInfo(string(entry.Symbol), "relogin", "rotating bulk vendor session", map[string]interface{}{
				"processed_so_far": i,
			})
			if err := d.vendor.Relogin(ctx); err != nil {
				log.BackfillError(string(entry.Symbol), "relogin", "vendor relogin failed, continuing with existing session", err, nil)
			} else {
				report.LoginCalls++
			}
		}

		if err := d.processSymbol(ctx, entry, resolutions); err != nil {
			report.Failed = append(report.Failed, Failure{Symbol: entry.Symbol, Err: err})
			log.BackfillError(string(entry.Symbol), "process_symbol", "symbol failed, continuing batch", err, nil)
		} else {
			report.Succeeded++
		}
		report.Processed++

		if d.delay > 0 && i < len(entries)-1 {
			d.sleep(d.delay)
		}
	}

	if err := d.vendor.Logout(ctx); err != nil {
		log.BackfillError("", "logout", "vendor logout failed", err, nil)
	}

	return report, nil
}

func (d *Driver) processSymbol(ctx context.Context, entry domain.UniverseEntry, resolutions []domain.Resolution) error {
	// Window start is the earlier of the configured default and the
	// symbol's list_date, so symbols listed before the default still get
	// their full history.
	begin := d.defaultStart
	if entry.ListDate != nil && entry.ListDate.Before(begin) {
		begin = *entry.ListDate
	}
	end := d.now()

	for _, res := range resolutions {
		rows, err := d.vendor.Fetch(ctx, entry.Symbol, res, begin, end, bulk.AdjustForward)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		candles := make([]domain.Candle, 0, len(rows))
		for _, row := range rows {
			candles = append(candles, domain.Candle{
				Symbol:     entry.Symbol,
				Resolution: res,
				EndTS:      row.EndTS,
				Open:       row.Open,
				High:       row.High,
				Low:        row.Low,
				Close:      row.Close,
				Volume:     row.Volume,
				Amount:     row.Amount,
				Turn:       row.Turn,
			})
		}

		// First-ever ingestion of a symbol writes one large contiguous
		// range; the COPY fast path beats row-by-row upserts there. Any
		// pre-existing rows mean a re-run, which must go through the
		// conflict-handling upsert instead.
		existing, err := d.hist.QueryHistorical(ctx, entry.Symbol, res, begin, end)
		if err != nil {
			return err
		}
		path := "copy"
		if len(existing) == 0 {
			err = d.hist.BulkLoadHistorical(ctx, res, candles)
		} else {
			path = "upsert"
			err = d.hist.UpsertHistorical(ctx, res, candles)
		}
		if err != nil {
			return err
		}
		log.BackfillInfo(string(entry.Symbol), "persist", "historical rows persisted", map[string]interface{}{
			"resolution": res, "rows": len(candles), "path": path,
		})
	}
	return nil
}
