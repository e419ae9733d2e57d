// Package reader implements the read-through, gap-healing reader: the
// orchestration point that ties calendar, store, bulk vendor, gap
// detector and intraday router into a single (symbol, resolution, begin,
// end) read. Each read snaps its endpoints, queries the historical
// store, backfills missing sub-ranges from the bulk vendor, refreshes
// today's candles if the window reaches today, and emits one merged
// ordered stream.
package reader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"aklineservice/internal/calendar"
	"aklineservice/internal/domain"
	"aklineservice/internal/gapdetector"
	"aklineservice/internal/router"
	"aklineservice/internal/store"
	"aklineservice/internal/vendors/bulk"
	"aklineservice/pkg/apperrors"
	"aklineservice/pkg/log"
)

// Calendar is the calendar surface the reader drives directly (snap) plus
// what it hands to the gap detector (prev/next trading day).
type Calendar interface {
	Snap(d time.Time, dir calendar.Direction) time.Time
	PrevTradingDay(d time.Time) time.Time
	NextTradingDay(d time.Time) time.Time
}

// Registry is the read-only registry surface the reader needs: list_date
// clamping and stock/index classification for the vendor call.
type Registry interface {
	GetBySymbol(ctx context.Context, symbol domain.Symbol) (*domain.UniverseEntry, error)
}

// BulkVendor is the bulk-history adapter surface the reader drives.
type BulkVendor interface {
	Login(ctx context.Context) error
	Fetch(ctx context.Context, symbol domain.Symbol, res domain.Resolution, begin, end time.Time, adj bulk.Adjustment) ([]bulk.Row, error)
}

// Reader is the read-through reader.
type Reader struct {
	hist     store.HistoricalStore
	intra    store.IntradayStore
	cal      Calendar
	registry Registry
	vendor   BulkVendor
	router   *router.Router
	now      func() time.Time
}

// New constructs a Reader. now defaults to time.Now when nil.
func New(hist store.HistoricalStore, intra store.IntradayStore, cal Calendar, registry Registry, vendor BulkVendor, rtr *router.Router, now func() time.Time) *Reader {
	if now == nil {
		now = time.Now
	}
	return &Reader{hist: hist, intra: intra, cal: cal, registry: registry, vendor: vendor, router: rtr, now: now}
}

// Read executes one full read for (symbol, resolution, begin, end) and
// returns the merged, ordered, duplicate-free candle stream.
func (r *Reader) Read(ctx context.Context, symbol domain.Symbol, res domain.Resolution, begin, end time.Time) ([]domain.Candle, error) {
	if !res.Valid() {
		return nil, apperrors.NewUnsupportedResolutionError(fmt.Sprintf("resolution %q is not supported", res), nil)
	}
	if !symbol.Valid() {
		return nil, apperrors.NewUnknownSymbolError(fmt.Sprintf("symbol %q is malformed", symbol), nil)
	}

	isIndex := symbol.IsIndex()
	var entry *domain.UniverseEntry
	if r.registry != nil {
		var err error
		entry, err = r.registry.GetBySymbol(ctx, symbol)
		if err != nil {
			return nil, apperrors.NewStorageUnavailableError("registry lookup failed", err)
		}
		if entry != nil {
			isIndex = entry.Type == domain.TypeIndex
		}
	}

	// SNAP
	if entry != nil && entry.ListDate != nil && begin.Before(*entry.ListDate) {
		begin = *entry.ListDate
	}
	begin = r.cal.Snap(begin, calendar.Forward)
	end = r.cal.Snap(end, calendar.Back)
	if begin.After(end) {
		log.ReaderWarn("snap", "snapped window inverted, returning empty", map[string]interface{}{
			"symbol": symbol, "resolution": res,
		})
		return nil, nil
	}

	// QUERY_H
	// Minute candles carry intra-day end_ts values, so the historical
	// queries run to the end of the snapped end day, not its midnight.
	histEnd := end
	if res.IsMinute() {
		histEnd = end.AddDate(0, 0, 1).Add(-time.Microsecond)
	}
	histRows, err := r.hist.QueryHistorical(ctx, symbol, res, begin, histEnd)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("historical query failed", err)
	}

	// DETECT_GAPS
	hasData := len(histRows) > 0
	var first, last time.Time
	if hasData {
		first, last = histRows[0].EndTS, histRows[len(histRows)-1].EndTS
	}
	gaps := gapdetector.Detect(r.cal, begin, end, hasData, first, last)

	// BACKFILL
	for _, gap := range gaps {
		if gap.Begin.After(gap.End) {
			continue
		}
		if err := r.vendor.Login(ctx); err != nil {
			log.ReaderError("backfill", "bulk vendor login failed", err, map[string]interface{}{
				"symbol": symbol, "gap_begin": gap.Begin, "gap_end": gap.End,
			})
			return nil, err
		}
		rows, err := r.vendor.Fetch(ctx, symbol, res, gap.Begin, gap.End, bulk.AdjustForward)
		if err != nil {
			log.ReaderError("backfill", "bulk vendor fetch failed", err, map[string]interface{}{
				"symbol": symbol, "gap_begin": gap.Begin, "gap_end": gap.End,
			})
			return nil, err
		}
		if len(rows) == 0 {
			log.ReaderWarn("backfill", "bulk vendor returned no rows for gap", map[string]interface{}{
				"symbol": symbol, "gap_begin": gap.Begin, "gap_end": gap.End,
			})
			continue
		}
		candles := make([]domain.Candle, 0, len(rows))
		for _, row := range rows {
			candles = append(candles, rowToCandle(row, symbol, res))
		}
		if err := r.hist.UpsertHistorical(ctx, res, candles); err != nil {
			return nil, apperrors.NewStorageUnavailableError("historical upsert failed during backfill", err)
		}
		log.ReaderInfo("backfill", "gap filled from bulk vendor", map[string]interface{}{
			"symbol": symbol, "resolution": res, "rows": len(candles),
		})
	}

	// INTRADAY
	now := r.now()
	today := truncateDate(now)
	coversToday := !end.Before(today)
	if coversToday && r.router != nil {
		if err := r.router.Sweep(ctx, today); err != nil {
			log.ReaderWarn("intraday_sweep", "sweep failed, continuing", map[string]interface{}{"error": err.Error()})
		}
		if err := r.router.Refresh(ctx, symbol, res, isIndex); err != nil {
			var ae *apperrors.AppError
			if errors.As(err, &ae) {
				return nil, err
			}
			return nil, apperrors.NewStorageUnavailableError("intraday refresh failed", err)
		}
	}

	// QUERY_H2 / QUERY_I
	histRows2, err := r.hist.QueryHistorical(ctx, symbol, res, begin, histEnd)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("historical re-query failed", err)
	}
	var intraRows []domain.Candle
	if coversToday {
		intraRows, err = r.intra.QueryIntraday(ctx, symbol, res, today)
		if err != nil {
			return nil, apperrors.NewStorageUnavailableError("intraday query failed", err)
		}
	}

	// MERGE
	return merge(histRows2, intraRows), nil
}

// merge yields historical rows ascending by end_ts, then any intraday rows
// whose end_ts does not already appear among the historical rows. The
// historical row wins when both stores hold the same end_ts, which also
// covers the race where another reader seals a candle between the two
// historical queries.
func merge(hist, intra []domain.Candle) []domain.Candle {
	seen := make(map[time.Time]struct{}, len(hist))
	out := make([]domain.Candle, 0, len(hist)+len(intra))
	for _, c := range hist {
		seen[c.EndTS] = struct{}{}
		out = append(out, c)
	}
	extra := make([]domain.Candle, 0, len(intra))
	for _, c := range intra {
		if _, ok := seen[c.EndTS]; ok {
			continue
		}
		extra = append(extra, c)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].EndTS.Before(extra[j].EndTS) })
	out = append(out, extra...)
	return out
}

func rowToCandle(row bulk.Row, symbol domain.Symbol, res domain.Resolution) domain.Candle {
	return domain.Candle{
		Symbol:     symbol,
		Resolution: res,
		EndTS:      row.EndTS,
		Open:       row.Open,
		High:       row.High,
		Low:        row.Low,
		Close:      row.Close,
		Volume:     row.Volume,
		Amount:     row.Amount,
		Turn:       row.Turn,
	}
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
