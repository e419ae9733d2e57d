// Package router implements the intraday router: it pulls the intraday
// vendor, routes each candle to the historical store (if sealed) or the
// intraday store (if still forming), and sweeps stale intraday rows.
package router

import (
	"context"
	"errors"
	"time"

	"aklineservice/internal/clock"
	"aklineservice/internal/domain"
	"aklineservice/internal/store"
	"aklineservice/internal/vendors/intraday"
	"aklineservice/pkg/apperrors"
	"aklineservice/pkg/log"
)

// TodayCounter is the historical half of the freshness check
// (store.TodayCounter), kept as a narrow local interface so Router depends
// only on what it needs.
type TodayCounter interface {
	CountHistoricalToday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) (int, error)
}

// Router decides, for each vendor-reported candle, whether it belongs in
// the historical store or the intraday store.
type Router struct {
	hist    store.HistoricalStore
	intra   store.IntradayStore
	counter TodayCounter
	vendor  *intraday.Adapter
	now     func() time.Time
}

// New constructs a Router. now defaults to time.Now when nil (tests pass a
// fixed clock).
func New(hist store.HistoricalStore, intra store.IntradayStore, counter TodayCounter, vendor *intraday.Adapter, now func() time.Time) *Router {
	if now == nil {
		now = time.Now
	}
	return &Router{hist: hist, intra: intra, counter: counter, vendor: vendor, now: now}
}

// Refresh runs the intraday refresh for (symbol, resolution): freshness
// check, vendor pull, per-row routing, and commit. The caller runs this
// only when the read window's end covers today.
func (r *Router) Refresh(ctx context.Context, symbol domain.Symbol, res domain.Resolution, isIndex bool) error {
	now := r.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	_, _, sealed := clock.Classify(res, now)
	finishedSoFar := expectedFinishedSoFar(res, now, sealed)

	histCount, err := r.counter.CountHistoricalToday(ctx, symbol, res, today)
	if err != nil {
		return err
	}
	intraCount, err := r.intra.CountIntraday(ctx, symbol, res, today)
	if err != nil {
		return err
	}

	// The historical store, not the row total, is what must catch up to
	// the finished-candle count: a candle already sealed but still sitting
	// in the intraday table (not yet promoted) must still trigger a pull
	// so it gets reclassified and routed to historical on this call.
	if finishedSoFar >= 1 && histCount >= finishedSoFar {
		log.RouterInfo(string(symbol), "refresh", "freshness check short-circuited vendor call", map[string]interface{}{
			"resolution": res, "historical": histCount, "intraday": intraCount, "expected_finished": finishedSoFar,
		})
		return nil
	}

	candles, err := r.vendor.Pull(ctx, symbol, res, isIndex)
	if err != nil {
		var unsupported *intraday.ErrUnsupported
		if errors.As(err, &unsupported) {
			return nil
		}
		return apperrors.NewVendorUnavailableError("intraday vendor pull failed", err)
	}

	var histBatch []domain.Candle
	var intraBatch []store.IntradayRow

	for _, c := range candles {
		if !sameDate(c.EndTS, today) {
			continue
		}
		isSealed := !now.Before(c.EndTS)
		if isSealed {
			histBatch = append(histBatch, c)
		} else {
			intraBatch = append(intraBatch, store.IntradayRow{Candle: c, Sealed: false})
		}
	}

	if len(histBatch) > 0 {
		if err := r.hist.UpsertHistorical(ctx, res, histBatch); err != nil {
			return err
		}
		log.RouterInfo(string(symbol), "route_historical", "sealed intraday candles routed to historical store", map[string]interface{}{
			"resolution": res, "count": len(histBatch),
		})
	}
	if len(intraBatch) > 0 {
		if err := r.intra.UpsertIntraday(ctx, res, intraBatch); err != nil {
			return err
		}
		log.RouterInfo(string(symbol), "route_intraday", "unsealed intraday candles upserted", map[string]interface{}{
			"resolution": res, "count": len(intraBatch),
		})
	}
	return nil
}

// Sweep deletes intraday rows whose date precedes today; a failure here is
// logged and returned but callers treat it as non-fatal.
func (r *Router) Sweep(ctx context.Context, today time.Time) error {
	return r.intra.SweepIntraday(ctx, today)
}

// expectedFinishedSoFar returns the number of candles of resolution res
// whose end_ts <= now. For daily it is 1 once the session has closed and
// 0 before.
func expectedFinishedSoFar(res domain.Resolution, now time.Time, lastIsSealed bool) int {
	if !res.IsMinute() {
		if lastIsSealed {
			return 1
		}
		return 0
	}
	count := 0
	for _, b := range clock.Boundaries(res, now) {
		if !now.Before(b.End) {
			count++
		}
	}
	return count
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
