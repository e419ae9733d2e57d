// Package store defines the typed storage contract: per-resolution
// historical tables for sealed candles and one intraday table for
// still-forming candles, with idempotent batched upserts.
package store

import (
	"context"
	"time"

	"aklineservice/internal/domain"
)

// HistoricalStore provides typed access to the sealed-candle tables, one
// per resolution.
type HistoricalStore interface {
	// QueryHistorical returns the ordered candles for (symbol, resolution)
	// within [beginTS, endTS], ascending by EndTS.
	QueryHistorical(ctx context.Context, symbol domain.Symbol, res domain.Resolution, beginTS, endTS time.Time) ([]domain.Candle, error)

	// UpsertHistorical writes a batch of sealed candles for one
	// resolution. Conflict key is (end_ts, symbol): on conflict, OHLCV
	// fields (and turn, where the table has it) replace; reference fields
	// do not. The whole batch commits
	// atomically or rolls back.
	UpsertHistorical(ctx context.Context, res domain.Resolution, batch []domain.Candle) error

	// BulkLoadHistorical writes a large, typically first-ever, contiguous
	// batch via the COPY fast path (see postgres.CandleRepository).
	BulkLoadHistorical(ctx context.Context, res domain.Resolution, batch []domain.Candle) error
}

// IntradayStore provides typed access to the single intraday table.
type IntradayStore interface {
	// QueryIntraday returns the ordered intraday rows for (symbol,
	// resolution) on the given trading day.
	QueryIntraday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) ([]domain.Candle, error)

	// UpsertIntraday writes a batch of (candle, sealed) pairs. Conflict
	// key is (symbol, resolution, end_ts): replaces OHLCV and sealed.
	UpsertIntraday(ctx context.Context, res domain.Resolution, batch []IntradayRow) error

	// SweepIntraday deletes intraday rows with end_ts::date < beforeDate.
	// Failure here is non-fatal and must not roll back a containing
	// operation.
	SweepIntraday(ctx context.Context, beforeDate time.Time) error

	// CountIntraday counts intraday rows for (symbol, resolution) on the
	// given trading day, used by the router's freshness check.
	CountIntraday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) (int, error)
}

// IntradayRow pairs a candle with its sealed flag at the moment of write.
type IntradayRow struct {
	Candle domain.Candle
	Sealed bool
}

// Store is the full storage contract consumed by the reader and router.
type Store interface {
	HistoricalStore
	IntradayStore
}

// TodayCounter counts historical rows for (symbol, resolution) whose
// end_ts falls on the given trading day, used by the router's freshness
// check alongside CountIntraday.
type TodayCounter interface {
	CountHistoricalToday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) (int, error)
}
