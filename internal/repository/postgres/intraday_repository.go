package postgres

import (
	"context"
	"fmt"
	"time"

	"aklineservice/internal/domain"
	"aklineservice/internal/store"
	"aklineservice/pkg/log"

	"github.com/jmoiron/sqlx"
)

// IntradayRepository implements store.IntradayStore over the single
// stock_kline_realtime table.
type IntradayRepository struct {
	db *sqlx.DB
}

// NewIntradayRepository constructs an IntradayRepository.
func NewIntradayRepository(db *sqlx.DB) *IntradayRepository {
	return &IntradayRepository{db: db}
}

const intradayTable = "stock_kline_realtime"

type intradayRow struct {
	Code       string    `db:"code"`
	KlineType  string    `db:"kline_type"`
	Datetime   time.Time `db:"datetime"`
	Open       float64   `db:"open"`
	High       float64   `db:"high"`
	Low        float64   `db:"low"`
	Close      float64   `db:"close"`
	Volume     int64     `db:"volume"`
	Amount     float64   `db:"amount"`
	Turn       *float64  `db:"turn"`
	IsFinished bool      `db:"is_finished"`
}

// QueryIntraday returns the intraday rows for (symbol, resolution) whose
// datetime falls on the given trading day, ascending.
func (r *IntradayRepository) QueryIntraday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) ([]domain.Candle, error) {
	var rows []intradayRow
	query := fmt.Sprintf(`
		SELECT code, kline_type, datetime, open, high, low, close, volume, amount, turn, is_finished
		FROM %s
		WHERE code = $1 AND kline_type = $2 AND datetime::date = $3
		ORDER BY datetime`, intradayTable)

	if err := r.db.SelectContext(ctx, &rows, query, string(symbol), string(res), dateOnly(today)); err != nil {
		return nil, fmt.Errorf("query intraday: %w", err)
	}

	out := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Candle{
			Symbol: symbol, Resolution: res, EndTS: row.Datetime,
			Open: row.Open, High: row.High, Low: row.Low, Close: row.Close,
			Volume: row.Volume, Amount: row.Amount, Turn: row.Turn,
		})
	}
	return out, nil
}

// UpsertIntraday writes a batch of (candle, sealed) pairs. Conflict key is
// (code, kline_type, datetime); OHLCV, turn, is_finished and updated_at
// are replaced.
func (r *IntradayRepository) UpsertIntraday(ctx context.Context, res domain.Resolution, batch []store.IntradayRow) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin intraday upsert tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			log.Error("panic in UpsertIntraday: %v", p)
		}
	}()

	query := fmt.Sprintf(`
		INSERT INTO %s (code, kline_type, datetime, open, high, low, close, volume, amount, turn, is_finished, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (code, kline_type, datetime) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume, amount = EXCLUDED.amount,
			turn = EXCLUDED.turn, is_finished = EXCLUDED.is_finished, updated_at = now()`, intradayTable)

	for _, row := range batch {
		c := row.Candle
		if _, err := tx.ExecContext(ctx, query, string(c.Symbol), string(c.Resolution), c.EndTS,
			c.Open, c.High, c.Low, c.Close, c.Volume, c.Amount, c.Turn, row.Sealed); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert intraday row %s %s: %w", c.Symbol, c.EndTS, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit intraday upsert: %w", err)
	}
	return nil
}

// SweepIntraday deletes intraday rows older than beforeDate. Failure here
// is logged but must not roll back a containing operation; callers treat
// its error as non-fatal.
func (r *IntradayRepository) SweepIntraday(ctx context.Context, beforeDate time.Time) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE datetime::date < $1`, intradayTable)
	if _, err := r.db.ExecContext(ctx, query, dateOnly(beforeDate)); err != nil {
		log.Error("intraday sweep failed (non-fatal): %v", err)
		return fmt.Errorf("sweep intraday: %w", err)
	}
	return nil
}

// CountIntraday counts intraday rows for (symbol, resolution) on the given
// trading day, used by the router's freshness check.
func (r *IntradayRepository) CountIntraday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE code = $1 AND kline_type = $2 AND datetime::date = $3`, intradayTable)
	if err := r.db.GetContext(ctx, &count, query, string(symbol), string(res), dateOnly(today)); err != nil {
		return 0, fmt.Errorf("count intraday: %w", err)
	}
	return count, nil
}

// CountHistoricalToday counts historical rows for (symbol, resolution) on
// the given trading day, the historical half of the router's freshness
// check (store.TodayCounter).
func (r *CandleRepository) CountHistoricalToday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) (int, error) {
	table := historicalTable(res)
	var count int
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE code = $1 AND date = $2`, table)
	if err := r.db.GetContext(ctx, &count, query, string(symbol), dateOnly(today)); err != nil {
		return 0, fmt.Errorf("count historical today: %w", err)
	}
	return count, nil
}

var (
	_ store.IntradayStore = (*IntradayRepository)(nil)
	_ store.TodayCounter  = (*CandleRepository)(nil)
)
