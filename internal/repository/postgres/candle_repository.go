// Package postgres implements the Postgres-backed store: one table per
// resolution for sealed candles plus the shared intraday table, and the
// universe registry. The candle tables use raw SQL over sqlx (dynamic
// per-resolution table names do not fit GORM's one-struct-one-table
// model); the registry uses GORM.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"aklineservice/internal/domain"
	"aklineservice/internal/store"
	"aklineservice/pkg/log"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// CandleRepository implements store.HistoricalStore over one table per
// resolution.
type CandleRepository struct {
	db *sqlx.DB
}

// NewCandleRepository constructs a CandleRepository.
func NewCandleRepository(db *sqlx.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

func historicalTable(res domain.Resolution) string {
	return "stock_kline_" + res.TableSuffix()
}

type historicalRow struct {
	Date   time.Time  `db:"date"`
	Time   *time.Time `db:"time"`
	Code   string     `db:"code"`
	Open   float64    `db:"open"`
	High   float64    `db:"high"`
	Low    float64    `db:"low"`
	Close  float64    `db:"close"`
	Volume int64      `db:"volume"`
	Amount float64    `db:"amount"`
	Turn   *float64   `db:"turn"`
}

func (row historicalRow) toCandle(symbol domain.Symbol, res domain.Resolution) domain.Candle {
	endTS := row.Date
	if row.Time != nil {
		endTS = *row.Time
	}
	return domain.Candle{
		Symbol:     symbol,
		Resolution: res,
		EndTS:      endTS,
		Open:       row.Open,
		High:       row.High,
		Low:        row.Low,
		Close:      row.Close,
		Volume:     row.Volume,
		Amount:     row.Amount,
		Turn:       row.Turn,
	}
}

// QueryHistorical returns the ordered sealed candles for (symbol,
// resolution) within [beginTS, endTS].
func (r *CandleRepository) QueryHistorical(ctx context.Context, symbol domain.Symbol, res domain.Resolution, beginTS, endTS time.Time) ([]domain.Candle, error) {
	table := historicalTable(res)
	var rows []historicalRow
	var query string

	if res.IsMinute() {
		query = fmt.Sprintf(`
			SELECT date, time, code, open, high, low, close, volume, amount, NULL::double precision AS turn
			FROM %s WHERE code = $1 AND time BETWEEN $2 AND $3 ORDER BY time`, table)
	} else {
		query = fmt.Sprintf(`
			SELECT date, NULL::timestamp AS time, code, open, high, low, close, volume, amount, turn
			FROM %s WHERE code = $1 AND date BETWEEN $2 AND $3 ORDER BY date`, table)
	}

	if err := r.db.SelectContext(ctx, &rows, query, string(symbol), beginTS, endTS); err != nil {
		return nil, fmt.Errorf("query historical %s: %w", table, err)
	}

	out := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCandle(symbol, res))
	}
	return out, nil
}

// UpsertHistorical batch-writes sealed candles for one resolution. The
// whole batch commits atomically or rolls back; conflict key is (end_ts,
// symbol) and on conflict the OHLCV fields (plus turn, for the
// day/week/month tables) are replaced.
func (r *CandleRepository) UpsertHistorical(ctx context.Context, res domain.Resolution, batch []domain.Candle) error {
	if len(batch) == 0 {
		return nil
	}
	table := historicalTable(res)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin historical upsert tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			log.Error("panic in UpsertHistorical: %v", p)
		}
	}()

	var query string
	if res.IsMinute() {
		query = fmt.Sprintf(`
			INSERT INTO %s (date, time, code, open, high, low, close, volume, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (time, code) DO UPDATE SET
				open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
				close = EXCLUDED.close, volume = EXCLUDED.volume, amount = EXCLUDED.amount`, table)
	} else {
		query = fmt.Sprintf(`
			INSERT INTO %s (date, code, open, high, low, close, volume, amount, turn)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (date, code) DO UPDATE SET
				open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
				close = EXCLUDED.close, volume = EXCLUDED.volume, amount = EXCLUDED.amount,
				turn = EXCLUDED.turn`, table)
	}

	for _, c := range batch {
		var err error
		if res.IsMinute() {
			_, err = tx.ExecContext(ctx, query, dateOnly(c.EndTS), c.EndTS, string(c.Symbol), c.Open, c.High, c.Low, c.Close, c.Volume, c.Amount)
		} else {
			_, err = tx.ExecContext(ctx, query, dateOnly(c.EndTS), string(c.Symbol), c.Open, c.High, c.Low, c.Close, c.Volume, c.Amount, c.Turn)
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert historical row %s %s: %w", c.Symbol, c.EndTS, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit historical upsert: %w", err)
	}
	return nil
}

// BulkLoadHistorical writes a large contiguous batch via the Postgres COPY
// fast path, falling back to UpsertHistorical on a duplicate-key conflict
// (COPY cannot express ON CONFLICT).
func (r *CandleRepository) BulkLoadHistorical(ctx context.Context, res domain.Resolution, batch []domain.Candle) error {
	if len(batch) == 0 {
		return nil
	}
	table := historicalTable(res)

	sqlDB := r.db.DB
	txn, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin copy tx: %w", err)
	}

	var stmt *sql.Stmt
	if res.IsMinute() {
		stmt, err = txn.Prepare(pq.CopyIn(table, "date", "time", "code", "open", "high", "low", "close", "volume", "amount"))
	} else {
		stmt, err = txn.Prepare(pq.CopyIn(table, "date", "code", "open", "high", "low", "close", "volume", "amount", "turn"))
	}
	if err != nil {
		txn.Rollback()
		return fmt.Errorf("prepare copy %s: %w", table, err)
	}

	for _, c := range batch {
		if res.IsMinute() {
			_, err = stmt.Exec(dateOnly(c.EndTS), c.EndTS, string(c.Symbol), c.Open, c.High, c.Low, c.Close, c.Volume, c.Amount)
		} else {
			_, err = stmt.Exec(dateOnly(c.EndTS), string(c.Symbol), c.Open, c.High, c.Low, c.Close, c.Volume, c.Amount, c.Turn)
		}
		if err != nil {
			stmt.Close()
			txn.Rollback()
			return fmt.Errorf("copy row %s %s: %w", c.Symbol, c.EndTS, err)
		}
	}

	if err := stmt.Close(); err != nil {
		txn.Rollback()
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return r.UpsertHistorical(ctx, res, batch)
		}
		return fmt.Errorf("close copy statement: %w", err)
	}

	if err := txn.Commit(); err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return r.UpsertHistorical(ctx, res, batch)
		}
		return fmt.Errorf("commit copy: %w", err)
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

var _ store.HistoricalStore = (*CandleRepository)(nil)
