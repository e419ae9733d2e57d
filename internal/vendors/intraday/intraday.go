// Package intraday implements the intraday vendor adapter: stateless per
// call, with distinct stock and index entry points.
package intraday

import (
	"context"
	"time"

	"aklineservice/internal/domain"
	"aklineservice/pkg/log"
)

// Row is one vendor-reported intraday candle, end-of-interval timestamped.
// Volume is reported in lots by this vendor and must be multiplied by 100
// to reach the canonical shares unit, done once at the adapter edge.
type Row struct {
	EndTS     time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	VolumeLot int64
	Amount    float64
}

func (r Row) toCandle(symbol domain.Symbol, res domain.Resolution) domain.Candle {
	return domain.Candle{
		Symbol:     symbol,
		Resolution: res,
		EndTS:      r.EndTS,
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.VolumeLot * 100,
		Amount:     r.Amount,
	}
}

// Client is the underlying intraday vendor transport.
type Client interface {
	FetchStock(ctx context.Context, symbol domain.Symbol, res domain.Resolution) ([]Row, error)
	FetchIndex(ctx context.Context, symbol domain.Symbol, res domain.Resolution) ([]Row, error)
}

// ErrUnsupported signals a symbol-type/resolution combination this vendor
// does not serve (index + minute resolution).
type ErrUnsupported struct {
	Symbol     domain.Symbol
	Resolution domain.Resolution
}

func (e *ErrUnsupported) Error() string {
	return "intraday vendor: unsupported combination " + string(e.Symbol) + "/" + string(e.Resolution)
}

// Adapter is the stateless intraday adapter: no session, safe for
// concurrent use across symbols.
type Adapter struct {
	client Client
}

// New constructs an intraday Adapter.
func New(client Client) *Adapter {
	return &Adapter{client: client}
}

// Pull fetches today's candles for (symbol, resolution), routed to the
// stock or index entry point per isIndex. Index + minute resolution
// returns (nil, *ErrUnsupported) after logging; callers treat this as a
// no-op, never as a hard failure.
func (a *Adapter) Pull(ctx context.Context, symbol domain.Symbol, res domain.Resolution, isIndex bool) ([]domain.Candle, error) {
	if isIndex && res.IsMinute() {
		log.VendorWarn("intraday", "pull", "index + minute resolution unsupported by intraday vendor", map[string]interface{}{
			"symbol": symbol, "resolution": res,
		})
		return nil, &ErrUnsupported{Symbol: symbol, Resolution: res}
	}

	var rows []Row
	var err error
	if isIndex {
		rows, err = a.client.FetchIndex(ctx, symbol, res)
	} else {
		rows, err = a.client.FetchStock(ctx, symbol, res)
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCandle(symbol, res))
	}
	return out, nil
}
