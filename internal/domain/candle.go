package domain

import (
	"fmt"
	"strings"
	"time"
)

// Resolution is a candle's aggregation window.
type Resolution string

const (
	Res1Min  Resolution = "1m"
	Res5Min  Resolution = "5m"
	Res15Min Resolution = "15m"
	Res30Min Resolution = "30m"
	Res60Min Resolution = "60m"
	ResDay   Resolution = "day"
	ResWeek  Resolution = "week"
	ResMonth Resolution = "month"
)

// AllResolutions lists every resolution the store provisions a table for.
var AllResolutions = []Resolution{Res1Min, Res5Min, Res15Min, Res30Min, Res60Min, ResDay, ResWeek, ResMonth}

// IsMinute reports whether r is an intra-day minute resolution.
func (r Resolution) IsMinute() bool {
	switch r {
	case Res1Min, Res5Min, Res15Min, Res30Min, Res60Min:
		return true
	default:
		return false
	}
}

// Minutes returns the minute count for a minute resolution, or 0 otherwise.
func (r Resolution) Minutes() int {
	switch r {
	case Res1Min:
		return 1
	case Res5Min:
		return 5
	case Res15Min:
		return 15
	case Res30Min:
		return 30
	case Res60Min:
		return 60
	default:
		return 0
	}
}

// Valid reports whether r is one of the resolutions this service supports.
func (r Resolution) Valid() bool {
	for _, v := range AllResolutions {
		if v == r {
			return true
		}
	}
	return false
}

// TableSuffix returns the historical-table name fragment for r, e.g. "60min"
// for Res60Min and "day" for ResDay, matching stock_kline_{type} naming.
func (r Resolution) TableSuffix() string {
	if r.IsMinute() {
		return fmt.Sprintf("%dmin", r.Minutes())
	}
	return string(r)
}

// SymbolType classifies a Symbol per the universe registry.
type SymbolType string

const (
	TypeStock SymbolType = "stock"
	TypeIndex SymbolType = "index"
	TypeETF   SymbolType = "etf"
)

// Symbol is a market-qualified instrument code of the form "{market}.{digits}".
type Symbol string

// Market returns the market prefix ("sh", "sz", "bj"), or "" if malformed.
func (s Symbol) Market() string {
	market, _, ok := strings.Cut(string(s), ".")
	if !ok {
		return ""
	}
	return market
}

// Code returns the numeric code portion of the symbol.
func (s Symbol) Code() string {
	_, code, ok := strings.Cut(string(s), ".")
	if !ok {
		return ""
	}
	return code
}

// Valid reports whether s has the "{market}.{digits}" shape with a known market.
func (s Symbol) Valid() bool {
	market, code, ok := strings.Cut(string(s), ".")
	if !ok || code == "" {
		return false
	}
	switch market {
	case "sh", "sz", "bj":
	default:
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsIndex reports whether s follows the structural index-prefix rule:
// sh.000* or sz.399*. Used as a fallback classifier when the universe
// registry carries no authoritative entry for the symbol.
func (s Symbol) IsIndex() bool {
	code := s.Code()
	switch s.Market() {
	case "sh":
		return strings.HasPrefix(code, "000")
	case "sz":
		return strings.HasPrefix(code, "399")
	default:
		return false
	}
}

// Candle is an immutable OHLCV aggregation for one (symbol, resolution)
// ending at EndTS, the exclusive upper bound of its aggregation window.
type Candle struct {
	Symbol     Symbol
	Resolution Resolution
	EndTS      time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	Amount     float64
	Turn       *float64 // present only for day/week/month
}

// Sealed reports whether the candle's aggregation window has closed as of now.
func (c Candle) Sealed(now time.Time) bool {
	return !now.Before(c.EndTS)
}

// Valid checks the structural invariants every candle must satisfy: low <=
// open,close <= high and volume/amount non-negative.
func (c Candle) Valid() bool {
	if c.Low > c.Open || c.Open > c.High {
		return false
	}
	if c.Low > c.Close || c.Close > c.High {
		return false
	}
	return c.Volume >= 0 && c.Amount >= 0
}

// Key identifies a candle uniquely within the union of historical and
// intraday stores for a given (symbol, resolution).
type Key struct {
	Symbol     Symbol
	Resolution Resolution
	EndTS      time.Time
}

func (c Candle) Key() Key {
	return Key{Symbol: c.Symbol, Resolution: c.Resolution, EndTS: c.EndTS}
}
