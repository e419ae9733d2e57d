// Package gapdetector computes, from the sorted candles already in the
// historical store for a (symbol, resolution) within [begin, end], the
// leading/trailing sub-ranges not yet covered. Interior holes are not
// detected: historical candles are only ever persisted in contiguous
// backfills, so a hole between the first and last stored candle is
// structurally improbable.
package gapdetector

import "time"

// Range is an inclusive [Begin, End] date range requiring a backfill
// fetch.
type Range struct {
	Begin time.Time
	End   time.Time
}

// Calendar is the calendar surface the gap detector needs to step across
// holidays when computing the boundary just outside an observed range.
type Calendar interface {
	PrevTradingDay(d time.Time) time.Time
	NextTradingDay(d time.Time) time.Time
}

// Detect computes the missing sub-ranges of [begin, end] given the first
// and last end_ts already observed in the historical store for this
// (symbol, resolution), or hasData=false if the store holds nothing in
// range. Interior holes are never reported; see the package doc.
func Detect(cal Calendar, begin, end time.Time, hasData bool, first, last time.Time) []Range {
	if !hasData {
		return []Range{{Begin: begin, End: end}}
	}

	var gaps []Range
	if begin.Before(first) {
		gaps = append(gaps, Range{Begin: begin, End: cal.PrevTradingDay(first)})
	}
	if last.Before(end) {
		gaps = append(gaps, Range{Begin: cal.NextTradingDay(last), End: end})
	}
	return gaps
}
