// Package calendar implements the trading-calendar oracle: is a date a
// trading day, and snap a date to the nearest trading day in a direction.
// The holiday and compensatory-workday tables are embedded (see
// holidays.go); outside their year range only the weekend rule applies.
package calendar

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"aklineservice/pkg/log"
)

// Direction is the snap direction.
type Direction int

const (
	Back Direction = iota
	Forward
)

// maxSnapAttempts bounds Snap's day-by-day walk; no real holiday stretch
// comes close to 30 calendar days.
const maxSnapAttempts = 30

// snapCacheTTL bounds how long a memoised Snap result is trusted; short
// enough that a holiday-table correction (rare, operator-triggered) is
// picked up well within a trading session.
const snapCacheTTL = 30 * time.Minute

// Calendar is the trading-calendar oracle. Snap results are memoised in
// an in-process cache (every read snaps both its endpoints, and Snap can
// walk up to maxSnapAttempts days); IsTradingDay itself is already an
// O(1) map lookup and needs no memoisation.
type Calendar struct {
	warnOnce sync.Once
	snaps    *gocache.Cache
}

// New constructs a Calendar.
func New() *Calendar {
	return &Calendar{snaps: gocache.New(snapCacheTTL, 2*snapCacheTTL)}
}

func dateKey(d time.Time) string {
	return d.Format("2006-01-02")
}

// inSupportedRange reports whether d's year has explicit holiday-table
// coverage.
func inSupportedRange(d time.Time) bool {
	y := d.Year()
	return y >= SupportedYearMin && y <= SupportedYearMax
}

// IsTradingDay reports whether d is a trading day: a weekday that is not a
// listed PRC public holiday. Outside the holiday table's supported year
// range, only the weekend rule applies, and a one-time informational
// signal is logged.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	d = truncateDate(d)
	key := dateKey(d)

	if workdays[key] {
		return true
	}

	weekday := d.Weekday()
	isWeekend := weekday == time.Saturday || weekday == time.Sunday

	if !inSupportedRange(d) {
		c.warnOnce.Do(func() {
			log.CalendarWarn("holiday table has no coverage for this year; degrading to weekend-only rule", map[string]interface{}{
				"year":          d.Year(),
				"supported_min": SupportedYearMin,
				"supported_max": SupportedYearMax,
			})
		})
		return !isWeekend
	}

	if isWeekend {
		return false
	}
	return !holidays[key]
}

// Snap moves d one calendar day at a time in dir until it lands on a
// trading day, bounded at maxSnapAttempts; beyond that it gives up and
// returns the original d, signalling an anomaly. Snap is idempotent on an
// already-trading day.
func (c *Calendar) Snap(d time.Time, dir Direction) time.Time {
	d = truncateDate(d)
	cacheKey := snapCacheKey(d, dir)
	if cached, found := c.snaps.Get(cacheKey); found {
		return cached.(time.Time)
	}

	result := c.snapUncached(d, dir)
	c.snaps.SetDefault(cacheKey, result)
	return result
}

func (c *Calendar) snapUncached(d time.Time, dir Direction) time.Time {
	if c.IsTradingDay(d) {
		return d
	}

	step := 24 * time.Hour
	if dir == Back {
		step = -step
	}

	cur := d
	for i := 0; i < maxSnapAttempts; i++ {
		cur = cur.Add(step)
		if c.IsTradingDay(cur) {
			return cur
		}
	}

	log.CalendarWarn("snap exceeded max attempts without finding a trading day", map[string]interface{}{
		"date":      dateKey(d),
		"direction": dir,
		"attempts":  maxSnapAttempts,
	})
	return d
}

func snapCacheKey(d time.Time, dir Direction) string {
	if dir == Back {
		return dateKey(d) + ":back"
	}
	return dateKey(d) + ":forward"
}

// PrevTradingDay returns the trading day immediately before d.
func (c *Calendar) PrevTradingDay(d time.Time) time.Time {
	return c.Snap(truncateDate(d).AddDate(0, 0, -1), Back)
}

// NextTradingDay returns the trading day immediately after d.
func (c *Calendar) NextTradingDay(d time.Time) time.Time {
	return c.Snap(truncateDate(d).AddDate(0, 0, 1), Forward)
}

func truncateDate(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}
