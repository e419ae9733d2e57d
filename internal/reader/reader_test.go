package reader

import (
	"context"
	"sync"
	"testing"
	"time"

	"aklineservice/internal/calendar"
	"aklineservice/internal/domain"
	"aklineservice/internal/router"
	"aklineservice/internal/store"
	"aklineservice/internal/vendors/bulk"
	"aklineservice/internal/vendors/intraday"
)

// memStore is an in-memory fake of the full store contract used to exercise
// the reader's snap/query/gap/backfill/merge pipeline without a database.
type memStore struct {
	mu   sync.Mutex
	hist map[domain.Key]domain.Candle
	intr map[domain.Key]domain.Candle
}

func newMemStore() *memStore {
	return &memStore{hist: map[domain.Key]domain.Candle{}, intr: map[domain.Key]domain.Candle{}}
}

func (m *memStore) QueryHistorical(ctx context.Context, symbol domain.Symbol, res domain.Resolution, begin, end time.Time) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterSorted(m.hist, symbol, res, func(ts time.Time) bool {
		return !ts.Before(begin) && !ts.After(end)
	}), nil
}

func (m *memStore) UpsertHistorical(ctx context.Context, res domain.Resolution, batch []domain.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range batch {
		m.hist[c.Key()] = c
	}
	return nil
}

func (m *memStore) BulkLoadHistorical(ctx context.Context, res domain.Resolution, batch []domain.Candle) error {
	return m.UpsertHistorical(ctx, res, batch)
}

func (m *memStore) CountHistoricalToday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := filterSorted(m.hist, symbol, res, func(ts time.Time) bool { return sameDate(ts, today) })
	return len(rows), nil
}

func (m *memStore) QueryIntraday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterSorted(m.intr, symbol, res, func(ts time.Time) bool { return sameDate(ts, today) }), nil
}

func (m *memStore) UpsertIntraday(ctx context.Context, res domain.Resolution, batch []store.IntradayRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range batch {
		m.intr[row.Candle.Key()] = row.Candle
	}
	return nil
}

func (m *memStore) SweepIntraday(ctx context.Context, beforeDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, c := range m.intr {
		if c.EndTS.Before(beforeDate) {
			delete(m.intr, k)
		}
	}
	return nil
}

func (m *memStore) CountIntraday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := filterSorted(m.intr, symbol, res, func(ts time.Time) bool { return sameDate(ts, today) })
	return len(rows), nil
}

func filterSorted(set map[domain.Key]domain.Candle, symbol domain.Symbol, res domain.Resolution, keep func(time.Time) bool) []domain.Candle {
	var out []domain.Candle
	for k, c := range set {
		if k.Symbol != symbol || k.Resolution != res {
			continue
		}
		if !keep(k.EndTS) {
			continue
		}
		out = append(out, c)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].EndTS.Before(out[j-1].EndTS); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

type noRegistry struct{}

func (noRegistry) GetBySymbol(ctx context.Context, symbol domain.Symbol) (*domain.UniverseEntry, error) {
	return nil, nil
}

type fakeBulkVendor struct {
	rows []bulk.Row
}

func (f *fakeBulkVendor) Login(ctx context.Context) error { return nil }

func (f *fakeBulkVendor) Fetch(ctx context.Context, symbol domain.Symbol, res domain.Resolution, begin, end time.Time, adj bulk.Adjustment) ([]bulk.Row, error) {
	var out []bulk.Row
	for _, r := range f.rows {
		if !r.EndTS.Before(begin) && !r.EndTS.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func dayRow(d time.Time, close float64) bulk.Row {
	return bulk.Row{EndTS: d, Open: close, High: close, Low: close, Close: close, Volume: 1000, Amount: 1000}
}

func TestReadColdPastWindow(t *testing.T) {
	// S1: empty store, read 2024-01-02..2024-01-05 (4 trading days).
	cal := calendar.New()
	hist := newMemStore()
	vendor := &fakeBulkVendor{rows: []bulk.Row{
		dayRow(mustDate("2024-01-02"), 10),
		dayRow(mustDate("2024-01-03"), 11),
		dayRow(mustDate("2024-01-04"), 12),
		dayRow(mustDate("2024-01-05"), 13),
	}}
	// now is far in the future so the window never covers "today".
	r := New(hist, hist, cal, noRegistry{}, vendor, nil, func() time.Time { return mustDate("2030-01-01") })

	candles, err := r.Read(context.Background(), "sh.600519", domain.ResDay, mustDate("2024-01-02"), mustDate("2024-01-05"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(candles) != 4 {
		t.Fatalf("expected 4 candles, got %d", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].EndTS.After(candles[i-1].EndTS) {
			t.Errorf("merged output not strictly increasing at index %d", i)
		}
	}

	// Invariant 5: gap closure - re-read the same window should not need
	// any further vendor fetch (the store already has everything).
	vendor.rows = nil
	candles2, err := r.Read(context.Background(), "sh.600519", domain.ResDay, mustDate("2024-01-02"), mustDate("2024-01-05"))
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if len(candles2) != 4 {
		t.Fatalf("expected 4 candles on re-read with no vendor rows, got %d", len(candles2))
	}
}

func TestReadSnapsNonTradingEndpoints(t *testing.T) {
	// S2: Jan 1 (holiday) / Jan 6 (Saturday) snap inward to the same window as S1.
	cal := calendar.New()
	hist := newMemStore()
	vendor := &fakeBulkVendor{rows: []bulk.Row{
		dayRow(mustDate("2024-01-02"), 10),
		dayRow(mustDate("2024-01-03"), 11),
		dayRow(mustDate("2024-01-04"), 12),
		dayRow(mustDate("2024-01-05"), 13),
	}}
	r := New(hist, hist, cal, noRegistry{}, vendor, nil, func() time.Time { return mustDate("2030-01-01") })

	candles, err := r.Read(context.Background(), "sh.600519", domain.ResDay, mustDate("2024-01-01"), mustDate("2024-01-06"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(candles) != 4 {
		t.Fatalf("expected 4 candles after snap, got %d", len(candles))
	}
}

func TestReadIntradaySplitAndSealPromotion(t *testing.T) {
	// S3 then S4: 60m resolution, vendor reports 10:30/11:30/14:00/15:00.
	cal := calendar.New()
	st := newMemStore()
	client := &fakeIntradayClient{rows: []intraday.Row{
		{EndTS: mustDateTime("2025-12-22 10:30"), Close: 1},
		{EndTS: mustDateTime("2025-12-22 11:30"), Close: 2},
		{EndTS: mustDateTime("2025-12-22 14:00"), Close: 3},
		{EndTS: mustDateTime("2025-12-22 15:00"), Close: 4},
	}}
	vendor := intraday.New(client)

	now1 := mustDateTime("2025-12-22 10:45")
	rtr := router.New(st, st, st, vendor, func() time.Time { return now1 })
	bulkVendor := &fakeBulkVendor{}
	r := New(st, st, cal, noRegistry{}, bulkVendor, rtr, func() time.Time { return now1 })

	candles, err := r.Read(context.Background(), "sh.600519", domain.Res60Min, mustDate("2025-12-22"), mustDate("2025-12-22"))
	if err != nil {
		t.Fatalf("Read at t1: %v", err)
	}
	if len(candles) != 4 {
		t.Fatalf("expected all 4 end_ts present in merged output, got %d", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].EndTS.After(candles[i-1].EndTS) {
			t.Errorf("merged output not strictly increasing at index %d", i)
		}
	}
	seen := map[time.Time]int{}
	for _, c := range candles {
		seen[c.EndTS]++
	}
	for ts, n := range seen {
		if n != 1 {
			t.Errorf("end_ts %v appeared %d times, want 1", ts, n)
		}
	}

	// S4: re-read after 11:30 has sealed.
	now2 := mustDateTime("2025-12-22 11:31")
	rtr2 := router.New(st, st, st, vendor, func() time.Time { return now2 })
	r2 := New(st, st, cal, noRegistry{}, bulkVendor, rtr2, func() time.Time { return now2 })

	candles2, err := r2.Read(context.Background(), "sh.600519", domain.Res60Min, mustDate("2025-12-22"), mustDate("2025-12-22"))
	if err != nil {
		t.Fatalf("Read at t2: %v", err)
	}
	if len(candles2) != 4 {
		t.Fatalf("expected 4 distinct end_ts after seal promotion, got %d", len(candles2))
	}
	seen2 := map[time.Time]int{}
	for _, c := range candles2 {
		seen2[c.EndTS]++
	}
	for ts, n := range seen2 {
		if n != 1 {
			t.Errorf("end_ts %v appeared %d times after seal promotion, want 1", ts, n)
		}
	}

	histRows, err := st.QueryHistorical(context.Background(), "sh.600519", domain.Res60Min, mustDate("2025-12-22"), mustDate("2025-12-22"))
	if err != nil {
		t.Fatalf("QueryHistorical: %v", err)
	}
	histEndTS := map[time.Time]bool{}
	for _, c := range histRows {
		histEndTS[c.EndTS] = true
	}
	if !histEndTS[mustDateTime("2025-12-22 10:30")] || !histEndTS[mustDateTime("2025-12-22 11:30")] {
		t.Errorf("expected 10:30 and 11:30 promoted to historical by t2, got historical rows %v", histEndTS)
	}
}

func TestReadPreListClamping(t *testing.T) {
	// S5: list_date clamps the requested begin upward before any vendor call.
	cal := calendar.New()
	hist := newMemStore()
	listDate := mustDate("2021-06-10")
	registry := fixedRegistry{entry: &domain.UniverseEntry{Symbol: "sh.600519", ListDate: &listDate}}
	vendor := &fakeBulkVendor{rows: []bulk.Row{dayRow(mustDate("2021-06-10"), 5)}}

	r := New(hist, hist, cal, registry, vendor, nil, func() time.Time { return mustDate("2030-01-01") })
	candles, err := r.Read(context.Background(), "sh.600519", domain.ResDay, mustDate("2020-01-01"), mustDate("2021-07-01"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for _, c := range candles {
		if c.EndTS.Before(listDate) {
			t.Errorf("candle %v precedes list_date %v", c.EndTS, listDate)
		}
	}
}

type fixedRegistry struct {
	entry *domain.UniverseEntry
}

func (f fixedRegistry) GetBySymbol(ctx context.Context, symbol domain.Symbol) (*domain.UniverseEntry, error) {
	return f.entry, nil
}

type fakeIntradayClient struct {
	rows []intraday.Row
}

func (c *fakeIntradayClient) FetchStock(ctx context.Context, symbol domain.Symbol, res domain.Resolution) ([]intraday.Row, error) {
	return c.rows, nil
}

func (c *fakeIntradayClient) FetchIndex(ctx context.Context, symbol domain.Symbol, res domain.Resolution) ([]intraday.Row, error) {
	return c.rows, nil
}

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func mustDateTime(s string) time.Time {
	d, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return d
}
