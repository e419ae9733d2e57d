package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"aklineservice/internal/domain"
	"aklineservice/internal/vendors/bulk"
)

type fakeRegistry struct {
	entries []domain.UniverseEntry
}

func (f fakeRegistry) All(ctx context.Context) ([]domain.UniverseEntry, error) {
	return f.entries, nil
}

type fakeVendor struct {
	loginCalls  int
	logoutCalls int
	failSymbol  domain.Symbol
}

func (v *fakeVendor) Login(ctx context.Context) error {
	v.loginCalls++
	return nil
}

func (v *fakeVendor) Relogin(ctx context.Context) error {
	v.loginCalls++
	return nil
}

func (v *fakeVendor) Logout(ctx context.Context) error {
	v.logoutCalls++
	return nil
}

func (v *fakeVendor) Fetch(ctx context.Context, symbol domain.Symbol, res domain.Resolution, begin, end time.Time, adj bulk.Adjustment) ([]bulk.Row, error) {
	if symbol == v.failSymbol {
		return nil, errors.New("vendor unavailable")
	}
	return []bulk.Row{{EndTS: end, Open: 1, High: 1, Low: 1, Close: 1, Volume: 100, Amount: 100}}, nil
}

type fakeHist struct {
	existing  []domain.Candle
	upserts   int
	bulkLoads int
}

func (f *fakeHist) QueryHistorical(ctx context.Context, symbol domain.Symbol, res domain.Resolution, b, e time.Time) ([]domain.Candle, error) {
	return f.existing, nil
}

func (f *fakeHist) UpsertHistorical(ctx context.Context, res domain.Resolution, batch []domain.Candle) error {
	f.upserts++
	return nil
}

func (f *fakeHist) BulkLoadHistorical(ctx context.Context, res domain.Resolution, batch []domain.Candle) error {
	f.bulkLoads++
	return nil
}

func symbols(n int) []domain.UniverseEntry {
	names := []domain.Symbol{"sh.600001", "sh.600002", "sh.600003", "sh.600004", "sh.600005"}
	out := make([]domain.UniverseEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.UniverseEntry{Symbol: names[i], Type: domain.TypeStock})
	}
	return out
}

func TestRunSessionRotation(t *testing.T) {
	// S6: --relogin-interval=2 over 5 symbols. Logins observed: at start
	// and after the 2nd and 4th symbol. Logout once at end. Symbol 3's
	// failure does not abort symbols 4-5.
	registry := fakeRegistry{entries: symbols(5)}
	vendor := &fakeVendor{failSymbol: "sh.600003"}
	hist := &fakeHist{}

	d := New(hist, registry, vendor, nil, Config{Delay: 0, ReloginInterval: 2}, func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }, func(time.Duration) {})

	report, err := d.Run(context.Background(), []domain.Resolution{domain.ResDay}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if vendor.loginCalls != 3 {
		t.Errorf("expected 3 login calls (start + after symbol 2 + after symbol 4), got %d", vendor.loginCalls)
	}
	if vendor.logoutCalls != 1 {
		t.Errorf("expected exactly 1 logout call, got %d", vendor.logoutCalls)
	}
	if report.Processed != 5 {
		t.Errorf("expected 5 symbols processed, got %d", report.Processed)
	}
	if report.Succeeded != 4 {
		t.Errorf("expected 4 successful symbols, got %d", report.Succeeded)
	}
	if len(report.Failed) != 1 || report.Failed[0].Symbol != "sh.600003" {
		t.Errorf("expected symbol sh.600003 recorded as the sole failure, got %v", report.Failed)
	}
}

func TestRunResumableStartIndex(t *testing.T) {
	registry := fakeRegistry{entries: symbols(5)}
	vendor := &fakeVendor{}
	hist := &fakeHist{}

	d := New(hist, registry, vendor, nil, Config{ReloginInterval: 300}, func() time.Time { return time.Now() }, func(time.Duration) {})

	report, err := d.Run(context.Background(), []domain.Resolution{domain.ResDay}, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Processed != 2 {
		t.Errorf("expected only the 2 symbols from index 3 onward, got %d", report.Processed)
	}
}

func TestRunListDateWidensWindow(t *testing.T) {
	defaultStart := time.Date(2004, 1, 1, 0, 0, 0, 0, time.UTC)
	earlyList := time.Date(1991, 4, 3, 0, 0, 0, 0, time.UTC)
	lateList := time.Date(2021, 6, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		listDate  *time.Time
		wantBegin time.Time
	}{
		{"listed before default start", &earlyList, earlyList},
		{"listed after default start", &lateList, defaultStart},
		{"unknown list date", nil, defaultStart},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			registry := fakeRegistry{entries: []domain.UniverseEntry{{Symbol: "sh.600519", ListDate: tc.listDate}}}
			var capturedBegin time.Time
			vendor := &capturingVendor{capture: &capturedBegin}
			hist := &fakeHist{}

			d := New(hist, registry, vendor, nil, Config{DefaultStart: defaultStart}, func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }, func(time.Duration) {})

			if _, err := d.Run(context.Background(), []domain.Resolution{domain.ResDay}, 0); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !capturedBegin.Equal(tc.wantBegin) {
				t.Errorf("fetch begin = %v, want %v", capturedBegin, tc.wantBegin)
			}
		})
	}
}

func TestRunUsesCopyPathForFirstIngestion(t *testing.T) {
	registry := fakeRegistry{entries: symbols(1)}
	vendor := &fakeVendor{}
	hist := &fakeHist{}

	d := New(hist, registry, vendor, nil, Config{}, func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }, func(time.Duration) {})

	if _, err := d.Run(context.Background(), []domain.Resolution{domain.ResDay}, 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if hist.bulkLoads != 1 || hist.upserts != 0 {
		t.Errorf("empty store should take the COPY path, got bulkLoads=%d upserts=%d", hist.bulkLoads, hist.upserts)
	}
}

func TestRunUsesUpsertPathOnRerun(t *testing.T) {
	registry := fakeRegistry{entries: symbols(1)}
	vendor := &fakeVendor{}
	hist := &fakeHist{existing: []domain.Candle{{Symbol: "sh.600001", Resolution: domain.ResDay}}}

	d := New(hist, registry, vendor, nil, Config{}, func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }, func(time.Duration) {})

	if _, err := d.Run(context.Background(), []domain.Resolution{domain.ResDay}, 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if hist.upserts != 1 || hist.bulkLoads != 0 {
		t.Errorf("pre-existing rows should take the upsert path, got bulkLoads=%d upserts=%d", hist.bulkLoads, hist.upserts)
	}
}

func TestRunMaxSymbolsCapsRemainingWalk(t *testing.T) {
	registry := fakeRegistry{entries: symbols(5)}
	vendor := &fakeVendor{}
	hist := &fakeHist{}

	d := New(hist, registry, vendor, nil, Config{MaxSymbols: 2}, func() time.Time { return time.Now() }, func(time.Duration) {})

	report, err := d.Run(context.Background(), []domain.Resolution{domain.ResDay}, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Processed != 2 {
		t.Errorf("expected the cap to apply after the start-index slice, got %d processed", report.Processed)
	}
}

// orderedRefresher records when Refresh ran relative to the registry load.
type orderedRefresher struct {
	refreshed bool
	order     *[]string
}

func (r *orderedRefresher) Refresh(ctx context.Context) (int, error) {
	r.refreshed = true
	*r.order = append(*r.order, "refresh")
	return 3, nil
}

type orderedRegistry struct {
	entries []domain.UniverseEntry
	order   *[]string
}

func (r orderedRegistry) All(ctx context.Context) ([]domain.UniverseEntry, error) {
	*r.order = append(*r.order, "all")
	return r.entries, nil
}

func TestRunRefreshesUniverseBeforeLoadingIt(t *testing.T) {
	var order []string
	refresher := &orderedRefresher{order: &order}
	registry := orderedRegistry{entries: symbols(1), order: &order}
	vendor := &fakeVendor{}
	hist := &fakeHist{}

	d := New(hist, registry, vendor, refresher, Config{}, func() time.Time { return time.Now() }, func(time.Duration) {})

	if _, err := d.Run(context.Background(), []domain.Resolution{domain.ResDay}, 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !refresher.refreshed {
		t.Fatalf("expected the universe refresher to run")
	}
	if len(order) != 2 || order[0] != "refresh" || order[1] != "all" {
		t.Errorf("expected refresh before registry load, got order %v", order)
	}
}

type capturingVendor struct {
	capture *time.Time
}

func (v *capturingVendor) Login(ctx context.Context) error   { return nil }
func (v *capturingVendor) Relogin(ctx context.Context) error { return nil }
func (v *capturingVendor) Logout(ctx context.Context) error  { return nil }
func (v *capturingVendor) Fetch(ctx context.Context, symbol domain.Symbol, res domain.Resolution, begin, end time.Time, adj bulk.Adjustment) ([]bulk.Row, error) {
	*v.capture = begin
	return nil, nil
}
