package router

import (
	"context"
	"testing"
	"time"

	"aklineservice/internal/domain"
	"aklineservice/internal/store"
	"aklineservice/internal/vendors/intraday"
)

type fakeHist struct {
	upserted []domain.Candle
	today    map[string]int
}

func (f *fakeHist) QueryHistorical(ctx context.Context, symbol domain.Symbol, res domain.Resolution, b, e time.Time) ([]domain.Candle, error) {
	return nil, nil
}
func (f *fakeHist) UpsertHistorical(ctx context.Context, res domain.Resolution, batch []domain.Candle) error {
	f.upserted = append(f.upserted, batch...)
	return nil
}
func (f *fakeHist) BulkLoadHistorical(ctx context.Context, res domain.Resolution, batch []domain.Candle) error {
	return f.UpsertHistorical(ctx, res, batch)
}
func (f *fakeHist) CountHistoricalToday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) (int, error) {
	return f.today[string(symbol)], nil
}

type fakeIntra struct {
	upserted []store.IntradayRow
	swept    bool
}

func (f *fakeIntra) QueryIntraday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) ([]domain.Candle, error) {
	return nil, nil
}
func (f *fakeIntra) UpsertIntraday(ctx context.Context, res domain.Resolution, batch []store.IntradayRow) error {
	f.upserted = append(f.upserted, batch...)
	return nil
}
func (f *fakeIntra) SweepIntraday(ctx context.Context, before time.Time) error {
	f.swept = true
	return nil
}
func (f *fakeIntra) CountIntraday(ctx context.Context, symbol domain.Symbol, res domain.Resolution, today time.Time) (int, error) {
	return len(f.upserted), nil
}

type fakeClient struct {
	rows []intraday.Row
}

func (c *fakeClient) FetchStock(ctx context.Context, symbol domain.Symbol, res domain.Resolution) ([]intraday.Row, error) {
	return c.rows, nil
}
func (c *fakeClient) FetchIndex(ctx context.Context, symbol domain.Symbol, res domain.Resolution) ([]intraday.Row, error) {
	return c.rows, nil
}

func TestRefreshRoutesSealedAndUnsealed(t *testing.T) {
	now := time.Date(2025, 12, 22, 10, 45, 0, 0, time.UTC)
	today := time.Date(2025, 12, 22, 0, 0, 0, 0, time.UTC)

	client := &fakeClient{rows: []intraday.Row{
		{EndTS: time.Date(2025, 12, 22, 10, 30, 0, 0, time.UTC), Close: 10},
		{EndTS: time.Date(2025, 12, 22, 11, 30, 0, 0, time.UTC), Close: 11},
		{EndTS: time.Date(2025, 12, 22, 14, 0, 0, 0, time.UTC), Close: 12},
		{EndTS: time.Date(2025, 12, 22, 15, 0, 0, 0, time.UTC), Close: 13},
	}}
	hist := &fakeHist{today: map[string]int{}}
	intra := &fakeIntra{}
	vendor := intraday.New(client)

	r := New(hist, intra, hist, vendor, func() time.Time { return now })
	if err := r.Refresh(context.Background(), "sh.600519", domain.Res60Min, false); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if len(hist.upserted) != 1 {
		t.Fatalf("expected 1 sealed candle routed to historical, got %d", len(hist.upserted))
	}
	if len(intra.upserted) != 3 {
		t.Fatalf("expected 3 unsealed candles routed to intraday, got %d", len(intra.upserted))
	}
	_ = today
}

func TestRefreshShortCircuitsWhenFresh(t *testing.T) {
	now := time.Date(2025, 12, 22, 10, 45, 0, 0, time.UTC)
	client := &fakeClient{rows: []intraday.Row{{EndTS: now, Close: 1}}}
	hist := &fakeHist{today: map[string]int{"sh.600519": 1}}
	intra := &fakeIntra{}
	vendor := intraday.New(client)

	r := New(hist, intra, hist, vendor, func() time.Time { return now })
	if err := r.Refresh(context.Background(), "sh.600519", domain.Res60Min, false); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(hist.upserted) != 0 || len(intra.upserted) != 0 {
		t.Errorf("expected vendor call to be short-circuited, got hist=%d intra=%d", len(hist.upserted), len(intra.upserted))
	}
}

func TestRefreshIndexMinuteUnsupported(t *testing.T) {
	now := time.Date(2025, 12, 22, 10, 45, 0, 0, time.UTC)
	client := &fakeClient{}
	hist := &fakeHist{today: map[string]int{}}
	intra := &fakeIntra{}
	vendor := intraday.New(client)

	r := New(hist, intra, hist, vendor, func() time.Time { return now })
	if err := r.Refresh(context.Background(), "sh.000001", domain.Res60Min, true); err != nil {
		t.Fatalf("Refresh should no-op on unsupported combination, got error: %v", err)
	}
}
