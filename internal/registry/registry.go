// Package registry implements the universe registry ingestion pipeline:
// normalising raw exchange listing rows into UniverseEntry records
// (code prefixing, type classification, pinyin derivation) and upserting
// them through the registry repository.
package registry

import (
	"context"
	"strings"
	"time"

	"github.com/mozillazg/go-pinyin"

	"aklineservice/internal/domain"
	"aklineservice/pkg/log"
)

// Writer is the registry repository surface ingestion writes through.
type Writer interface {
	BulkUpsert(ctx context.Context, entries []domain.UniverseEntry) error
}

// Exchange identifies which source listing a RawListing came from. It
// supplies the market prefix for codes that arrive bare and tags the
// per-source ingestion counts.
type Exchange string

const (
	ExchangeShanghai Exchange = "sh"
	ExchangeShenzhen Exchange = "sz"
	ExchangeBeijing  Exchange = "bj"
)

// Source pairs one exchange's raw export with its exchange tag.
type Source struct {
	Exchange Exchange
	Listings []domain.RawListing
}

// Ingestor normalises and persists exchange listing exports.
type Ingestor struct {
	writer Writer
}

// New constructs an Ingestor.
func New(writer Writer) *Ingestor {
	return &Ingestor{writer: writer}
}

var pinyinArgs = pinyin.NewArgs()

func fullPinyin(name string) string {
	return strings.Join(pinyin.LazyPinyin(name, pinyinArgs), "")
}

func initialsPinyin(name string) string {
	args := pinyin.NewArgs()
	args.Style = pinyin.FirstLetter
	return strings.Join(pinyin.LazyPinyin(name, args), "")
}

// normalizeCode ensures code carries its exchange's "{market}." prefix; a
// code that already carries a market prefix is left untouched.
func normalizeCode(code string, exchange Exchange) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if strings.Contains(code, ".") {
		return code
	}
	return string(exchange) + "." + code
}

// classifyType applies the structural index-prefix rule to a normalised
// code, defaulting to stock.
func classifyType(symbol domain.Symbol) domain.SymbolType {
	if symbol.IsIndex() {
		return domain.TypeIndex
	}
	return domain.TypeStock
}

func parseListDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

// IngestListings normalises one or more exchange-source listings into
// UniverseEntry records and upserts them through the writer's own
// batching. Rows with an empty code or name are dropped. Returns the
// count of entries written.
func (ing *Ingestor) IngestListings(ctx context.Context, sources []Source) (int, error) {
	var entries []domain.UniverseEntry

	for _, src := range sources {
		kept := 0
		for _, raw := range src.Listings {
			name := strings.TrimSpace(raw.Name)
			code := normalizeCode(raw.Code, src.Exchange)
			if code == "" || name == "" {
				continue
			}
			symbol := domain.Symbol(code)
			entries = append(entries, domain.UniverseEntry{
				Symbol:         symbol,
				Name:           name,
				Type:           classifyType(symbol),
				ListDate:       parseListDate(raw.ListDate),
				Pinyin:         fullPinyin(name),
				PinyinInitials: initialsPinyin(name),
			})
			kept++
		}
		log.BackfillInfo("", "ingest_listings", "exchange listing normalised", map[string]interface{}{
			"exchange": src.Exchange, "raw_rows": len(src.Listings), "kept_rows": kept,
		})
	}

	if len(entries) == 0 {
		return 0, nil
	}
	if err := ing.writer.BulkUpsert(ctx, entries); err != nil {
		return 0, err
	}
	log.BackfillInfo("", "ingest_listings", "registry upsert complete", map[string]interface{}{
		"entries": len(entries),
	})
	return len(entries), nil
}

// IngestETFs tags a slice of (code, name) pairs as ETFs explicitly, since
// an ETF code carries no structural marker that would let classifyType
// distinguish it from an ordinary stock.
func (ing *Ingestor) IngestETFs(ctx context.Context, listings []domain.RawListing, exchange Exchange) (int, error) {
	var entries []domain.UniverseEntry
	for _, raw := range listings {
		name := strings.TrimSpace(raw.Name)
		code := normalizeCode(raw.Code, exchange)
		if code == "" || name == "" {
			continue
		}
		entries = append(entries, domain.UniverseEntry{
			Symbol:         domain.Symbol(code),
			Name:           name,
			Type:           domain.TypeETF,
			ListDate:       parseListDate(raw.ListDate),
			Pinyin:         fullPinyin(name),
			PinyinInitials: initialsPinyin(name),
		})
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := ing.writer.BulkUpsert(ctx, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}
