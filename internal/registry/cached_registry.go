package registry

import (
	"context"
	"encoding/json"
	"time"

	"aklineservice/internal/domain"
	"aklineservice/pkg/cache"
	"aklineservice/pkg/log"
)

// SymbolLookup is the registry surface the reader drives for list_date
// clamping and stock/index classification.
type SymbolLookup interface {
	GetBySymbol(ctx context.Context, symbol domain.Symbol) (*domain.UniverseEntry, error)
}

const symbolLookupTTL = 15 * time.Minute

// CachedRegistry wraps a SymbolLookup with the two-tier cache (pkg/cache),
// memoising symbol -> UniverseEntry lookups: every read resolves its
// symbol through the registry before snapping, so this is the single
// hottest path into the registry.
type CachedRegistry struct {
	inner SymbolLookup
	cache cache.API
}

// NewCachedRegistry constructs a CachedRegistry.
func NewCachedRegistry(inner SymbolLookup, c cache.API) *CachedRegistry {
	return &CachedRegistry{inner: inner, cache: c}
}

type cachedEntry struct {
	Found bool
	Entry *domain.UniverseEntry
}

// GetBySymbol serves from cache when present, otherwise delegates and
// caches the result (including the negative "unknown symbol" case, so a
// hot loop over an unlisted symbol doesn't keep hitting the database).
func (r *CachedRegistry) GetBySymbol(ctx context.Context, symbol domain.Symbol) (*domain.UniverseEntry, error) {
	key := "registry:symbol:" + string(symbol)

	if raw, ok := r.cache.Get(ctx, key); ok {
		var ce cachedEntry
		if err := json.Unmarshal([]byte(raw), &ce); err == nil {
			return ce.Entry, nil
		}
		log.Warn("registry cache: failed to decode cached entry for %s, falling through", symbol)
	}

	entry, err := r.inner.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(cachedEntry{Found: entry != nil, Entry: entry})
	if err == nil {
		r.cache.SetWithDuration(ctx, key, string(encoded), symbolLookupTTL)
	}
	return entry, nil
}

var _ SymbolLookup = (*CachedRegistry)(nil)
