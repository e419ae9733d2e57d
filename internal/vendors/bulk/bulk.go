// Package bulk implements the bulk-history vendor adapter:
// session-authenticated, rate-limited, single concurrent session per
// process. The vendor may silently expire a session server-side; the
// adapter detects that case and re-logs in once before failing a fetch.
package bulk

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"aklineservice/internal/domain"
	"aklineservice/pkg/apperrors"
	"aklineservice/pkg/log"
)

// Adjustment selects the price-adjustment mode for a fetch.
type Adjustment int

const (
	AdjustForward Adjustment = iota // default
	AdjustBackward
	AdjustNone
)

// Row is one vendor-reported candle prior to adapter normalisation.
type Row struct {
	EndTS  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	Amount float64
	Turn   *float64
}

// Session is the underlying vendor session transport: a real client would
// implement this against the actual bulk-history API (e.g. a BaoStock- or
// Tushare-like provider). Its Fetch must return a sentinel error
// identifiable via IsSessionExpired when the server has silently expired
// the session.
type Session interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Fetch(ctx context.Context, symbol domain.Symbol, res domain.Resolution, begin, end time.Time, adj Adjustment) ([]Row, error)
}

// IsSessionExpired reports whether err signals that the vendor silently
// expired the session server-side. The vendor only distinguishes this
// case in its error message text.
func IsSessionExpired(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "session expired") || strings.Contains(msg, "not logged in") || strings.Contains(msg, "login")
}

// Adapter is the process-wide bulk-history adapter. The vendor allows one
// concurrent session per process, so every call (login, logout, fetch)
// is serialised through the adapter's mutex.
type Adapter struct {
	session    Session
	limiter    *rate.Limiter
	mu         sync.Mutex
	loggedIn   bool
	vendorName string
}

// New constructs a bulk adapter. ratePerSecond/burst size the adapter's
// rate limiter to the vendor's published request rate.
func New(session Session, ratePerSecond float64, burst int) *Adapter {
	return &Adapter{
		session:    session,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		vendorName: "bulk-history",
	}
}

// Login authenticates the single process-wide session.
func (a *Adapter) Login(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loggedIn {
		return nil
	}
	if err := a.session.Login(ctx); err != nil {
		return apperrors.NewVendorUnavailableError("bulk vendor login failed", err)
	}
	a.loggedIn = true
	log.VendorInfo(a.vendorName, "login", "bulk vendor session established", nil)
	return nil
}

// Logout tears down the session.
func (a *Adapter) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loggedIn {
		return nil
	}
	err := a.session.Logout(ctx)
	a.loggedIn = false
	log.VendorInfo(a.vendorName, "logout", "bulk vendor session closed", nil)
	if err != nil {
		return apperrors.NewVendorUnavailableError("bulk vendor logout failed", err)
	}
	return nil
}

// Relogin forces a fresh session regardless of current state, used by the
// backfill driver for its periodic relogin-interval rotation. Session
// expiry during a fetch is handled inside Fetch, not through Relogin.
func (a *Adapter) Relogin(ctx context.Context) error {
	a.mu.Lock()
	a.loggedIn = false
	a.mu.Unlock()
	return a.Login(ctx)
}

// Fetch pulls [begin, end] for (symbol, resolution) under the adapter's
// rate limit and session mutex. On a session-expired error it logs in
// again and retries exactly once; any other error fails the fetch.
func (a *Adapter) Fetch(ctx context.Context, symbol domain.Symbol, res domain.Resolution, begin, end time.Time, adj Adjustment) ([]Row, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewVendorUnavailableError("rate limit wait cancelled", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loggedIn {
		if err := a.session.Login(ctx); err != nil {
			return nil, apperrors.NewVendorUnavailableError("bulk vendor login failed", err)
		}
		a.loggedIn = true
	}

	rows, err := a.session.Fetch(ctx, symbol, res, begin, end, adj)
	if err != nil {
		if IsSessionExpired(err) {
			log.VendorWarn(a.vendorName, "fetch", "session expired, relogging in", map[string]interface{}{"symbol": symbol})
			a.loggedIn = false
			if loginErr := a.session.Login(ctx); loginErr != nil {
				return nil, apperrors.NewVendorUnavailableError("bulk vendor relogin failed", loginErr)
			}
			a.loggedIn = true
			rows, err = a.session.Fetch(ctx, symbol, res, begin, end, adj)
			if err != nil {
				return nil, apperrors.NewVendorUnavailableError("bulk vendor fetch failed after relogin", err)
			}
			return rows, nil
		}
		return nil, apperrors.NewVendorUnavailableError("bulk vendor fetch failed", err)
	}
	return rows, nil
}
