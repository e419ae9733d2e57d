package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"aklineservice/internal/domain"
)

// HTTPSession is the concrete Session transport: a thin HTTP facade in
// front of the bulk-history vendor's session-authenticated API
// (login / history query / logout).
type HTTPSession struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	sessionToken string
}

// NewHTTPSession constructs an HTTPSession against baseURL.
func NewHTTPSession(baseURL, username, password string, timeout time.Duration) *HTTPSession {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSession{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionToken string `json:"session_token"`
}

// Login authenticates and stores the returned session token.
func (s *HTTPSession) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Username: s.username, Password: s.password})
	if err != nil {
		return fmt.Errorf("marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: unexpected status %d", resp.StatusCode)
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	s.sessionToken = out.SessionToken
	return nil
}

// Logout tears down the session token.
func (s *HTTPSession) Logout(ctx context.Context) error {
	if s.sessionToken == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("build logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.sessionToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer resp.Body.Close()
	s.sessionToken = ""
	return nil
}

type historyRow struct {
	EndTS  string   `json:"end_ts"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume int64    `json:"volume"`
	Amount float64  `json:"amount"`
	Turn   *float64 `json:"turn"`
}

// Fetch pulls [begin, end] for (symbol, resolution) under the active
// session token. A 401 response is surfaced as a "session expired"-shaped
// error so Adapter.Fetch's IsSessionExpired check can trigger
// relogin-and-retry.
func (s *HTTPSession) Fetch(ctx context.Context, symbol domain.Symbol, res domain.Resolution, begin, end time.Time, adj Adjustment) ([]Row, error) {
	q := url.Values{}
	q.Set("code", string(symbol))
	q.Set("frequency", string(res))
	q.Set("start_date", begin.Format("2006-01-02"))
	q.Set("end_date", end.Format("2006-01-02"))
	q.Set("adjustflag", adjustmentFlag(adj))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/history?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.sessionToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("session expired: vendor rejected session token")
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("history request failed: status %d: %s", resp.StatusCode, string(b))
	}

	var rows []historyRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		endTS, err := time.ParseInLocation("2006-01-02", r.EndTS, time.Local)
		if err != nil {
			endTS, err = time.ParseInLocation("2006-01-02 15:04:05", r.EndTS, time.Local)
			if err != nil {
				continue
			}
		}
		out = append(out, Row{
			EndTS: endTS, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
			Volume: r.Volume, Amount: r.Amount, Turn: r.Turn,
		})
	}
	return out, nil
}

func adjustmentFlag(adj Adjustment) string {
	switch adj {
	case AdjustBackward:
		return "2"
	case AdjustNone:
		return "3"
	default:
		return "1"
	}
}

var _ Session = (*HTTPSession)(nil)
