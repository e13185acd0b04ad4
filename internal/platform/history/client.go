// Package history is the client for the read-only price and trade history
// endpoints.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Client implements domain.HistoryClient against a TradingView UDF style
// candle endpoint and a JSON trades endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ domain.HistoryClient = (*Client)(nil)

// NewClient creates a client. requestsPerSecond <= 0 disables throttling.
//
// baseURL is the API root, e.g. "https://api.jetprotocol.io/v1".
func NewClient(baseURL string, requestsPerSecond float64) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// udfHistory is the UDF /history response. Arrays are parallel.
type udfHistory struct {
	Status  string    `json:"s"`
	Message string    `json:"errmsg,omitempty"`
	Time    []int64   `json:"t"`
	Open    []float64 `json:"o"`
	High    []float64 `json:"h"`
	Low     []float64 `json:"l"`
	Close   []float64 `json:"c"`
	Volume  []float64 `json:"v"`
}

// Candles returns OHLCV bars for symbol between from and to.
func (c *Client) Candles(ctx context.Context, symbol, resolution string, from, to time.Time) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", resolution)
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(to.Unix(), 10))

	body, err := c.doGet(ctx, "/tv/history?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("history: candles %s: %w", symbol, err)
	}

	var h udfHistory
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("history: decode candles: %w", err)
	}
	switch h.Status {
	case "ok":
	case "no_data":
		return []domain.Candle{}, nil
	default:
		return nil, fmt.Errorf("history: candles %s: status %q: %s", symbol, h.Status, h.Message)
	}

	n := len(h.Time)
	if len(h.Open) != n || len(h.High) != n || len(h.Low) != n || len(h.Close) != n {
		return nil, fmt.Errorf("history: candles %s: mismatched array lengths", symbol)
	}
	candles := make([]domain.Candle, n)
	for i := range n {
		candles[i] = domain.Candle{
			Time:  time.Unix(h.Time[i], 0).UTC(),
			Open:  h.Open[i],
			High:  h.High[i],
			Low:   h.Low[i],
			Close: h.Close[i],
		}
		if i < len(h.Volume) {
			candles[i].Volume = h.Volume[i]
		}
	}
	return candles, nil
}

type apiTrade struct {
	Side  string  `json:"side"`
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
	Time  int64   `json:"time"`
}

// RecentTrades returns the latest fills for market, newest first.
func (c *Client) RecentTrades(ctx context.Context, market string) ([]domain.RecentTrade, error) {
	body, err := c.doGet(ctx, "/trades/"+url.PathEscape(market))
	if err != nil {
		return nil, fmt.Errorf("history: trades %s: %w", market, err)
	}

	var raw []apiTrade
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("history: decode trades: %w", err)
	}
	trades := make([]domain.RecentTrade, 0, len(raw))
	for _, t := range raw {
		side := domain.OrderSideBuy
		if t.Side == "sell" || t.Side == "ask" {
			side = domain.OrderSideSell
		}
		trades = append(trades, domain.RecentTrade{
			Market: market,
			Side:   side,
			Price:  t.Price,
			Size:   t.Size,
			Time:   time.UnixMilli(t.Time).UTC(),
		})
	}
	return trades, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
