package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
)

// APIError represents an error response from the exchange REST API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429 || e.StatusCode == 418
}

// RESTClient provides access to the spot and futures REST APIs.
type RESTClient struct {
	spotURL    string
	futuresURL string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// RESTOption configures a RESTClient.
type RESTOption func(*RESTClient)

// NewRESTClient creates a REST client from the exchange config.
func NewRESTClient(cfg config.ExchangeConfig, opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		spotURL:    cfg.SpotRestURL,
		futuresURL: cfg.FuturesRestURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:       slog.Default(),
		maxRetries:   cfg.MaxRetries,
		retryBackoff: time.Second,
	}
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = 30 * time.Second
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) RESTOption {
	return func(c *RESTClient) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) RESTOption {
	return func(c *RESTClient) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RESTOption {
	return func(c *RESTClient) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) RESTOption {
	return func(c *RESTClient) {
		c.httpClient = hc
	}
}

func (c *RESTClient) baseURL(market Market) string {
	if market == MarketFutures {
		return c.futuresURL
	}
	return c.spotURL
}

// path joins the market-specific API prefix with an endpoint name.
func (c *RESTClient) path(market Market, spotPath, futuresPath string) string {
	if market == MarketFutures {
		return futuresPath
	}
	return spotPath
}

// doRequest performs an HTTP request. When signed is true the query is
// timestamped and HMAC-signed with the account secret.
func (c *RESTClient) doRequest(ctx context.Context, market Market, path string, query url.Values, signed bool) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	if signed {
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		mac := hmac.New(sha256.New, []byte(c.apiSecret))
		mac.Write([]byte(query.Encode()))
		query.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	}

	fullURL := c.baseURL(market) + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	return body, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *RESTClient) doWithRetry(ctx context.Context, market Market, path string, query url.Values, signed bool) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, market, path, query, signed)
		if err == nil {
			return body, nil
		}

		lastErr = err

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// get performs a GET request with retries and decodes the result.
func (c *RESTClient) get(ctx context.Context, market Market, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, market, path, query, false)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// ServerTime returns the exchange clock in ms.
func (c *RESTClient) ServerTime(ctx context.Context, market Market) (int64, error) {
	var out restServerTime
	p := c.path(market, "/api/v3/time", "/fapi/v1/time")
	if err := c.get(ctx, market, p, nil, &out); err != nil {
		return 0, err
	}
	return out.ServerTime, nil
}

// Klines fetches one page of bars. symbol is the full canonical form
// ("BINANCE:BTCUSDT"), rawSymbol the exchange form, resolution the chart
// form; interval conversion happens at the caller so the page loop can
// log both.
func (c *RESTClient) Klines(ctx context.Context, market Market, symbol, rawSymbol, resolution, interval string, from, to int64, limit int) ([]model.Kline, error) {
	query := url.Values{}
	query.Set("symbol", rawSymbol)
	query.Set("interval", interval)
	query.Set("startTime", strconv.FormatInt(from, 10))
	query.Set("endTime", strconv.FormatInt(to, 10))
	query.Set("limit", strconv.Itoa(limit))

	var rows []restKline
	p := c.path(market, "/api/v3/klines", "/fapi/v1/klines")
	if err := c.get(ctx, market, p, query, &rows); err != nil {
		return nil, err
	}

	out := make([]model.Kline, 0, len(rows))
	for _, row := range rows {
		k, err := row.toModel(symbol, resolution)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// SpotTickers fetches the 24hr tickers for a symbol batch in one call.
func (c *RESTClient) SpotTickers(ctx context.Context, rawSymbols []string) ([]restTicker, error) {
	list, err := json.Marshal(rawSymbols)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("symbols", string(list))

	var out []restTicker
	if err := c.get(ctx, MarketSpot, "/api/v3/ticker/24hr", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FuturesTickers gathers 24hr tickers one symbol at a time; the futures
// endpoint has no batch form.
func (c *RESTClient) FuturesTickers(ctx context.Context, rawSymbols []string) ([]restTicker, error) {
	out := make([]restTicker, len(rawSymbols))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, sym := range rawSymbols {
		g.Go(func() error {
			query := url.Values{}
			query.Set("symbol", sym)
			var t restTicker
			if err := c.get(gctx, MarketFutures, "/fapi/v1/ticker/24hr", query, &t); err != nil {
				return err
			}
			mu.Lock()
			out[i] = t
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExchangeInfo fetches the instrument catalogue for one market.
func (c *RESTClient) ExchangeInfo(ctx context.Context, exchange string, market Market) ([]model.SymbolInfo, error) {
	var out restExchangeInfo
	p := c.path(market, "/api/v3/exchangeInfo", "/fapi/v1/exchangeInfo")
	if err := c.get(ctx, market, p, nil, &out); err != nil {
		return nil, err
	}

	infos := make([]model.SymbolInfo, 0, len(out.Symbols))
	for _, s := range out.Symbols {
		infos = append(infos, s.toModel(exchange, market))
	}
	return infos, nil
}

// Account fetches the signed account snapshot for one market. The body is
// returned verbatim for storage alongside the extracted update time.
func (c *RESTClient) Account(ctx context.Context, market Market) (json.RawMessage, int64, error) {
	p := c.path(market, "/api/v3/account", "/fapi/v2/account")
	body, err := c.doWithRetry(ctx, market, p, nil, true)
	if err != nil {
		return nil, 0, err
	}

	var acct restAccount
	if err := json.Unmarshal(body, &acct); err != nil {
		return nil, 0, fmt.Errorf("unmarshal account: %w", err)
	}
	updateTime := acct.UpdateTime
	if updateTime == 0 {
		updateTime = time.Now().UnixMilli()
	}
	return body, updateTime, nil
}
