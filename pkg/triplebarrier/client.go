// Package triplebarrier is a Go SDK for the triplebarrier server's HTTP API.
package triplebarrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides a Go SDK for interacting with the tb-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("triplebarrier: %d %s", e.StatusCode, e.Message)
}

// Health checks GET /api/v1/health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Symbols lists the stored symbols of market; an empty market uses the
// server's configured one.
func (c *Client) Symbols(ctx context.Context, market string) (*SymbolsResponse, error) {
	path := "/api/v1/symbols"
	if market != "" {
		path += "?" + url.Values{"market": {market}}.Encode()
	}
	var out SymbolsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Strategies lists the strategies the server can run.
func (c *Client) Strategies(ctx context.Context) ([]string, error) {
	var out StrategiesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/strategies", nil, &out); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

// ListRuns returns up to limit stored runs, newest first. An empty symbol
// matches every symbol and a non-positive limit uses the server default.
func (c *Client) ListRuns(ctx context.Context, symbol string, limit int) ([]Run, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out RunsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// GetRun retrieves a stored run with its trades and ledger.
func (c *Client) GetRun(ctx context.Context, id int64) (*RunResponse, error) {
	var out RunResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/runs/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Backtest submits a replay.
func (c *Client) Backtest(ctx context.Context, req BacktestRequest) (*BacktestResponse, error) {
	var out BacktestResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtest", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Label requests triple-barrier outcomes for a series of bars.
func (c *Client) Label(ctx context.Context, req LabelRequest) (*LabelResponse, error) {
	var out LabelResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/label", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
