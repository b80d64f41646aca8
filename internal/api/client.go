// Package api is the REST client for the exchange indexer. The indexer
// lags the chain by a block or two, so its answers are hints for
// operator tooling and reconciliation checks, never the source of truth
// for live order state.
package api

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

	"github.com/curvelab/monbot/internal/domain"
)

// Client queries the indexer REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an indexer client. baseURL is the API root, e.g.
// "https://api.example.exchange".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// UserOrders returns orders placed by the given address, newest first.
// limit and offset page through the result; zero values are omitted.
func (c *Client) UserOrders(ctx context.Context, user string, limit, offset int) ([]IndexedOrder, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	path := fmt.Sprintf("/orders/user/%s", user)
	body, err := c.doRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, fmt.Errorf("api: user orders: %w", err)
	}
	return decodeList[IndexedOrder](body)
}

// ActiveOrders returns the user's open orders.
func (c *Client) ActiveOrders(ctx context.Context, user string, limit, offset int) ([]IndexedOrder, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	path := fmt.Sprintf("/%s/user/orders/active", user)
	body, err := c.doRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, fmt.Errorf("api: active orders: %w", err)
	}
	return decodeList[IndexedOrder](body)
}

// OrdersByIDs returns the given exchange order ids on a market.
func (c *Client) OrdersByIDs(ctx context.Context, market string, orderIDs []uint64) ([]IndexedOrder, error) {
	q := url.Values{}
	for _, id := range orderIDs {
		q.Add("orderIds", strconv.FormatUint(id, 10))
	}

	path := fmt.Sprintf("/orders/market/%s", market)
	body, err := c.doRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, fmt.Errorf("api: orders by ids: %w", err)
	}
	return decodeList[IndexedOrder](body)
}

// OrdersByCloids returns the orders the indexer has bound to the given
// client order ids. The indexer stores cloids 0x-prefixed.
func (c *Client) OrdersByCloids(ctx context.Context, market, user string, cloids []string) ([]IndexedOrder, error) {
	formatted := make([]string, len(cloids))
	for i, cloid := range cloids {
		if strings.HasPrefix(cloid, "0x") {
			formatted[i] = cloid
		} else {
			formatted[i] = "0x" + cloid
		}
	}

	reqBody := map[string]any{
		"clientOrderIds": formatted,
		"marketAddress":  market,
		"userAddress":    user,
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/orders/client", nil, reqBody)
	if err != nil {
		return nil, fmt.Errorf("api: orders by cloids: %w", err)
	}
	return decodeList[IndexedOrder](body)
}

// UserTrades returns the user's fills on a market. start and end bound
// the window by unix timestamp; zero values are omitted.
func (c *Client) UserTrades(ctx context.Context, market, user string, start, end int64) ([]IndexedTrade, error) {
	q := url.Values{}
	if start > 0 {
		q.Set("startTimestamp", strconv.FormatInt(start, 10))
	}
	if end > 0 {
		q.Set("endTimestamp", strconv.FormatInt(end, 10))
	}

	path := fmt.Sprintf("/%s/trades/user/%s", market, user)
	body, err := c.doRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, fmt.Errorf("api: user trades: %w", err)
	}
	return decodeList[IndexedTrade](body)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, sends, and reads an HTTP request against the
// indexer, returning the raw response body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if statusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, string(body))
	}
	return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
}

// decodeList unwraps the indexer's double data envelope.
func decodeList[T any](body []byte) ([]T, error) {
	var env envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("api: decode response: %w", err)
	}
	return env.Data.Data, nil
}
