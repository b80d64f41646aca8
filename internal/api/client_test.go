package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvelab/monbot/internal/domain"
)

func wrap(t *testing.T, rows any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"data": map[string]any{"data": rows},
	})
	require.NoError(t, err)
	return body
}

func TestUserOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/user/0xabc", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "", r.URL.Query().Get("offset"))
		w.Write(wrap(t, []map[string]any{{
			"marketAddress": "0xmkt",
			"orderid":       501,
			"owner":         "0xabc",
			"size":          1000,
			"price":         180050,
			"isbuy":         true,
			"remainingsize": 400,
			"iscanceled":    false,
			"blocknumber":   912,
		}}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	orders, err := c.UserOrders(context.Background(), "0xabc", 50, 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, uint64(501), orders[0].OrderID)
	assert.Equal(t, int64(400), orders[0].RemainingSize)
	assert.True(t, orders[0].IsBuy)
}

func TestOrdersByCloidsPrefixesHex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders/client", r.URL.Path)

		var req struct {
			ClientOrderIDs []string `json:"clientOrderIds"`
			MarketAddress  string   `json:"marketAddress"`
			UserAddress    string   `json:"userAddress"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"0xmm_1", "0xdeadbeef"}, req.ClientOrderIDs)
		assert.Equal(t, "0xmkt", req.MarketAddress)

		w.Write(wrap(t, []map[string]any{}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.OrdersByCloids(context.Background(), "0xmkt", "0xabc", []string{"mm_1", "0xdeadbeef"})
	require.NoError(t, err)
}

func TestOrdersByIDsRepeatsQueryParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/market/0xmkt", r.URL.Path)
		assert.Equal(t, []string{"501", "502"}, r.URL.Query()["orderIds"])
		w.Write(wrap(t, []map[string]any{}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.OrdersByIDs(context.Background(), "0xmkt", []uint64{501, 502})
	require.NoError(t, err)
}

func TestUserTradesWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0xmkt/trades/user/0xabc", r.URL.Path)
		assert.Equal(t, "1700000000", r.URL.Query().Get("startTimestamp"))
		w.Write(wrap(t, []map[string]any{{
			"orderid":    501,
			"filledsize": 600,
			"price":      180050,
			"isbuy":      false,
		}}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	trades, err := c.UserTrades(context.Background(), "0xmkt", "0xabc", 1700000000, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(600), trades[0].FilledSize)
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such user", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.UserOrders(context.Background(), "0xmissing", 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
