package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-engine-go/order"
)

func restPair(t *testing.T, handler http.HandlerFunc) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewRESTClient(srv.URL, "test-key", "test-secret")
	return c
}

func TestPlaceOrderSignsAndParses(t *testing.T) {
	var seen *http.Request
	c := restPair(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		w.Write([]byte(`{"orderId":12345,"clientOrderId":"cid-1"}`))
	})

	id, err := c.PlaceOrder(context.Background(), PlaceRequest{
		Instrument: "BTCUSDT",
		ClientID:   "cid-1",
		Side:       order.Buy,
		Price:      decimal.RequireFromString("100.5"),
		Size:       decimal.RequireFromString("0.25"),
	})
	require.NoError(t, err)
	assert.Equal(t, "12345", id)

	require.NotNil(t, seen)
	assert.Equal(t, http.MethodPost, seen.Method)
	assert.Equal(t, "test-key", seen.Header.Get("X-MBX-APIKEY"))
	q := seen.URL.Query()
	assert.Equal(t, "BTCUSDT", q.Get("symbol"))
	assert.Equal(t, "100.5", q.Get("price"))
	assert.Equal(t, "GTX", q.Get("timeInForce"))
	assert.NotEmpty(t, q.Get("signature"))
	assert.NotEmpty(t, q.Get("timestamp"))
}

func TestCancelMapsNotFound(t *testing.T) {
	c := restPair(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	err := c.CancelOrder(context.Background(), "BTCUSDT", "42")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListOpenOrders(t *testing.T) {
	c := restPair(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/openOrders", r.URL.Path)
		w.Write([]byte(`[
			{"orderId":1,"clientOrderId":"a","side":"BUY","price":"99.9","origQty":"1","executedQty":"0.2"},
			{"orderId":2,"clientOrderId":"b","side":"SELL","price":"100.1","origQty":"1","executedQty":"0"}
		]`))
	})

	oo, err := c.ListOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, oo, 2)
	assert.Equal(t, "1", oo[0].ID)
	assert.Equal(t, order.Buy, oo[0].Side)
	assert.True(t, oo[0].Filled.Equal(decimal.RequireFromString("0.2")))
	assert.Equal(t, order.StatusLive, oo[0].Status)
}

func TestNewListenKeyUsesAPIKeyOnly(t *testing.T) {
	var seen *http.Request
	c := restPair(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		w.Write([]byte(`{"listenKey":"lk-abc"}`))
	})

	key, err := c.NewListenKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "lk-abc", key)

	require.NotNil(t, seen)
	assert.Equal(t, http.MethodPost, seen.Method)
	assert.Equal(t, "/fapi/v1/listenKey", seen.URL.Path)
	assert.Equal(t, "test-key", seen.Header.Get("X-MBX-APIKEY"))
	assert.Empty(t, seen.URL.Query().Get("signature"), "listen key calls are unsigned")
}

func TestNewListenKeyRejectsEmptyResponse(t *testing.T) {
	c := restPair(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	_, err := c.NewListenKey(context.Background())
	require.Error(t, err)
}

func TestKeepAliveListenKey(t *testing.T) {
	var seen *http.Request
	c := restPair(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		w.Write([]byte(`{}`))
	})

	require.NoError(t, c.KeepAliveListenKey(context.Background()))
	require.NotNil(t, seen)
	assert.Equal(t, http.MethodPut, seen.Method)
	assert.Equal(t, "/fapi/v1/listenKey", seen.URL.Path)
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	c := restPair(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Order would immediately match"}`))
	})
	_, err := c.PlaceOrder(context.Background(), PlaceRequest{
		Instrument: "BTCUSDT", ClientID: "c", Side: order.Sell,
		Price: decimal.RequireFromString("1"), Size: decimal.RequireFromString("1"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-2010")
}
