package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(handler http.Handler) (*RESTClient, func()) {
	srv := httptest.NewServer(handler)
	c := NewRESTClient(srv.URL, "test-key", 2*time.Second, 100)
	return c, srv.Close
}

func TestGetAccount(t *testing.T) {
	c, stop := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/account", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"equity":"10500.25","marginUsed":"1200.5","ts":1700000000000}`)
	}))
	defer stop()

	acct, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10500.25, acct.Equity)
	assert.Equal(t, 1200.5, acct.MarginUsed)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), acct.Time)
}

func TestListPositionsSignsShorts(t *testing.T) {
	c, stop := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"instId":"BTC-USDT-SWAP","posSide":"long","sz":"1.5","avgPx":"50000","markPx":"50500","upl":"750","lever":"10","mgnMode":"isolated"},
			{"instId":"ETH-USDT-SWAP","posSide":"short","sz":"4","avgPx":"3000","markPx":"2950","upl":"200","lever":"5","mgnMode":"isolated"}
		]`)
	}))
	defer stop()

	positions, err := c.ListPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "BTC-USDT", positions[0].Symbol)
	assert.Equal(t, 1.5, positions[0].Units)
	assert.Equal(t, "ETH-USDT", positions[1].Symbol)
	assert.Equal(t, -4.0, positions[1].Units)
	assert.Equal(t, 3000.0, positions[1].EntryPrice)
	assert.False(t, positions[0].Retrieved.IsZero())
}

func TestSubmitOrderCarriesClientKey(t *testing.T) {
	var gotBody string
	c, stop := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		fmt.Fprint(w, `{"ordId":"o1","clientOrderId":"key-1","state":"filled","accFillSz":"0.5","avgPx":"50100","ts":1700000000000}`)
	}))
	defer stop()

	res, err := c.SubmitOrder(context.Background(), OrderRequest{
		ClientKey: "key-1", Contract: "BTC-USDT-SWAP",
		Side: SideBuy, Type: OrderTypeMarket, Units: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", res.OrderID)
	assert.Equal(t, "key-1", res.ClientKey)
	assert.Equal(t, 0.5, res.FilledUnits)
	assert.Contains(t, gotBody, `"clientOrderId":"key-1"`)
	assert.Contains(t, gotBody, `"sz":"0.5"`)
}

func TestRateLimitedIsTransient(t *testing.T) {
	c, stop := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer stop()

	_, err := c.GetAccount(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestServerErrorIsTransient(t *testing.T) {
	c, stop := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer stop()

	_, err := c.ListPositions(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestRejectionIsNotTransient(t *testing.T) {
	c, stop := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":"51004","msg":"insufficient margin"}`)
	}))
	defer stop()

	_, err := c.SubmitOrder(context.Background(), OrderRequest{ClientKey: "k", Contract: "BTC-USDT-SWAP", Side: SideBuy, Units: 1})
	require.Error(t, err)
	assert.False(t, IsTransient(err))

	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "51004", rej.Code)
	assert.Equal(t, "insufficient margin", rej.Reason)
}

func TestConnectionRefusedIsTransient(t *testing.T) {
	c := NewRESTClient("http://127.0.0.1:1", "k", 500*time.Millisecond, 100)

	_, err := c.GetAccount(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestIsTransientClassification(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", ErrTransient)))
	assert.False(t, IsTransient(&RejectionError{Code: "1", Reason: "bad"}))
	assert.False(t, IsTransient(errors.New("mystery")))
}
