package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

func TestAPIErrorIsDataUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	c := NewClient(Config{FuturesURL: srv.URL, Timeout: time.Second})

	_, err := c.GetFundingRate(context.Background(), "BTC-USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Contains(t, err.Error(), "Invalid symbol")
	assert.Contains(t, err.Error(), "-1121")
}

func TestTransportErrorIsDataUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(Config{FuturesURL: srv.URL, Timeout: time.Second})

	_, err := c.GetFundingRate(context.Background(), "BTC-USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestNonJSONErrorBodyIsDataUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream maintenance"))
	}))
	defer srv.Close()

	c := NewClient(Config{FuturesURL: srv.URL, SpotURL: srv.URL, Timeout: time.Second})

	_, err := c.GetSpotPrice(context.Background(), "ETH-USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Contains(t, err.Error(), "upstream maintenance")
}
