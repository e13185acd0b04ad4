package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

func TestCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tv/history", r.URL.Path)
		assert.Equal(t, "SOL/USDC", r.URL.Query().Get("symbol"))
		assert.Equal(t, "60", r.URL.Query().Get("resolution"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("from"))
		w.Write([]byte(`{"s":"ok","t":[1700000000,1700003600],"o":[1,2],"h":[3,4],"l":[0.5,1.5],"c":[2,3],"v":[10,20]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	from := time.Unix(1700000000, 0)
	candles, err := c.Candles(context.Background(), "SOL/USDC", "60", from, from.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 3.0, candles[1].Close)
	assert.Equal(t, 20.0, candles[1].Volume)
	assert.Equal(t, int64(1700003600), candles[1].Time.Unix())
}

func TestCandlesNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"s":"no_data"}`))
	}))
	defer srv.Close()

	candles, err := NewClient(srv.URL, 0).Candles(context.Background(), "X", "1D", time.Now(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestCandlesMismatchedArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"s":"ok","t":[1,2],"o":[1],"h":[1],"l":[1],"c":[1]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Candles(context.Background(), "X", "1D", time.Now(), time.Now())
	assert.Error(t, err)
}

func TestRecentTrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades/SOL-USDC", r.URL.Path)
		w.Write([]byte(`[{"side":"sell","price":20.5,"size":3,"time":1700000000000},{"side":"buy","price":20.4,"size":1,"time":1699999999000}]`))
	}))
	defer srv.Close()

	trades, err := NewClient(srv.URL, 100).RecentTrades(context.Background(), "SOL-USDC")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, domain.OrderSideSell, trades[0].Side)
	assert.Equal(t, domain.OrderSideBuy, trades[1].Side)
	assert.Equal(t, "SOL-USDC", trades[0].Market)
}

func TestHTTPStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).RecentTrades(context.Background(), "m")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
