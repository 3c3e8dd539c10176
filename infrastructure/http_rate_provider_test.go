package infrastructure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateServer(t *testing.T, body *atomic.Value, status *atomic.Int32, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPRateProvider_CachesQuote(t *testing.T) {
	t.Parallel()

	var body atomic.Value
	var status, hits atomic.Int32
	body.Store(`{"usd": "0.25"}`)
	status.Store(http.StatusOK)
	srv := newRateServer(t, &body, &status, &hits)

	p := NewHTTPRateProvider(srv.URL, time.Minute)
	ctx := context.Background()

	rate, err := p.GetRate(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.25").Equal(rate))

	body.Store(`{"usd": 0.5}`)
	rate, err = p.GetRate(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.25").Equal(rate), "cached quote is served within the ttl")
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPRateProvider_ConcurrentCallersShareOneFetch(t *testing.T) {
	t.Parallel()

	var body atomic.Value
	var status, hits atomic.Int32
	body.Store(`{"usd": 2}`)
	status.Store(http.StatusOK)
	srv := newRateServer(t, &body, &status, &hits)

	p := NewHTTPRateProvider(srv.URL, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rate, err := p.GetRate(context.Background())
			assert.NoError(t, err)
			assert.True(t, decimal.NewFromInt(2).Equal(rate))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, hits.Load(), int32(2))
}

func TestHTTPRateProvider_ServesStaleOnFailure(t *testing.T) {
	t.Parallel()

	var body atomic.Value
	var status, hits atomic.Int32
	body.Store(`{"usd": "1.5"}`)
	status.Store(http.StatusOK)
	srv := newRateServer(t, &body, &status, &hits)

	now := time.Now()
	p := NewHTTPRateProvider(srv.URL, time.Minute)
	p.now = func() time.Time { return now }

	_, err := p.GetRate(context.Background())
	require.NoError(t, err)

	status.Store(http.StatusBadGateway)
	now = now.Add(10 * time.Minute)

	rate, err := p.GetRate(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.5").Equal(rate))
}

func TestHTTPRateProvider_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int32
	}{
		{name: "upstream error", body: `{}`, status: http.StatusInternalServerError},
		{name: "bad json", body: `not json`, status: http.StatusOK},
		{name: "zero price", body: `{"usd": 0}`, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var body atomic.Value
			var status, hits atomic.Int32
			body.Store(tt.body)
			status.Store(tt.status)
			srv := newRateServer(t, &body, &status, &hits)

			_, err := NewHTTPRateProvider(srv.URL, time.Minute).GetRate(context.Background())
			assert.Error(t, err)
		})
	}
}
