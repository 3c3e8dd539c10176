package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// rateResponse is the quote document served at the rate URL
type rateResponse struct {
	USD decimal.Decimal `json:"usd"`
}

// HTTPRateProvider implements interfaces.RateProvider against a JSON price endpoint.
// Quotes are cached for cacheTTL; concurrent refreshes collapse into one request
// and the upstream is called at most once per minInterval. When a refresh fails
// the last good quote is served.
type HTTPRateProvider struct {
	url      string
	client   *http.Client
	cacheTTL time.Duration
	limiter  *rate.Limiter
	flight   singleflight.Group
	now      func() time.Time

	mu        sync.RWMutex
	rate      decimal.Decimal
	fetchedAt time.Time
}

// NewHTTPRateProvider creates a new rate provider
func NewHTTPRateProvider(url string, cacheTTL time.Duration) *HTTPRateProvider {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &HTTPRateProvider{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		cacheTTL: cacheTTL,
		limiter:  rate.NewLimiter(rate.Every(cacheTTL/4), 1),
		now:      time.Now,
	}
}

func (p *HTTPRateProvider) cached() (decimal.Decimal, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rate, p.fetchedAt
}

// GetRate returns the USD value of one whole token
func (p *HTTPRateProvider) GetRate(ctx context.Context) (decimal.Decimal, error) {
	current, fetchedAt := p.cached()
	hasQuote := !fetchedAt.IsZero()
	if hasQuote && p.now().Sub(fetchedAt) < p.cacheTTL {
		return current, nil
	}

	if hasQuote && !p.limiter.Allow() {
		return current, nil
	}

	result, err, _ := p.flight.Do("rate", func() (interface{}, error) {
		// Another flight may have refreshed the quote while we waited
		if latest, at := p.cached(); !at.IsZero() && p.now().Sub(at) < p.cacheTTL {
			return latest, nil
		}
		if !hasQuote {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return p.fetch(ctx)
	})
	if err != nil {
		if hasQuote {
			log.WithError(err).WithField("age", p.now().Sub(fetchedAt).String()).Warn("Rate refresh failed, serving stale quote")
			return current, nil
		}
		return decimal.Zero, err
	}
	return result.(decimal.Decimal), nil
}

func (p *HTTPRateProvider) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate endpoint returned %s", resp.Status)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rate: %w", err)
	}
	if !body.USD.IsPositive() {
		return decimal.Zero, errors.New("rate endpoint returned a non-positive price")
	}

	p.mu.Lock()
	p.rate = body.USD
	p.fetchedAt = p.now()
	p.mu.Unlock()

	return body.USD, nil
}
