package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/pfs-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64
	Retry     resilience.RetryConfig
	// Rate is the starting per-host request rate. Default 5/s.
	Rate  rate.Limit
	Burst int
	// Client replaces the default client, mostly for tests.
	Client *http.Client
}

// AdaptiveLimiter is a per-host rate limiter that speeds up by 20% on
// success, up to twice the starting rate, and halves on 429, down to a
// quarter of it.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter returns a limiter starting at r.
func NewAdaptiveLimiter(r rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{limiter: rate.NewLimiter(r, burst), initial: r, current: r}
}

// Wait blocks until a request may go out.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.set(min(a.Limit()*1.2, a.initial*2))
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.set(max(a.Limit()*0.5, a.initial/4))
	zap.L().Warn("fetcher: rate limited, slowing down", zap.Float64("rate", float64(a.Limit())))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = r
	a.limiter.SetLimit(r)
}

// HTTPFetcher downloads over HTTP(S) with per-host rate limiting and retries
// on transient failures.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher returns an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pfs-cli/1.0"
	}
	if opts.Rate == 0 {
		opts.Rate = 5
	}
	if opts.Burst == 0 {
		opts.Burst = 5
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.LogRetry("fetcher: http download")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPFetcher{client: client, opts: opts, limiters: make(map[string]*AdaptiveLimiter)}
}

func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(f.opts.Rate, f.opts.Burst)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch downloads rawURL.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, _, err := f.FetchIfChanged(ctx, rawURL, "")
	return body, err
}

// FetchIfChanged downloads rawURL unless the server answers 304 for etag.
func (f *HTTPFetcher) FetchIfChanged(ctx context.Context, rawURL, etag string) ([]byte, string, bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "fetcher: parse url")
	}
	lim := f.limiterFor(u.Host)

	type result struct {
		body    []byte
		etag    string
		changed bool
	}
	res, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (result, error) {
		if err := lim.Wait(ctx); err != nil {
			return result{}, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return result{}, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return result{}, resilience.NewTransientError(eris.Wrapf(err, "fetcher: get %s", rawURL), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		switch {
		case resp.StatusCode == http.StatusNotModified:
			lim.OnSuccess()
			return result{etag: etag}, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lim.OnRateLimit()
			fallthrough
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return result{}, resilience.NewTransientError(eris.Errorf("fetcher: http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return result{}, eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
		}

		body, err := readAll(resp.Body, f.opts.MaxBytes)
		if err != nil {
			return result{}, err
		}
		lim.OnSuccess()
		return result{body: body, etag: resp.Header.Get("ETag"), changed: true}, nil
	})
	if err != nil {
		return nil, "", false, err
	}
	return res.body, res.etag, res.changed, nil
}
