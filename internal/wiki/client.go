// Package wiki is a small client for the MediaWiki Action API (api.php).
package wiki

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/chartsync/internal/resilience"
	"github.com/sells-group/chartsync/internal/syncerr"
)

// Client defines the wiki API operations used by the pipeline.
type Client interface {
	// Parse returns the rendered HTML of a page, following redirects.
	Parse(ctx context.Context, page string) (*Page, error)
	// PageInfo resolves titles to their canonical pages and latest revisions.
	PageInfo(ctx context.Context, titles ...string) ([]PageInfo, error)
	// QueryAll runs an action=query request and follows continuation until
	// the result set is exhausted, calling fn with each "query" payload.
	QueryAll(ctx context.Context, params map[string]string, fn func(query json.RawMessage) error) error
}

// Option configures the wiki client.
type Option func(*httpClient)

// WithUserAgent sets the identifying User-Agent sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.http.SetHeader("User-Agent", ua)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.SetTimeout(d)
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithRate sets the steady-state request rate.
func WithRate(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = NewAdaptiveLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithMaxLag sets the maxlag parameter; 0 omits it.
func WithMaxLag(seconds int) Option {
	return func(c *httpClient) {
		c.maxLag = seconds
	}
}

// WithTransport replaces the HTTP transport (for testing).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *httpClient) {
		c.http.SetTransport(rt)
	}
}

type httpClient struct {
	apiURL  string
	http    *resty.Client
	retry   resilience.RetryConfig
	limiter *AdaptiveLimiter
	maxLag  int
}

// NewClient creates a client for the api.php endpoint at apiURL.
func NewClient(apiURL string, opts ...Option) Client {
	c := &httpClient{
		apiURL: apiURL,
		http: resty.New().
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", "chartsync/1.0").
			SetHeader("Accept", "application/json"),
		retry:   resilience.DefaultRetryConfig(),
		limiter: NewAdaptiveLimiter(1, 1),
		maxLag:  5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the top level of every formatversion=2 response.
type envelope struct {
	Error    *apiError         `json:"error"`
	Continue map[string]string `json:"continue"`
	Query    json.RawMessage   `json:"query"`
	Parse    json.RawMessage   `json:"parse"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

// get issues one GET with retry. Failures come back as FetchError.
func (c *httpClient) get(ctx context.Context, params map[string]string) (*envelope, error) {
	q := map[string]string{
		"format":        "json",
		"formatversion": "2",
	}
	if c.maxLag > 0 {
		q["maxlag"] = strconv.Itoa(c.maxLag)
	}
	maps.Copy(q, params)

	retry := c.retry
	retry.OnRetry = resilience.RetryLogger("wiki", q["action"])

	env, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*envelope, error) {
		return c.once(ctx, q)
	})
	if err != nil {
		return nil, syncerr.E(syncerr.Fetch, eris.Wrapf(err, "wiki: %s", q["action"]))
	}
	return env, nil
}

func (c *httpClient) once(ctx context.Context, q map[string]string) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(q).
		Get(c.apiURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "request")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "request"), 0)
	}

	status := res.StatusCode()
	switch {
	case status == http.StatusTooManyRequests:
		c.limiter.OnBackoff("http 429")
		return nil, resilience.NewTransientError(eris.Errorf("http %d", status), status)
	case resilience.IsTransientHTTPStatus(status):
		return nil, resilience.NewTransientError(eris.Errorf("http %d", status), status)
	case status != http.StatusOK:
		return nil, eris.Errorf("unexpected status %d", status)
	}

	var env envelope
	if err := json.Unmarshal(res.Body(), &env); err != nil {
		// A truncated body is usually a dropped connection; worth another try.
		return nil, resilience.NewTransientError(eris.Wrap(err, "malformed response"), status)
	}

	if env.Error != nil {
		if env.Error.Code == "maxlag" {
			c.limiter.OnBackoff("maxlag")
			return nil, resilience.NewTransientError(eris.Errorf("api error %s: %s", env.Error.Code, env.Error.Info), status)
		}
		return nil, eris.Errorf("api error %s: %s", env.Error.Code, env.Error.Info)
	}

	c.limiter.OnSuccess()
	return &env, nil
}
