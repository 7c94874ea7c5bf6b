package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"rental-scraper/utils"
)

// HTTPError is a non-2xx oracle response.
type HTTPError struct {
	Oracle     string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Oracle, e.StatusCode)
}

func (e *HTTPError) HTTPStatus() int { return e.StatusCode }

// ClientOptions configure an HTTP oracle client.
type ClientOptions struct {
	BaseURL   string
	UserAgent string
	RPS       float64
	Timeout   time.Duration
	Retries   int
	HTTP      *http.Client
	Logger    *utils.Logger
}

// oracleClient is the shared transport of every HTTP oracle: its own rate
// limiter, a per-call timeout and retries on transient failures.
type oracleClient struct {
	name      string
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	retry     *utils.RetryConfig
}

func newOracleClient(name string, o ClientOptions) *oracleClient {
	if o.HTTP == nil {
		o.HTTP = http.DefaultClient
	}
	if o.RPS <= 0 {
		o.RPS = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Retries <= 0 {
		o.Retries = 2
	}
	return &oracleClient{
		name:      name,
		baseURL:   o.BaseURL,
		userAgent: o.UserAgent,
		http:      o.HTTP,
		limiter:   rate.NewLimiter(rate.Limit(o.RPS), 1),
		timeout:   o.Timeout,
		retry: &utils.RetryConfig{
			MaxAttempts: o.Retries,
			BaseDelay:   time.Second,
			MaxDelay:    5 * time.Second,
			Logger:      o.Logger.With(name),
		},
	}
}

// getJSON issues a rate-limited GET and decodes the body into out.
func (c *oracleClient) getJSON(ctx context.Context, url string, out any) error {
	return c.retry.Do(ctx, c.name, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("%s: build request: %w", c.name, err)
		}
		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return &HTTPError{Oracle: c.name, StatusCode: resp.StatusCode}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode: %w", c.name, err)
		}
		return nil
	})
}
