package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/codesync/internal/domain/normalize"
)

const (
	handlePlaceholder = "{handle}"
	maxBodyBytes      = 4 << 20
	httpTimeout       = 15 * time.Second
)

// HTTPAdapter fetches a JSON object from a URL template such as
// "https://stats.example.com/leetcode/{handle}".
type HTTPAdapter struct {
	urlTemplate string
	client      *http.Client
	limiter     *rate.Limiter
	userAgent   string
}

// HTTPOption applies a configuration option to the HTTPAdapter.
type HTTPOption func(*HTTPAdapter)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAdapter) {
		if c != nil {
			a.client = c
		}
	}
}

// WithRateLimit paces outgoing requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(a *HTTPAdapter) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(a *HTTPAdapter) {
		if ua != "" {
			a.userAgent = ua
		}
	}
}

// NewHTTPAdapter creates an adapter for urlTemplate.
func NewHTTPAdapter(urlTemplate string, opts ...HTTPOption) *HTTPAdapter {
	a := &HTTPAdapter{
		urlTemplate: urlTemplate,
		client:      &http.Client{Timeout: httpTimeout},
		limiter:     rate.NewLimiter(rate.Inf, 1),
		userAgent:   "codesync/1.0",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fetch implements Adapter.
func (a *HTTPAdapter) Fetch(ctx context.Context, handle string) (normalize.Raw, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, ErrEmptyHandle
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := strings.ReplaceAll(a.urlTemplate, handlePlaceholder, url.PathEscape(handle))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	var raw normalize.Raw
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, ErrBadPayload
	}
	return raw, nil
}
