package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitalhq/medsearch/internal/cache"
)

// Client wraps http.Client with timeouts, limited retry on transient errors,
// and an optional read-through TTL cache shared across requests.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// Cache, when set, is consulted before the network and updated after
	// successful fetches.
	Cache *cache.HTTPCache
	// Limiter, when set, throttles outbound requests so sequential page
	// fetches stay polite toward source sites.
	Limiter *rate.Limiter
	// Robots, when set, is consulted before any network fetch. Cached
	// entries are served without re-checking.
	Robots RobotsPolicy
	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
	RedirectMaxHops int
}

// RobotsPolicy gates outbound fetches on the target site's robots.txt.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// ErrDisallowed marks URLs the target site's robots.txt excludes.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// MaxBodyBytes bounds response bodies so a single oversized page cannot
// exhaust memory. Pages past this size are truncated, not rejected.
const MaxBodyBytes = 10 << 20

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc()}
}

// Get issues a GET with context, user-agent, and bounded retry for transient
// errors. It returns the body and the response content type. Fresh cached
// entries short-circuit the network entirely.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	if c.Cache != nil {
		if body, ct, ok := c.Cache.Get(ctx, rawURL); ok {
			return body, ct, nil
		}
	}
	if c.Robots != nil && !c.Robots.Allowed(ctx, rawURL) {
		return nil, "", fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, "", err
		}
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		body, ct, err := c.tryOnce(ctx, rawURL)
		if err == nil {
			if c.Cache != nil {
				_ = c.Cache.Save(ctx, rawURL, ct, body)
			}
			return body, ct, nil
		}
		if !isTransient(err) || i == attempts-1 {
			return nil, "", err
		}
		lastErr = err
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, "", lastErr
}

func (c *Client) tryOnce(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	// Reject non-HTTP(S) schemes early
	if req.URL == nil || !isHTTPScheme(req.URL) {
		return nil, "", fmt.Errorf("unsupported URL scheme: %q", rawURL)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	httpClient := c.getHTTPClient()
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
		return nil, "", fmt.Errorf("server error: %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isAllowedContentType(contentType) {
		return nil, "", fmt.Errorf("unsupported content type: %s", contentType)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return b, contentType, nil
}

func isTransient(err error) bool {
	// Treat HTTP 5xx and context deadline as transient.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "server error:")
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		// Only allow http/https during redirects
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// isAllowedContentType admits the formats the extractor understands: HTML
// variants, plain text, and PDF. An absent header is allowed, many smaller
// sites omit it.
func isAllowedContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" {
		return true
	}
	return strings.HasPrefix(ct, "text/html") ||
		strings.HasPrefix(ct, "application/xhtml+xml") ||
		strings.HasPrefix(ct, "text/plain") ||
		strings.HasPrefix(ct, "application/pdf")
}

// IsPDF reports whether the content type or URL path indicates a PDF body.
func IsPDF(contentType, rawURL string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/pdf") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}
