package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const defaultDDGURL = "https://html.duckduckgo.com/html/"

// DuckDuckGo implements Provider against the DuckDuckGo HTML endpoint. It
// needs no credential, which makes it the fallback when the API-key-gated
// provider is unavailable or comes back empty.
type DuckDuckGo struct {
	BaseURL    string // optional override, used by tests
	HTTPClient *http.Client
	UserAgent  string
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	endpoint := d.BaseURL
	if endpoint == "" {
		endpoint = defaultDDGURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	ua := d.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; medsearch/1.0)"
	}
	req.Header.Set("User-Agent", ua)

	hc := d.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("duckduckgo status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, limit)
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target := resolveRedirect(href)
		if target == "" {
			return true
		}
		out = append(out, Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     target,
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").Text()),
			Source:  d.Name(),
		})
		return len(out) < limit
	})
	return out, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<encoded> indirection and
// returns the destination URL. Direct links pass through unchanged.
func resolveRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if uddg := u.Query().Get("uddg"); uddg != "" {
		return uddg
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}
