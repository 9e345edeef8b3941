package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTavilyURL = "https://api.tavily.com/search"

// Tavily implements Provider against the Tavily search API. It is the
// richer, API-key-gated backend tried first in the chain.
type Tavily struct {
	APIKey     string
	BaseURL    string // optional override, used by tests
	HTTPClient *http.Client
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if t.APIKey == "" {
		return nil, ErrUnavailable
	}
	if limit <= 0 {
		limit = 10
	}
	endpoint := t.BaseURL
	if endpoint == "" {
		endpoint = defaultTavilyURL
	}
	body, err := json.Marshal(tavilyRequest{
		APIKey:        t.APIKey,
		Query:         query,
		SearchDepth:   "advanced",
		IncludeAnswer: false,
		MaxResults:    limit,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	hc := t.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("tavily status: %d", resp.StatusCode)
	}
	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(tr.Results))
	for _, r := range tr.Results {
		if r.URL == "" {
			continue
		}
		out = append(out, Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.TrimSpace(r.Content),
			Source:  t.Name(),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
