package search

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/vitalhq/medsearch/internal/trust"
)

// Chain runs an ordered list of providers, using the first one that returns
// non-empty results. Provider failures of any kind are swallowed and treated
// as zero results so the next backend gets its turn; the chain itself never
// returns an error to the caller.
//
// Trusted-domain filtering is applied here, uniformly to every provider's
// output, so the result contract does not depend on which backend served
// the query.
type Chain struct {
	Providers []Provider
	Trust     *trust.Filter
	Logger    zerolog.Logger
}

// overFetchFactor asks providers for extra hits so that filtering and
// deduplication still leave enough URLs to fill the requested count.
const overFetchFactor = 2

// URLs returns up to limit trusted, deduplicated URLs for the query in
// first-seen order.
func (c *Chain) URLs(ctx context.Context, query string, limit int) []string {
	if limit <= 0 {
		limit = 10
	}
	for _, p := range c.Providers {
		results, err := p.Search(ctx, query, limit*overFetchFactor)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				c.Logger.Debug().Str("provider", p.Name()).Msg("search provider unavailable, trying next")
			} else {
				c.Logger.Warn().Err(err).Str("provider", p.Name()).Msg("search provider failed, trying next")
			}
			continue
		}
		urls := c.collect(results, limit)
		if len(urls) > 0 {
			c.Logger.Debug().Str("provider", p.Name()).Int("urls", len(urls)).Msg("search results selected")
			return urls
		}
	}
	return nil
}

// collect applies the trust filter and exact-string deduplication while
// preserving first-seen order, capping the output at limit.
func (c *Chain) collect(results []Result, limit int) []string {
	seen := make(map[string]struct{}, len(results))
	out := make([]string, 0, limit)
	for _, r := range results {
		if c.Trust != nil && !c.Trust.Allowed(r.URL) {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r.URL)
		if len(out) >= limit {
			break
		}
	}
	return out
}
