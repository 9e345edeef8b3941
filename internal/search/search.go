package search

import (
	"context"
	"errors"
)

// Result represents a single search hit from any provider.
type Result struct {
	Title   string
	URL     string
	Snippet string
	Source  string // provider name for observability
}

// Provider is a minimal interface for search backends. Implementations
// return raw, unfiltered hits; trusted-domain policy is applied uniformly by
// the Chain so no provider can forget it.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Name() string
}

// ErrUnavailable marks a provider that cannot run at all in the current
// configuration (typically a missing credential). The chain skips it and
// moves on to the next provider.
var ErrUnavailable = errors.New("search provider unavailable")
