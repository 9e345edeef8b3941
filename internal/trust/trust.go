package trust

import (
	"net/url"
	"strings"
)

// DefaultDomains is the baseline allow-list of authoritative medical hosts.
var DefaultDomains = []string{
	"who.int",
	"cdc.gov",
	"nih.gov",
	"medlineplus.gov",
	"pubmed.ncbi.nlm.nih.gov",
}

// Filter restricts URLs to an allow-list of trusted domains. A host passes
// when it equals a listed domain or is a dot-suffix subdomain of one.
// The zero value passes nothing; use New for the default list.
type Filter struct {
	domains []string
}

// New builds a Filter from the given domains, normalizing case and stripping
// stray whitespace and leading dots. An empty slice falls back to DefaultDomains.
func New(domains []string) *Filter {
	if len(domains) == 0 {
		domains = DefaultDomains
	}
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, ".")
		if d == "" {
			continue
		}
		out = append(out, d)
	}
	return &Filter{domains: out}
}

// Domains returns the normalized allow-list.
func (f *Filter) Domains() []string {
	out := make([]string, len(f.domains))
	copy(out, f.domains)
	return out
}

// Allowed reports whether the URL's host belongs to a trusted domain.
// Malformed URLs and URLs without a host are not allowed.
func (f *Filter) Allowed(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range f.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// FilterURLs returns the subset of urls whose host is trusted, preserving the
// original order. Malformed URLs are dropped silently. The operation is
// idempotent: filtering an already filtered list is a no-op.
func (f *Filter) FilterURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if f.Allowed(u) {
			out = append(out, u)
		}
	}
	return out
}
