package robots

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Rules is a parsed robots.txt, grouped by user agent.
type Rules struct {
	Groups []Group
}

type Group struct {
	Agents   []string
	Allow    []string
	Disallow []string
}

// Policy answers "may we fetch this URL" per the host's robots.txt. Rules are
// cached in memory per host; a host whose robots.txt cannot be fetched is
// treated as fully allowed, matching common crawler practice for 4xx.
type Policy struct {
	HTTPClient *http.Client
	UserAgent  string
	// TTL bounds how long per-host rules are reused. Zero means 30 minutes.
	TTL time.Duration

	mu    sync.Mutex
	hosts map[string]hostEntry
	now   func() time.Time
}

type hostEntry struct {
	rules  Rules
	expiry time.Time
}

const defaultTTL = 30 * time.Minute

// Allowed reports whether pageURL may be fetched. Malformed URLs are allowed
// through; the fetcher rejects them with a better error.
func (p *Policy) Allowed(ctx context.Context, pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return true
	}
	rules, err := p.rulesFor(ctx, u)
	if err != nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return rules.IsAllowed(p.UserAgent, path)
}

func (p *Policy) rulesFor(ctx context.Context, u *url.URL) (Rules, error) {
	now := p.now
	if now == nil {
		now = time.Now
	}
	host := strings.ToLower(u.Host)

	p.mu.Lock()
	if ent, ok := p.hosts[host]; ok && now().Before(ent.expiry) {
		p.mu.Unlock()
		return ent.rules, nil
	}
	p.mu.Unlock()

	rules, err := p.fetch(ctx, u.Scheme+"://"+u.Host+"/robots.txt")
	if err != nil {
		return Rules{}, err
	}

	ttl := p.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	p.mu.Lock()
	if p.hosts == nil {
		p.hosts = make(map[string]hostEntry)
	}
	p.hosts[host] = hostEntry{rules: rules, expiry: now().Add(ttl)}
	p.mu.Unlock()
	return rules, nil
}

func (p *Policy) fetch(ctx context.Context, robotsURL string) (Rules, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return Rules{}, err
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Rules{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Rules{}, fmt.Errorf("robots.txt status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Rules{}, err
	}
	return Parse(string(body)), nil
}

// Parse reads robots.txt text into grouped rules. Unknown directives are
// ignored.
func Parse(text string) Rules {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var groups []Group
	current := Group{}
	flush := func() {
		if len(current.Agents) == 0 && len(current.Allow) == 0 && len(current.Disallow) == 0 {
			return
		}
		groups = append(groups, current)
		current = Group{}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		switch key {
		case "user-agent", "useragent":
			// A directive after agents closes the group.
			if len(current.Agents) > 0 && (len(current.Allow) > 0 || len(current.Disallow) > 0) {
				flush()
			}
			current.Agents = append(current.Agents, strings.ToLower(val))
		case "allow":
			current.Allow = append(current.Allow, val)
		case "disallow":
			current.Disallow = append(current.Disallow, val)
		}
	}
	flush()
	return Rules{Groups: groups}
}

// IsAllowed evaluates the path against the best-matching agent group. The
// most specific matching directive wins; specificity ties break toward Allow.
// No matching directive means allowed.
func (r Rules) IsAllowed(userAgent, path string) bool {
	idx := r.selectGroup(userAgent)
	if idx < 0 {
		return true
	}
	grp := r.Groups[idx]

	bestScore := -1
	bestAllow := true
	evaluate := func(patterns []string, isAllow bool) {
		for _, pat := range patterns {
			if pat == "" {
				continue
			}
			if !patternMatches(pat, path) {
				continue
			}
			score := specificity(pat)
			if score > bestScore || (score == bestScore && isAllow && !bestAllow) {
				bestScore = score
				bestAllow = isAllow
			}
		}
	}
	evaluate(grp.Disallow, false)
	evaluate(grp.Allow, true)

	if bestScore == -1 {
		return true
	}
	return bestAllow
}

// selectGroup prefers the longest agent token contained in the user agent;
// "*" matches anything but loses to any named match.
func (r Rules) selectGroup(userAgent string) int {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	bestIdx, bestScore := -1, -1
	for i, g := range r.Groups {
		for _, a := range g.Agents {
			token := strings.ToLower(strings.TrimSpace(a))
			if token == "" {
				continue
			}
			var score int
			switch {
			case token == "*":
				score = 0
			case strings.Contains(ua, token):
				score = len(token)
			default:
				continue
			}
			if score > bestScore {
				bestScore, bestIdx = score, i
			}
		}
	}
	return bestIdx
}

// patternMatches anchors the pattern at the start of the path. '*' matches
// any sequence and a trailing '$' anchors the end.
func patternMatches(pattern, path string) bool {
	anchorEnd := strings.HasSuffix(pattern, "$")
	pat := strings.TrimSuffix(pattern, "$")
	var b strings.Builder
	b.WriteString("^")
	for _, rn := range pat {
		if rn == '*' {
			b.WriteString(".*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(rn)))
	}
	if anchorEnd {
		b.WriteString("$")
	}
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(path)
}

func specificity(pattern string) int {
	p := strings.TrimSuffix(pattern, "$")
	return len(strings.ReplaceAll(p, "*", ""))
}
