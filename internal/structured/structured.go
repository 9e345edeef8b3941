package structured

import (
	"net/url"
	"strings"

	"github.com/vitalhq/medsearch/internal/budget"
)

// Source is the client-facing projection of a retrieved document. URL and
// Snippet are nullable so clients can distinguish "absent" from "empty".
type Source struct {
	Title   string  `json:"title"`
	URL     *string `json:"url"`
	Snippet *string `json:"snippet"`
}

// Answer is the stable payload returned to every client regardless of which
// generation path produced it. Constructed once per request, not mutated after.
type Answer struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Points  []string `json:"points"`
	Sources []Source `json:"sources"`
	Text    string   `json:"answer"`
}

const (
	// MaxPoints caps the bulleted breakdown of the answer.
	MaxPoints = 6
	// maxSentencePoints caps the naive sentence-split fallback.
	maxSentencePoints = 5
	// summaryLimit is the character budget for the computed summary.
	summaryLimit = 200
	// snippetLimit bounds source snippets shown to clients.
	snippetLimit = 280
)

// bulletSeparators are tried in priority order when splitting the answer
// into points.
var bulletSeparators = []string{"\n- ", "\n• ", "\n* "}

// Overrides optionally replace the computed title and summary.
type Overrides struct {
	Title   string
	Summary string
}

// RawSource is a loosely shaped source record. Different origins use
// different key names; normalization resolves each canonical field through
// an ordered list of accepted alternates.
type RawSource map[string]any

// canonical field -> accepted keys in precedence order.
var sourceKeyAliases = map[string][]string{
	"title":   {"title", "name"},
	"url":     {"url", "link"},
	"snippet": {"raw_content", "snippet"},
}

// Normalize turns free-form generated text and heterogeneous source records
// into a well-formed Answer. Empty inputs produce an empty but valid payload.
func Normalize(text string, raw []RawSource, o Overrides) Answer {
	txt := strings.TrimSpace(text)

	summary := o.Summary
	if summary == "" {
		summary = Summarize(txt)
	}
	title := o.Title
	if title == "" {
		title = "AI Response"
	}

	return Answer{
		Title:   title,
		Summary: summary,
		Points:  SplitPoints(txt),
		Sources: NormalizeSources(raw),
		Text:    txt,
	}
}

// Summarize truncates text to the summary budget, marking truncation with an
// ellipsis. The budget counts runes, so multi-byte text is never cut
// mid-character.
func Summarize(text string) string {
	cut, truncated := truncateRunes(text, summaryLimit)
	if !truncated {
		return text
	}
	return cut + "..."
}

// truncateRunes cuts s after at most n runes, reporting whether anything was
// removed.
func truncateRunes(s string, n int) (string, bool) {
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}

// SplitPoints breaks the answer into bullet points. Bullet delimiters are
// scanned in priority order; when none matches, the text falls back to a
// naive sentence split capped at five entries. The final list never exceeds
// MaxPoints.
func SplitPoints(text string) []string {
	if text == "" {
		return []string{}
	}
	var points []string
	for _, sep := range bulletSeparators {
		if !strings.Contains(text, sep) {
			continue
		}
		for _, p := range strings.Split(text, sep) {
			if p = strings.TrimSpace(p); p != "" {
				points = append(points, p)
			}
		}
		break
	}
	if points == nil {
		flat := strings.ReplaceAll(text, "\n", " ")
		for _, s := range strings.Split(flat, ". ") {
			if s = strings.TrimSpace(s); s != "" {
				points = append(points, s)
			}
		}
		if len(points) > maxSentencePoints {
			points = points[:maxSentencePoints]
		}
	}
	if len(points) > MaxPoints {
		points = points[:MaxPoints]
	}
	return points
}

// NormalizeSources resolves heterogeneous records into canonical Sources and
// deduplicates them by the (title, url, snippet) triple, preserving order.
func NormalizeSources(raw []RawSource) []Source {
	out := make([]Source, 0, len(raw))
	type sig struct{ title, url, snippet string }
	seen := make(map[sig]struct{}, len(raw))
	for _, r := range raw {
		s := Source{
			Title:   stringField(r, "title", "Source"),
			URL:     optionalField(r, "url"),
			Snippet: optionalField(r, "snippet"),
		}
		k := sig{s.Title, deref(s.URL), deref(s.Snippet)}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FromDocuments projects pipeline documents into raw source records ready
// for normalization. Titles fall back to the URL host; snippets are bounded.
func FromDocuments(docs []budget.Document) []RawSource {
	out := make([]RawSource, 0, len(docs))
	for _, d := range docs {
		r := RawSource{"title": sourceTitle(d.Meta)}
		if strings.HasPrefix(d.Meta.Source, "http") {
			r["url"] = d.Meta.Source
		}
		if snippet := strings.TrimSpace(d.Content); snippet != "" {
			snippet, _ = truncateRunes(snippet, snippetLimit)
			r["snippet"] = snippet
		}
		out = append(out, r)
	}
	return out
}

func sourceTitle(m budget.Meta) string {
	if m.Title != "" {
		return m.Title
	}
	if strings.HasPrefix(m.Source, "http") {
		if u, err := url.Parse(m.Source); err == nil && u.Host != "" {
			return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		}
	}
	if m.Source == "" {
		return "unknown"
	}
	// fall back to the file name for path-like sources
	if i := strings.LastIndex(m.Source, "/"); i >= 0 && i+1 < len(m.Source) {
		return m.Source[i+1:]
	}
	return m.Source
}

// stringField resolves a canonical field through its alias chain, falling
// back to def when every alias is absent or empty.
func stringField(r RawSource, canonical, def string) string {
	for _, key := range sourceKeyAliases[canonical] {
		if v, ok := r[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return def
}

func optionalField(r RawSource, canonical string) *string {
	for _, key := range sourceKeyAliases[canonical] {
		if v, ok := r[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return &s
			}
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
