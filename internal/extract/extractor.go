package extract

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"

	"github.com/vitalhq/medsearch/internal/budget"
	"github.com/vitalhq/medsearch/internal/fetch"
)

// Extractor turns a URL into a cleaned context document. HTML goes through a
// primary readability strategy with a DOM-strip fallback; PDF bodies take the
// page-by-page extraction path. Failures of any kind yield ok=false rather
// than an error: the caller skips the URL and the pipeline continues.
type Extractor struct {
	Fetcher  *fetch.Client
	Primary  Strategy
	Fallback Strategy
	Logger   zerolog.Logger
}

// New returns an Extractor with the default strategy order.
func New(fetcher *fetch.Client, logger zerolog.Logger) *Extractor {
	return &Extractor{
		Fetcher:  fetcher,
		Primary:  Readability{},
		Fallback: DOMStrip{},
		Logger:   logger,
	}
}

// ExtractURL fetches rawURL and returns a budgetable document. ok is false
// when the fetch fails or no strategy produces enough usable text.
func (e *Extractor) ExtractURL(ctx context.Context, rawURL string) (budget.Document, bool) {
	body, contentType, err := e.Fetcher.Get(ctx, rawURL)
	if err != nil {
		e.Logger.Debug().Err(err).Str("url", rawURL).Msg("fetch failed, skipping source")
		return budget.Document{}, false
	}

	var doc Document
	if fetch.IsPDF(contentType, rawURL) {
		doc, err = FromPDF(body)
		if err != nil {
			e.Logger.Debug().Err(err).Str("url", rawURL).Msg("pdf extraction failed, skipping source")
			return budget.Document{}, false
		}
	} else {
		doc = e.extractHTML(body, contentType)
	}

	text := strings.TrimSpace(doc.Text)
	if len(text) <= MinUsefulLength {
		e.Logger.Debug().Str("url", rawURL).Int("chars", len(text)).Msg("extracted text below threshold")
		return budget.Document{}, false
	}
	return budget.Document{
		Content: text,
		Meta: budget.Meta{
			Source: rawURL,
			Title:  titleOrHost(doc.Title, rawURL),
		},
	}, true
}

func (e *Extractor) extractHTML(body []byte, contentType string) Document {
	body = decodeCharset(body, contentType)
	doc := e.Primary.Extract(body)
	if doc.Usable() {
		return doc
	}
	if fb := e.Fallback.Extract(body); fb.Usable() {
		if fb.Title == "" {
			fb.Title = doc.Title
		}
		return fb
	}
	return Document{Title: doc.Title}
}

// decodeCharset converts legacy-encoded HTML to UTF-8 using the response
// content type and in-document hints. On any failure the original bytes are
// returned unchanged.
func decodeCharset(body []byte, contentType string) []byte {
	r, err := charset.NewReader(strings.NewReader(string(body)), contentType)
	if err != nil {
		return body
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return decoded
}

// titleOrHost prefers the extracted page title and falls back to the URL
// host with any www. prefix removed.
func titleOrHost(title, rawURL string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
