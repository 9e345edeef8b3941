package budget

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Meta carries document provenance through the pipeline unchanged.
type Meta struct {
	Source string
	Title  string
}

// Document is one unit of retrieved context. Content is owned by the stage
// that produced the document; Shrink returns fresh copies rather than
// mutating its input.
type Document struct {
	Content string
	Meta    Meta
}

// Limits configures the context budget. Zero fields take the defaults, which
// assume roughly 4 characters per token and target an 8k-character prompt.
type Limits struct {
	MaxDocs        int
	MaxCharsPerDoc int
	TotalChars     int
}

const (
	DefaultMaxDocs        = 8
	DefaultMaxCharsPerDoc = 1500
	DefaultTotalChars     = 8000
)

func (l Limits) withDefaults() Limits {
	if l.MaxDocs <= 0 {
		l.MaxDocs = DefaultMaxDocs
	}
	if l.MaxCharsPerDoc <= 0 {
		l.MaxCharsPerDoc = DefaultMaxCharsPerDoc
	}
	if l.TotalChars <= 0 {
		l.TotalChars = DefaultTotalChars
	}
	return l
}

// Shrink caps the number and size of documents so the serialized context fits
// the model's input budget. Documents are visited in order: earlier documents
// get budget priority, each is trimmed first to the per-document cap and then
// to whatever remains of the total budget, and iteration stops entirely once
// the total is exhausted. Empty documents are dropped; metadata is preserved.
func Shrink(docs []Document, limits Limits) []Document {
	if len(docs) == 0 {
		return nil
	}
	l := limits.withDefaults()
	max := l.MaxDocs
	if max > len(docs) {
		max = len(docs)
	}
	out := make([]Document, 0, max)
	used := 0
	for _, d := range docs[:max] {
		text := strings.TrimSpace(d.Content)
		if text == "" {
			continue
		}
		// Budgets count runes so multi-byte text is never cut mid-character.
		runes := []rune(text)
		if len(runes) > l.MaxCharsPerDoc {
			runes = runes[:l.MaxCharsPerDoc]
		}
		remain := l.TotalChars - used
		if remain <= 0 {
			break
		}
		if len(runes) > remain {
			runes = runes[:remain]
		}
		used += len(runes)
		out = append(out, Document{Content: string(runes), Meta: d.Meta})
	}
	return out
}

// EstimateTokensFromChars converts a character count into an estimated token
// count using a conservative heuristic (~4 chars per token in English). The
// result is always at least 1 when chars > 0.
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(charCount) / 4.0))
}

// EstimateTokens returns the estimated token count of a string.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(utf8.RuneCountInString(s))
}
