package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/vitalhq/medsearch/internal/answer"
	"github.com/vitalhq/medsearch/internal/budget"
	"github.com/vitalhq/medsearch/internal/llm"
	"github.com/vitalhq/medsearch/internal/structured"
	"github.com/vitalhq/medsearch/internal/vecstore"
)

// Searcher produces candidate URLs for a query, already filtered down to
// trusted domains.
type Searcher interface {
	URLs(ctx context.Context, query string, limit int) []string
}

// Extractor turns one URL into a usable document. The bool reports whether
// anything useful was extracted; failures never surface as errors here.
type Extractor interface {
	ExtractURL(ctx context.Context, rawURL string) (budget.Document, bool)
}

// KnowledgeBase retrieves locally indexed documents relevant to a question.
type KnowledgeBase interface {
	Retrieve(ctx context.Context, question string, k int) ([]budget.Document, error)
}

// Mode selects the generation path for a query.
const (
	// ModeSearch retrieves trusted web content and answers from it.
	ModeSearch = "search"
	// ModeDirect answers from model knowledge alone.
	ModeDirect = "ai"
)

// Query is one end-user question plus its generation options.
type Query struct {
	Question  string
	Mode      string
	Model     string
	MaxTokens int
	// Temperature is nil when the request did not set one; an explicit 0 is
	// passed through.
	Temperature *float32
	// Image, when set, is attached to direct generation as a vision input.
	Image []byte
	// UseKnowledge additionally pulls locally indexed chunks into context.
	UseKnowledge bool
	// MaxPages caps how many pages are extracted per query. Zero means the
	// pipeline default.
	MaxPages int
}

const defaultMaxPages = 12

// Pipeline answers questions by composing retrieval and generation. Every
// retrieval stage is degradable: a failed search or extraction narrows the
// context but never fails the request. Generation failures propagate.
type Pipeline struct {
	Searcher  Searcher
	Extractor Extractor
	// Knowledge is optional; nil disables local retrieval entirely.
	Knowledge KnowledgeBase
	Generator *answer.Generator
	Limits    budget.Limits
	MaxPages  int
	Logger    zerolog.Logger
}

// Answer runs one query end to end and returns the normalized payload.
func (p *Pipeline) Answer(ctx context.Context, q Query) (structured.Answer, error) {
	if q.Mode == ModeDirect {
		return p.direct(ctx, q)
	}

	docs := p.retrieve(ctx, q)
	if len(docs) == 0 {
		// Degrade to model knowledge but keep the retrieval-mode presentation.
		// Clients asked for search results; the title and summary stay the
		// same whether or not any page survived extraction.
		p.Logger.Info().Str("question", q.Question).Msg("no retrievable context, answering from model knowledge")
	}

	docs = budget.Shrink(docs, p.Limits)
	result, err := p.Generator.WithContext(ctx, q.Question, docs, q.options())
	if err != nil {
		return structured.Answer{}, fmt.Errorf("generate: %w", err)
	}
	return structured.Normalize(result.Text, structured.FromDocuments(result.Docs), structured.Overrides{
		Title:   fmt.Sprintf("Search Results for '%s'", q.Question),
		Summary: "Here are the latest trusted sources for your query.",
	}), nil
}

func (q Query) options() answer.Options {
	return answer.Options{
		Model:       q.Model,
		MaxTokens:   q.MaxTokens,
		Temperature: q.Temperature,
		Image:       q.Image,
	}
}

func (p *Pipeline) direct(ctx context.Context, q Query) (structured.Answer, error) {
	result, err := p.Generator.Direct(ctx, q.Question, q.options())
	if err != nil {
		return structured.Answer{}, fmt.Errorf("generate: %w", err)
	}
	return structured.Normalize(result.Text, nil, structured.Overrides{}), nil
}

// retrieve gathers context documents from the web and, when enabled, the
// local knowledge base. Web results keep their search ranking order and come
// first so the budget favors them.
func (p *Pipeline) retrieve(ctx context.Context, q Query) []budget.Document {
	maxPages := q.MaxPages
	if maxPages <= 0 {
		maxPages = p.MaxPages
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	var docs []budget.Document
	if p.Searcher != nil && p.Extractor != nil {
		for _, u := range p.Searcher.URLs(ctx, q.Question, maxPages) {
			if len(docs) >= maxPages {
				break
			}
			doc, ok := p.Extractor.ExtractURL(ctx, u)
			if !ok {
				continue
			}
			docs = append(docs, doc)
		}
	}

	if q.UseKnowledge && p.Knowledge != nil {
		local, err := p.Knowledge.Retrieve(ctx, q.Question, maxPages)
		if err != nil {
			p.Logger.Warn().Err(err).Msg("knowledge base retrieval failed")
		} else {
			docs = append(docs, local...)
		}
	}
	return docs
}

// VectorKnowledge adapts the pgvector store to the KnowledgeBase interface
// by embedding the question before querying.
type VectorKnowledge struct {
	Embedder       llm.Embedder
	Store          *vecstore.Store
	EmbeddingModel string
}

func (v *VectorKnowledge) Retrieve(ctx context.Context, question string, k int) ([]budget.Document, error) {
	resp, err := v.Embedder.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{question},
		Model: openai.EmbeddingModel(v.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	scored, err := v.Store.Query(ctx, resp.Data[0].Embedding, k)
	if err != nil {
		return nil, err
	}
	docs := make([]budget.Document, 0, len(scored))
	for _, s := range scored {
		docs = append(docs, s.Document)
	}
	return docs, nil
}
