package answer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/vitalhq/medsearch/internal/budget"
	"github.com/vitalhq/medsearch/internal/llm"
	"github.com/vitalhq/medsearch/internal/prompt"
)

// ErrEmptyAnswer indicates the model returned a response with no usable text.
var ErrEmptyAnswer = errors.New("model returned no usable text")

// Options are per-request generation knobs. Zero values take the
// generator's defaults.
type Options struct {
	Model     string
	MaxTokens int
	// Temperature is a pointer so an explicit 0 is distinguishable from
	// "not set"; nil takes the default.
	Temperature *float32
	// Image, when non-nil, is attached to the user turn as a multimodal
	// content block. Only meaningful for direct (no-context) generation.
	Image []byte
}

// Result is the generated text plus the provenance documents that were in
// context when it was produced.
type Result struct {
	Text string
	Docs []budget.Document
}

// Generator invokes the language model with validated model identifiers, a
// bounded timeout, and limited retry on transient failures. Unlike the
// search and extraction stages, an exhausted retry budget here propagates to
// the caller: there is no fallback text to degrade to.
type Generator struct {
	Client        llm.Client
	DefaultModel  string
	AllowedModels []string
	Selector      prompt.Selector
	// MaxAttempts includes the initial call. Zero means 2.
	MaxAttempts int
	// Timeout bounds a single generation end to end. Zero means 120s.
	Timeout time.Duration
	// DefaultMaxTokens applies when a request does not set MaxTokens.
	DefaultMaxTokens int
	Logger           zerolog.Logger
}

const (
	defaultAttempts    = 2
	defaultTimeout     = 120 * time.Second
	defaultMaxTokens   = 3000
	defaultTemperature = float32(0.1)
	retryBackoff       = 500 * time.Millisecond
)

// ResolveModel validates a requested model against the allow-list. Unknown
// identifiers are silently replaced with the default, never rejected.
func (g *Generator) ResolveModel(model string) string {
	if model == "" {
		return g.DefaultModel
	}
	for _, m := range g.AllowedModels {
		if m == model {
			return model
		}
	}
	g.Logger.Debug().Str("requested", model).Str("using", g.DefaultModel).Msg("model not in allow-list, using default")
	return g.DefaultModel
}

// Direct generates an answer from model knowledge alone, with an optional
// image attachment and no retrieval context.
func (g *Generator) Direct(ctx context.Context, question string, opts Options) (Result, error) {
	return g.generate(ctx, question, nil, opts)
}

// WithContext generates an answer conditioned on the budgeted documents.
func (g *Generator) WithContext(ctx context.Context, question string, docs []budget.Document, opts Options) (Result, error) {
	return g.generate(ctx, question, docs, opts)
}

func (g *Generator) generate(ctx context.Context, question string, docs []budget.Document, opts Options) (Result, error) {
	if g.Client == nil {
		return Result{}, errors.New("generator not configured")
	}
	model := g.ResolveModel(opts.Model)
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.DefaultMaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := defaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	messages := g.Selector.Messages(model, question, docs)
	if len(opts.Image) > 0 {
		messages = attachImage(messages, opts.Image)
	}
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		N:           1,
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i < attempts; i++ {
		resp, err = g.Client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if !isTransient(err) || i == attempts-1 {
			return Result{}, fmt.Errorf("generation failed: %w", err)
		}
		g.Logger.Warn().Err(err).Int("attempt", i+1).Msg("transient model failure, retrying")
		sleep(retryBackoff)
	}

	text := extractText(resp)
	if text == "" {
		return Result{}, ErrEmptyAnswer
	}
	return Result{Text: text, Docs: docs}, nil
}

// attachImage converts the final user turn into multi-part content with the
// image riding alongside the text as a base64 data URL.
func attachImage(messages []openai.ChatCompletionMessage, image []byte) []openai.ChatCompletionMessage {
	if len(messages) == 0 {
		return messages
	}
	last := len(messages) - 1
	mime := http.DetectContentType(image)
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
	messages[last] = openai.ChatCompletionMessage{
		Role: messages[last].Role,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: messages[last].Content},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
		},
	}
	return messages
}

// extractText pulls the answer out of the response, trying the primary field
// first and then the fallbacks in fixed order: each choice's message content,
// then any text parts of multi-part content.
func extractText(resp openai.ChatCompletionResponse) string {
	for _, choice := range resp.Choices {
		if t := strings.TrimSpace(choice.Message.Content); t != "" {
			return t
		}
	}
	for _, choice := range resp.Choices {
		var sb strings.Builder
		for _, part := range choice.Message.MultiContent {
			if part.Type == openai.ChatMessagePartTypeText {
				sb.WriteString(part.Text)
			}
		}
		if t := strings.TrimSpace(sb.String()); t != "" {
			return t
		}
	}
	return ""
}

// isTransient reports whether a model call failure is worth retrying:
// network-level errors and 5xx responses are, request errors are not.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Anything without an API status is a transport failure.
	return true
}

// sleep allows tests to stub the retry backoff.
var sleep = time.Sleep
