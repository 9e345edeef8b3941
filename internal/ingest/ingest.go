package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/vitalhq/medsearch/internal/extract"
	"github.com/vitalhq/medsearch/internal/llm"
	"github.com/vitalhq/medsearch/internal/vecstore"
)

// ChunkWriter is the slice of the vector store the ingester needs.
type ChunkWriter interface {
	Upsert(ctx context.Context, chunks []vecstore.Chunk) error
}

// Stats summarizes one ingestion run.
type Stats struct {
	Files   int
	Chunks  int
	Skipped int
}

// Ingester walks a directory of source documents, splits them into
// overlapping chunks, embeds each chunk, and writes the result into the
// vector store. This is the offline batch path; it never runs inside an
// interactive request.
type Ingester struct {
	Embedder       llm.Embedder
	Writer         ChunkWriter
	EmbeddingModel string
	ChunkSize      int
	ChunkOverlap   int
	// OnProgress is invoked once per file before processing, for CLI feedback.
	OnProgress func(path string)
	Logger     zerolog.Logger
}

const (
	defaultChunkSize    = 800
	defaultChunkOverlap = 120
)

// Run ingests every supported file under dir. Unreadable or empty files are
// skipped and counted, not fatal.
func (in *Ingester) Run(ctx context.Context, dir string) (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !supported(path) {
			return nil
		}
		if in.OnProgress != nil {
			in.OnProgress(path)
		}
		chunks, err := in.ingestFile(ctx, path)
		if err != nil {
			in.Logger.Warn().Err(err).Str("path", path).Msg("skipping file")
			stats.Skipped++
			return nil
		}
		stats.Files++
		stats.Chunks += chunks
		return nil
	})
	return stats, err
}

func (in *Ingester) ingestFile(ctx context.Context, path string) (int, error) {
	title, text, err := readDocument(path)
	if err != nil {
		return 0, err
	}
	pieces, err := in.split(text)
	if err != nil {
		return 0, fmt.Errorf("split: %w", err)
	}
	if len(pieces) == 0 {
		return 0, fmt.Errorf("no text content")
	}

	embeddings, err := in.embed(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}

	docID := idFor(path)
	chunks := make([]vecstore.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = vecstore.Chunk{
			ID:        fmt.Sprintf("%s_%d", docID, i),
			Source:    path,
			Title:     title,
			Content:   piece,
			Index:     i,
			Embedding: embeddings[i],
		}
	}
	if err := in.Writer.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}
	return len(chunks), nil
}

func (in *Ingester) split(text string) ([]string, error) {
	size := in.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	overlap := in.ChunkOverlap
	if overlap <= 0 {
		overlap = defaultChunkOverlap
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
	return splitter.SplitText(text)
}

func (in *Ingester) embed(ctx context.Context, pieces []string) ([][]float32, error) {
	resp, err := in.Embedder.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: pieces,
		Model: openai.EmbeddingModel(in.EmbeddingModel),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(pieces) {
		return nil, fmt.Errorf("embedding count mismatch: %d for %d chunks", len(resp.Data), len(pieces))
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// readDocument loads a source file as text. PDFs go through the page-aware
// extraction path; everything else is read verbatim.
func readDocument(path string) (title, text string, err error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		doc, err := extract.FromPDF(body)
		if err != nil {
			return "", "", err
		}
		return doc.Title, doc.Text, nil
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), string(body), nil
}

func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

func idFor(path string) string {
	h := sha256.Sum256([]byte(path))
	return hex.EncodeToString(h[:8])
}
