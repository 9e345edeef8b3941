package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/vitalhq/medsearch/internal/config"
	"github.com/vitalhq/medsearch/internal/ingest"
	"github.com/vitalhq/medsearch/internal/llm"
	"github.com/vitalhq/medsearch/internal/vecstore"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	var (
		configPath   string
		dir          string
		chunkSize    int
		chunkOverlap int
		verbose      bool
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config file (optional)")
	flag.StringVar(&dir, "dir", "docs", "Directory of documents to index (.pdf, .txt, .md)")
	flag.IntVar(&chunkSize, "chunk.size", 800, "Chunk size in characters")
	flag.IntVar(&chunkOverlap, "chunk.overlap", 120, "Chunk overlap in characters")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	if cfg.LLM.APIKey == "" {
		log.Fatal().Msg("LLM API key is required for embeddings (LLM_API_KEY)")
	}
	if cfg.Database.URL == "" {
		log.Fatal().Msg("database URL is required (DATABASE_URL)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := vecstore.New(ctx, vecstore.Config{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.Table,
		VectorDim:  cfg.Database.VectorDim,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to vector store")
	}
	defer store.Close()

	total, err := countSupported(dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("scanning documents")
	}
	if total == 0 {
		fmt.Println(color.YellowString("no indexable documents under %s", dir))
		return
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString("indexing documents")),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
	)

	ingester := &ingest.Ingester{
		Embedder:       llm.NewOpenAIProvider(cfg.LLM.APIKey, cfg.LLM.BaseURL),
		Writer:         store,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		ChunkSize:      chunkSize,
		ChunkOverlap:   chunkOverlap,
		OnProgress: func(path string) {
			bar.Add(1)
		},
		Logger: log.Logger,
	}

	stats, err := ingester.Run(ctx, dir)
	bar.Finish()
	fmt.Println()
	if err != nil {
		log.Fatal().Err(err).Msg("ingestion failed")
	}

	fmt.Println(color.GreenString("indexed %d files (%d chunks), skipped %d",
		stats.Files, stats.Chunks, stats.Skipped))
}

func countSupported(dir string) (int, error) {
	total := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf", ".txt", ".md":
			total++
		}
		return nil
	})
	return total, err
}
