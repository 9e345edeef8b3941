package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/vitalhq/medsearch/internal/answer"
	"github.com/vitalhq/medsearch/internal/api"
	"github.com/vitalhq/medsearch/internal/auth"
	"github.com/vitalhq/medsearch/internal/budget"
	"github.com/vitalhq/medsearch/internal/cache"
	"github.com/vitalhq/medsearch/internal/config"
	"github.com/vitalhq/medsearch/internal/extract"
	"github.com/vitalhq/medsearch/internal/fetch"
	"github.com/vitalhq/medsearch/internal/llm"
	"github.com/vitalhq/medsearch/internal/rag"
	"github.com/vitalhq/medsearch/internal/robots"
	"github.com/vitalhq/medsearch/internal/search"
	"github.com/vitalhq/medsearch/internal/trust"
	"github.com/vitalhq/medsearch/internal/vecstore"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath string
		listen     string
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config file (optional)")
	flag.StringVar(&listen, "listen", "", "Listen address, overrides config")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, cleanup, err := buildServer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("wiring service")
	}
	defer cleanup()

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Listen).Msg("medsearch listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}
}

func buildServer(ctx context.Context, cfg config.Config) (*api.Server, func(), error) {
	logger := log.Logger

	provider := llm.NewOpenAIProvider(cfg.LLM.APIKey, cfg.LLM.BaseURL)

	fetcher := &fetch.Client{
		UserAgent:         cfg.Fetch.UserAgent,
		MaxAttempts:       cfg.Fetch.MaxAttempts,
		PerRequestTimeout: cfg.Fetch.Timeout.Std(),
		Cache:             &cache.HTTPCache{Dir: cfg.Cache.Dir, TTL: cfg.Cache.MaxAge.Std()},
		Limiter:           rate.NewLimiter(rate.Limit(cfg.Fetch.RatePerSec), 1),
		Robots:            &robots.Policy{UserAgent: cfg.Fetch.UserAgent},
	}

	chain := &search.Chain{
		Providers: []search.Provider{
			&search.Tavily{APIKey: cfg.Search.TavilyKey},
			&search.DuckDuckGo{UserAgent: cfg.Fetch.UserAgent},
		},
		Trust:  trust.New(cfg.Search.TrustedDomains),
		Logger: logger,
	}

	generator := &answer.Generator{
		Client:           provider,
		DefaultModel:     cfg.LLM.Model,
		AllowedModels:    cfg.LLM.AllowedModels,
		DefaultMaxTokens: cfg.LLM.MaxTokens,
		Logger:           logger,
	}

	pipeline := &rag.Pipeline{
		Searcher:  chain,
		Extractor: extract.New(fetcher, logger),
		Generator: generator,
		Limits: budget.Limits{
			MaxDocs:        cfg.Budget.MaxDocs,
			MaxCharsPerDoc: cfg.Budget.MaxCharsPerDoc,
			TotalChars:     cfg.Budget.TotalChars,
		},
		MaxPages: cfg.Search.MaxPages,
		Logger:   logger,
	}

	cleanup := func() {}
	if cfg.Database.URL != "" {
		store, err := vecstore.New(ctx, vecstore.Config{
			ConnString: cfg.Database.URL,
			TableName:  cfg.Database.Table,
			VectorDim:  cfg.Database.VectorDim,
		})
		if err != nil {
			return nil, nil, err
		}
		pipeline.Knowledge = &rag.VectorKnowledge{
			Embedder:       provider,
			Store:          store,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
		}
		cleanup = store.Close
		log.Info().Str("table", cfg.Database.Table).Msg("knowledge base enabled")
	} else {
		log.Info().Msg("no database configured, knowledge base disabled")
	}

	server := &api.Server{
		Pipeline:     pipeline,
		Models:       cfg.LLM.AllowedModels,
		DefaultModel: cfg.LLM.Model,
		Verifier: &auth.GoogleVerifier{
			Audience: cfg.Auth.GoogleClientID,
		},
		Sessions: &auth.Sessions{
			Secret: []byte(cfg.Auth.JWTSecret),
			TTL:    cfg.Auth.SessionTTL.Std(),
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger,
	}
	return server, cleanup, nil
}
