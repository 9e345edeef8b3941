package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Duration accepts "24h" style YAML scalars; plain integers are read as
// nanoseconds the way yaml.v3 would decode time.Duration itself.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full service configuration. Nested sections map one to one
// onto the YAML file schema and keep flags/env naming predictable.
type Config struct {
	Listen string `yaml:"listen"`

	LLM struct {
		BaseURL        string   `yaml:"base"`
		APIKey         string   `yaml:"key"`
		Model          string   `yaml:"model"`
		AllowedModels  []string `yaml:"allowedModels"`
		EmbeddingModel string   `yaml:"embeddingModel"`
		MaxTokens      int      `yaml:"maxTokens"`
	} `yaml:"llm"`

	Search struct {
		TavilyKey      string   `yaml:"tavilyKey"`
		TrustedDomains []string `yaml:"trustedDomains"`
		MaxPages       int      `yaml:"maxPages"`
	} `yaml:"search"`

	Cache struct {
		Dir    string        `yaml:"dir"`
		MaxAge Duration      `yaml:"maxAge"`
	} `yaml:"cache"`

	Budget struct {
		MaxDocs        int `yaml:"maxDocs"`
		MaxCharsPerDoc int `yaml:"maxCharsPerDoc"`
		TotalChars     int `yaml:"totalChars"`
	} `yaml:"budget"`

	Fetch struct {
		Timeout     Duration      `yaml:"timeout"`
		MaxAttempts int           `yaml:"maxAttempts"`
		UserAgent   string        `yaml:"userAgent"`
		RatePerSec  float64       `yaml:"ratePerSec"`
	} `yaml:"fetch"`

	Database struct {
		URL       string `yaml:"url"`
		Table     string `yaml:"table"`
		VectorDim int    `yaml:"vectorDim"`
	} `yaml:"database"`

	Auth struct {
		JWTSecret      string        `yaml:"jwtSecret"`
		GoogleClientID string        `yaml:"googleClientId"`
		SessionTTL     Duration      `yaml:"sessionTTL"`
	} `yaml:"auth"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"cors"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	var c Config
	c.Listen = ":8080"
	c.LLM.BaseURL = "https://openrouter.ai/api/v1"
	c.LLM.Model = "openrouter/auto"
	c.LLM.AllowedModels = []string{
		"moonshotai/kimi-vl-a3b-thinking:free",
		"openrouter/auto",
		"qwen/qwen2.5-vl-32b-instruct:free",
		"deepseek/deepseek-chat-v3-0324:free",
	}
	c.LLM.EmbeddingModel = "text-embedding-3-small"
	c.LLM.MaxTokens = 3000
	c.Search.MaxPages = 12
	c.Cache.Dir = ".medsearch-cache"
	c.Cache.MaxAge = Duration(24 * time.Hour)
	c.Budget.MaxDocs = 8
	c.Budget.MaxCharsPerDoc = 1500
	c.Budget.TotalChars = 8000
	c.Fetch.Timeout = Duration(20 * time.Second)
	c.Fetch.MaxAttempts = 3
	c.Fetch.RatePerSec = 2
	c.Database.Table = "documents"
	c.Database.VectorDim = 1024
	c.Auth.SessionTTL = Duration(12 * time.Hour)
	c.CORS.AllowedOrigins = []string{"*"}
	return c
}

// Load builds the effective configuration: defaults, then the optional YAML
// file, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MEDSEARCH_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		cfg.Search.TavilyKey = v
	}
	if v := os.Getenv("TRUSTED_DOMAINS"); v != "" {
		cfg.Search.TrustedDomains = splitList(v)
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if s := os.Getenv("CACHE_MAX_AGE"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.Cache.MaxAge = Duration(d)
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
	if s := os.Getenv("SEARCH_MAX_PAGES"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.Search.MaxPages = n
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the fields the server cannot run without. The indexer has
// its own, narrower requirements and validates separately.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("LLM API key is required (LLM_API_KEY)"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("default model is empty"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT secret is required (JWT_SECRET)"))
	}
	return errors.Join(errs...)
}
