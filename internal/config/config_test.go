package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.LLM.Model != "openrouter/auto" {
		t.Fatalf("default model = %q", c.LLM.Model)
	}
	if len(c.LLM.AllowedModels) != 4 {
		t.Fatalf("allowed models = %v", c.LLM.AllowedModels)
	}
	if c.Budget.MaxDocs != 8 || c.Budget.MaxCharsPerDoc != 1500 || c.Budget.TotalChars != 8000 {
		t.Fatalf("budget defaults = %+v", c.Budget)
	}
	if c.Search.MaxPages != 12 {
		t.Fatalf("max pages = %d, want 12", c.Search.MaxPages)
	}
	if c.Auth.SessionTTL.Std() != 12*time.Hour {
		t.Fatalf("session ttl = %v", c.Auth.SessionTTL)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen: ":9090"
llm:
  model: "deepseek/deepseek-chat-v3-0324:free"
search:
  trustedDomains:
    - example.org
cache:
  maxAge: 1h
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Listen != ":9090" {
		t.Fatalf("Listen = %q", c.Listen)
	}
	if c.LLM.Model != "deepseek/deepseek-chat-v3-0324:free" {
		t.Fatalf("Model = %q", c.LLM.Model)
	}
	if len(c.Search.TrustedDomains) != 1 || c.Search.TrustedDomains[0] != "example.org" {
		t.Fatalf("TrustedDomains = %v", c.Search.TrustedDomains)
	}
	if c.Cache.MaxAge.Std() != time.Hour {
		t.Fatalf("MaxAge = %v", c.Cache.MaxAge)
	}
	// Untouched fields keep their defaults.
	if c.LLM.BaseURL != "https://openrouter.ai/api/v1" {
		t.Fatalf("BaseURL = %q", c.LLM.BaseURL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MEDSEARCH_LISTEN", ":7070")
	t.Setenv("TRUSTED_DOMAINS", "who.int, cdc.gov")
	t.Setenv("LLM_API_KEY", "env-key")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Listen != ":7070" {
		t.Fatalf("Listen = %q", c.Listen)
	}
	if len(c.Search.TrustedDomains) != 2 || c.Search.TrustedDomains[1] != "cdc.gov" {
		t.Fatalf("TrustedDomains = %v", c.Search.TrustedDomains)
	}
	if c.LLM.APIKey != "env-key" {
		t.Fatalf("APIKey = %q", c.LLM.APIKey)
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation failure without secrets")
	}
	c.LLM.APIKey = "k"
	c.Auth.JWTSecret = "s"
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
