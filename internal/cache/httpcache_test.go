package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHTTPCache_SaveAndGet(t *testing.T) {
	c := &HTTPCache{Dir: t.TempDir(), TTL: time.Hour}
	ctx := context.Background()

	if err := c.Save(ctx, "https://who.int/flu", "text/html", []byte("<html>flu</html>")); err != nil {
		t.Fatalf("save: %v", err)
	}
	body, ct, ok := c.Get(ctx, "https://who.int/flu")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if string(body) != "<html>flu</html>" || ct != "text/html" {
		t.Fatalf("unexpected entry: %q %q", body, ct)
	}
	if _, _, ok := c.Get(ctx, "https://who.int/other"); ok {
		t.Fatal("expected a miss for a different url")
	}
}

func TestHTTPCache_ExpiredEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir, TTL: time.Minute}
	ctx := context.Background()
	if err := c.Save(ctx, "https://cdc.gov/x", "text/html", []byte("body")); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Rewrite the metadata with a SavedAt beyond the TTL.
	backdate(t, dir, -2*time.Minute)
	if _, _, ok := c.Get(ctx, "https://cdc.gov/x"); ok {
		t.Fatal("expected expired entry to be a miss")
	}
}

func TestHTTPCache_PurgeExpired(t *testing.T) {
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir, TTL: time.Minute}
	ctx := context.Background()
	if err := c.Save(ctx, "https://cdc.gov/old", "text/html", []byte("old")); err != nil {
		t.Fatalf("save: %v", err)
	}
	backdate(t, dir, -time.Hour)
	if err := c.Save(ctx, "https://cdc.gov/new", "text/html", []byte("new")); err != nil {
		t.Fatalf("save: %v", err)
	}

	removed, err := c.PurgeExpired()
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, _, ok := c.Get(ctx, "https://cdc.gov/new"); !ok {
		t.Fatal("fresh entry should survive purge")
	}
}

// backdate rewrites every meta file in dir shifting SavedAt by delta.
func backdate(t *testing.T, dir string, delta time.Duration) {
	t.Helper()
	metas, err := filepath.Glob(filepath.Join(dir, "*.meta.json"))
	if err != nil || len(metas) == 0 {
		t.Fatalf("no meta files to backdate: %v", err)
	}
	for _, p := range metas {
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			t.Fatal(err)
		}
		e.SavedAt = e.SavedAt.Add(delta)
		out, _ := json.Marshal(e)
		if err := os.WriteFile(p, out, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}
