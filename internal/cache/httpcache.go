package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry captures response metadata alongside the stored body so cached
// content can be served without hitting the network while fresh.
type Entry struct {
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	SavedAt     time.Time `json:"saved_at"`
}

// HTTPCache stores responses on disk as <key>.meta.json and <key>.body where
// key is sha256(url). Entries older than TTL are treated as absent, so the
// cache behaves as a read-through store with time-boxed expiry and no
// explicit invalidation. A zero TTL means entries never expire.
type HTTPCache struct {
	Dir string
	TTL time.Duration
}

func (c *HTTPCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	return os.MkdirAll(c.Dir, 0o755)
}

func (c *HTTPCache) key(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}

func (c *HTTPCache) metaPath(key string) string { return filepath.Join(c.Dir, key+".meta.json") }
func (c *HTTPCache) bodyPath(key string) string { return filepath.Join(c.Dir, key+".body") }

// Get returns the cached body and content type for url when a fresh entry
// exists. The second return value is false on miss or expiry.
func (c *HTTPCache) Get(_ context.Context, url string) ([]byte, string, bool) {
	if err := c.ensureDir(); err != nil {
		return nil, "", false
	}
	key := c.key(url)
	f, err := os.Open(c.metaPath(key))
	if err != nil {
		return nil, "", false
	}
	defer f.Close()
	var e Entry
	if err := json.NewDecoder(f).Decode(&e); err != nil {
		return nil, "", false
	}
	if c.TTL > 0 && time.Since(e.SavedAt) > c.TTL {
		return nil, "", false
	}
	body, err := os.ReadFile(c.bodyPath(key))
	if err != nil {
		return nil, "", false
	}
	return body, e.ContentType, true
}

// Save stores a new cache entry to disk. The body is written first so a
// crash between the two writes leaves no dangling metadata.
func (c *HTTPCache) Save(_ context.Context, url string, contentType string, body []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	key := c.key(url)
	if err := os.WriteFile(c.bodyPath(key), body, 0o644); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	meta := Entry{
		URL:         url,
		ContentType: contentType,
		SavedAt:     time.Now().UTC(),
	}
	tmp := c.metaPath(key) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create meta: %w", err)
	}
	if err := json.NewEncoder(f).Encode(&meta); err != nil {
		f.Close()
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, c.metaPath(key))
}

// PurgeExpired removes entries older than the cache TTL and returns how many
// were deleted. Intended as a periodic housekeeping sweep; Get already
// ignores stale entries so correctness does not depend on it.
func (c *HTTPCache) PurgeExpired() (int, error) {
	if c == nil || c.TTL <= 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	removed := 0
	err := filepath.WalkDir(c.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".meta.json") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil // skip unreadable
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil // skip malformed
		}
		if now.Sub(e.SavedAt) <= c.TTL {
			return nil
		}
		removed++
		_ = os.Remove(path)
		_ = os.Remove(strings.TrimSuffix(path, ".meta.json") + ".body")
		return nil
	})
	return removed, err
}
