package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// FreshnessWindow is how long a captured credential is trusted before a
// fresh login is forced, regardless of what the probe says.
const FreshnessWindow = 24 * time.Hour

// Cache persists the most recent HeaderSet to a JSON file.
type Cache struct {
	path    string
	window  time.Duration
	nowFunc func() time.Time
	log     zerolog.Logger
}

// NewCache returns a Cache backed by the file at path.
func NewCache(path string, log zerolog.Logger) *Cache {
	return &Cache{
		path:    path,
		window:  FreshnessWindow,
		nowFunc: time.Now,
		log:     log.With().Str("component", "credential_cache").Logger(),
	}
}

// Path returns the backing file location.
func (c *Cache) Path() string { return c.path }

// Load returns the cached headers when the file exists, parses, and is
// younger than the freshness window. Any other condition yields (nil, false);
// read and parse failures are logged, never returned.
func (c *Cache) Load() (HeaderSet, bool) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.log.Info().Msg("no cached headers found")
		} else {
			c.log.Warn().Err(err).Msg("failed to read cached headers")
		}
		return nil, false
	}

	var cred CachedCredential
	if err := json.Unmarshal(raw, &cred); err != nil {
		c.log.Warn().Err(err).Msg("cached headers are corrupt, ignoring")
		return nil, false
	}
	if cred.CapturedAt.IsZero() {
		c.log.Info().Msg("cached headers have no timestamp, will refresh")
		return nil, false
	}

	age := c.nowFunc().Sub(cred.CapturedAt)
	if age > c.window {
		c.log.Info().Dur("age", age).Msg("cached headers are too old, will refresh")
		return nil, false
	}
	if len(cred.Headers) == 0 {
		return nil, false
	}

	c.log.Info().Dur("age", age).Msg("found cached headers")
	return cred.Headers, true
}

// Save overwrites the cache with headers stamped with the current time. The
// file is written to a sibling temp file and renamed into place so a crash
// never leaves a partially written cache behind.
func (c *Cache) Save(headers HeaderSet) error {
	cred := CachedCredential{
		CapturedAt: c.nowFunc(),
		Headers:    headers.Clone(),
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cached headers: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".headers-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename has succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}

	c.log.Info().Str("path", c.path).Msg("headers saved to cache")
	return nil
}

// Invalidate removes the cache file. A missing file is not an error.
func (c *Cache) Invalidate() error {
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	if err == nil {
		c.log.Info().Str("path", c.path).Msg("removed cached headers")
	}
	return nil
}
