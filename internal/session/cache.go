package session

import (
	"fmt"
	"log"
	"sync"

	"chromepilot-mcp-server/internal/config"
)

// ConfigError marks a session construction failure caused by the per-request
// configuration. It is surfaced to the caller and never cached.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("invalid browser configuration: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

type cacheEntry struct {
	once    sync.Once
	session *Session
	err     error
}

// Cache maps canonical configuration keys to sessions. A placeholder entry is
// inserted under the cache lock before construction starts, so two
// simultaneous first requests for the same configuration construct one
// session between them instead of leaking one.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// GetOrCreate returns the session for the configuration, constructing it on
// first use. A failed construction is returned as a ConfigError and removed
// from the cache so a corrected configuration can retry under the same key.
func (c *Cache) GetOrCreate(cfg config.BrowserConfig) (*Session, error) {
	key := cfg.CacheKey()

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		s, err := New(cfg)
		if err != nil {
			entry.err = &ConfigError{Err: err}
			return
		}
		entry.session = s
		log.Printf("[session:%s] created for config %s", s.ID, key)
	})

	if entry.err != nil {
		c.mu.Lock()
		if c.entries[key] == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, entry.err
	}
	return entry.session, nil
}

// Len reports the number of cached sessions, counting in-flight constructions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CloseAll synchronously closes every cached session and clears the cache.
// Called from the termination path.
func (c *Cache) CloseAll() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	for _, entry := range entries {
		if entry.session != nil {
			entry.session.Close()
		}
	}
}
