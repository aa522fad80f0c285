package align

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache stores resolved column mappings keyed by ColumnsHash.
type Cache interface {
	Get(hash string) (map[string]ColumnMapping, bool)
	Put(sourceID, hash string, columns []string, mapping map[string]ColumnMapping) error
}

// MemoryCache is the in-process cache used in tests and as the default.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]map[string]ColumnMapping
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: map[string]map[string]ColumnMapping{}}
}

func (c *MemoryCache) Get(hash string) (map[string]ColumnMapping, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mapping, ok := c.m[hash]
	return mapping, ok
}

func (c *MemoryCache) Put(_, hash string, _ []string, mapping map[string]ColumnMapping) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[hash] = mapping
	return nil
}

type cacheEntry struct {
	Source    string                   `json:"source"`
	Columns   []string                 `json:"columns"`
	Timestamp time.Time                `json:"timestamp"`
	Mapping   map[string]ColumnMapping `json:"mapping"`
}

// FileCache persists mappings as one JSON file per column-set hash under dir,
// so alignments survive process restarts.
type FileCache struct {
	dir string
	mu  sync.Mutex
}

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mapping cache dir: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(hash string) string {
	return filepath.Join(c.dir, hash+"_mapping.json")
}

func (c *FileCache) Get(hash string) (map[string]ColumnMapping, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := os.ReadFile(c.path(hash))
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	return entry.Mapping, true
}

func (c *FileCache) Put(sourceID, hash string, columns []string, mapping map[string]ColumnMapping) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cacheEntry{
		Source:    sourceID,
		Columns:   columns,
		Timestamp: time.Now().UTC(),
		Mapping:   mapping,
	}
	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(hash), raw, 0o644)
}
