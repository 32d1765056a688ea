// Package local provides an in-process cache of semantic memories.
//
// The cache mirrors the persistent store so the memory manager can answer
// keyword lookups without touching SQLite or any search backend. It is the
// last-resort source for context injection: if every ranked path fails, a
// substring scan over the cache still returns matches.
package local

import (
	"sort"
	"strings"
	"sync"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Config holds configuration for the local cache.
type Config struct {
	// Enabled controls whether the cache stores and returns memories.
	// When false, Put is a no-op and every lookup returns nil.
	Enabled bool
}

// Cache holds copies of semantic memories keyed by id.
type Cache struct {
	config Config

	mu       sync.RWMutex
	memories map[string]*memory.SemanticMemory
}

// NewCache creates an empty cache.
func NewCache(config Config) *Cache {
	return &Cache{
		config:   config,
		memories: make(map[string]*memory.SemanticMemory),
	}
}

// Put stores copies of the given memories, replacing existing entries.
func (c *Cache) Put(mems ...*memory.SemanticMemory) {
	if !c.config.Enabled || len(mems) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range mems {
		if m == nil || m.ID == "" {
			continue
		}
		c.memories[m.ID] = m.Clone()
	}
}

// Replace swaps the full cache contents for mems.
func (c *Cache) Replace(mems []*memory.SemanticMemory) {
	if !c.config.Enabled {
		return
	}

	next := make(map[string]*memory.SemanticMemory, len(mems))
	for _, m := range mems {
		if m != nil && m.ID != "" {
			next[m.ID] = m.Clone()
		}
	}

	c.mu.Lock()
	c.memories = next
	c.mu.Unlock()
}

// Delete removes a memory. It reports whether the id was present.
func (c *Cache) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.memories[id]
	delete(c.memories, id)
	return ok
}

// Get returns a copy of the memory with the given id, or nil.
func (c *Cache) Get(id string) *memory.SemanticMemory {
	if !c.config.Enabled {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return a copy to avoid callers mutating internal state.
	return c.memories[id].Clone()
}

// Len returns the number of cached memories.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.memories)
}

// All returns copies of every cached memory.
func (c *Cache) All() []*memory.SemanticMemory {
	if !c.config.Enabled {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*memory.SemanticMemory, 0, len(c.memories))
	for _, m := range c.memories {
		result = append(result, m.Clone())
	}
	return result
}

// Query filters cached memories.
type Query struct {
	// Text must appear (case-insensitively) in the content when non-empty.
	Text string

	// Keywords match when any one appears in the content. Used by the
	// keyword fallback, which splits a free-form task into words.
	Keywords []string

	Type  memory.MemoryType
	Tags  []string
	Limit int
}

// Search returns copies of matching memories ordered by importance, then
// access count.
func (c *Cache) Search(q Query) []*memory.SemanticMemory {
	if !c.config.Enabled {
		return nil
	}

	text := strings.ToLower(strings.TrimSpace(q.Text))
	keywords := make([]string, 0, len(q.Keywords))
	for _, kw := range q.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	c.mu.RLock()
	var results []*memory.SemanticMemory
	for _, m := range c.memories {
		if m.SupersededBy != "" {
			continue
		}
		if q.Type != "" && m.Type != q.Type {
			continue
		}
		if len(q.Tags) > 0 && !hasAnyTag(m.Tags, q.Tags) {
			continue
		}
		content := strings.ToLower(m.Content)
		if text != "" && !strings.Contains(content, text) {
			continue
		}
		if len(keywords) > 0 && !containsAny(content, keywords) {
			continue
		}
		results = append(results, m.Clone())
	}
	c.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].ImportanceScore != results[j].ImportanceScore {
			return results[i].ImportanceScore > results[j].ImportanceScore
		}
		return results[i].AccessCount > results[j].AccessCount
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

func containsAny(content string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}
