package dataset

import (
	"container/list"
	"fmt"
	"sync"
)

// ClipCache keeps decoded clip buffers in memory so evaluation splits do
// not re-decode the same frames every epoch. Eviction is least recently
// used. A single cache may be shared by several datasets.
type ClipCache struct {
	mu       sync.Mutex
	clips    map[string][]float32
	lru      *list.List
	lruMap   map[string]*list.Element
	maxClips int

	hits   int64
	misses int64
}

// NewClipCache creates a cache holding at most maxClips decoded clips.
func NewClipCache(maxClips int) *ClipCache {
	if maxClips <= 0 {
		maxClips = 1
	}
	return &ClipCache{
		clips:    make(map[string][]float32),
		lru:      list.New(),
		lruMap:   make(map[string]*list.Element),
		maxClips: maxClips,
	}
}

// Get retrieves a decoded clip and marks it most recently used.
func (c *ClipCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, exists := c.clips[key]; exists {
		if elem, ok := c.lruMap[key]; ok {
			c.lru.MoveToFront(elem)
		}
		c.hits++
		return data, true
	}

	c.misses++
	return nil, false
}

// Put stores a decoded clip, evicting the least recently used entries when
// the cache is full. The cache takes ownership of data.
func (c *ClipCache) Put(key string, data []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.clips[key]; exists {
		if elem, ok := c.lruMap[key]; ok {
			c.lru.MoveToFront(elem)
		}
		return
	}

	elem := c.lru.PushFront(key)
	c.lruMap[key] = elem
	c.clips[key] = data

	for len(c.clips) > c.maxClips && c.lru.Len() > 0 {
		oldest := c.lru.Back()
		if oldest != nil {
			c.removeElement(oldest)
		}
	}
}

func (c *ClipCache) removeElement(elem *list.Element) {
	key := elem.Value.(string)
	c.lru.Remove(elem)
	delete(c.lruMap, key)
	delete(c.clips, key)
}

// Stats returns a snapshot of cache usage.
func (c *ClipCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}

	return CacheStats{
		Clips:    len(c.clips),
		MaxClips: c.maxClips,
		Hits:     c.hits,
		Misses:   c.misses,
		HitRate:  hitRate,
	}
}

// CacheStats holds clip cache statistics.
type CacheStats struct {
	Clips    int
	MaxClips int
	Hits     int64
	Misses   int64
	HitRate  float64
}

// String returns a readable representation of cache stats.
func (cs CacheStats) String() string {
	return fmt.Sprintf("ClipCache: %d/%d clips, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		cs.Clips, cs.MaxClips, cs.Hits, cs.Misses, cs.HitRate)
}
