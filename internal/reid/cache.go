package reid

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// embeddingCache holds recently extracted embeddings keyed by
// (camera, local_id, bbox-hash) with a short TTL, so that a stable
// (non-moving) track does not re-trigger extraction every frame. Shape
// follows the teacher's EventDedup cache.
type embeddingCache struct {
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
}

type cacheEntry struct {
	vector  []float32
	addedAt time.Time
}

func newEmbeddingCache(size int, ttl time.Duration) *embeddingCache {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, cacheEntry](size)
	return &embeddingCache{cache: c, ttl: ttl}
}

// Get returns a cached embedding for key if present and not expired.
func (c *embeddingCache) Get(key string) ([]float32, bool) {
	e, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(e.addedAt) > c.ttl {
		return nil, false
	}
	return e.vector, true
}

// Put stores vector under key, timestamped now.
func (c *embeddingCache) Put(key string, vector []float32) {
	c.cache.Add(key, cacheEntry{vector: vector, addedAt: time.Now()})
}

// Key builds the cache key for one track's current box, bucketing
// coordinates to 4px so small jitter still hits cache.
func Key(cameraID string, localID uint32, x, y, w, h float64) string {
	bx, by := int(x)/4, int(y)/4
	bw, bh := int(w)/4, int(h)/4
	return fmt.Sprintf("%s|%d|%d,%d,%d,%d", cameraID, localID, bx, by, bw, bh)
}
