package mesh

import "sync"

type cacheKey struct {
	solid   *Solid
	version int
}

// IntersectorCache keeps the most recently built Intersector and reuses it as
// long as the (solid, version) pair matches. Building the XY grid is the
// expensive step for large meshes; callers that regenerate toolpaths against
// an unchanged solid should share one cache.
type IntersectorCache struct {
	mu  sync.Mutex
	key cacheKey
	in  *Intersector

	// BuildCount is the number of times an index was (re)built, for tests
	// and diagnostics.
	BuildCount int
}

func (c *IntersectorCache) Get(s *Solid, version int) *Intersector {
	if s == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{solid: s, version: version}
	if c.in != nil && c.key == key {
		return c.in
	}
	c.in = NewIntersector(s)
	c.key = key
	c.BuildCount++
	return c.in
}

func (c *IntersectorCache) Invalidate() {
	c.mu.Lock()
	c.key = cacheKey{}
	c.in = nil
	c.mu.Unlock()
}
