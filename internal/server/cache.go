package server

import (
	"errors"
	"slices"
	"sync"

	"github.com/ironsheep/slide-tools-mcp/internal/slide"
)

// SlideCache keeps read sessions open across tool calls.
//
// Slides are keyed by the exact path string given. When more than limit
// slides are open, the least recently used one is closed. A reader handed
// out earlier may therefore be closed by a later Open on another path; the
// server handles one request at a time, so this never interrupts a call.
//
// SlideCache is safe for concurrent use.
type SlideCache struct {
	mu      sync.Mutex
	limit   int
	logger  slide.Logger
	opts    []slide.Option
	readers map[string]*slide.Reader
	recent  []string // least recently used first
}

// NewSlideCache returns an empty cache holding at most limit open slides.
// opts are passed to every slide.Open.
func NewSlideCache(limit int, logger slide.Logger, opts ...slide.Option) *SlideCache {
	return &SlideCache{
		limit:   max(1, limit),
		logger:  logger,
		opts:    opts,
		readers: make(map[string]*slide.Reader),
	}
}

// Open returns the cached reader for path or opens the slide.
func (c *SlideCache) Open(path string) (*slide.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.readers[path]; ok {
		c.touch(path)
		return r, nil
	}

	r, err := slide.Open(path, c.opts...)
	if err != nil {
		return nil, err
	}

	for len(c.recent) >= c.limit {
		oldest := c.recent[0]
		if err := c.drop(oldest); err != nil {
			c.logger.Warn("closing evicted slide", "path", oldest, "error", err)
		}
	}
	c.readers[path] = r
	c.recent = append(c.recent, path)
	return r, nil
}

// Evict closes and forgets path. Evicting an unknown path is a no-op.
func (c *SlideCache) Evict(path string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.readers[path]; !ok {
		return false, nil
	}
	return true, c.drop(path)
}

// Clear closes every cached slide.
func (c *SlideCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for len(c.recent) > 0 {
		err = errors.Join(err, c.drop(c.recent[0]))
	}
	return err
}

// Len returns the number of open slides.
func (c *SlideCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.readers)
}

// Paths returns the open slides, least recently used first.
func (c *SlideCache) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.recent)
}

func (c *SlideCache) touch(path string) {
	if i := slices.Index(c.recent, path); i >= 0 {
		c.recent = append(slices.Delete(c.recent, i, i+1), path)
	}
}

func (c *SlideCache) drop(path string) error {
	r := c.readers[path]
	delete(c.readers, path)
	if i := slices.Index(c.recent, path); i >= 0 {
		c.recent = slices.Delete(c.recent, i, i+1)
	}
	if r == nil {
		return nil
	}
	return r.Close()
}
