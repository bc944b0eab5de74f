package pubdocs

import (
	"context"
	"sync"
	"time"

	"github.com/eringen/pubdocs/content"
	"github.com/eringen/pubdocs/revalidate"
)

// ContentCache is an in-memory cache of the doc tree and blog listing with
// TTL. It is a revalidation target: any revalidated route drops it.
//
// Revalidations handled by other replicas arrive through epoch: the cached
// listings are only served while the epoch matches the one read before they
// were loaded.
type ContentCache struct {
	mu       sync.RWMutex
	docs     *content.DocsResponse
	posts    *content.BlogResponse
	fetched  time.Time
	loadedAt uint64
	ttl      time.Duration
	loader   *content.Loader
	epoch    revalidate.Epoch
}

// NewContentCache creates a ContentCache backed by the given Loader. A nil
// epoch leaves invalidation to Revalidate and the TTL.
func NewContentCache(l *content.Loader, ttl time.Duration, epoch revalidate.Epoch) *ContentCache {
	return &ContentCache{loader: l, ttl: ttl, epoch: epoch}
}

func (c *ContentCache) valid(epoch uint64) bool {
	return c.docs != nil && c.posts != nil && c.loadedAt == epoch && time.Since(c.fetched) < c.ttl
}

func (c *ContentCache) currentEpoch(ctx context.Context) (uint64, error) {
	if c.epoch == nil {
		return 0, nil
	}
	return c.epoch.Epoch(ctx)
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *ContentCache) Invalidate() {
	c.mu.Lock()
	c.docs = nil
	c.posts = nil
	c.mu.Unlock()
}

// Revalidate implements revalidate.Target. Every content route reads from
// the same two listings, so the path is not inspected.
func (c *ContentCache) Revalidate(context.Context, string) error {
	c.Invalidate()
	return nil
}

func (c *ContentCache) fetch(ctx context.Context) (content.DocsResponse, content.BlogResponse, error) {
	docs, err := c.loader.LoadSections(ctx)
	if err != nil {
		return content.DocsResponse{}, content.BlogResponse{}, err
	}
	posts, err := c.loader.LoadPosts(ctx)
	if err != nil {
		return content.DocsResponse{}, content.BlogResponse{}, err
	}
	return docs, posts, nil
}

// ensureLoaded returns the cached listings after ensuring the cache is fresh.
// It tries a read lock first; only takes a write lock if a reload is needed.
// When the epoch cannot be read the listings come straight from the store.
func (c *ContentCache) ensureLoaded(ctx context.Context) (content.DocsResponse, content.BlogResponse, error) {
	epoch, err := c.currentEpoch(ctx)
	if err != nil {
		return c.fetch(ctx)
	}

	c.mu.RLock()
	if c.valid(epoch) {
		docs, posts := *c.docs, *c.posts
		c.mu.RUnlock()
		return docs, posts, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid(epoch) {
		return *c.docs, *c.posts, nil
	}
	docs, posts, err := c.fetch(ctx)
	if err != nil {
		return content.DocsResponse{}, content.BlogResponse{}, err
	}
	c.docs = &docs
	c.posts = &posts
	c.fetched = time.Now()
	c.loadedAt = epoch
	return docs, posts, nil
}

// Docs returns the doc tree.
func (c *ContentCache) Docs(ctx context.Context) (content.DocsResponse, error) {
	docs, _, err := c.ensureLoaded(ctx)
	return docs, err
}

// Posts returns the blog listing, newest first.
func (c *ContentCache) Posts(ctx context.Context) (content.BlogResponse, error) {
	_, posts, err := c.ensureLoaded(ctx)
	return posts, err
}

// DocPage returns a page by section and slug.
func (c *ContentCache) DocPage(ctx context.Context, sectionID, slug string) (content.DocSection, content.Page, bool, error) {
	docs, err := c.Docs(ctx)
	if err != nil {
		return content.DocSection{}, content.Page{}, false, err
	}
	section, page, ok := content.FindDocPage(docs.Sections, sectionID, slug)
	return section, page, ok, nil
}

// Post returns a blog post by slug.
func (c *ContentCache) Post(ctx context.Context, slug string) (content.BlogPost, bool, error) {
	posts, err := c.Posts(ctx)
	if err != nil {
		return content.BlogPost{}, false, err
	}
	post, ok := content.FindBlogPost(posts.Posts, slug)
	return post, ok, nil
}
