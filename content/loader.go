package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/eringen/pubdocs/docstore"
)

// DefaultIntro is the intro page body used when the remote doc is
// unreachable.
const DefaultIntro = "# Welcome\n\nThis documentation was seeded from the built-in fixtures."

const introSlug = "introduction"

// maxRemoteDocSize caps the remote intro body.
const maxRemoteDocSize = 1 << 20

// isoTime formats t as UTC ISO-8601 with millisecond precision.
func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Loader reads the doc tree and blog listing from the store, seeding empty
// collections from Fixtures first.
type Loader struct {
	store     docstore.Store
	fixtures  Fixtures
	remoteURL string
	client    *http.Client
	now       func() time.Time
	logger    *zap.Logger
	seeds     singleflight.Group
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRemoteDoc sets the URL the intro page body is fetched from at seed time.
func WithRemoteDoc(url string, client *http.Client) LoaderOption {
	return func(l *Loader) {
		l.remoteURL = url
		if client != nil {
			l.client = client
		}
	}
}

// WithFixtures replaces the embedded fixture set.
func WithFixtures(f Fixtures) LoaderOption {
	return func(l *Loader) { l.fixtures = f }
}

// WithLoaderClock overrides time.Now.
func WithLoaderClock(now func() time.Time) LoaderOption {
	return func(l *Loader) { l.now = now }
}

// WithLoaderLogger sets the logger (default: no-op).
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a Loader over store using the embedded fixtures.
func NewLoader(store docstore.Store, opts ...LoaderOption) (*Loader, error) {
	fixtures, err := DefaultFixtures()
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	l := &Loader{
		store:    store,
		fixtures: fixtures,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// LoadSections returns every section ordered by Order with its pages nested
// and ordered by Position. Empty doc collections are seeded first.
func (l *Loader) LoadSections(ctx context.Context) (DocsResponse, error) {
	sections, pages, err := l.readDocs(ctx)
	if err != nil {
		return DocsResponse{}, err
	}
	if len(sections) == 0 || len(pages) == 0 {
		if err := l.seed(ctx, "docs", l.SeedDocs); err != nil {
			return DocsResponse{}, fmt.Errorf("seed docs: %w", err)
		}
		if sections, pages, err = l.readDocs(ctx); err != nil {
			return DocsResponse{}, err
		}
	}
	return DocsResponse{Sections: groupSections(sections, pages)}, nil
}

// LoadPosts returns every blog post, newest PublishedAt first. An empty blog
// collection is seeded first.
func (l *Loader) LoadPosts(ctx context.Context) (BlogResponse, error) {
	posts, err := l.readPosts(ctx)
	if err != nil {
		return BlogResponse{}, err
	}
	if len(posts) == 0 {
		if err := l.seed(ctx, "blogs", l.SeedBlogs); err != nil {
			return BlogResponse{}, fmt.Errorf("seed blogs: %w", err)
		}
		if posts, err = l.readPosts(ctx); err != nil {
			return BlogResponse{}, err
		}
	}
	sortPosts(posts)
	return BlogResponse{Posts: posts}, nil
}

func (l *Loader) readDocs(ctx context.Context) ([]Section, []Page, error) {
	var sectionDocs, pageDocs []docstore.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sectionDocs, err = l.store.List(gctx, SectionCollection)
		return err
	})
	g.Go(func() error {
		var err error
		pageDocs, err = l.store.List(gctx, PageCollection)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("read docs: %w", err)
	}

	sections := make([]Section, 0, len(sectionDocs))
	for _, d := range sectionDocs {
		sections = append(sections, sectionFromDoc(d))
	}
	pages := make([]Page, 0, len(pageDocs))
	for _, d := range pageDocs {
		pages = append(pages, pageFromDoc(d))
	}
	return sections, pages, nil
}

func (l *Loader) readPosts(ctx context.Context) ([]BlogPost, error) {
	docs, err := l.store.List(ctx, BlogCollection)
	if err != nil {
		return nil, fmt.Errorf("read blogs: %w", err)
	}
	posts := make([]BlogPost, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, postFromDoc(d))
	}
	return posts, nil
}

// seed collapses concurrent seeds of the same group in this process. Other
// processes may still seed in parallel; fixture ids are stable, so the
// writes are idempotent.
func (l *Loader) seed(ctx context.Context, group string, fn func(context.Context) error) error {
	_, err, _ := l.seeds.Do(group, func() (any, error) {
		l.logger.Info("seeding empty collections", zap.String("group", group))
		return nil, fn(ctx)
	})
	return err
}

// SeedDocs writes the fixture sections and pages in one batch.
func (l *Loader) SeedDocs(ctx context.Context) error {
	intro := l.fetchRemoteDoc(ctx)
	now := isoTime(l.now())

	var writes []docstore.Write
	for sectionIndex, section := range l.fixtures.Sections {
		writes = append(writes, docstore.Write{
			Collection: SectionCollection,
			ID:         section.ID,
			Data: map[string]any{
				"title":       section.Title,
				"description": section.Description,
				"order":       sectionIndex,
			},
		})
		for pageIndex, page := range section.Pages {
			sectionID := page.SectionID
			if sectionID == "" {
				sectionID = section.ID
			}
			body := page.Content
			if page.Slug == introSlug {
				body = intro
			}
			lastUpdated := page.LastUpdated
			if lastUpdated == "" {
				lastUpdated = now
			}
			writes = append(writes, docstore.Write{
				Collection: PageCollection,
				ID:         page.ID,
				Data: map[string]any{
					"sectionId":   sectionID,
					"title":       page.Title,
					"summary":     page.Summary,
					"slug":        page.Slug,
					"content":     body,
					"lastUpdated": lastUpdated,
					"position":    pageIndex,
				},
			})
		}
	}
	return l.store.Commit(ctx, writes...)
}

// SeedBlogs writes the fixture posts in one batch.
func (l *Loader) SeedBlogs(ctx context.Context) error {
	now := isoTime(l.now())
	writes := make([]docstore.Write, 0, len(l.fixtures.Posts))
	for index, post := range l.fixtures.Posts {
		publishedAt := post.PublishedAt
		if publishedAt == "" {
			publishedAt = now
		}
		tags := post.Tags
		if tags == nil {
			tags = []string{}
		}
		writes = append(writes, docstore.Write{
			Collection: BlogCollection,
			ID:         post.ID,
			Data: map[string]any{
				"title":       post.Title,
				"excerpt":     post.Excerpt,
				"content":     post.Content,
				"tags":        tags,
				"heroImage":   post.HeroImage,
				"slug":        post.Slug,
				"author":      post.Author,
				"publishedAt": publishedAt,
				"order":       index,
			},
		})
	}
	return l.store.Commit(ctx, writes...)
}

// fetchRemoteDoc never fails: any problem yields DefaultIntro.
func (l *Loader) fetchRemoteDoc(ctx context.Context) string {
	if l.remoteURL == "" {
		return DefaultIntro
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.remoteURL, nil)
	if err != nil {
		return DefaultIntro
	}
	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Warn("remote doc unavailable", zap.String("url", l.remoteURL), zap.Error(err))
		return DefaultIntro
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		l.logger.Warn("remote doc returned non-OK status", zap.String("url", l.remoteURL), zap.Int("status", resp.StatusCode))
		return DefaultIntro
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteDocSize))
	if err != nil {
		return DefaultIntro
	}
	return string(body)
}
