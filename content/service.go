package content

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/eringen/pubdocs/docstore"
)

// Authorizer resolves a bearer token to an allow-listed email.
type Authorizer interface {
	Verify(ctx context.Context, token string) (email string, ok bool)
}

// Invalidator drops downstream caches for the given route paths. All paths
// must be invalidated for the call to succeed.
type Invalidator interface {
	Invalidate(ctx context.Context, paths ...string) error
}

// Fallback routes for deletes whose record lacked a section or slug.
const (
	FallbackSectionID = "welcome"
	FallbackDocSlug   = "introduction"
	FallbackBlogSlug  = "blog-post"
)

const newSectionDescription = "Newly added section"

// DocInput is a doc-upsert request. DocID selects an existing page to
// replace; when empty a new page is created. NewSectionTitle, when set,
// wins over SectionID.
type DocInput struct {
	IDToken         string
	DocID           string
	SectionID       string
	NewSectionTitle string
	Title           string `validate:"required"`
	Summary         string
	Content         string
	Slug            string
}

// BlogInput is a blog-upsert request.
type BlogInput struct {
	IDToken   string
	BlogID    string
	Title     string `validate:"required"`
	Excerpt   string
	Content   string
	Tags      []string
	HeroImage string
	Slug      string
	Author    string
}

// DocPatch updates only the non-nil fields of an existing page.
type DocPatch struct {
	Title   *string
	Summary *string
	Content *string
	Slug    *string
}

// BlogPatch updates only the non-nil fields of an existing post.
type BlogPatch struct {
	Title     *string
	Excerpt   *string
	Content   *string
	Tags      []string
	HeroImage *string
	Slug      *string
	Author    *string
}

// Outcome describes the record a successful mutation touched.
type Outcome struct {
	ID        string
	SectionID string
	Slug      string
	Created   bool
}

// Service runs the authorize → validate → resolve → write → invalidate flow
// for docs and blog posts.
type Service struct {
	store         docstore.Store
	auth          Authorizer
	invalidator   Invalidator
	validate      *validator.Validate
	now           func() time.Time
	logger        *zap.Logger
	defaultAuthor string
	mutations     *prometheus.CounterVec
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides time.Now for timestamps and ordering keys.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger (default: no-op).
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithDefaultAuthor sets the author stored on posts submitted without one.
func WithDefaultAuthor(author string) ServiceOption {
	return func(s *Service) { s.defaultAuthor = author }
}

// WithRegisterer registers the mutation counter with reg.
func WithRegisterer(reg prometheus.Registerer) ServiceOption {
	return func(s *Service) { reg.MustRegister(s.mutations) }
}

// NewService wires a Service.
func NewService(store docstore.Store, auth Authorizer, inv Invalidator, opts ...ServiceOption) *Service {
	s := &Service{
		store:         store,
		auth:          auth,
		invalidator:   inv,
		validate:      validator.New(),
		now:           time.Now,
		logger:        zap.NewNop(),
		defaultAuthor: "Editorial Team",
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubdocs_mutations_total",
			Help: "Admin mutations by entity, operation and outcome.",
		}, []string{"entity", "op", "outcome"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertDoc creates or replaces a documentation page.
func (s *Service) UpsertDoc(ctx context.Context, in DocInput) (out Outcome, err error) {
	defer s.observe("doc", "upsert", &err)

	if !s.authorized(ctx, in.IDToken) {
		return Outcome{}, errUnauthorized
	}

	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return Outcome{}, validationError("Title is required")
	}
	summary := strings.TrimSpace(in.Summary)
	body := strings.TrimSpace(in.Content)
	sectionID := strings.TrimSpace(in.SectionID)
	ts := s.now()

	if title := strings.TrimSpace(in.NewSectionTitle); title != "" {
		sectionID = Slugify(title)
		if sectionID != "" {
			if err := s.createOrMergeSection(ctx, sectionID, title, ts); err != nil {
				return Outcome{}, s.storeFailure("Unable to save doc", "doc", "upsert", sectionID, err)
			}
		}
	}
	if sectionID == "" {
		return Outcome{}, validationError("Select or create a section")
	}
	if _, err := s.store.Get(ctx, SectionCollection, sectionID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Outcome{}, notFoundError("Section not found")
		}
		return Outcome{}, s.storeFailure("Unable to save doc", "doc", "upsert", sectionID, err)
	}

	slug := Slugify(firstNonEmpty(in.Slug, in.Title))
	fields := map[string]any{
		"sectionId":   sectionID,
		"title":       in.Title,
		"summary":     summary,
		"content":     body,
		"slug":        slug,
		"lastUpdated": isoTime(ts),
	}

	out = Outcome{SectionID: sectionID, Slug: slug}
	routes := DocRoutes(sectionID, slug)
	if docID := strings.TrimSpace(in.DocID); docID != "" {
		prev, err := s.replace(ctx, PageCollection, docID, fields)
		if err != nil {
			return Outcome{}, s.classify(err, "Doc not found", "Unable to save doc", "doc", "upsert", docID)
		}
		out.ID = docID
		routes = mergeRoutes(routes, docRoutesOf(prev))
	} else {
		fields["position"] = ts.UnixMilli()
		id, err := s.store.Add(ctx, PageCollection, fields)
		if err != nil {
			return Outcome{}, s.storeFailure("Unable to save doc", "doc", "upsert", "", err)
		}
		out.ID, out.Created = id, true
	}

	if err := s.invalidate(ctx, routes); err != nil {
		return Outcome{}, s.storeFailure("Unable to save doc", "doc", "invalidate", out.ID, err)
	}
	return out, nil
}

// DeleteDoc removes a documentation page.
func (s *Service) DeleteDoc(ctx context.Context, token, id string) (out Outcome, err error) {
	defer s.observe("doc", "delete", &err)

	if !s.authorized(ctx, token) {
		return Outcome{}, errUnauthorized
	}
	id = strings.TrimSpace(id)
	if err := s.validate.Var(id, "required"); err != nil {
		return Outcome{}, validationError("Select a doc to delete")
	}
	doc, err := s.remove(ctx, PageCollection, id)
	if err != nil {
		return Outcome{}, s.classify(err, "Doc not found", "Unable to delete doc", "doc", "delete", id)
	}

	sectionID := firstNonEmpty(str(doc.Data, "sectionId"), FallbackSectionID)
	slug := firstNonEmpty(str(doc.Data, "slug"), FallbackDocSlug)
	if err := s.invalidate(ctx, docRoutesOf(doc)); err != nil {
		return Outcome{}, s.storeFailure("Unable to delete doc", "doc", "invalidate", id, err)
	}
	return Outcome{ID: id, SectionID: sectionID, Slug: slug}, nil
}

// PatchDoc replaces only the supplied fields of an existing page.
func (s *Service) PatchDoc(ctx context.Context, token, id string, p DocPatch) (out Outcome, err error) {
	defer s.observe("doc", "patch", &err)

	if !s.authorized(ctx, token) {
		return Outcome{}, errUnauthorized
	}
	id = strings.TrimSpace(id)
	existing, err := s.store.Get(ctx, PageCollection, id)
	if err != nil {
		return Outcome{}, s.classify(err, "Doc not found", "Unable to update doc", "doc", "patch", id)
	}

	fields := map[string]any{"lastUpdated": isoTime(s.now())}
	setIf(fields, "title", p.Title)
	setIf(fields, "summary", p.Summary)
	setIf(fields, "content", p.Content)
	slug := str(existing.Data, "slug")
	if p.Slug != nil && strings.TrimSpace(*p.Slug) != "" {
		slug = Slugify(*p.Slug)
		fields["slug"] = slug
	}
	if err := s.store.Update(ctx, PageCollection, id, fields); err != nil {
		return Outcome{}, s.classify(err, "Doc not found", "Unable to update doc", "doc", "patch", id)
	}

	sectionID := firstNonEmpty(str(existing.Data, "sectionId"), FallbackSectionID)
	routes := mergeRoutes(DocRoutes(sectionID, firstNonEmpty(slug, FallbackDocSlug)), docRoutesOf(existing))
	if err := s.invalidate(ctx, routes); err != nil {
		return Outcome{}, s.storeFailure("Unable to update doc", "doc", "invalidate", id, err)
	}
	return Outcome{ID: id, SectionID: sectionID, Slug: slug}, nil
}

// UpsertBlog creates or replaces a blog post.
func (s *Service) UpsertBlog(ctx context.Context, in BlogInput) (out Outcome, err error) {
	defer s.observe("blog", "upsert", &err)

	if !s.authorized(ctx, in.IDToken) {
		return Outcome{}, errUnauthorized
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return Outcome{}, validationError("Title is required")
	}

	ts := s.now()
	slug := Slugify(firstNonEmpty(in.Slug, in.Title))
	fields := map[string]any{
		"title":       in.Title,
		"excerpt":     strings.TrimSpace(in.Excerpt),
		"content":     strings.TrimSpace(in.Content),
		"tags":        CleanTags(in.Tags),
		"heroImage":   strings.TrimSpace(in.HeroImage),
		"slug":        slug,
		"author":      firstNonEmpty(in.Author, s.defaultAuthor),
		"publishedAt": isoTime(ts),
	}

	out = Outcome{Slug: slug}
	routes := BlogRoutes(slug)
	if blogID := strings.TrimSpace(in.BlogID); blogID != "" {
		prev, err := s.replace(ctx, BlogCollection, blogID, fields)
		if err != nil {
			return Outcome{}, s.classify(err, "Blog not found", "Unable to save blog", "blog", "upsert", blogID)
		}
		out.ID = blogID
		routes = mergeRoutes(routes, blogRoutesOf(prev))
	} else {
		fields["order"] = ts.UnixMilli()
		id, err := s.store.Add(ctx, BlogCollection, fields)
		if err != nil {
			return Outcome{}, s.storeFailure("Unable to save blog", "blog", "upsert", "", err)
		}
		out.ID, out.Created = id, true
	}

	if err := s.invalidate(ctx, routes); err != nil {
		return Outcome{}, s.storeFailure("Unable to save blog", "blog", "invalidate", out.ID, err)
	}
	return out, nil
}

// DeleteBlog removes a blog post.
func (s *Service) DeleteBlog(ctx context.Context, token, id string) (out Outcome, err error) {
	defer s.observe("blog", "delete", &err)

	if !s.authorized(ctx, token) {
		return Outcome{}, errUnauthorized
	}
	id = strings.TrimSpace(id)
	if err := s.validate.Var(id, "required"); err != nil {
		return Outcome{}, validationError("Pick a blog to delete")
	}
	doc, err := s.remove(ctx, BlogCollection, id)
	if err != nil {
		return Outcome{}, s.classify(err, "Blog not found", "Unable to delete blog", "blog", "delete", id)
	}

	slug := firstNonEmpty(str(doc.Data, "slug"), FallbackBlogSlug)
	if err := s.invalidate(ctx, blogRoutesOf(doc)); err != nil {
		return Outcome{}, s.storeFailure("Unable to delete blog", "blog", "invalidate", id, err)
	}
	return Outcome{ID: id, Slug: slug}, nil
}

// PatchBlog replaces only the supplied fields of an existing post.
func (s *Service) PatchBlog(ctx context.Context, token, id string, p BlogPatch) (out Outcome, err error) {
	defer s.observe("blog", "patch", &err)

	if !s.authorized(ctx, token) {
		return Outcome{}, errUnauthorized
	}
	id = strings.TrimSpace(id)
	existing, err := s.store.Get(ctx, BlogCollection, id)
	if err != nil {
		return Outcome{}, s.classify(err, "Blog not found", "Unable to update blog", "blog", "patch", id)
	}

	fields := map[string]any{"publishedAt": isoTime(s.now())}
	setIf(fields, "title", p.Title)
	setIf(fields, "excerpt", p.Excerpt)
	setIf(fields, "content", p.Content)
	setIf(fields, "heroImage", p.HeroImage)
	setIf(fields, "author", p.Author)
	if p.Tags != nil {
		fields["tags"] = CleanTags(p.Tags)
	}
	slug := str(existing.Data, "slug")
	if p.Slug != nil && strings.TrimSpace(*p.Slug) != "" {
		slug = Slugify(*p.Slug)
		fields["slug"] = slug
	}
	if err := s.store.Update(ctx, BlogCollection, id, fields); err != nil {
		return Outcome{}, s.classify(err, "Blog not found", "Unable to update blog", "blog", "patch", id)
	}

	routes := mergeRoutes(BlogRoutes(firstNonEmpty(slug, FallbackBlogSlug)), blogRoutesOf(existing))
	if err := s.invalidate(ctx, routes); err != nil {
		return Outcome{}, s.storeFailure("Unable to update blog", "blog", "invalidate", id, err)
	}
	return Outcome{ID: id, Slug: slug}, nil
}

// DocRoutes lists the reader routes affected by a change to a page.
func DocRoutes(sectionID, slug string) []string {
	return []string{"/", "/docs", "/docs/" + sectionID + "/" + slug, "/admin", "/sitemap.xml"}
}

// BlogRoutes lists the reader routes affected by a change to a post.
func BlogRoutes(slug string) []string {
	return []string{"/", "/blog", "/blog/" + slug, "/admin", "/feed.xml", "/sitemap.xml"}
}

// docRoutesOf lists the routes a stored page was served under, using the
// fallback section and slug for fields it lacks.
func docRoutesOf(doc docstore.Document) []string {
	return DocRoutes(
		firstNonEmpty(str(doc.Data, "sectionId"), FallbackSectionID),
		firstNonEmpty(str(doc.Data, "slug"), FallbackDocSlug),
	)
}

func blogRoutesOf(doc docstore.Document) []string {
	return BlogRoutes(firstNonEmpty(str(doc.Data, "slug"), FallbackBlogSlug))
}

// mergeRoutes appends the routes in extra not already in routes.
func mergeRoutes(routes, extra []string) []string {
	for _, r := range extra {
		if !slices.Contains(routes, r) {
			routes = append(routes, r)
		}
	}
	return routes
}

// CleanTags trims tags and drops empty ones, preserving order.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SplitTags parses a comma-separated tag string.
func SplitTags(raw string) []string {
	return CleanTags(strings.Split(raw, ","))
}

func (s *Service) authorized(ctx context.Context, token string) bool {
	if s.auth == nil {
		return false
	}
	_, ok := s.auth.Verify(ctx, strings.TrimSpace(token))
	return ok
}

// createOrMergeSection applies only the title to an existing section and
// creates a missing one with default description and ordering key.
func (s *Service) createOrMergeSection(ctx context.Context, id, title string, ts time.Time) error {
	_, err := s.store.Get(ctx, SectionCollection, id)
	switch {
	case err == nil:
		return s.store.Set(ctx, SectionCollection, id, map[string]any{"title": title}, true)
	case errors.Is(err, docstore.ErrNotFound):
		return s.store.Set(ctx, SectionCollection, id, map[string]any{
			"title":       title,
			"description": newSectionDescription,
			"order":       ts.UnixMilli(),
		}, true)
	default:
		return err
	}
}

// replace requires the record to exist, then overwrites the mutable fields.
// It returns the record as it was before the write.
func (s *Service) replace(ctx context.Context, collection, id string, fields map[string]any) (docstore.Document, error) {
	prev, err := s.store.Get(ctx, collection, id)
	if err != nil {
		return docstore.Document{}, err
	}
	if err := s.store.Update(ctx, collection, id, fields); err != nil {
		return docstore.Document{}, err
	}
	return prev, nil
}

// remove requires the record to exist and returns it as it was.
func (s *Service) remove(ctx context.Context, collection, id string) (docstore.Document, error) {
	doc, err := s.store.Get(ctx, collection, id)
	if err != nil {
		return docstore.Document{}, err
	}
	if err := s.store.Delete(ctx, collection, id); err != nil {
		return docstore.Document{}, err
	}
	return doc, nil
}

func (s *Service) invalidate(ctx context.Context, paths []string) error {
	if s.invalidator == nil {
		return nil
	}
	return s.invalidator.Invalidate(ctx, paths...)
}

// classify maps ErrNotFound to a NotFound error and anything else to a
// logged store failure.
func (s *Service) classify(err error, notFoundMsg, failMsg, entity, op, id string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return notFoundError(notFoundMsg)
	}
	return s.storeFailure(failMsg, entity, op, id, err)
}

func (s *Service) storeFailure(msg, entity, op, id string, err error) error {
	s.logger.Error("content mutation failed",
		zap.String("entity", entity),
		zap.String("op", op),
		zap.String("id", id),
		zap.Error(err),
	)
	return storeError(msg, err)
}

func (s *Service) observe(entity, op string, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = KindOf(*errp).String()
	}
	s.mutations.WithLabelValues(entity, op, outcome).Inc()
}

func setIf(fields map[string]any, key string, v *string) {
	if v != nil {
		fields[key] = *v
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
