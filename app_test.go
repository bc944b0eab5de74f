package pubdocs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eringen/pubdocs/content"
	"github.com/eringen/pubdocs/docstore"
	"github.com/eringen/pubdocs/revalidate"
	"github.com/eringen/pubdocs/views"
)

const (
	editorToken = "good-token"
	editorEmail = "editor@example.com"
)

type stubAuth struct{}

func (stubAuth) Verify(_ context.Context, token string) (string, bool) {
	if token == editorToken {
		return editorEmail, true
	}
	return "", false
}

// unhealthyStore fails every ping.
type unhealthyStore struct{ docstore.Store }

func (unhealthyStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	return newTestAppWithViews(t, ViewFuncs{}, opts...)
}

func newTestAppWithViews(t *testing.T, vf ViewFuncs, opts ...Option) *App {
	t.Helper()
	cfg := SiteConfig{
		Name:          "Test Docs",
		URL:           "https://docs.example.com",
		Description:   "Docs for tests",
		SessionSecret: "test-session-secret",
		UploadsDir:    t.TempDir(),
	}
	base := []Option{
		WithStore(docstore.NewMemory()),
		WithAuthorizer(stubAuth{}),
		WithLogger(zap.NewNop()),
	}
	app := New(cfg, vf, append(base, opts...)...)
	ctx := context.Background()
	require.NoError(t, app.Init(ctx))
	t.Cleanup(func() { _ = app.Close() })
	// Readers seed the fixtures on first load; mutations expect them present.
	_, err := app.Cache.Docs(ctx)
	require.NoError(t, err)
	return app
}

func serve(app *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, token string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) apiMessage {
	t.Helper()
	var msg apiMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg), rec.Body.String())
	return msg
}

func TestAPIDocLifecycle(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app, jsonRequest(http.MethodPost, "/api/docs", editorToken, map[string]any{
		"sectionId": "welcome",
		"title":     "Deploying",
		"content":   "Ship it.",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decodeMessage(t, rec)
	assert.Equal(t, "Doc saved", saved.Message)
	assert.Equal(t, "deploying", saved.Slug)
	require.NotEmpty(t, saved.ID)

	rec = serve(app, jsonRequest(http.MethodGet, "/api/docs", "", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var docs content.DocsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	_, page, ok := content.FindDocPage(docs.Sections, "welcome", "deploying")
	require.True(t, ok)
	assert.Equal(t, "Deploying", page.Title)

	rec = serve(app, jsonRequest(http.MethodPut, "/api/docs/"+saved.ID, editorToken, map[string]any{
		"summary": "How releases go out.",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Doc updated", decodeMessage(t, rec).Message)

	rec = serve(app, jsonRequest(http.MethodDelete, "/api/docs/"+saved.ID, editorToken, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Doc deleted", decodeMessage(t, rec).Message)

	rec = serve(app, jsonRequest(http.MethodDelete, "/api/docs/"+saved.ID, editorToken, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Doc not found", decodeMessage(t, rec).Message)
}

func TestAPIDeleteAcceptsBodyToken(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app, jsonRequest(http.MethodDelete, "/api/blogs/hello-world", "", map[string]string{"idToken": editorToken}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Blog deleted", decodeMessage(t, rec).Message)
}

func TestAPIErrorStatuses(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		target  string
		token   string
		body    any
		code    int
		message string
	}{
		{"missing token", http.MethodPost, "/api/docs", "", map[string]string{"sectionId": "welcome", "title": "X"}, http.StatusUnauthorized, "Unauthorized"},
		{"wrong token", http.MethodPost, "/api/blogs", "nope", map[string]string{"title": "X"}, http.StatusUnauthorized, "Unauthorized"},
		{"blank title", http.MethodPost, "/api/docs", editorToken, map[string]string{"sectionId": "welcome", "title": "  "}, http.StatusBadRequest, "Title is required"},
		{"no section", http.MethodPost, "/api/docs", editorToken, map[string]string{"title": "Orphan"}, http.StatusBadRequest, "Select or create a section"},
		{"unknown section", http.MethodPost, "/api/docs", editorToken, map[string]string{"sectionId": "missing", "title": "Orphan"}, http.StatusNotFound, "Section not found"},
		{"unknown blog", http.MethodPut, "/api/blogs/missing", editorToken, map[string]string{"title": "X"}, http.StatusNotFound, "Blog not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			rec := serve(app, jsonRequest(tt.method, tt.target, tt.token, tt.body))
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Equal(t, tt.message, decodeMessage(t, rec).Message)
		})
	}
}

func TestAPIBlogTagsAcceptCommaString(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app, jsonRequest(http.MethodPost, "/api/blogs", editorToken, map[string]any{
		"title": "Release notes",
		"tags":  "release, , changelog ",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	slug := decodeMessage(t, rec).Slug

	rec = serve(app, jsonRequest(http.MethodGet, "/api/blogs", "", nil))
	var blogs content.BlogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &blogs))
	post, ok := content.FindBlogPost(blogs.Posts, slug)
	require.True(t, ok)
	assert.Equal(t, []string{"release", "changelog"}, post.Tags)
	assert.Equal(t, "Editorial Team", post.Author)
}

func TestAPIRateLimitsFailedAuth(t *testing.T) {
	app := newTestApp(t)
	body := map[string]string{"sectionId": "welcome", "title": "X"}

	for i := 0; i < 5; i++ {
		rec := serve(app, jsonRequest(http.MethodPost, "/api/docs", "bad-token", body))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := serve(app, jsonRequest(http.MethodPost, "/api/docs", editorToken, body))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, tooManyAttempts, decodeMessage(t, rec).Message)
}

func TestRouteCacheServesAndInvalidates(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/blog/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	first := rec.Body.String()

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/blog/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, first, rec.Body.String())

	rec = serve(app, jsonRequest(http.MethodPost, "/api/blogs", editorToken, map[string]string{"title": "Fresh post"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/blog/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "Fresh post")
}

func TestRouteCacheDropsRenderOverlappingMutation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	vf := ViewFuncs{
		Blog: func(site views.Site, posts []content.BlogPost) templ.Component {
			// Hold the first render after its posts were loaded.
			once.Do(func() {
				close(started)
				<-release
			})
			return views.Blog(site, posts)
		},
	}
	app := newTestAppWithViews(t, vf)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- serve(app, httptest.NewRequest(http.MethodGet, "/blog/", nil))
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("blog render never started")
	}

	rec := serve(app, jsonRequest(http.MethodPost, "/api/blogs", editorToken, map[string]string{"title": "Fresh post"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	close(release)

	stale := <-done
	require.Equal(t, http.StatusOK, stale.Code)
	assert.NotContains(t, stale.Body.String(), "Fresh post")

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/blog/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "Fresh post")

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/blog/", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "Fresh post")
}

func TestSharedRouteCacheServesWritesAcrossReplicas(t *testing.T) {
	store := docstore.NewMemory()
	routes := revalidate.NewMemoryRouteCache(10 * time.Minute)
	a := newTestApp(t, WithStore(store), WithRouteCache(routes))
	b := newTestApp(t, WithStore(store), WithRouteCache(routes))

	// Both replicas hold the blog list in their content caches.
	for _, app := range []*App{a, b} {
		_, err := app.Cache.Posts(context.Background())
		require.NoError(t, err)
	}

	rec := serve(a, jsonRequest(http.MethodPost, "/api/blogs", editorToken, map[string]string{"title": "Fresh post"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(b, httptest.NewRequest(http.MethodGet, "/blog/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "Fresh post")

	rec = serve(a, httptest.NewRequest(http.MethodGet, "/blog/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "Fresh post")

	posts, err := b.Cache.Posts(context.Background())
	require.NoError(t, err)
	_, ok := content.FindBlogPost(posts.Posts, "fresh-post")
	assert.True(t, ok, "replica content cache still holds the old blog list")
}

func TestRouteCacheSkipsNotFound(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < 2; i++ {
		rec := serve(app, httptest.NewRequest(http.MethodGet, "/blog/missing/", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	}
}

func TestReaderPages(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		path string
		code int
		want string
	}{
		{"/", http.StatusOK, "Test Docs"},
		{"/docs/", http.StatusOK, "Quickstart"},
		{"/docs/welcome/quickstart/", http.StatusOK, "Create an account"},
		{"/docs/welcome/missing/", http.StatusNotFound, ""},
		{"/blog/", http.StatusOK, "How we write docs"},
		{"/blog/hello-world/", http.StatusOK, "Hello, world"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(app, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestTrailingSlashRedirect(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/docs/", rec.Header().Get("Location"))
}

func TestFeedAndSitemap(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/feed.xml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/rss+xml; charset=utf-8", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Body.String(), "<title>Hello, world</title>")
	assert.Contains(t, rec.Body.String(), "<pubDate>Fri, 03 May 2024 12:00:00 +0000</pubDate>")
	assert.Contains(t, rec.Body.String(), "<link>https://docs.example.com/blog/hello-world/</link>")

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<loc>https://docs.example.com/docs/welcome/quickstart/</loc><lastmod>2024-05-01</lastmod>")
	assert.Contains(t, body, "<loc>https://docs.example.com/blog/how-we-write-docs/</loc><lastmod>2024-05-10</lastmod>")
}

func TestRobots(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Disallow: /admin/")
	assert.Contains(t, rec.Body.String(), "Sitemap: https://docs.example.com/sitemap.xml")
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	rec := serve(app, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	sick := newTestApp(t, WithStore(unhealthyStore{docstore.NewMemory()}))
	rec = serve(sick, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsCountMutations(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app, jsonRequest(http.MethodPost, "/api/blogs", editorToken, map[string]string{"title": "Counted"}))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pubdocs_mutations_total{entity="blog",op="upsert",outcome="ok"} 1`)
}

// adminClient carries cookies between admin requests the way a browser does.
type adminClient struct {
	t       *testing.T
	app     *App
	cookies map[string]*http.Cookie
}

func newAdminClient(t *testing.T, app *App) *adminClient {
	return &adminClient{t: t, app: app, cookies: make(map[string]*http.Cookie)}
}

func (c *adminClient) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := serve(c.app, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *adminClient) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *adminClient) post(path string, form url.Values) *httptest.ResponseRecorder {
	if ck, ok := c.cookies["_csrf"]; ok {
		form.Set("_csrf", ck.Value)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return c.do(req)
}

func TestAdminSignInAndSave(t *testing.T) {
	app := newTestApp(t)
	client := newAdminClient(t, app)

	rec := client.get("/admin/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in")
	require.Contains(t, client.cookies, "_csrf")

	rec = client.post("/admin/session/", url.Values{"idToken": {editorToken}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/", rec.Header().Get("Location"))

	rec = client.get("/admin/?doc=quickstart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Create an account")

	rec = client.post("/admin/docs/save/", url.Values{
		"sectionId": {"guides"},
		"title":     {"Admin page"},
		"content":   {"Written from the admin."},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Doc saved")

	rec = client.post("/admin/docs/save/", url.Values{"sectionId": {"guides"}, "title": {""}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Title is required")

	rec = client.post("/admin/logout/", url.Values{})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = client.get("/admin/")
	assert.Contains(t, rec.Body.String(), "Sign in")
}

func TestAdminSignInRejectsBadToken(t *testing.T) {
	app := newTestApp(t)
	client := newAdminClient(t, app)
	client.get("/admin/")

	rec := client.post("/admin/session/", url.Values{"idToken": {"forged"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), content.UnauthorizedMessage)
}

func TestAdminFormsRequireCSRF(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/session/", strings.NewReader("idToken="+editorToken))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := serve(app, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func multipartImage(t *testing.T, token string, width, height int) *http.Request {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("idToken", token))
	part, err := w.CreateFormFile("image", "Hero Shot.png")
	require.NoError(t, err)
	require.NoError(t, png.Encode(part, img))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestImageUpload(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app, multipartImage(t, editorToken, 1600, 400))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp imageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/uploads/hero-shot.jpg", resp.URL)

	f, err := os.Open(filepath.Join(app.Config.UploadsDir, "hero-shot.jpg"))
	require.NoError(t, err)
	defer f.Close()
	stored, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 800, stored.Bounds().Dx())
	assert.Equal(t, 200, stored.Bounds().Dy())

	rec = serve(app, multipartImage(t, editorToken, 100, 100))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/uploads/hero-shot-2.jpg", resp.URL)
}

func TestImageUploadRequiresEditor(t *testing.T) {
	app := newTestApp(t)

	rec := serve(app, multipartImage(t, "forged", 10, 10))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	entries, err := os.ReadDir(app.Config.UploadsDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
