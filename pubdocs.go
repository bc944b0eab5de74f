// Package pubdocs is a documentation site and blog built with Go, Echo, and
// templ, backed by a document store. It seeds empty stores from built-in
// fixtures, serves the doc tree and blog to readers, and lets allow-listed
// editors change content through a JSON API and an admin page.
//
// Sites can supply their own templ components via the ViewFuncs struct;
// pubdocs handles the handler logic, middleware, caching and storage.
package pubdocs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eringen/pubdocs/adminform"
	"github.com/eringen/pubdocs/content"
	"github.com/eringen/pubdocs/docstore"
	"github.com/eringen/pubdocs/identity"
	"github.com/eringen/pubdocs/revalidate"
	"github.com/eringen/pubdocs/views"
)

// ViewFuncs holds the templ components the App calls when rendering pages.
// Nil fields fall back to the components in package views.
type ViewFuncs struct {
	Home        func(site views.Site, docs []content.DocSection, posts []content.BlogPost) templ.Component
	Docs        func(site views.Site, docs []content.DocSection) templ.Component
	DocPage     func(site views.Site, section content.DocSection, page content.Page, docs []content.DocSection) templ.Component
	Blog        func(site views.Site, posts []content.BlogPost) templ.Component
	Post        func(site views.Site, post content.BlogPost, posts []content.BlogPost) templ.Component
	AdminLogin  func(site views.Site, showError bool, csrfToken string) templ.Component
	Admin       func(site views.Site, shell *adminform.Shell, csrfToken string) templ.Component
	NotFound    func() templ.Component
	ServerError func() templ.Component
}

func (v *ViewFuncs) setDefaults() {
	if v.Home == nil {
		v.Home = views.Home
	}
	if v.Docs == nil {
		v.Docs = views.Docs
	}
	if v.DocPage == nil {
		v.DocPage = views.DocPage
	}
	if v.Blog == nil {
		v.Blog = views.Blog
	}
	if v.Post == nil {
		v.Post = views.Post
	}
	if v.AdminLogin == nil {
		v.AdminLogin = views.AdminLogin
	}
	if v.Admin == nil {
		v.Admin = views.Admin
	}
	if v.NotFound == nil {
		v.NotFound = views.NotFound
	}
	if v.ServerError == nil {
		v.ServerError = views.ServerError
	}
}

// App is the central pubdocs application. It wires together the store,
// caches, mutation service, handlers, middleware, and templates.
type App struct {
	Config  SiteConfig
	Echo    *echo.Echo
	Store   docstore.Store
	Loader  *content.Loader
	Service *content.Service
	Cache   *ContentCache
	Routes  revalidate.RouteCache
	Views   ViewFuncs
	Logger  *zap.Logger
	Metrics *prometheus.Registry

	auth         content.Authorizer
	authLimiter  *AuthLimiter
	httpClient   *http.Client
	routeRedis   *redis.Client
	ownsStore    bool
	customRoutes []func(*App)
	staticDir    string
	initialized  bool
	stop         context.CancelFunc
}

// New creates a new App with the given configuration and view functions.
func New(cfg SiteConfig, v ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()
	v.setDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	a := &App{
		Config:    cfg,
		Echo:      e,
		Views:     v,
		staticDir: "public",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Init opens the store and caches and registers middleware and routes. Start
// calls it when needed; tests call it directly and drive a.Echo.
func (a *App) Init(ctx context.Context) error {
	if a.initialized {
		return nil
	}
	if err := a.Config.validate(a.Store != nil); err != nil {
		return err
	}
	if a.Logger == nil {
		logger, err := NewLogger(a.Config.LogLevel)
		if err != nil {
			return fmt.Errorf("pubdocs: init logger: %w", err)
		}
		a.Logger = logger
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	if a.Store == nil {
		store, err := docstore.Open(ctx, a.Config.ContentStoreURL)
		if err != nil {
			return fmt.Errorf("pubdocs: open content store: %w", err)
		}
		a.Store = store
		a.ownsStore = true
	}

	loader, err := content.NewLoader(a.Store,
		content.WithRemoteDoc(a.Config.RemoteDocURL, a.httpClient),
		content.WithLoaderLogger(a.Logger.Named("loader")),
	)
	if err != nil {
		return fmt.Errorf("pubdocs: init loader: %w", err)
	}
	a.Loader = loader

	if a.Routes == nil {
		if err := a.openRouteCache(ctx); err != nil {
			return err
		}
	}
	a.Cache = NewContentCache(loader, a.Config.ContentCacheTTL, a.Routes)

	if a.auth == nil {
		if len(a.Config.AdminEmails) == 0 {
			a.Logger.Warn("no admin emails configured; every mutation will be denied")
		}
		a.auth = identity.NewVerifier(identity.Config{
			AllowList:    a.Config.AdminEmails,
			TokenInfoURL: a.Config.TokenInfoURL,
		}, identity.WithHTTPClient(a.httpClient), identity.WithLogger(a.Logger.Named("identity")))
	}

	a.Metrics = prometheus.NewRegistry()
	a.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.Service = content.NewService(a.Store, a.auth,
		revalidate.NewFanout(a.Cache, a.Routes),
		content.WithLogger(a.Logger.Named("content")),
		content.WithDefaultAuthor(a.Config.DefaultAuthor),
		content.WithRegisterer(a.Metrics),
	)

	bg, stop := context.WithCancel(context.Background())
	a.stop = stop
	a.authLimiter = NewAuthLimiter(5, time.Minute)
	go a.authLimiter.Run(bg)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.initialized = true
	return nil
}

func (a *App) openRouteCache(ctx context.Context) error {
	if a.Config.RouteCacheURL == "" {
		a.Routes = revalidate.NewMemoryRouteCache(a.Config.RouteCacheTTL)
		return nil
	}
	opts, err := redis.ParseURL(a.Config.RouteCacheURL)
	if err != nil {
		return fmt.Errorf("pubdocs: parse route cache url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("pubdocs: connect route cache: %w", err)
	}
	a.routeRedis = client
	a.Routes = revalidate.NewRedisRouteCache(client, "", a.Config.RouteCacheTTL)
	return nil
}

// Start initializes the App if needed and serves until the server is shut
// down.
func (a *App) Start() error {
	if err := a.Init(context.Background()); err != nil {
		return err
	}
	a.Logger.Info("listening", zap.String("addr", a.Config.Addr))
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones, then closes
// the App.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	return errors.Join(err, a.Close())
}

func (a *App) setupRoutes() {
	e := a.Echo

	// Embedded assets are served under /public/ and fall through to the
	// site's static dir.
	embeddedFS, _ := fs.Sub(EmbeddedAssets, "embedded")
	embeddedHandler := http.FileServer(http.FS(embeddedFS))
	e.GET("/public/pubdocs.css", echo.WrapHandler(http.StripPrefix("/public/", embeddedHandler)))

	e.Static("/public", a.staticDir)
	e.Static("/uploads", a.Config.UploadsDir)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: a.Metrics}))

	// Reader routes are served through the route cache.
	reader := e.Group("", a.routeCacheMiddleware)
	reader.GET("/", a.handleHome)
	reader.GET("/docs/", a.handleDocs)
	reader.GET("/docs/:section/:page/", a.handleDocPage)
	reader.GET("/blog/", a.handleBlog)
	reader.GET("/blog/:slug/", a.handlePost)
	reader.GET("/feed.xml", a.handleFeed)
	reader.GET("/sitemap.xml", a.handleSitemap)

	// JSON API
	api := e.Group("/api")
	api.GET("/docs", a.handleAPIListDocs)
	api.POST("/docs", a.handleAPIUpsertDoc)
	api.PUT("/docs/:id", a.handleAPIPatchDoc)
	api.DELETE("/docs/:id", a.handleAPIDeleteDoc)
	api.GET("/blogs", a.handleAPIListBlogs)
	api.POST("/blogs", a.handleAPIUpsertBlog)
	api.PUT("/blogs/:id", a.handleAPIPatchBlog)
	api.DELETE("/blogs/:id", a.handleAPIDeleteBlog)
	api.POST("/images", a.handleAPIImageUpload)

	// Admin routes
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/session/", a.handleAdminSession)
	e.POST("/admin/logout/", handleAdminLogout)
	e.POST("/admin/docs/save/", a.handleAdminDocSave)
	e.POST("/admin/docs/delete/", a.handleAdminDocDelete)
	e.POST("/admin/blogs/save/", a.handleAdminBlogSave)
	e.POST("/admin/blogs/delete/", a.handleAdminBlogDelete)
}

// Close releases the store, the route cache connection, and background
// workers. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.stop != nil {
		a.stop()
	}
	var errs []error
	if a.ownsStore && a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.routeRedis != nil {
		errs = append(errs, a.routeRedis.Close())
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}

// NewLogger builds a production zap logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
