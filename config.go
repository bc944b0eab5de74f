package pubdocs

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/eringen/pubdocs/content"
	"github.com/eringen/pubdocs/docstore"
	"github.com/eringen/pubdocs/identity"
	"github.com/eringen/pubdocs/revalidate"
)

// SiteConfig holds all configuration for a pubdocs site.
type SiteConfig struct {
	Name        string // Site name (default "Docs")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for RSS and meta tags

	Addr            string // Listen address (default ":3000")
	ContentStoreURL string // Required: document store URL (sqlite://, postgres://, redis://, memory://)
	RouteCacheURL   string // Redis URL for the shared route cache; empty keeps it in memory

	AdminEmails  []string // Allow-listed admin emails; empty denies every mutation
	TokenInfoURL string   // ID-token introspection endpoint (default Google tokeninfo)
	RemoteDocURL string   // Source of the intro page body at seed time

	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	ContentCacheTTL time.Duration // Doc tree and blog list cache TTL (default 5min)
	RouteCacheTTL   time.Duration // Rendered route TTL (default 10min)
	DefaultAuthor   string        // Author for posts submitted without one (default "Editorial Team")
	UploadsDir      string        // Hero image directory (default "public/uploads")
	LogLevel        string        // zap level (default "info")
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Docs"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.TokenInfoURL == "" {
		c.TokenInfoURL = identity.DefaultTokenInfoURL
	}
	if c.ContentCacheTTL == 0 {
		c.ContentCacheTTL = 5 * time.Minute
	}
	if c.RouteCacheTTL == 0 {
		c.RouteCacheTTL = 10 * time.Minute
	}
	if c.DefaultAuthor == "" {
		c.DefaultAuthor = "Editorial Team"
	}
	if c.UploadsDir == "" {
		c.UploadsDir = "public/uploads"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c SiteConfig) validate(haveStore bool) error {
	if c.ContentStoreURL == "" && !haveStore {
		return fmt.Errorf("pubdocs: ContentStoreURL is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("pubdocs: SessionSecret is required")
	}
	return nil
}

// ConfigFromEnv reads a SiteConfig from the environment. Missing values keep
// their defaults; required ones are checked when the App is initialized.
func ConfigFromEnv() (SiteConfig, error) {
	cfg := SiteConfig{
		Name:            os.Getenv("SITE_NAME"),
		URL:             os.Getenv("SITE_URL"),
		Description:     os.Getenv("SITE_DESCRIPTION"),
		Addr:            os.Getenv("ADDR"),
		ContentStoreURL: os.Getenv("CONTENT_STORE_URL"),
		RouteCacheURL:   os.Getenv("ROUTE_CACHE_URL"),
		AdminEmails:     identity.ParseAllowList(EnvOr("ADMIN_EMAILS", os.Getenv("ADMIN_EMAIL"))),
		TokenInfoURL:    os.Getenv("TOKENINFO_URL"),
		RemoteDocURL:    os.Getenv("REMOTE_DOC_URL"),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		DefaultAuthor:   os.Getenv("DEFAULT_AUTHOR"),
		UploadsDir:      os.Getenv("UPLOADS_DIR"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return SiteConfig{}, fmt.Errorf("COOKIE_SECURE: %w", err)
		}
		cfg.CookieSecure = secure
	}
	for key, dst := range map[string]*time.Duration{
		"CONTENT_CACHE_TTL": &cfg.ContentCacheTTL,
		"ROUTE_CACHE_TTL":   &cfg.RouteCacheTTL,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return SiteConfig{}, fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	cfg.setDefaults()
	return cfg, nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are set up.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for user-owned static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithStore uses store instead of opening ContentStoreURL. The App does not
// close a store it did not open.
func WithStore(store docstore.Store) Option {
	return func(a *App) {
		a.Store = store
	}
}

// WithAuthorizer replaces the token-info verifier.
func WithAuthorizer(auth content.Authorizer) Option {
	return func(a *App) {
		a.auth = auth
	}
}

// WithRouteCache replaces the route cache selected by RouteCacheURL.
func WithRouteCache(rc revalidate.RouteCache) Option {
	return func(a *App) {
		a.Routes = rc
	}
}

// WithLogger sets the application logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		a.Logger = l
	}
}

// WithHTTPClient sets the client used for outbound calls (token info and the
// remote intro document).
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		a.httpClient = c
	}
}
