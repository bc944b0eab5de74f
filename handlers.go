package pubdocs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func (a *App) handleHome(c echo.Context) error {
	ctx := c.Request().Context()
	docs, err := a.Cache.Docs(ctx)
	if err != nil {
		return err
	}
	posts, err := a.Cache.Posts(ctx)
	if err != nil {
		return err
	}
	return Render(c, a.Views.Home(a.site(), docs.Sections, posts.Posts))
}

func (a *App) handleDocs(c echo.Context) error {
	docs, err := a.Cache.Docs(c.Request().Context())
	if err != nil {
		return err
	}
	return Render(c, a.Views.Docs(a.site(), docs.Sections))
}

func (a *App) handleDocPage(c echo.Context) error {
	ctx := c.Request().Context()
	section, page, ok, err := a.Cache.DocPage(ctx, c.Param("section"), c.Param("page"))
	if err != nil {
		return err
	}
	if !ok {
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	}
	docs, err := a.Cache.Docs(ctx)
	if err != nil {
		return err
	}
	return Render(c, a.Views.DocPage(a.site(), section, page, docs.Sections))
}

func (a *App) handleBlog(c echo.Context) error {
	posts, err := a.Cache.Posts(c.Request().Context())
	if err != nil {
		return err
	}
	return Render(c, a.Views.Blog(a.site(), posts.Posts))
}

func (a *App) handlePost(c echo.Context) error {
	ctx := c.Request().Context()
	post, ok, err := a.Cache.Post(ctx, c.Param("slug"))
	if err != nil {
		return err
	}
	if !ok {
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	}
	posts, err := a.Cache.Posts(ctx)
	if err != nil {
		return err
	}
	return Render(c, a.Views.Post(a.site(), post, posts.Posts))
}

func (a *App) handleSitemap(c echo.Context) error {
	ctx := c.Request().Context()
	docs, err := a.Cache.Docs(ctx)
	if err != nil {
		return err
	}
	posts, err := a.Cache.Posts(ctx)
	if err != nil {
		return err
	}
	return a.renderSitemap(c, docs.Sections, posts.Posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.Posts(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts.Posts)
}

func (a *App) handleRobots(c echo.Context) error {
	body := "User-agent: *\nDisallow: /admin/\nDisallow: /api/\nSitemap: " + a.Config.URL + "/sitemap.xml\n"
	return c.String(http.StatusOK, body)
}

func (a *App) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		a.Logger.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	ok := errors.As(err, &he)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.Logger.Error("server error",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
