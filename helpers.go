package pubdocs

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubdocs/content"
	"github.com/eringen/pubdocs/identity"
	"github.com/eringen/pubdocs/views"
)

// site is the subset of SiteConfig templates see.
func (a *App) site() views.Site {
	return views.Site{Name: a.Config.Name, URL: a.Config.URL, Description: a.Config.Description}
}

// requestToken prefers the Authorization header and falls back to a token
// carried in the body.
func requestToken(c echo.Context, bodyToken string) string {
	if token := identity.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization)); token != "" {
		return token
	}
	return strings.TrimSpace(bodyToken)
}

// statusFor maps a mutation error kind to an HTTP status.
func statusFor(kind content.Kind) int {
	switch kind {
	case content.KindValidation:
		return http.StatusBadRequest
	case content.KindUnauthorized:
		return http.StatusUnauthorized
	case content.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
