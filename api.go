package pubdocs

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubdocs/content"
)

const tooManyAttempts = "Too many failed attempts. Try again later."

func (a *App) handleAPIListDocs(c echo.Context) error {
	docs, err := a.Cache.Docs(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, docs)
}

func (a *App) handleAPIListBlogs(c echo.Context) error {
	posts, err := a.Cache.Posts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func (a *App) handleAPIUpsertDoc(c echo.Context) error {
	if !a.authLimiter.Check(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, apiMessage{Message: tooManyAttempts})
	}
	var req docRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiMessage{Message: "Invalid request body"})
	}
	out, err := a.Service.UpsertDoc(c.Request().Context(), req.input(requestToken(c, req.IDToken)))
	if err != nil {
		return a.mutationError(c, err)
	}
	return c.JSON(http.StatusCreated, apiMessage{Message: "Doc saved", ID: out.ID, Slug: out.Slug})
}

func (a *App) handleAPIPatchDoc(c echo.Context) error {
	if !a.authLimiter.Check(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, apiMessage{Message: tooManyAttempts})
	}
	var req docPatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiMessage{Message: "Invalid request body"})
	}
	out, err := a.Service.PatchDoc(c.Request().Context(), requestToken(c, req.IDToken), c.Param("id"), req.patch())
	if err != nil {
		return a.mutationError(c, err)
	}
	return c.JSON(http.StatusOK, apiMessage{Message: "Doc updated", ID: out.ID, Slug: out.Slug})
}

func (a *App) handleAPIDeleteDoc(c echo.Context) error {
	if !a.authLimiter.Check(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, apiMessage{Message: tooManyAttempts})
	}
	var req struct {
		IDToken string `json:"idToken"`
	}
	// The body is optional on DELETE.
	_ = c.Bind(&req)
	out, err := a.Service.DeleteDoc(c.Request().Context(), requestToken(c, req.IDToken), c.Param("id"))
	if err != nil {
		return a.mutationError(c, err)
	}
	return c.JSON(http.StatusOK, apiMessage{Message: "Doc deleted", ID: out.ID})
}

func (a *App) handleAPIUpsertBlog(c echo.Context) error {
	if !a.authLimiter.Check(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, apiMessage{Message: tooManyAttempts})
	}
	var req blogRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiMessage{Message: "Invalid request body"})
	}
	out, err := a.Service.UpsertBlog(c.Request().Context(), req.input(requestToken(c, req.IDToken)))
	if err != nil {
		return a.mutationError(c, err)
	}
	return c.JSON(http.StatusCreated, apiMessage{Message: "Blog saved", ID: out.ID, Slug: out.Slug})
}

func (a *App) handleAPIPatchBlog(c echo.Context) error {
	if !a.authLimiter.Check(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, apiMessage{Message: tooManyAttempts})
	}
	var req blogPatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiMessage{Message: "Invalid request body"})
	}
	out, err := a.Service.PatchBlog(c.Request().Context(), requestToken(c, req.IDToken), c.Param("id"), req.patch())
	if err != nil {
		return a.mutationError(c, err)
	}
	return c.JSON(http.StatusOK, apiMessage{Message: "Blog updated", ID: out.ID, Slug: out.Slug})
}

func (a *App) handleAPIDeleteBlog(c echo.Context) error {
	if !a.authLimiter.Check(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, apiMessage{Message: tooManyAttempts})
	}
	var req struct {
		IDToken string `json:"idToken"`
	}
	_ = c.Bind(&req)
	out, err := a.Service.DeleteBlog(c.Request().Context(), requestToken(c, req.IDToken), c.Param("id"))
	if err != nil {
		return a.mutationError(c, err)
	}
	return c.JSON(http.StatusOK, apiMessage{Message: "Blog deleted", ID: out.ID})
}

// mutationError writes the JSON failure for err. Unauthorized responses
// carry no detail and count against the caller's IP.
func (a *App) mutationError(c echo.Context, err error) error {
	kind := content.KindOf(err)
	if kind == content.KindUnauthorized {
		a.authLimiter.Record(c.RealIP())
		return c.JSON(http.StatusUnauthorized, apiMessage{Message: "Unauthorized"})
	}
	return c.JSON(statusFor(kind), apiMessage{Message: content.MessageOf(err, "Something went wrong")})
}
