package pubdocs

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/pubdocs/adminform"
	"github.com/eringen/pubdocs/content"
)

func (a *App) handleAdmin(c echo.Context) error {
	if AdminToken(c) == "" {
		return Render(c, a.Views.AdminLogin(a.site(), false, CsrfToken(c)))
	}
	shell, err := a.adminShell(c)
	if err != nil {
		return err
	}
	shell.SelectDoc(c.QueryParam("doc"))
	shell.SelectBlog(c.QueryParam("blog"))
	return Render(c, a.Views.Admin(a.site(), shell, CsrfToken(c)))
}

// handleAdminSession signs an editor in with an ID token from the identity
// provider's sign-in flow.
func (a *App) handleAdminSession(c echo.Context) error {
	ip := c.RealIP()
	if !a.authLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, tooManyAttempts)
	}
	token := strings.TrimSpace(c.FormValue("idToken"))
	email, ok := a.auth.Verify(c.Request().Context(), token)
	if !ok {
		a.authLimiter.Record(ip)
		return RenderStatus(c, http.StatusUnauthorized, a.Views.AdminLogin(a.site(), true, CsrfToken(c)))
	}
	if err := setAdminSession(c, token); err != nil {
		return err
	}
	a.Logger.Info("admin signed in", zap.String("email", email), zap.String("ip", ip))
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func (a *App) handleAdminDocSave(c echo.Context) error {
	token := AdminToken(c)
	if token == "" {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	if err := c.Request().ParseForm(); err != nil {
		return err
	}
	form := adminform.DocFormFromValues(c.Request().Form)
	out, err := a.Service.UpsertDoc(c.Request().Context(), form.Input(token))
	return a.renderAdminResult(c, err, func(s *adminform.Shell) {
		if err != nil {
			s.Doc = form
		} else {
			s.SelectDoc(out.ID)
		}
		s.DocState = adminform.StateFromError(err, "Doc saved")
	})
}

func (a *App) handleAdminDocDelete(c echo.Context) error {
	token := AdminToken(c)
	if token == "" {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id := c.FormValue("docId")
	_, err := a.Service.DeleteDoc(c.Request().Context(), token, id)
	return a.renderAdminResult(c, err, func(s *adminform.Shell) {
		if err != nil {
			s.SelectDoc(id)
		}
		s.DocState = adminform.StateFromError(err, "Doc deleted")
	})
}

func (a *App) handleAdminBlogSave(c echo.Context) error {
	token := AdminToken(c)
	if token == "" {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	if err := c.Request().ParseForm(); err != nil {
		return err
	}
	form := adminform.BlogFormFromValues(c.Request().Form)
	out, err := a.Service.UpsertBlog(c.Request().Context(), form.Input(token))
	return a.renderAdminResult(c, err, func(s *adminform.Shell) {
		if err != nil {
			s.Blog = form
		} else {
			s.SelectBlog(out.ID)
		}
		s.BlogState = adminform.StateFromError(err, "Blog saved")
	})
}

func (a *App) handleAdminBlogDelete(c echo.Context) error {
	token := AdminToken(c)
	if token == "" {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	id := c.FormValue("blogId")
	_, err := a.Service.DeleteBlog(c.Request().Context(), token, id)
	return a.renderAdminResult(c, err, func(s *adminform.Shell) {
		if err != nil {
			s.SelectBlog(id)
		}
		s.BlogState = adminform.StateFromError(err, "Blog deleted")
	})
}

// renderAdminResult re-renders the admin page over fresh listings. A failed
// mutation keeps the attempted form values and answers with its status.
func (a *App) renderAdminResult(c echo.Context, mutErr error, apply func(*adminform.Shell)) error {
	shell, err := a.adminShell(c)
	if err != nil {
		return err
	}
	apply(shell)
	code := http.StatusOK
	if mutErr != nil {
		code = statusFor(content.KindOf(mutErr))
		if content.KindOf(mutErr) == content.KindUnauthorized {
			a.authLimiter.Record(c.RealIP())
		}
	}
	return RenderStatus(c, code, a.Views.Admin(a.site(), shell, CsrfToken(c)))
}

func (a *App) adminShell(c echo.Context) (*adminform.Shell, error) {
	ctx := c.Request().Context()
	docs, err := a.Cache.Docs(ctx)
	if err != nil {
		return nil, err
	}
	posts, err := a.Cache.Posts(ctx)
	if err != nil {
		return nil, err
	}
	shell := adminform.New(docs, posts, a.Config.DefaultAuthor)
	shell.AttachToken(AdminToken(c))
	return shell, nil
}
