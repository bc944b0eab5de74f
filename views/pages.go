package views

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/pubdocs/adminform"
	"github.com/eringen/pubdocs/content"
)

// html accumulates markup; every dynamic value goes through text or attr.
type html struct{ strings.Builder }

func (h *html) raw(s string)  { h.WriteString(s) }
func (h *html) text(s string) { h.WriteString(templ.EscapeString(s)) }
func (h *html) attr(s string) { h.WriteString(templ.EscapeString(s)) }

func (h *html) rawf(format string, args ...any) { fmt.Fprintf(h, format, args...) }

func layout(site Site, meta PageMeta, body func(h *html)) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var h html
		h.raw(`<!doctype html><html lang="en"><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		title := site.Name
		switch {
		case meta.Title != "" && site.Name != "":
			title = meta.Title + " | " + site.Name
		case meta.Title != "":
			title = meta.Title
		}
		h.raw(`<title>`)
		h.text(title)
		h.raw(`</title>`)
		if meta.Description != "" {
			h.raw(`<meta name="description" content="`)
			h.attr(meta.Description)
			h.raw(`">`)
		}
		if meta.URL != "" {
			h.raw(`<link rel="canonical" href="`)
			h.attr(meta.URL)
			h.raw(`"><meta property="og:url" content="`)
			h.attr(meta.URL)
			h.raw(`">`)
		}
		if meta.OGType != "" {
			h.raw(`<meta property="og:type" content="`)
			h.attr(meta.OGType)
			h.raw(`">`)
		}
		if meta.JSONLD != "" {
			h.raw(`<script type="application/ld+json">`)
			h.raw(strings.ReplaceAll(meta.JSONLD, "</", `<\/`))
			h.raw(`</script>`)
		}
		h.raw(`<link rel="stylesheet" href="/public/pubdocs.css">`)
		h.raw(`<link rel="alternate" type="application/rss+xml" href="/feed.xml">`)
		h.raw(`</head><body><header><a href="/">`)
		h.text(site.Name)
		h.raw(`</a> <nav><a href="/docs/">Docs</a> <a href="/blog/">Blog</a></nav></header><main>`)
		body(&h)
		h.raw(`</main></body></html>`)
		_, err := io.WriteString(w, h.String())
		return err
	})
}

func docLink(sectionID, slug string) string {
	return "/docs/" + url.PathEscape(sectionID) + "/" + url.PathEscape(slug) + "/"
}

func postLink(slug string) string {
	return "/blog/" + url.PathEscape(slug) + "/"
}

func sidebar(h *html, docs []content.DocSection) {
	h.raw(`<aside><ul>`)
	for _, s := range docs {
		h.raw(`<li><strong>`)
		h.text(s.Title)
		h.raw(`</strong><ul>`)
		for _, p := range s.Pages {
			h.raw(`<li><a href="`)
			h.attr(docLink(s.ID, p.Slug))
			h.raw(`">`)
			h.text(p.Title)
			h.raw(`</a></li>`)
		}
		h.raw(`</ul></li>`)
	}
	h.raw(`</ul></aside>`)
}

func postList(h *html, posts []content.BlogPost) {
	h.raw(`<ul class="posts">`)
	for _, p := range posts {
		h.raw(`<li><a href="`)
		h.attr(postLink(p.Slug))
		h.raw(`">`)
		h.text(p.Title)
		h.raw(`</a> <time>`)
		h.text(Date(p.PublishedAt))
		h.raw(`</time><p>`)
		h.text(p.Excerpt)
		h.raw(`</p></li>`)
	}
	h.raw(`</ul>`)
}

// Home lists every doc section and the latest posts.
func Home(site Site, docs []content.DocSection, posts []content.BlogPost) templ.Component {
	meta := PageMeta{Description: site.Description, URL: BuildURL(site.URL), OGType: "website", JSONLD: WebsiteJsonLD(site)}
	return layout(site, meta, func(h *html) {
		h.raw(`<h1>`)
		h.text(site.Name)
		h.raw(`</h1>`)
		sidebar(h, docs)
		if len(posts) > 5 {
			posts = posts[:5]
		}
		h.raw(`<h2>Latest posts</h2>`)
		postList(h, posts)
	})
}

// Docs is the documentation index.
func Docs(site Site, docs []content.DocSection) templ.Component {
	meta := PageMeta{Title: "Docs", URL: BuildURL(site.URL, "docs"), OGType: "website"}
	return layout(site, meta, func(h *html) {
		h.raw(`<h1>Documentation</h1>`)
		for _, s := range docs {
			h.raw(`<section><h2>`)
			h.text(s.Title)
			h.raw(`</h2><p>`)
			h.text(s.Description)
			h.raw(`</p><ul>`)
			for _, p := range s.Pages {
				h.raw(`<li><a href="`)
				h.attr(docLink(s.ID, p.Slug))
				h.raw(`">`)
				h.text(p.Title)
				h.raw(`</a> `)
				h.text(p.Summary)
				h.raw(`</li>`)
			}
			h.raw(`</ul></section>`)
		}
	})
}

// DocPage renders one documentation page beside the section navigation.
func DocPage(site Site, section content.DocSection, page content.Page, docs []content.DocSection) templ.Component {
	meta := PageMeta{
		Title:       page.Title,
		Description: page.Summary,
		URL:         BuildURL(site.URL, "docs", section.ID, page.Slug),
		OGType:      "article",
		JSONLD:      TechArticleJsonLD(site, section, page),
	}
	return layout(site, meta, func(h *html) {
		sidebar(h, docs)
		h.raw(`<article><p class="section">`)
		h.text(section.Title)
		h.raw(`</p><h1>`)
		h.text(page.Title)
		h.raw(`</h1><p class="updated">Last updated `)
		h.text(Date(page.LastUpdated))
		h.raw(`</p><div class="content">`)
		writeMarkdown(h, page.Content)
		h.raw(`</div></article>`)
	})
}

// Blog is the post listing.
func Blog(site Site, posts []content.BlogPost) templ.Component {
	meta := PageMeta{Title: "Blog", URL: BuildURL(site.URL, "blog"), OGType: "website"}
	return layout(site, meta, func(h *html) {
		h.raw(`<h1>Blog</h1>`)
		postList(h, posts)
	})
}

// Post renders a single post with related posts by tag.
func Post(site Site, post content.BlogPost, posts []content.BlogPost) templ.Component {
	meta := PageMeta{
		Title:       post.Title,
		Description: post.Excerpt,
		URL:         BuildURL(site.URL, "blog", post.Slug),
		OGType:      "article",
		JSONLD:      BlogPostingJsonLD(site, post),
	}
	return layout(site, meta, func(h *html) {
		h.raw(`<article>`)
		if post.HeroImage != "" {
			h.raw(`<img class="hero" alt="" src="`)
			h.attr(string(templ.URL(post.HeroImage)))
			h.raw(`">`)
		}
		h.raw(`<h1>`)
		h.text(post.Title)
		h.raw(`</h1><p class="byline">`)
		h.text(post.Author)
		h.raw(` · <time>`)
		h.text(Date(post.PublishedAt))
		h.raw(`</time></p>`)
		if len(post.Tags) > 0 {
			h.raw(`<p class="tags">`)
			h.text(strings.Join(post.Tags, ", "))
			h.raw(`</p>`)
		}
		h.raw(`<div class="content">`)
		writeMarkdown(h, post.Content)
		h.raw(`</div></article>`)
		if related := RelatedPosts(post, posts); len(related) > 0 {
			h.raw(`<h2>Related</h2>`)
			postList(h, related)
		}
	})
}

// AdminLogin asks for an ID token from the identity provider's sign-in flow.
func AdminLogin(site Site, showError bool, csrfToken string) templ.Component {
	return layout(site, PageMeta{Title: "Admin"}, func(h *html) {
		h.raw(`<h1>Sign in</h1>`)
		if showError {
			h.raw(`<p class="error">`)
			h.text(content.UnauthorizedMessage)
			h.raw(`</p>`)
		}
		h.raw(`<form method="post" action="/admin/session/">`)
		csrfField(h, csrfToken)
		h.raw(`<input type="hidden" name="idToken" id="idToken"><button type="submit">Continue</button></form>`)
	})
}

// Admin renders both editors over the shell's current selection.
func Admin(site Site, shell *adminform.Shell, csrfToken string) templ.Component {
	return layout(site, PageMeta{Title: "Admin"}, func(h *html) {
		h.raw(`<h1>Admin</h1><form method="post" action="/admin/logout/">`)
		csrfField(h, csrfToken)
		h.raw(`<button type="submit">Sign out</button></form>`)
		docEditor(h, shell, csrfToken)
		blogEditor(h, shell, csrfToken)
	})
}

func docEditor(h *html, shell *adminform.Shell, csrfToken string) {
	h.raw(`<section id="docs"><h2>Docs</h2>`)
	state(h, shell.DocState)
	h.raw(`<form method="get" action="/admin/"><select name="doc"><option value="">New doc</option>`)
	for _, d := range shell.Docs {
		option(h, d.ID, d.SectionTitle+" / "+d.Title, d.ID == shell.Doc.DocID)
	}
	h.raw(`</select><input type="hidden" name="blog" value="`)
	h.attr(shell.Blog.BlogID)
	h.raw(`"><button type="submit">Load</button></form>`)

	f := shell.Doc
	h.raw(`<form method="post" action="/admin/docs/save/">`)
	csrfField(h, csrfToken)
	hidden(h, "docId", f.DocID)
	h.raw(`<label>Section <select name="sectionId">`)
	for _, s := range shell.Sections {
		option(h, s.ID, s.Title, s.ID == f.SectionID)
	}
	h.raw(`</select></label>`)
	input(h, "New section", "newSectionTitle", f.NewSectionTitle)
	input(h, "Title", "title", f.Title)
	input(h, "Slug", "slug", f.Slug)
	input(h, "Summary", "summary", f.Summary)
	textarea(h, "Content", "content", f.Content)
	h.raw(`<button type="submit">Save doc</button></form>`)

	if f.DocID != "" {
		h.raw(`<form method="post" action="/admin/docs/delete/">`)
		csrfField(h, csrfToken)
		hidden(h, "docId", f.DocID)
		h.raw(`<button type="submit">Delete doc</button></form>`)
	}
	h.raw(`</section>`)
}

func blogEditor(h *html, shell *adminform.Shell, csrfToken string) {
	h.raw(`<section id="blog"><h2>Blog</h2>`)
	state(h, shell.BlogState)
	h.raw(`<form method="get" action="/admin/"><select name="blog"><option value="">New post</option>`)
	for _, p := range shell.Posts {
		option(h, p.ID, p.Title, p.ID == shell.Blog.BlogID)
	}
	h.raw(`</select><input type="hidden" name="doc" value="`)
	h.attr(shell.Doc.DocID)
	h.raw(`"><button type="submit">Load</button></form>`)

	f := shell.Blog
	h.raw(`<form method="post" action="/admin/blogs/save/">`)
	csrfField(h, csrfToken)
	hidden(h, "blogId", f.BlogID)
	input(h, "Title", "title", f.Title)
	input(h, "Slug", "slug", f.Slug)
	input(h, "Excerpt", "excerpt", f.Excerpt)
	input(h, "Tags", "tags", f.Tags)
	input(h, "Hero image", "heroImage", f.HeroImage)
	input(h, "Author", "author", f.Author)
	textarea(h, "Content", "content", f.Content)
	h.raw(`<button type="submit">Save post</button></form>`)

	if f.BlogID != "" {
		h.raw(`<form method="post" action="/admin/blogs/delete/">`)
		csrfField(h, csrfToken)
		hidden(h, "blogId", f.BlogID)
		h.raw(`<button type="submit">Delete post</button></form>`)
	}
	h.raw(`</section>`)
}

func state(h *html, s adminform.ActionState) {
	if s.Message == "" {
		return
	}
	class := "error"
	if s.OK {
		class = "ok"
	}
	h.rawf(`<p class="%s" role="status">`, class)
	h.text(s.Message)
	h.raw(`</p>`)
}

func csrfField(h *html, token string) { hidden(h, "_csrf", token) }

func hidden(h *html, name, value string) {
	h.rawf(`<input type="hidden" name="%s" value="`, name)
	h.attr(value)
	h.raw(`">`)
}

func input(h *html, label, name, value string) {
	h.rawf(`<label>%s <input type="text" name="%s" value="`, label, name)
	h.attr(value)
	h.raw(`"></label>`)
}

func textarea(h *html, label, name, value string) {
	h.rawf(`<label>%s <textarea name="%s" rows="16">`, label, name)
	h.text(value)
	h.raw(`</textarea></label>`)
}

func option(h *html, value, label string, selected bool) {
	h.raw(`<option value="`)
	h.attr(value)
	h.raw(`"`)
	if selected {
		h.raw(` selected`)
	}
	h.raw(`>`)
	h.text(label)
	h.raw(`</option>`)
}

// NotFound is the 404 page.
func NotFound() templ.Component {
	return layout(Site{}, PageMeta{Title: "Not found"}, func(h *html) {
		h.raw(`<h1>Page not found</h1><p><a href="/">Back home</a></p>`)
	})
}

// ServerError is the 5xx page.
func ServerError() templ.Component {
	return layout(Site{}, PageMeta{Title: "Error"}, func(h *html) {
		h.raw(`<h1>Something went wrong</h1><p>Please try again later.</p>`)
	})
}
