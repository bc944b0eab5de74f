// Package views holds the default presentation components. Sites that want
// their own markup replace them field by field through pubdocs.ViewFuncs.
package views

// Site holds site-wide settings passed to every page component.
type Site struct {
	Name        string // SITE_NAME
	URL         string // SITE_URL
	Description string // SITE_DESCRIPTION
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head>.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
	JSONLD      string
}
