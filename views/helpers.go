package views

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"

	"github.com/eringen/pubdocs/content"
)

// BuildURL joins path segments onto a base URL, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// RelatedPosts returns posts that share at least one tag with current.
func RelatedPosts(current content.BlogPost, posts []content.BlogPost) []content.BlogPost {
	tagSet := make(map[string]struct{})
	for _, t := range current.Tags {
		if tag := strings.ToLower(strings.TrimSpace(t)); tag != "" {
			tagSet[tag] = struct{}{}
		}
	}
	var related []content.BlogPost
	for _, p := range posts {
		if p.ID == current.ID {
			continue
		}
		for _, t := range p.Tags {
			if _, ok := tagSet[strings.ToLower(strings.TrimSpace(t))]; ok {
				related = append(related, p)
				break
			}
		}
	}
	return related
}

// Date trims an ISO timestamp to its calendar date.
func Date(iso string) string {
	if len(iso) >= 10 {
		return iso[:10]
	}
	return iso
}

// WebsiteJsonLD produces a Schema.org WebSite block for site.
func WebsiteJsonLD(site Site) string {
	data := map[string]any{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     site.Name,
		"url":      BuildURL(site.URL),
	}
	if site.Description != "" {
		data["description"] = site.Description
	}
	return marshalLD(data)
}

// BlogPostingJsonLD produces a Schema.org BlogPosting block for a post.
func BlogPostingJsonLD(site Site, post content.BlogPost) string {
	postURL := BuildURL(site.URL, "blog", post.Slug)
	data := map[string]any{
		"@context":      "https://schema.org",
		"@type":         "BlogPosting",
		"headline":      post.Title,
		"description":   post.Excerpt,
		"datePublished": post.PublishedAt,
		"url":           postURL,
		"author": map[string]string{
			"@type": "Person",
			"name":  post.Author,
		},
		"publisher": map[string]string{
			"@type": "Organization",
			"name":  site.Name,
		},
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
	}
	if post.HeroImage != "" {
		data["image"] = post.HeroImage
	}
	if len(post.Tags) > 0 {
		data["keywords"] = strings.Join(post.Tags, ", ")
	}
	return marshalLD(data)
}

// TechArticleJsonLD produces a Schema.org TechArticle block for a doc page.
func TechArticleJsonLD(site Site, section content.DocSection, page content.Page) string {
	pageURL := BuildURL(site.URL, "docs", section.ID, page.Slug)
	return marshalLD(map[string]any{
		"@context":       "https://schema.org",
		"@type":          "TechArticle",
		"headline":       page.Title,
		"description":    page.Summary,
		"dateModified":   page.LastUpdated,
		"articleSection": section.Title,
		"url":            pageURL,
	})
}

func marshalLD(data map[string]any) string {
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
