package content

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/eringen/pubdocs/docstore"
)

// Stored documents are loosely typed: numbers may come back as float64 or
// json.Number depending on the backend, and fields may be missing on records
// written by older versions. The helpers below read them leniently.

func str(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func num(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case fmt.Stringer:
		n, _ := strconv.ParseInt(v.String(), 10, 64)
		return n
	default:
		return 0
	}
}

func strs(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

func sectionFromDoc(doc docstore.Document) Section {
	return Section{
		ID:          doc.ID,
		Title:       str(doc.Data, "title"),
		Description: str(doc.Data, "description"),
		Order:       num(doc.Data, "order"),
	}
}

func pageFromDoc(doc docstore.Document) Page {
	return Page{
		ID:          doc.ID,
		SectionID:   str(doc.Data, "sectionId"),
		Title:       str(doc.Data, "title"),
		Summary:     str(doc.Data, "summary"),
		Slug:        str(doc.Data, "slug"),
		Content:     str(doc.Data, "content"),
		LastUpdated: str(doc.Data, "lastUpdated"),
		Position:    num(doc.Data, "position"),
	}
}

func postFromDoc(doc docstore.Document) BlogPost {
	return BlogPost{
		ID:          doc.ID,
		Title:       str(doc.Data, "title"),
		Excerpt:     str(doc.Data, "excerpt"),
		Content:     str(doc.Data, "content"),
		Tags:        strs(doc.Data, "tags"),
		HeroImage:   str(doc.Data, "heroImage"),
		Slug:        str(doc.Data, "slug"),
		Author:      str(doc.Data, "author"),
		PublishedAt: str(doc.Data, "publishedAt"),
		Order:       num(doc.Data, "order"),
	}
}

// groupSections joins pages to their sections. Sections are ordered by
// Order, pages by Position; pages whose section is gone are dropped.
func groupSections(sections []Section, pages []Page) []DocSection {
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Position < pages[j].Position })

	bySection := make(map[string][]Page, len(sections))
	for _, p := range pages {
		bySection[p.SectionID] = append(bySection[p.SectionID], p)
	}
	out := make([]DocSection, 0, len(sections))
	for _, s := range sections {
		sectionPages := bySection[s.ID]
		if sectionPages == nil {
			sectionPages = []Page{}
		}
		out = append(out, DocSection{
			ID:          s.ID,
			Title:       s.Title,
			Description: s.Description,
			Pages:       sectionPages,
		})
	}
	return out
}

// sortPosts orders posts newest first by PublishedAt. ISO-8601 UTC
// timestamps compare correctly as strings.
func sortPosts(posts []BlogPost) {
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].PublishedAt > posts[j].PublishedAt })
}

// FindDocPage returns the first page with slug in the given section.
func FindDocPage(sections []DocSection, sectionID, slug string) (DocSection, Page, bool) {
	for _, s := range sections {
		if s.ID != sectionID {
			continue
		}
		for _, p := range s.Pages {
			if p.Slug == slug {
				return s, p, true
			}
		}
		return DocSection{}, Page{}, false
	}
	return DocSection{}, Page{}, false
}

// FindBlogPost returns the first post with the given slug.
func FindBlogPost(posts []BlogPost, slug string) (BlogPost, bool) {
	for _, p := range posts {
		if p.Slug == slug {
			return p, true
		}
	}
	return BlogPost{}, false
}
