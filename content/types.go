// Package content holds the documentation and blog domain: record types,
// slug generation, seeding and grouping of stored records, and the
// authorized mutation flow that writes them back.
package content

// Section is a named, ordered grouping of documentation pages.
type Section struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Order       int64  `json:"order"`
}

// Page is a single documentation article belonging to one Section.
type Page struct {
	ID          string `json:"id"`
	SectionID   string `json:"sectionId"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Slug        string `json:"slug"`
	Content     string `json:"content"`
	LastUpdated string `json:"lastUpdated"`
	Position    int64  `json:"-"`
}

// BlogPost is a standalone published article.
type BlogPost struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Excerpt     string   `json:"excerpt"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags"`
	HeroImage   string   `json:"heroImage,omitempty"`
	Slug        string   `json:"slug"`
	Author      string   `json:"author"`
	PublishedAt string   `json:"publishedAt"`
	Order       int64    `json:"-"`
}

// DocSection is a Section with its pages nested, as served to readers.
type DocSection struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Pages       []Page `json:"pages"`
}

// DocsResponse is the full documentation tree.
type DocsResponse struct {
	Sections []DocSection `json:"sections"`
}

// BlogResponse is the blog listing, newest first.
type BlogResponse struct {
	Posts []BlogPost `json:"posts"`
}

// Collection names in the document store.
const (
	SectionCollection = "docSections"
	PageCollection    = "docPages"
	BlogCollection    = "blogPosts"
)
