// Package adminform is the server-side view model behind the admin page: the
// doc and blog pickers, the two edit forms, and the result of the last
// submission.
package adminform

import (
	"net/url"
	"strings"

	"github.com/eringen/pubdocs/content"
)

// DocForm mirrors the doc editor fields.
type DocForm struct {
	DocID           string
	SectionID       string
	NewSectionTitle string
	Title           string
	Summary         string
	Content         string
	Slug            string
}

// BlogForm mirrors the blog editor fields. Tags is comma-separated.
type BlogForm struct {
	BlogID    string
	Title     string
	Excerpt   string
	Content   string
	Tags      string
	HeroImage string
	Author    string
	Slug      string
}

// DocOption is a pickable page labelled with its section.
type DocOption struct {
	content.Page
	SectionTitle string
}

// ActionState is the outcome of a form submission as shown to the editor.
type ActionState struct {
	OK      bool
	Message string
}

// Shell holds everything the admin page renders.
type Shell struct {
	Docs     []DocOption
	Posts    []content.BlogPost
	Sections []content.DocSection
	Doc      DocForm
	Blog     BlogForm
	IDToken  string

	DocState  ActionState
	BlogState ActionState

	defaultAuthor string
}

// New builds a Shell over the current records with blank forms.
func New(docs content.DocsResponse, blogs content.BlogResponse, defaultAuthor string) *Shell {
	s := &Shell{
		Sections:      docs.Sections,
		Posts:         blogs.Posts,
		defaultAuthor: defaultAuthor,
	}
	for _, section := range docs.Sections {
		for _, p := range section.Pages {
			s.Docs = append(s.Docs, DocOption{Page: p, SectionTitle: section.Title})
		}
	}
	s.SelectDoc("")
	s.SelectBlog("")
	return s
}

// SelectDoc loads the page with id into the doc form. An empty or unknown id
// resets the form, defaulting the section to the first one.
func (s *Shell) SelectDoc(id string) {
	for _, d := range s.Docs {
		if d.ID == id && id != "" {
			s.Doc = DocForm{
				DocID:     d.ID,
				SectionID: d.SectionID,
				Title:     d.Title,
				Summary:   d.Summary,
				Content:   d.Content,
				Slug:      d.Slug,
			}
			return
		}
	}
	s.Doc = DocForm{}
	if len(s.Sections) > 0 {
		s.Doc.SectionID = s.Sections[0].ID
	}
}

// SelectBlog loads the post with id into the blog form. An empty or unknown
// id resets the form with the default author.
func (s *Shell) SelectBlog(id string) {
	for _, p := range s.Posts {
		if p.ID == id && id != "" {
			s.Blog = BlogForm{
				BlogID:    p.ID,
				Title:     p.Title,
				Excerpt:   p.Excerpt,
				Content:   p.Content,
				Tags:      strings.Join(p.Tags, ", "),
				HeroImage: p.HeroImage,
				Author:    p.Author,
				Slug:      p.Slug,
			}
			return
		}
	}
	s.Blog = BlogForm{Author: s.defaultAuthor}
}

// AttachToken records the signed-in editor's token; it is sent with every
// submission.
func (s *Shell) AttachToken(token string) { s.IDToken = strings.TrimSpace(token) }

// DocFormFromValues reads a submitted doc form.
func DocFormFromValues(v url.Values) DocForm {
	return DocForm{
		DocID:           v.Get("docId"),
		SectionID:       v.Get("sectionId"),
		NewSectionTitle: v.Get("newSectionTitle"),
		Title:           v.Get("title"),
		Summary:         v.Get("summary"),
		Content:         v.Get("content"),
		Slug:            v.Get("slug"),
	}
}

// BlogFormFromValues reads a submitted blog form.
func BlogFormFromValues(v url.Values) BlogForm {
	return BlogForm{
		BlogID:    v.Get("blogId"),
		Title:     v.Get("title"),
		Excerpt:   v.Get("excerpt"),
		Content:   v.Get("content"),
		Tags:      v.Get("tags"),
		HeroImage: v.Get("heroImage"),
		Author:    v.Get("author"),
		Slug:      v.Get("slug"),
	}
}

func (f DocForm) Input(token string) content.DocInput {
	return content.DocInput{
		IDToken:         token,
		DocID:           f.DocID,
		SectionID:       f.SectionID,
		NewSectionTitle: f.NewSectionTitle,
		Title:           f.Title,
		Summary:         f.Summary,
		Content:         f.Content,
		Slug:            f.Slug,
	}
}

func (f BlogForm) Input(token string) content.BlogInput {
	return content.BlogInput{
		IDToken:   token,
		BlogID:    f.BlogID,
		Title:     f.Title,
		Excerpt:   f.Excerpt,
		Content:   f.Content,
		Tags:      content.SplitTags(f.Tags),
		HeroImage: f.HeroImage,
		Author:    f.Author,
		Slug:      f.Slug,
	}
}

// StateFromError turns a mutation result into an ActionState. Store
// failures keep their generic message; the cause never reaches the editor.
func StateFromError(err error, success string) ActionState {
	if err == nil {
		return ActionState{OK: true, Message: success}
	}
	return ActionState{Message: content.MessageOf(err, "Something went wrong")}
}
