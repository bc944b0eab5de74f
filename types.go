package pubdocs

import (
	"encoding/json"
	"strings"

	"github.com/eringen/pubdocs/content"
)

// apiMessage is the body of every mutation response.
type apiMessage struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
	Slug    string `json:"slug,omitempty"`
}

type imageResponse struct {
	URL string `json:"url"`
}

// tagList accepts tags as a JSON array or a comma-separated string.
type tagList []string

func (t *tagList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*t = content.CleanTags(list)
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = content.SplitTags(raw)
	return nil
}

type docRequest struct {
	IDToken         string `json:"idToken"`
	DocID           string `json:"docId"`
	SectionID       string `json:"sectionId"`
	NewSectionTitle string `json:"newSectionTitle"`
	Title           string `json:"title"`
	Summary         string `json:"summary"`
	Content         string `json:"content"`
	Slug            string `json:"slug"`
}

func (r docRequest) input(token string) content.DocInput {
	return content.DocInput{
		IDToken:         token,
		DocID:           r.DocID,
		SectionID:       r.SectionID,
		NewSectionTitle: r.NewSectionTitle,
		Title:           r.Title,
		Summary:         r.Summary,
		Content:         r.Content,
		Slug:            r.Slug,
	}
}

type blogRequest struct {
	IDToken   string  `json:"idToken"`
	BlogID    string  `json:"blogId"`
	Title     string  `json:"title"`
	Excerpt   string  `json:"excerpt"`
	Content   string  `json:"content"`
	Tags      tagList `json:"tags"`
	HeroImage string  `json:"heroImage"`
	Slug      string  `json:"slug"`
	Author    string  `json:"author"`
}

func (r blogRequest) input(token string) content.BlogInput {
	return content.BlogInput{
		IDToken:   token,
		BlogID:    r.BlogID,
		Title:     r.Title,
		Excerpt:   r.Excerpt,
		Content:   r.Content,
		Tags:      r.Tags,
		HeroImage: r.HeroImage,
		Slug:      r.Slug,
		Author:    r.Author,
	}
}

type docPatchRequest struct {
	IDToken string  `json:"idToken"`
	Title   *string `json:"title"`
	Summary *string `json:"summary"`
	Content *string `json:"content"`
	Slug    *string `json:"slug"`
}

func (r docPatchRequest) patch() content.DocPatch {
	return content.DocPatch{Title: trimmed(r.Title), Summary: r.Summary, Content: r.Content, Slug: r.Slug}
}

type blogPatchRequest struct {
	IDToken   string   `json:"idToken"`
	Title     *string  `json:"title"`
	Excerpt   *string  `json:"excerpt"`
	Content   *string  `json:"content"`
	Tags      *tagList `json:"tags"`
	HeroImage *string  `json:"heroImage"`
	Slug      *string  `json:"slug"`
	Author    *string  `json:"author"`
}

func (r blogPatchRequest) patch() content.BlogPatch {
	p := content.BlogPatch{
		Title:     trimmed(r.Title),
		Excerpt:   r.Excerpt,
		Content:   r.Content,
		HeroImage: r.HeroImage,
		Slug:      r.Slug,
		Author:    trimmed(r.Author),
	}
	if r.Tags != nil {
		p.Tags = []string(*r.Tags)
		if p.Tags == nil {
			p.Tags = []string{}
		}
	}
	return p
}

// trimmed drops blank strings so they do not overwrite required fields.
func trimmed(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
