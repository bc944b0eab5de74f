package content

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/*.yaml
var fixtureFS embed.FS

// Fixtures is the built-in data set written to empty collections.
type Fixtures struct {
	Sections []FixtureSection `yaml:"sections"`
	Posts    []FixturePost    `yaml:"posts"`
}

type FixtureSection struct {
	ID          string        `yaml:"id"`
	Title       string        `yaml:"title"`
	Description string        `yaml:"description"`
	Pages       []FixturePage `yaml:"pages"`
}

type FixturePage struct {
	ID          string `yaml:"id"`
	SectionID   string `yaml:"sectionId"`
	Slug        string `yaml:"slug"`
	Title       string `yaml:"title"`
	Summary     string `yaml:"summary"`
	Content     string `yaml:"content"`
	LastUpdated string `yaml:"lastUpdated"`
}

type FixturePost struct {
	ID          string   `yaml:"id"`
	Slug        string   `yaml:"slug"`
	Title       string   `yaml:"title"`
	Excerpt     string   `yaml:"excerpt"`
	Author      string   `yaml:"author"`
	PublishedAt string   `yaml:"publishedAt"`
	Tags        []string `yaml:"tags"`
	HeroImage   string   `yaml:"heroImage"`
	Content     string   `yaml:"content"`
}

// DefaultFixtures parses the embedded fixture files.
func DefaultFixtures() (Fixtures, error) {
	var f Fixtures
	for _, name := range []string{"fixtures/docs.yaml", "fixtures/blogs.yaml"} {
		raw, err := fixtureFS.ReadFile(name)
		if err != nil {
			return Fixtures{}, err
		}
		var part Fixtures
		if err := yaml.Unmarshal(raw, &part); err != nil {
			return Fixtures{}, fmt.Errorf("parse %s: %w", name, err)
		}
		f.Sections = append(f.Sections, part.Sections...)
		f.Posts = append(f.Posts, part.Posts...)
	}
	return f, nil
}
