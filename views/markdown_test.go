package views

import (
	"strings"
	"testing"

	"github.com/eringen/pubdocs/content"
)

func TestMarkdownBlocks(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"heading", "# Getting started", `<h1 id="getting-started">Getting started</h1>`},
		{"repeated headings", "## Setup\n## Setup", `<h2 id="setup">Setup</h2><h2 id="setup-1">Setup</h2>`},
		{"paragraph", "one\ntwo\n\nthree", "<p>one\ntwo</p><p>three</p>"},
		{"list", "- a\n- b", "<ul><li>a</li><li>b</li></ul>"},
		{"ordered", "1. a\n2) b", "<ol><li>a</li><li>b</li></ol>"},
		{"quote", "> note\n> more", "<blockquote><p>note\nmore</p></blockquote>"},
		{"rule", "---", "<hr>"},
		{"fence", "```go\nif a < b {}\n```", `<pre><code class="language-go">if a &lt; b {}` + "\n</code></pre>"},
		{"unterminated fence", "```\nx", "<pre><code>x\n</code></pre>"},
		{
			"table",
			"| Key | Value |\n|---|:---:|\n| a | **b** |",
			"<table><thead><tr><th>Key</th><th>Value</th></tr></thead><tbody><tr><td>a</td><td><strong>b</strong></td></tr></tbody></table>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, Markdown(tt.src)); got != tt.want {
				t.Errorf("Markdown(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestFormatInline(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"**bold** and __bold__", "<strong>bold</strong> and <strong>bold</strong>"},
		{"*em* and _em_", "<em>em</em> and <em>em</em>"},
		{"snake_case_name stays", "snake_case_name stays"},
		{"run `go test ./...` now", "run <code>go test ./...</code> now"},
		{"`**not bold**`", "<code>**not bold**</code>"},
		{"a ` b", "a ` b"},
		{"[docs](/docs/)", `<a href="/docs/">docs</a>`},
		{"[**site**](https://example.com/a_b_c)", `<a href="https://example.com/a_b_c" rel="noopener noreferrer"><strong>site</strong></a>`},
		{"![chart](/uploads/chart.webp)", `<img src="/uploads/chart.webp" alt="chart" loading="lazy">`},
		{"[x](javascript:alert)", "x"},
		{"![x](javascript:alert)", "x"},
		{"<script>alert(1)</script>", "&lt;script&gt;alert(1)&lt;/script&gt;"},
	}
	for _, tt := range tests {
		if got := formatInline(tt.input); got != tt.want {
			t.Errorf("formatInline(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDocPageRendersMarkdown(t *testing.T) {
	section := content.DocSection{ID: "welcome", Title: "Welcome"}
	page := content.Page{ID: "p1", SectionID: "welcome", Slug: "intro", Title: "Intro", Content: "## Install\n\n- run `make`"}
	out := render(t, DocPage(site, section, page, []content.DocSection{section}))

	for _, want := range []string{`<h2 id="install">Install</h2>`, "<li>run <code>make</code></li>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "pre-wrap") {
		t.Fatalf("expected rendered markup, not preformatted text")
	}
}

func TestPostRendersMarkdown(t *testing.T) {
	post := content.BlogPost{ID: "1", Title: "T", Slug: "t", Content: "Read the [guide](/docs/welcome/intro/)."}
	out := render(t, Post(site, post, nil))

	if !strings.Contains(out, `<p>Read the <a href="/docs/welcome/intro/">guide</a>.</p>`) {
		t.Fatalf("expected rendered link in output:\n%s", out)
	}
}
