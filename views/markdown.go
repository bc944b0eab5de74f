package views

import (
	"context"
	stdhtml "html"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/eringen/pubdocs/content"
)

var (
	reHeading     = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	reOrdered     = regexp.MustCompile(`^\d+[.)]\s+`)
	reImage       = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)\)`)
	reLink        = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	reStrong      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reStrongU     = regexp.MustCompile(`__(.+?)__`)
	reEm          = regexp.MustCompile(`\*([^*\s][^*]*)\*`)
	reEmU         = regexp.MustCompile(`(^|[^\w])_([^_]+)_([^\w]|$)`)
	rePlaceholder = regexp.MustCompile("\x00(\\d+)\x00")
)

// Markdown renders page and post bodies. Raw HTML in the source is escaped;
// links and images only keep URLs templ considers safe.
func Markdown(src string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var h html
		writeMarkdown(&h, src)
		_, err := io.WriteString(w, h.String())
		return err
	})
}

type block int

const (
	blockNone block = iota
	blockPara
	blockList
	blockOrdered
	blockQuote
	blockTable
)

type mdWriter struct {
	h     *html
	open  block
	fence bool
	ids   map[string]int
}

func writeMarkdown(h *html, src string) {
	m := &mdWriter{h: h, ids: make(map[string]int)}
	src = strings.ReplaceAll(src, "\r\n", "\n")
	for _, line := range strings.Split(src, "\n") {
		m.line(line)
	}
	if m.fence {
		h.raw(`</code></pre>`)
	}
	m.close()
}

// enter opens b unless it is already open and reports whether it opened.
func (m *mdWriter) enter(b block, tag string) bool {
	if m.open == b {
		return false
	}
	m.close()
	m.h.raw(tag)
	m.open = b
	return true
}

func (m *mdWriter) close() {
	switch m.open {
	case blockPara:
		m.h.raw(`</p>`)
	case blockList:
		m.h.raw(`</ul>`)
	case blockOrdered:
		m.h.raw(`</ol>`)
	case blockQuote:
		m.h.raw(`</p></blockquote>`)
	case blockTable:
		m.h.raw(`</tbody></table>`)
	}
	m.open = blockNone
}

func (m *mdWriter) line(line string) {
	trimmed := strings.TrimSpace(line)
	if m.fence {
		if strings.HasPrefix(trimmed, "```") {
			m.h.raw(`</code></pre>`)
			m.fence = false
			return
		}
		m.h.text(line)
		m.h.raw("\n")
		return
	}

	switch {
	case strings.HasPrefix(trimmed, "```"):
		m.close()
		m.h.raw(`<pre><code`)
		if lang := strings.TrimSpace(strings.TrimPrefix(trimmed, "```")); lang != "" {
			m.h.raw(` class="language-`)
			m.h.attr(lang)
			m.h.raw(`"`)
		}
		m.h.raw(`>`)
		m.fence = true
	case trimmed == "":
		m.close()
	case isRule(trimmed):
		m.close()
		m.h.raw(`<hr>`)
	case reHeading.MatchString(trimmed):
		m.close()
		g := reHeading.FindStringSubmatch(trimmed)
		level := strconv.Itoa(len(g[1]))
		m.h.raw(`<h` + level + ` id="`)
		m.h.attr(m.anchor(g[2]))
		m.h.raw(`">`)
		m.h.raw(formatInline(g[2]))
		m.h.raw(`</h` + level + `>`)
	case strings.HasPrefix(trimmed, "|"):
		m.tableRow(trimmed)
	case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
		m.enter(blockList, `<ul>`)
		m.item(trimmed[2:])
	case reOrdered.MatchString(trimmed):
		m.enter(blockOrdered, `<ol>`)
		m.item(trimmed[reOrdered.FindStringIndex(trimmed)[1]:])
	case trimmed == ">", strings.HasPrefix(trimmed, "> "):
		text := strings.TrimSpace(strings.TrimPrefix(trimmed, ">"))
		if !m.enter(blockQuote, `<blockquote><p>`) && text != "" {
			m.h.raw("\n")
		}
		m.h.raw(formatInline(text))
	default:
		if !m.enter(blockPara, `<p>`) {
			m.h.raw("\n")
		}
		m.h.raw(formatInline(trimmed))
	}
}

func (m *mdWriter) item(text string) {
	m.h.raw(`<li>`)
	m.h.raw(formatInline(strings.TrimSpace(text)))
	m.h.raw(`</li>`)
}

// anchor derives a heading id, suffixing repeats so ids stay unique.
func (m *mdWriter) anchor(text string) string {
	id := content.Slugify(text)
	if id == "" {
		id = "section"
	}
	n := m.ids[id]
	m.ids[id] = n + 1
	if n > 0 {
		id += "-" + strconv.Itoa(n)
	}
	return id
}

// tableRow treats the first row of a table as its header and skips the
// |---|---| divider.
func (m *mdWriter) tableRow(line string) {
	cells := splitRow(line)
	if m.open != blockTable {
		m.close()
		m.open = blockTable
		m.h.raw(`<table><thead><tr>`)
		for _, c := range cells {
			m.h.raw(`<th>`)
			m.h.raw(formatInline(c))
			m.h.raw(`</th>`)
		}
		m.h.raw(`</tr></thead><tbody>`)
		return
	}
	if isDivider(cells) {
		return
	}
	m.h.raw(`<tr>`)
	for _, c := range cells {
		m.h.raw(`<td>`)
		m.h.raw(formatInline(c))
		m.h.raw(`</td>`)
	}
	m.h.raw(`</tr>`)
}

func splitRow(line string) []string {
	cells := strings.Split(strings.Trim(line, "|"), "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

func isDivider(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

func isRule(line string) bool {
	if len(line) < 3 {
		return false
	}
	for _, marker := range []string{"-", "*", "_"} {
		if strings.Trim(line, marker) == "" {
			return true
		}
	}
	return false
}

// formatInline escapes s and applies code spans, images, links and
// emphasis. Backtick spans are escaped and nothing else.
func formatInline(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	parts := strings.Split(s, "`")
	var b strings.Builder
	for i, part := range parts {
		switch {
		case i%2 == 0:
			b.WriteString(formatSpan(part))
		case i == len(parts)-1:
			// Unmatched backtick.
			b.WriteString("`")
			b.WriteString(formatSpan(part))
		default:
			b.WriteString(`<code>`)
			b.WriteString(templ.EscapeString(part))
			b.WriteString(`</code>`)
		}
	}
	return b.String()
}

// formatSpan holds generated tags aside while emphasis runs so markers in
// URLs are left alone.
func formatSpan(s string) string {
	var held []string
	hold := func(markup string) string {
		held = append(held, markup)
		return "\x00" + strconv.Itoa(len(held)-1) + "\x00"
	}

	out := templ.EscapeString(s)
	out = reImage.ReplaceAllStringFunc(out, func(match string) string {
		g := reImage.FindStringSubmatch(match)
		src, ok := safeURL(g[2])
		if !ok {
			return g[1]
		}
		return hold(`<img src="` + src + `" alt="` + g[1] + `" loading="lazy">`)
	})
	out = reLink.ReplaceAllStringFunc(out, func(match string) string {
		g := reLink.FindStringSubmatch(match)
		href, ok := safeURL(g[2])
		if !ok {
			return g[1]
		}
		rel := ""
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			rel = ` rel="noopener noreferrer"`
		}
		return hold(`<a href="` + href + `"` + rel + `>` + emphasize(g[1]) + `</a>`)
	})
	out = emphasize(out)
	return rePlaceholder.ReplaceAllStringFunc(out, func(match string) string {
		i, _ := strconv.Atoi(strings.Trim(match, "\x00"))
		return held[i]
	})
}

func emphasize(s string) string {
	s = reStrong.ReplaceAllString(s, "<strong>$1</strong>")
	s = reStrongU.ReplaceAllString(s, "<strong>$1</strong>")
	s = reEm.ReplaceAllString(s, "<em>$1</em>")
	return reEmU.ReplaceAllString(s, "$1<em>$2</em>$3")
}

// safeURL takes an escaped URL from the source and returns it re-escaped
// for an attribute, or false when templ rejects its scheme.
func safeURL(escaped string) (string, bool) {
	raw := strings.TrimSpace(stdhtml.UnescapeString(escaped))
	if raw == "" {
		return "", false
	}
	u := templ.URL(raw)
	if u == templ.FailedSanitizationURL {
		return "", false
	}
	return templ.EscapeString(string(u)), true
}
