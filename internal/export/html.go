package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// Style is the page styling applied to exported documents. The defaults
// match what applicant tracking systems parse most reliably.
type Style struct {
	FontFamily string
	FontSizePt int
}

// DefaultStyle is Arial 11pt
var DefaultStyle = Style{FontFamily: "Arial", FontSizePt: 11}

type span struct {
	Text string
	Bold bool
}

type block struct {
	Kind  string // h1, h2, h3, li, ol, p
	Spans []span
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
@page { size: A4; margin: 1in; }
body { font-family: {{.FontFamily}}, sans-serif; font-size: {{.FontSizePt}}pt; line-height: 1.35; color: #000; }
h1 { font-size: 1.6em; margin: 0 0 0.4em; }
h2 { font-size: 1.25em; margin: 1em 0 0.3em; }
h3 { font-size: 1.1em; margin: 0.8em 0 0.2em; }
p { margin: 0 0 0.5em; }
ul, ol { margin: 0 0 0.5em 1.2em; padding: 0; }
</style>
</head>
<body>
{{- range .Groups}}
{{- if eq .List "ul"}}
<ul>{{range .Blocks}}<li>{{template "spans" .Spans}}</li>{{end}}</ul>
{{- else if eq .List "ol"}}
<ol>{{range .Blocks}}<li>{{template "spans" .Spans}}</li>{{end}}</ol>
{{- else}}{{range .Blocks}}
{{- if eq .Kind "h1"}}
<h1>{{template "spans" .Spans}}</h1>
{{- else if eq .Kind "h2"}}
<h2>{{template "spans" .Spans}}</h2>
{{- else if eq .Kind "h3"}}
<h3>{{template "spans" .Spans}}</h3>
{{- else}}
<p>{{template "spans" .Spans}}</p>
{{- end}}{{end}}
{{- end}}
{{- end}}
</body>
</html>
{{define "spans"}}{{range .}}{{if .Bold}}<strong>{{.Text}}</strong>{{else}}{{.Text}}{{end}}{{end}}{{end}}`))

type group struct {
	List   string // "", "ul" or "ol"
	Blocks []block
}

type page struct {
	Title      string
	FontFamily string
	FontSizePt int
	Groups     []group
}

// MarkdownToHTML converts the markdown subset produced by the formatters
// (headings, bullet and numbered lists, bold labels, paragraphs) into a
// standalone printable HTML page.
func MarkdownToHTML(title, md string, style Style) (string, error) {
	if style.FontFamily == "" {
		style.FontFamily = DefaultStyle.FontFamily
	}
	if style.FontSizePt <= 0 {
		style.FontSizePt = DefaultStyle.FontSizePt
	}

	p := page{
		Title:      title,
		FontFamily: cssFontName(style.FontFamily),
		FontSizePt: style.FontSizePt,
		Groups:     groupBlocks(parseBlocks(md)),
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("failed to render HTML: %w", err)
	}
	return buf.String(), nil
}

func parseBlocks(md string) []block {
	var blocks []block
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "### "):
			blocks = append(blocks, block{Kind: "h3", Spans: parseSpans(line[4:])})
		case strings.HasPrefix(line, "## "):
			blocks = append(blocks, block{Kind: "h2", Spans: parseSpans(line[3:])})
		case strings.HasPrefix(line, "# "):
			blocks = append(blocks, block{Kind: "h1", Spans: parseSpans(line[2:])})
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			blocks = append(blocks, block{Kind: "li", Spans: parseSpans(line[2:])})
		case orderedItem(line) != "":
			blocks = append(blocks, block{Kind: "ol", Spans: parseSpans(orderedItem(line))})
		default:
			blocks = append(blocks, block{Kind: "p", Spans: parseSpans(line)})
		}
	}
	return blocks
}

// orderedItem returns the text after "N. ", or "" if line is not a numbered item
func orderedItem(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || !strings.HasPrefix(line[i:], ". ") {
		return ""
	}
	return line[i+2:]
}

// parseSpans splits on ** markers; _x_ emphasis is rendered as plain text
func parseSpans(s string) []span {
	parts := strings.Split(s, "**")
	spans := make([]span, 0, len(parts))
	for i, part := range parts {
		if part == "" {
			continue
		}
		// an unmatched trailing ** leaves an odd index with no closer
		bold := i%2 == 1 && i < len(parts)-1
		spans = append(spans, span{Text: strings.Trim(part, "_"), Bold: bold})
	}
	return spans
}

func groupBlocks(blocks []block) []group {
	var groups []group
	for _, b := range blocks {
		list := ""
		switch b.Kind {
		case "li":
			list = "ul"
		case "ol":
			list = "ol"
		}
		if n := len(groups); n > 0 && list != "" && groups[n-1].List == list {
			groups[n-1].Blocks = append(groups[n-1].Blocks, b)
			continue
		}
		groups = append(groups, group{List: list, Blocks: []block{b}})
	}
	return groups
}

// cssFontName keeps only characters that are safe inside a font-family list
func cssFontName(name string) template.CSS {
	var b strings.Builder
	for _, r := range name {
		if r == ' ' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return template.CSS(DefaultStyle.FontFamily)
	}
	return template.CSS(fmt.Sprintf("%q", b.String()))
}
