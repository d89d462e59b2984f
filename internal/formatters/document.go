package formatters

import (
	"fmt"
	"strings"
)

// document is the small set of layout primitives shared by the text and
// markdown outputs
type document interface {
	Title(s string)
	Section(s string)
	Field(label, value string)
	Paragraph(s string)
	Bullets(items []string)
	Numbered(items []string)
	String() string
}

type textDoc struct{ b strings.Builder }

func newTextDoc() document { return &textDoc{} }

func (d *textDoc) Title(s string) {
	d.b.WriteString("=== " + strings.ToUpper(s) + " ===\n\n")
}

func (d *textDoc) Section(s string) {
	d.b.WriteString(s + ":\n")
}

func (d *textDoc) Field(label, value string) {
	d.b.WriteString(fmt.Sprintf("%s: %s\n", label, value))
}

func (d *textDoc) Paragraph(s string) {
	d.b.WriteString(strings.TrimRight(s, "\n"))
	d.b.WriteString("\n\n")
}

func (d *textDoc) Bullets(items []string) {
	if len(items) == 0 {
		d.b.WriteString("(none)\n\n")
		return
	}
	for _, item := range items {
		d.b.WriteString("- " + item + "\n")
	}
	d.b.WriteString("\n")
}

func (d *textDoc) Numbered(items []string) {
	for i, item := range items {
		d.b.WriteString(fmt.Sprintf("%d. %s\n", i+1, item))
	}
	d.b.WriteString("\n")
}

func (d *textDoc) String() string { return d.b.String() }

// markdownDoc headings start at level depth+1
type markdownDoc struct {
	b     strings.Builder
	depth int
}

func newMarkdownDoc() document { return &markdownDoc{} }

func (d *markdownDoc) Title(s string) {
	d.b.WriteString(strings.Repeat("#", d.depth+1) + " " + s + "\n\n")
}

func (d *markdownDoc) Section(s string) {
	d.b.WriteString(strings.Repeat("#", d.depth+2) + " " + s + "\n\n")
}

func (d *markdownDoc) Field(label, value string) {
	d.b.WriteString(fmt.Sprintf("**%s:** %s\n\n", label, value))
}

func (d *markdownDoc) Paragraph(s string) {
	d.b.WriteString(strings.TrimRight(s, "\n"))
	d.b.WriteString("\n\n")
}

func (d *markdownDoc) Bullets(items []string) {
	if len(items) == 0 {
		d.b.WriteString("_None._\n\n")
		return
	}
	for _, item := range items {
		d.b.WriteString("- " + item + "\n")
	}
	d.b.WriteString("\n")
}

func (d *markdownDoc) Numbered(items []string) {
	for i, item := range items {
		d.b.WriteString(fmt.Sprintf("%d. %s\n", i+1, item))
	}
	d.b.WriteString("\n")
}

func (d *markdownDoc) String() string { return d.b.String() }
