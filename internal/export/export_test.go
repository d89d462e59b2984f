package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"atsbeaters/internal/config"
	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/results"
	"atsbeaters/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureRenderer struct {
	html string
	err  error
}

func (c *captureRenderer) RenderHTMLToPDF(ctx context.Context, html string) ([]byte, error) {
	c.html = html
	if c.err != nil {
		return nil, c.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

var entry = session.HistoryEntry{
	ID:    "h1",
	Type:  "analyze-resume",
	Input: "Jane Doe resume",
	Result: results.Wrap(results.Analysis{
		Score:     81,
		Strengths: []string{"Clear <impact> statements"},
	}),
	Timestamp: 1700000000000,
}

func TestMarkdownToHTML(t *testing.T) {
	md := "# Title\n\n**Score:** 9/10\n\n## Items\n\n- one\n- two\n\n1. first\n2. second\n\nplain <b>text</b>\n"
	html, err := MarkdownToHTML("Doc", md, Style{})
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>Title</h1>")
	assert.Contains(t, html, "<strong>Score:</strong> 9/10")
	assert.Contains(t, html, "<ul><li>one</li><li>two</li></ul>")
	assert.Contains(t, html, "<ol><li>first</li><li>second</li></ol>")
	assert.Contains(t, html, "plain &lt;b&gt;text&lt;/b&gt;")
	assert.Contains(t, html, `font-family: "Arial", sans-serif; font-size: 11pt`)
	assert.Contains(t, html, "margin: 1in")
}

func TestCSSFontNameSanitized(t *testing.T) {
	assert.Equal(t, `"Times New Roman"`, string(cssFontName("Times New Roman")))
	assert.Equal(t, `"Arialbodycolorred"`, string(cssFontName("Arial;} body{color:red")))
	assert.Equal(t, "Arial", string(cssFontName(";;")))
}

func TestRenderFormats(t *testing.T) {
	r := &captureRenderer{}
	e := New(config.ExportConfig{FontFamily: "Helvetica", FontSizePt: 12}, nil, WithRenderer(r))
	ctx := context.Background()

	out, err := e.Render(ctx, "Export", entry, "json")
	require.NoError(t, err)
	assert.Contains(t, string(out), `"shape": "analysis"`)

	out, err = e.Render(ctx, "Export", entry, "markdown")
	require.NoError(t, err)
	assert.Contains(t, string(out), "**ATS Score:** 81/100")

	out, err = e.Render(ctx, "Export", entry, "pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF"))
	assert.Contains(t, r.html, "Clear &lt;impact&gt; statements")
	assert.Contains(t, r.html, "font-size: 12pt")

	_, err = e.Render(ctx, "Export", entry, "docx")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidFormat))
}

func TestRenderPDFFailure(t *testing.T) {
	e := New(config.ExportConfig{}, nil, WithRenderer(&captureRenderer{err: errors.New("chrome not found")}))
	_, err := e.Render(context.Background(), "Export", entry, FormatPDF)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "PDF_RENDER_FAILED"))
}

func TestWriteFile(t *testing.T) {
	e := New(config.ExportConfig{}, nil, WithRenderer(&captureRenderer{}))
	path := filepath.Join(t.TempDir(), "out", "analysis.pdf")

	format, ok := FormatFromPath(path)
	require.True(t, ok)
	require.NoError(t, e.WriteFile(context.Background(), "Analysis", entry, format, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(data))

	_, ok = FormatFromPath("report.docx")
	assert.False(t, ok)
}

func TestMarkdownPDF(t *testing.T) {
	r := &captureRenderer{}
	e := New(config.ExportConfig{FontFamily: "Arial", FontSizePt: 11}, nil, WithRenderer(r))

	out, err := e.MarkdownPDF(context.Background(), "ATS Beaters Report", "# ATS Beaters Report\n\n## Cover Letter\n\nDear team,\n")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(out))
	assert.Contains(t, r.html, "<h2>Cover Letter</h2>")

	r.err = errors.New("chrome missing")
	_, err = e.MarkdownPDF(context.Background(), "x", "text")
	assert.True(t, apperrors.HasCode(err, "PDF_RENDER_FAILED"))
}
