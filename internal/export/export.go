// Package export writes task results and history entries to files as JSON,
// plain text, markdown or PDF.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"atsbeaters/internal/common"
	"atsbeaters/internal/config"
	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/formatters"
)

// FormatPDF is handled here; the other formats come from the formatters
const FormatPDF = "pdf"

// Formats lists every export format
var Formats = []string{formatters.FormatJSON, formatters.FormatText, formatters.FormatMarkdown, FormatPDF}

// Option configures an Exporter
type Option func(*Exporter)

// WithRenderer replaces the headless Chrome renderer
func WithRenderer(r Renderer) Option {
	return func(e *Exporter) { e.renderer = r }
}

// Exporter renders data in a chosen format
type Exporter struct {
	renderer Renderer
	style    Style
	files    *common.FileProcessor
	logger   *apperrors.Logger
}

// New creates an Exporter from cfg
func New(cfg config.ExportConfig, logger *apperrors.Logger, opts ...Option) *Exporter {
	e := &Exporter{
		renderer: NewChromedpRenderer(cfg.ChromePath, cfg.RenderTimeout),
		style:    Style{FontFamily: cfg.FontFamily, FontSizePt: cfg.FontSizePt},
		files:    common.NewFileProcessor(logger),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render returns data in format. title heads PDF documents.
func (e *Exporter) Render(ctx context.Context, title string, data any, format string) ([]byte, error) {
	switch format {
	case formatters.FormatJSON, formatters.FormatText, formatters.FormatMarkdown:
		out, err := formatters.Format(data, format)
		if err != nil {
			return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidFormat,
				fmt.Sprintf("cannot export as %s", format), err)
		}
		return []byte(out), nil
	case FormatPDF:
		return e.renderPDF(ctx, title, data)
	}
	return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidFormat,
		fmt.Sprintf("unsupported export format %q (expected one of %s)", format, strings.Join(Formats, ", ")), nil)
}

// HTML renders data as a printable page, the same page used for PDF output
func (e *Exporter) HTML(title string, data any) (string, error) {
	md, err := formatters.Format(data, formatters.FormatMarkdown)
	if err != nil {
		return "", apperrors.NewValidationError(apperrors.ErrCodeInvalidFormat, "cannot render HTML", err)
	}
	html, err := MarkdownToHTML(title, md, e.style)
	if err != nil {
		return "", apperrors.NewInternalError("RENDER_FAILED", "failed to build HTML", err)
	}
	return html, nil
}

func (e *Exporter) renderPDF(ctx context.Context, title string, data any) ([]byte, error) {
	html, err := e.HTML(title, data)
	if err != nil {
		return nil, err
	}
	return e.printPDF(ctx, html)
}

// MarkdownPDF prints an already rendered markdown document
func (e *Exporter) MarkdownPDF(ctx context.Context, title, md string) ([]byte, error) {
	html, err := MarkdownToHTML(title, md, e.style)
	if err != nil {
		return nil, apperrors.NewInternalError("RENDER_FAILED", "failed to build HTML", err)
	}
	return e.printPDF(ctx, html)
}

func (e *Exporter) printPDF(ctx context.Context, html string) ([]byte, error) {
	pdf, err := e.renderer.RenderHTMLToPDF(ctx, html)
	if err != nil {
		return nil, apperrors.NewIOError("PDF_RENDER_FAILED",
			"failed to render PDF (is Chrome installed? set export.chromePath)", err)
	}
	return pdf, nil
}

// WriteFile renders data and writes it to path
func (e *Exporter) WriteFile(ctx context.Context, title string, data any, format, path string) error {
	out, err := e.Render(ctx, title, data, format)
	if err != nil {
		return err
	}
	if err := e.files.WriteFile(path, out); err != nil {
		return err
	}
	if e.logger != nil {
		e.logger.Info("Export written", "file", path, "format", format, "bytes", len(out))
	}
	return nil
}

// FormatFromPath guesses the export format from a file extension
func FormatFromPath(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatters.FormatJSON, true
	case ".txt", ".text":
		return formatters.FormatText, true
	case ".md", ".markdown":
		return formatters.FormatMarkdown, true
	case ".pdf":
		return FormatPDF, true
	}
	return "", false
}
