package formatters

import (
	"encoding/json"
	"fmt"
	"slices"

	"atsbeaters/internal/catalog"
	"atsbeaters/internal/results"
	"atsbeaters/internal/session"
)

// Output formats
const (
	FormatJSON     = "json"
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter(FormatJSON, "any", &JSONFormatter{})
	for _, r := range renderers {
		registry.RegisterFormatter(FormatText, r.dataType, &docFormatter{dataType: r.dataType, newDoc: newTextDoc, render: r.render})
		registry.RegisterFormatter(FormatMarkdown, r.dataType, &docFormatter{dataType: r.dataType, newDoc: newMarkdownDoc, render: r.render})
	}

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats, sorted
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	slices.Sort(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case results.Analysis:
		return "Analysis"
	case results.Keywords:
		return "Keywords"
	case results.ATSReport:
		return "ATSReport"
	case results.Quantified:
		return "Quantified"
	case results.Text:
		return "Text"
	case results.Envelope:
		return "Envelope"
	case session.HistoryEntry:
		return "HistoryEntry"
	case []session.HistoryEntry:
		return "History"
	case *session.User:
		return "User"
	case []session.Plan:
		return "Plans"
	case []catalog.FAQEntry:
		return "FAQ"
	case catalog.Sample:
		return "Sample"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// docFormatter renders one data type into a text or markdown document
type docFormatter struct {
	dataType string
	newDoc   func() document
	render   func(document, any) error
}

func (df *docFormatter) Format(data any) (string, error) {
	doc := df.newDoc()
	if err := df.render(doc, data); err != nil {
		return "", err
	}
	return doc.String(), nil
}

func (df *docFormatter) SupportedType() string {
	return df.dataType
}

// ResultBody renders r without its title, for embedding under a heading
// the caller writes. Markdown sections start at level 3.
func ResultBody(r results.Result, format string) (string, error) {
	var doc document
	switch format {
	case FormatText:
		doc = newTextDoc()
	case FormatMarkdown:
		doc = &markdownDoc{depth: 1}
	default:
		return "", fmt.Errorf("no body renderer for format '%s'", format)
	}
	if r == nil {
		return "", fmt.Errorf("no result to render")
	}
	renderResult(doc, r, false)
	return doc.String(), nil
}

// GlobalRegistry is the registry used by the CLI
var GlobalRegistry = NewFormatterRegistry()

// Format renders data with the global registry
func Format(data any, format string) (string, error) {
	return GlobalRegistry.Format(data, format)
}
