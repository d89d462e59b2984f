// Package fetch downloads a job posting and reduces it to the plain text the
// AI tasks take as their job description input.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"atsbeaters/internal/config"
	apperrors "atsbeaters/internal/errors"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; ATSBeaters/1.0)"
	DefaultMaxBytes  = 5 << 20
)

// noise is removed before text extraction
const noise = "nav, footer, header, script, style, noscript, form, iframe, svg, " +
	".ad, .advertisement, .ads, .sidebar, .cookie-banner, .popup"

// jobSelectors are tried in order; the first match wins
var jobSelectors = []string{
	".job-description",
	".job-content",
	"#job-description",
	"#job-content",
	".posting-content",
	".job-details",
	"[data-testid='job-description']",
	"[itemprop='description']",
	"main",
	"article",
	".content",
	"#content",
}

// Fetcher retrieves job descriptions over HTTP
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    *apperrors.Logger
}

// New creates a Fetcher from cfg; zero fields take defaults
func New(cfg config.FetchConfig, logger *apperrors.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		userAgent: ua,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// JobDescription fetches rawURL and returns the posting text
func (f *Fetcher) JobDescription(ctx context.Context, rawURL string) (string, error) {
	body, err := f.get(ctx, rawURL)
	if err != nil {
		return "", err
	}

	text, err := ExtractJobText(body)
	if err != nil {
		return "", apperrors.NewNetworkError(apperrors.ErrCodeFetchFailed,
			"failed to parse job posting", err).WithContext("url", rawURL)
	}
	if text == "" {
		return "", apperrors.NewNetworkError(apperrors.ErrCodeFetchFailed,
			"job posting has no readable text", nil).WithContext("url", rawURL)
	}

	if f.logger != nil {
		f.logger.Debug("Fetched job description", "url", rawURL, "chars", len(text))
	}
	return text, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid job URL: %s", rawURL), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", apperrors.NewNetworkError(apperrors.ErrCodeFetchFailed,
			"failed to create request", err).WithContext("url", rawURL)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		code := apperrors.ErrCodeFetchFailed
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			code = apperrors.ErrCodeNetworkTimeout
		}
		return "", apperrors.NewNetworkError(code, "HTTP request failed", err).WithContext("url", rawURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewNetworkError(apperrors.ErrCodeFetchFailed,
			fmt.Sprintf("HTTP status %d", resp.StatusCode), nil).
			WithContext("url", rawURL).WithContext("status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", apperrors.NewNetworkError(apperrors.ErrCodeFetchFailed,
			"failed to read response body", err).WithContext("url", rawURL)
	}
	if int64(len(body)) > f.maxBytes {
		return "", apperrors.NewNetworkError(apperrors.ErrCodeFetchFailed,
			fmt.Sprintf("job posting exceeds %d bytes", f.maxBytes), nil).WithContext("url", rawURL)
	}
	return string(body), nil
}

// ExtractJobText returns the posting text from an HTML page. A schema.org
// JobPosting in JSON-LD is preferred; otherwise the first matching content
// selector is used, falling back to the body.
func ExtractJobText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	if text := jobPostingFromJSONLD(doc); text != "" {
		return text, nil
	}

	doc.Find(noise).Remove()

	var content *goquery.Selection
	for _, selector := range jobSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			content = sel.First()
			break
		}
	}
	if content == nil {
		content = doc.Find("body")
	}

	return blockText(content), nil
}

type jobPosting struct {
	Type        any    `json:"@type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func jobPostingFromJSONLD(doc *goquery.Document) string {
	var text string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, p := range decodePostings(s.Text()) {
			if !isJobPosting(p.Type) || p.Description == "" {
				continue
			}
			desc, err := goquery.NewDocumentFromReader(strings.NewReader(p.Description))
			if err != nil {
				continue
			}
			text = blockText(desc.Selection)
			if p.Title != "" {
				text = p.Title + "\n" + text
			}
			return false
		}
		return true
	})
	return text
}

// decodePostings accepts a single object, an array, or an @graph wrapper
func decodePostings(raw string) []jobPosting {
	raw = strings.TrimSpace(raw)
	var one jobPosting
	if json.Unmarshal([]byte(raw), &one) == nil && one.Type != nil {
		return []jobPosting{one}
	}
	var many []jobPosting
	if json.Unmarshal([]byte(raw), &many) == nil {
		return many
	}
	var graph struct {
		Graph []jobPosting `json:"@graph"`
	}
	if json.Unmarshal([]byte(raw), &graph) == nil {
		return graph.Graph
	}
	return nil
}

func isJobPosting(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "JobPosting"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "JobPosting" {
				return true
			}
		}
	}
	return false
}

// blockText separates block elements with newlines so list items and
// paragraphs survive as lines, then normalizes whitespace
func blockText(sel *goquery.Selection) string {
	sel.Find("br").ReplaceWithHtml("\n")
	sel.Find("p, li, div, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	sel.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})
	return cleanWhitespace(sel.Text())
}

func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" && line != "-" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
