package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atsbeaters/internal/ai"
	"atsbeaters/internal/config"
	"atsbeaters/internal/errors"
	"atsbeaters/internal/export"
	"atsbeaters/internal/results"
	"atsbeaters/internal/session"
	"atsbeaters/internal/tasks"
)

type fakeGateway struct {
	mu      sync.Mutex
	prompts map[string]string
	answers map[string]results.Result
	fail    map[string]error
	image   ai.ImageOutput
}

func (f *fakeGateway) RunTextTask(ctx context.Context, req ai.TextRequest) (ai.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prompts == nil {
		f.prompts = map[string]string{}
	}
	f.prompts[req.Task] = req.Prompt
	if err := f.fail[req.Task]; err != nil {
		return ai.Output{}, err
	}
	r, ok := f.answers[req.Task]
	if !ok {
		r = results.Empty(req.Shape)
	}
	return ai.Output{Result: r}, nil
}

func (f *fakeGateway) EditImage(ctx context.Context, image []byte, mimeType, instruction string) (ai.ImageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prompts == nil {
		f.prompts = map[string]string{}
	}
	f.prompts[tasks.PhotoEdit] = instruction
	return f.image, nil
}

func (f *fakeGateway) prompt(task string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[task]
}

type pdfStub struct{}

func (pdfStub) RenderHTMLToPDF(ctx context.Context, html string) ([]byte, error) {
	return []byte("%PDF-stub"), nil
}

func testConfig() *config.Config {
	return &config.Config{
		AI:      config.AIConfig{Provider: "gemini", APIKey: "k", Timeout: time.Second},
		Session: config.SessionConfig{Backend: session.BackendMemory},
		App: config.AppConfig{
			LogLevel:         "error",
			DefaultFormat:    "text",
			SupportedFormats: []string{"json", "text", "markdown"},
		},
		Fetch: config.FetchConfig{Timeout: 5 * time.Second},
	}
}

type harness struct {
	t       *testing.T
	cfg     *config.Config
	gateway *fakeGateway
	store   *session.MemoryStore
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:   t,
		cfg: testConfig(),
		gateway: &fakeGateway{answers: map[string]results.Result{
			tasks.AnalyzeResume:   results.Analysis{Score: 71, Weaknesses: []string{"No metrics"}, MissingKeywords: []string{"Kubernetes"}},
			tasks.ExtractKeywords: results.Keywords{PriorityKeywords: []string{"Go"}},
			tasks.ATSCheck:        results.ATSReport{ParseScore: 90},
			tasks.FullRewrite:     results.Text("REWRITTEN RESUME"),
			tasks.CoverLetter:     results.Text("Dear hiring manager,"),
		}},
		store: session.NewMemoryStore(),
	}
}

// run executes one command line and returns stdout
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	logger := errors.NewLoggerWithWriter(io.Discard, slog.LevelError)
	err := Execute(context.Background(), h.cfg, logger,
		WithGateway(h.gateway),
		WithStore(h.store),
		WithExportOptions(export.WithRenderer(pdfStub{})),
		WithIO(strings.NewReader(stdin), &out),
		WithArgs(args...),
	)
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run("", args...)
	require.NoError(h.t, err, "atsbeaters %s", strings.Join(args, " "))
	return out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoginWhoamiUpgradeLogout(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("login", "alice@example.com", "--name", "Alice", "--format", "json")
	var u session.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, session.TierFree, u.Tier)
	assert.Equal(t, 1, u.Credits)

	out = h.mustRun("whoami")
	assert.Contains(t, out, "alice@example.com")

	out = h.mustRun("upgrade", "pro", "--format", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, session.TierPro, u.Tier)
	assert.Equal(t, session.ProCredits, u.Credits)

	assert.Contains(t, h.mustRun("logout"), "Logged out.")

	_, err := h.run("", "whoami")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestUpgradeRejectsUnknownTier(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "alice@example.com")

	_, err := h.run("", "upgrade", "gold")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTier))
}

func TestTaskCommandSaveHistoryAndExport(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "alice@example.com")

	resume := writeFile(t, "resume.txt", "Jane Doe, Backend Engineer")
	out := h.mustRun("analyze-resume", resume, "--save")
	assert.Contains(t, out, "ATS Score: 71/100")
	assert.Contains(t, h.gateway.prompt(tasks.AnalyzeResume), "Jane Doe, Backend Engineer")

	out = h.mustRun("history", "--format", "json")
	var entries []session.HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, tasks.AnalyzeResume, entries[0].Type)
	assert.Equal(t, "Jane Doe, Backend Engineer", entries[0].Input)

	out = h.mustRun("export", entries[0].ID, "--format", "markdown")
	assert.Contains(t, out, "**ATS Score:** 71/100")

	pdfPath := filepath.Join(t.TempDir(), "analysis.pdf")
	h.mustRun("export", entries[0].ID, "-o", pdfPath)
	data, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-stub", string(data))

	_, err = h.run("", "export", entries[0].ID, "--format", "pdf")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestTaskCommandReadsStdinAndSample(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("Led a team\nShipped features", "quantify-achievements", "-")
	require.NoError(t, err)
	assert.Contains(t, h.gateway.prompt(tasks.QuantifyAchievements), "Shipped features")

	h.mustRun("ats-check", "--sample", "sales")
	assert.Contains(t, h.gateway.prompt(tasks.ATSCheck), "Jane Smith")
}

func TestTaskCommandMissingInput(t *testing.T) {
	h := newHarness(t)
	resume := writeFile(t, "resume.txt", "resume")

	_, err := h.run("", "cover-letter", resume)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
	assert.Empty(t, h.gateway.prompt(tasks.CoverLetter))
}

func TestFullRewriteContextIsOptional(t *testing.T) {
	h := newHarness(t)
	resume := writeFile(t, "resume.txt", "resume body")

	out := h.mustRun("full-rewrite", resume)
	assert.Contains(t, out, "REWRITTEN RESUME")
	assert.NotContains(t, h.gateway.prompt(tasks.FullRewrite), "Use this analysis context")

	goals := writeFile(t, "goals.txt", "target fintech roles")
	h.mustRun("full-rewrite", resume, goals)
	assert.Contains(t, h.gateway.prompt(tasks.FullRewrite), "Use this analysis context: target fintech roles")
}

func TestCoverLetterFetchesJobURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body><main><h1>Staff Engineer</h1><p>Build payment systems in Go.</p></main></body></html>`)
	}))
	defer srv.Close()

	h := newHarness(t)
	resume := writeFile(t, "resume.txt", "resume body")

	out := h.mustRun("cover-letter", resume, "--job-url", srv.URL)
	assert.Contains(t, out, "Dear hiring manager,")
	assert.Contains(t, h.gateway.prompt(tasks.CoverLetter), "Build payment systems in Go.")
}

func TestReportCommand(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "alice@example.com")
	resume := writeFile(t, "resume.txt", "resume body")
	job := writeFile(t, "job.txt", "job body")

	out := h.mustRun("report", resume, job, "--save")
	assert.True(t, strings.HasPrefix(out, "# ATS Beaters Report"))
	assert.Contains(t, out, "## Optimized Resume")
	assert.Contains(t, out, "REWRITTEN RESUME")
	assert.Contains(t, h.gateway.prompt(tasks.FullRewrite), "Include these keywords: Kubernetes, Go")

	out = h.mustRun("history", "--format", "json")
	var entries []session.HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 5)
	assert.Equal(t, tasks.CoverLetter, entries[0].Type)

	pdfPath := filepath.Join(t.TempDir(), "report.pdf")
	out = h.mustRun("report", resume, job, "--format", "pdf", "-o", pdfPath)
	assert.Contains(t, out, "ATS score 71%")
}

func TestReportValidatesOptions(t *testing.T) {
	h := newHarness(t)
	resume := writeFile(t, "resume.txt", "resume body")

	tests := []struct {
		name string
		args []string
	}{
		{"no job", []string{"report", resume}},
		{"bad email", []string{"report", resume, resume, "--email-to", "not-an-email"}},
		{"bad format", []string{"report", resume, resume, "--format", "docx"}},
		{"pdf to stdout", []string{"report", resume, resume, "--format", "pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.run("", tt.args...)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput), "got %v", err)
		})
	}
	assert.Empty(t, h.gateway.prompt(tasks.AnalyzeResume))
}

func TestReportEmailNeedsMailConfig(t *testing.T) {
	h := newHarness(t)
	resume := writeFile(t, "resume.txt", "resume body")

	_, err := h.run("", "report", resume, resume, "--email-to", "jane@example.com")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
	assert.Empty(t, h.gateway.prompt(tasks.AnalyzeResume), "no model calls before mail is known to work")
}

func TestPhotoCommand(t *testing.T) {
	h := newHarness(t)
	png := []byte("\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32))
	h.gateway.image = ai.ImageOutput{Data: []byte("\xff\xd8\xff\xe0edited"), MIMEType: "image/jpeg"}

	src := filepath.Join(t.TempDir(), "me.png")
	require.NoError(t, os.WriteFile(src, png, 0o644))
	dst := filepath.Join(t.TempDir(), "out.jpg")

	out := h.mustRun("photo", src, "--preset", "2", "-o", dst)
	assert.Contains(t, out, "Edited photo written to "+dst)
	assert.Equal(t, "Studio lighting", h.gateway.prompt(tasks.PhotoEdit))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, h.gateway.image.Data, data)

	out = h.mustRun("photo", "presets")
	assert.Contains(t, out, "1. Corporate backdrop")
}

func TestCatalogCommands(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, h.mustRun("faq"), "What is an ATS score?")
	assert.Contains(t, h.mustRun("pricing"), "Pro Pack")
	assert.Contains(t, h.mustRun("samples"), "tech")

	out := h.mustRun("samples", "ops", "--raw")
	assert.True(t, strings.HasPrefix(out, "Mike Johnson"))

	_, err := h.run("", "samples", "chef")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestDoctorOffline(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("doctor", "--offline", "--format", "json")
	var rep doctorReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "gemini", rep.Provider)
	assert.True(t, rep.APIKeySet)
	assert.Equal(t, session.BackendMemory, rep.Session)
	assert.Empty(t, rep.Models)
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.mustRun("version"), "atsbeaters version dev")
}

func TestUnsupportedFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "faq", "--format", "xml")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidFormat))
	assert.Contains(t, err.Error(), `format "xml" is not enabled`)
}

func TestMalformedResponsePolicy(t *testing.T) {
	_, malformed := results.Decode(results.ShapeATS, "{}")
	require.Error(t, malformed)

	h := newHarness(t)
	h.gateway.fail = map[string]error{tasks.ATSCheck: malformed}

	_, err := h.run("Jane Doe resume", "ats-check", "-", "--format", "json")
	assert.True(t, errors.HasCode(err, errors.ErrCodeAIResponseMalformed))

	h.cfg.AI.RecoverMalformed = true
	out, err := h.run("Jane Doe resume", "ats-check", "-", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"parseScore": 0`)
}
