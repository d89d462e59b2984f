package report

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atsbeaters/internal/ai"
	"atsbeaters/internal/config"
	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/results"
	"atsbeaters/internal/tasks"
	"atsbeaters/internal/workspace"
)

type stubGateway struct {
	mu       sync.Mutex
	requests map[string]ai.TextRequest
	answers  map[string]results.Result
	fail     string
}

func (s *stubGateway) RunTextTask(ctx context.Context, req ai.TextRequest) (ai.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requests == nil {
		s.requests = map[string]ai.TextRequest{}
	}
	s.requests[req.Task] = req
	if req.Task == s.fail {
		return ai.Output{}, apperrors.NewAIError(apperrors.ErrCodeAIServiceFailed, "down", nil)
	}
	r, ok := s.answers[req.Task]
	if !ok {
		r = results.Empty(req.Shape)
	}
	return ai.Output{Result: r}, nil
}

func (s *stubGateway) EditImage(context.Context, []byte, string, string) (ai.ImageOutput, error) {
	return ai.ImageOutput{}, errors.New("not used")
}

func testConfig() *config.Config {
	return &config.Config{AI: config.AIConfig{Provider: "gemini", APIKey: "k", Timeout: time.Second}}
}

func sampleGateway() *stubGateway {
	return &stubGateway{answers: map[string]results.Result{
		tasks.AnalyzeResume: results.Analysis{
			Score:            68,
			Weaknesses:       []string{"No metrics"},
			FormattingIssues: []string{"Header table"},
			MissingKeywords:  []string{"Terraform"},
			Strengths:        []string{"Clear progression"},
		},
		tasks.ExtractKeywords: results.Keywords{PriorityKeywords: []string{"terraform", "AWS"}},
		tasks.ATSCheck:        results.ATSReport{ParseScore: 80, Issues: []string{"Two columns"}},
		tasks.FullRewrite:     results.Text("JANE DOE\nPlatform Engineer"),
		tasks.CoverLetter:     results.Text("Dear hiring team,"),
	}}
}

func TestPipelineRun(t *testing.T) {
	gw := sampleGateway()
	p := NewPipeline(testConfig(), gw, nil, nil)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	rep, err := p.Run(context.Background(), "Jane Doe resume", "Platform engineer job")
	require.NoError(t, err)

	assert.Equal(t, 68, rep.Score())
	assert.Equal(t, fixed, rep.GeneratedAt)
	assert.Equal(t, results.Text("JANE DOE\nPlatform Engineer"), rep.Rewrite)
	assert.Equal(t, results.Text("Dear hiring team,"), rep.CoverLetter)
	assert.Len(t, gw.requests, 5)

	prompt := gw.requests[tasks.FullRewrite].Prompt
	assert.Contains(t, prompt, "Fix these issues: No metrics; Header table; Two columns")
	assert.Contains(t, prompt, "Include these keywords: Terraform, AWS")
	assert.Contains(t, gw.requests[tasks.CoverLetter].Prompt, "Platform engineer job")
}

func TestPipelineRequiresBothInputs(t *testing.T) {
	gw := sampleGateway()
	_, err := NewPipeline(testConfig(), gw, nil, nil).Run(context.Background(), "resume", "  ")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	assert.Empty(t, gw.requests)
}

func TestPipelineStopsOnFailure(t *testing.T) {
	gw := sampleGateway()
	gw.fail = tasks.CoverLetter

	_, err := NewPipeline(testConfig(), gw, nil, nil).Run(context.Background(), "resume", "job")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAIServiceFailed))
	assert.Contains(t, err.Error(), tasks.CoverLetter)
}

func TestRewriteContextEmptyAudit(t *testing.T) {
	assert.Equal(t, "", RewriteContext(workspace.SuiteResult{}))
}

func TestMarkdown(t *testing.T) {
	rep, err := NewPipeline(testConfig(), sampleGateway(), nil, nil).Run(context.Background(), "resume", "job")
	require.NoError(t, err)

	md, err := rep.Markdown()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(md, "# ATS Beaters Report\n"))
	assert.Contains(t, md, "**ATS Score:** 68/100")
	for _, h := range []string{"## Resume Analysis", "## Job Keywords", "## ATS Compatibility", "## Optimized Resume", "## Cover Letter"} {
		assert.Contains(t, md, h)
	}
	assert.Contains(t, md, "### Weaknesses")
	assert.Less(t, strings.Index(md, "## Optimized Resume"), strings.Index(md, "JANE DOE"))
}

type sentMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func testMailer(t *testing.T, sent *sentMail, sendErr error) *Mailer {
	t.Helper()
	m, err := NewMailer(config.MailConfig{
		Enabled:  true,
		Host:     "smtp.example.com",
		Username: "bot",
		Password: "secret",
		From:     "reports@example.com",
	}, nil)
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*sent = sentMail{addr, a, from, to, string(msg)}
		return sendErr
	}
	return m
}

func TestNewMailerValidatesConfig(t *testing.T) {
	_, err := NewMailer(config.MailConfig{}, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig))

	_, err = NewMailer(config.MailConfig{Enabled: true, Host: "smtp.example.com"}, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig))
}

func TestSendReport(t *testing.T) {
	var sent sentMail
	m := testMailer(t, &sent, nil)

	rep := &Report{Audit: workspace.SuiteResult{Analysis: results.Analysis{
		Score:           74,
		Weaknesses:      []string{"Passive voice"},
		MissingKeywords: []string{"Kafka"},
	}}}
	pdf := Attachment{Name: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.7")}

	require.NoError(t, m.SendReport("jane@example.com", rep, pdf))

	assert.Equal(t, "smtp.example.com:587", sent.addr)
	assert.NotNil(t, sent.auth)
	assert.Equal(t, "reports@example.com", sent.from)
	assert.Equal(t, []string{"jane@example.com"}, sent.to)
	assert.Contains(t, sent.msg, "Subject: ATSBeaters Report: Score 74%")
	assert.Contains(t, sent.msg, "Content-Type: multipart/mixed; boundary=")
	assert.Contains(t, sent.msg, `attachment; filename=report.pdf`)
	assert.Contains(t, sent.msg, "JVBERi0xLjc=")
}

func TestSummaryHTML(t *testing.T) {
	rep := &Report{Audit: workspace.SuiteResult{Analysis: results.Analysis{
		Score:           55,
		Weaknesses:      []string{"<b>Vague</b> bullets"},
		MissingKeywords: []string{"Go"},
	}}}
	body, err := SummaryHTML(rep)
	require.NoError(t, err)

	assert.Contains(t, body, "<strong>55%</strong>")
	assert.Contains(t, body, "&lt;b&gt;Vague&lt;/b&gt; bullets")
	assert.Contains(t, body, "Add the keyword &#34;Go&#34;")
	assert.Contains(t, body, "Pro Tip:")
}

func TestSendFailureIsNetworkError(t *testing.T) {
	var sent sentMail
	m := testMailer(t, &sent, errors.New("connection refused"))

	err := m.Send("jane@example.com", "subject", "<p>hi</p>")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, ErrCodeMailFailed))

	err = m.Send("", "subject", "<p>hi</p>")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestTopRecommendationsLimit(t *testing.T) {
	rep := &Report{Audit: workspace.SuiteResult{Analysis: results.Analysis{
		Weaknesses:      []string{"a", "b", "c"},
		MissingKeywords: []string{"x", "y", "z"},
	}}}
	recs := rep.TopRecommendations(4)
	assert.Equal(t, []string{"a", "b", "c", `Add the keyword "x"`}, recs)
}
