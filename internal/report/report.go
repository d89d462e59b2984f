// Package report runs the full optimization pipeline over one resume and
// job description and renders the combined result.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"atsbeaters/internal/ai"
	"atsbeaters/internal/config"
	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/formatters"
	"atsbeaters/internal/results"
	"atsbeaters/internal/tasks"
	"atsbeaters/internal/workspace"
)

// Report is the output of one pipeline run
type Report struct {
	GeneratedAt time.Time             `json:"generatedAt"`
	Audit       workspace.SuiteResult `json:"audit"`
	Rewrite     results.Text          `json:"rewrite"`
	CoverLetter results.Text          `json:"coverLetter"`
}

// Score is the headline ATS score
func (r *Report) Score() int {
	return r.Audit.Analysis.Score
}

// Pipeline wires the audits, rewrite and cover letter together
type Pipeline struct {
	cfg     *config.Config
	gateway ai.Gateway
	users   workspace.UserSource
	opts    []workspace.Option
	logger  *apperrors.Logger
	now     func() time.Time
}

// NewPipeline creates a pipeline. opts are passed to every workspace it runs.
func NewPipeline(cfg *config.Config, gateway ai.Gateway, users workspace.UserSource, logger *apperrors.Logger, opts ...workspace.Option) *Pipeline {
	return &Pipeline{cfg: cfg, gateway: gateway, users: users, opts: opts, logger: logger, now: time.Now}
}

// Run audits the resume, then rewrites it using the audit findings and
// drafts a cover letter. The rewrite and the letter run concurrently.
func (p *Pipeline) Run(ctx context.Context, resume, job string) (*Report, error) {
	if strings.TrimSpace(resume) == "" || strings.TrimSpace(job) == "" {
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"the report needs both a resume and a job description", nil)
	}

	p.log("Report pipeline started", "stage", "audit")
	audit, err := workspace.NewSuite(p.cfg, p.gateway, p.users, p.opts...).Run(ctx, resume, job)
	if err != nil {
		return nil, err
	}

	rep := &Report{GeneratedAt: p.now(), Audit: audit}

	p.log("Report pipeline audit finished", "stage", "rewrite", "score", audit.Analysis.Score)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := p.runText(gctx, tasks.FullRewrite, resume, RewriteContext(audit))
		rep.Rewrite = text
		return err
	})
	g.Go(func() error {
		text, err := p.runText(gctx, tasks.CoverLetter, resume, job)
		rep.CoverLetter = text
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.log("Report pipeline finished", "score", rep.Score())
	return rep, nil
}

func (p *Pipeline) runText(ctx context.Context, task string, inputs ...string) (results.Text, error) {
	def, err := tasks.MustLookup(task)
	if err != nil {
		return "", err
	}
	ws := workspace.New(def, p.cfg, p.gateway, p.users, p.opts...)
	for i, in := range inputs {
		ws.SetInput(i, in)
	}
	r, err := ws.Submit(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", task, err)
	}
	text, ok := r.(results.Text)
	if !ok {
		return "", fmt.Errorf("%s: unexpected %T", task, r)
	}
	return text, nil
}

func (p *Pipeline) log(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

// RewriteContext turns the audit findings into guidance for the rewrite
func RewriteContext(audit workspace.SuiteResult) string {
	var fixes []string
	fixes = append(fixes, audit.Analysis.Weaknesses...)
	fixes = append(fixes, audit.Analysis.FormattingIssues...)
	fixes = append(fixes, audit.ATS.Issues...)

	keywords := append([]string(nil), audit.Analysis.MissingKeywords...)
	for _, k := range audit.Keywords.PriorityKeywords {
		if !contains(keywords, k) {
			keywords = append(keywords, k)
		}
	}

	var parts []string
	if len(fixes) > 0 {
		parts = append(parts, "Fix these issues: "+strings.Join(fixes, "; "))
	}
	if len(keywords) > 0 {
		parts = append(parts, "Include these keywords: "+strings.Join(keywords, ", "))
	}
	return strings.Join(parts, ". ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Markdown renders the whole report
func (r *Report) Markdown() (string, error) {
	var b strings.Builder
	b.WriteString("# ATS Beaters Report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "**ATS Score:** %d/100\n\n", r.Score())

	sections := []struct {
		title  string
		result results.Result
	}{
		{"Resume Analysis", r.Audit.Analysis},
		{"Job Keywords", r.Audit.Keywords},
		{"ATS Compatibility", r.Audit.ATS},
		{"Optimized Resume", r.Rewrite},
		{"Cover Letter", r.CoverLetter},
	}
	for _, s := range sections {
		body, err := formatters.ResultBody(s.result, formatters.FormatMarkdown)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", s.title, err)
		}
		b.WriteString("## " + s.title + "\n\n")
		b.WriteString(body)
	}
	return b.String(), nil
}

// TopRecommendations picks the fixes shown in the email summary
func (r *Report) TopRecommendations(n int) []string {
	recs := append([]string(nil), r.Audit.Analysis.Weaknesses...)
	for _, k := range r.Audit.Analysis.MissingKeywords {
		recs = append(recs, "Add the keyword \""+k+"\"")
	}
	if len(recs) > n {
		recs = recs[:n]
	}
	return recs
}
