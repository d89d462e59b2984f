package workspace

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"atsbeaters/internal/ai"
	"atsbeaters/internal/config"
	"atsbeaters/internal/results"
	"atsbeaters/internal/tasks"
)

// SuiteResult holds the three audits of one resume and job description
type SuiteResult struct {
	Analysis results.Analysis
	Keywords results.Keywords
	ATS      results.ATSReport
}

// Suite runs the independent audits of a resume concurrently
type Suite struct {
	cfg     *config.Config
	gateway ai.Gateway
	users   UserSource
	opts    options
}

// NewSuite creates a suite runner
func NewSuite(cfg *config.Config, gateway ai.Gateway, users UserSource, opts ...Option) *Suite {
	return &Suite{cfg: cfg, gateway: gateway, users: users, opts: buildOptions(opts)}
}

// Run analyzes the resume, extracts job keywords and checks ATS parsing in
// parallel. The first failure cancels the rest.
func (s *Suite) Run(ctx context.Context, resume, job string) (SuiteResult, error) {
	if err := checkGate(ctx, s.users, tasks.AnalyzeResume, s.opts.observer); err != nil {
		return SuiteResult{}, err
	}

	jobs := []struct {
		task  string
		input string
	}{
		{tasks.AnalyzeResume, resume},
		{tasks.ExtractKeywords, job},
		{tasks.ATSCheck, resume},
	}

	reqs := make([]ai.TextRequest, len(jobs))
	for i, j := range jobs {
		def, err := tasks.MustLookup(j.task)
		if err != nil {
			return SuiteResult{}, err
		}
		if reqs[i], err = ai.BuildTextRequest(s.cfg, def, j.input); err != nil {
			return SuiteResult{}, err
		}
	}

	outs := make([]results.Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			start := s.opts.now()
			out, err := s.gateway.RunTextTask(gctx, req)
			if empty, ok := s.opts.recoverMalformed(req.Task, req.Shape, err); ok {
				out, err = ai.Output{Result: empty}, nil
			}
			state := StateSucceeded
			if err != nil {
				state = StateFailed
			}
			s.opts.observer.TaskFinished(gctx, req.Task, state, s.opts.now().Sub(start))
			if err != nil {
				return fmt.Errorf("%s: %w", req.Task, err)
			}
			outs[i] = out.Result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SuiteResult{}, err
	}

	var res SuiteResult
	var ok bool
	if res.Analysis, ok = outs[0].(results.Analysis); !ok {
		return SuiteResult{}, fmt.Errorf("unexpected %T for %s", outs[0], tasks.AnalyzeResume)
	}
	if res.Keywords, ok = outs[1].(results.Keywords); !ok {
		return SuiteResult{}, fmt.Errorf("unexpected %T for %s", outs[1], tasks.ExtractKeywords)
	}
	if res.ATS, ok = outs[2].(results.ATSReport); !ok {
		return SuiteResult{}, fmt.Errorf("unexpected %T for %s", outs[2], tasks.ATSCheck)
	}
	return res, nil
}
