package cli

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"atsbeaters/internal/errors"
	"atsbeaters/internal/export"
	"atsbeaters/internal/formatters"
	"atsbeaters/internal/report"
	"atsbeaters/internal/results"
	"atsbeaters/internal/session"
	"atsbeaters/internal/tasks"
)

type reportOptions struct {
	Output    string
	Format    string `validate:"oneof=markdown json pdf"`
	JobURL    string `validate:"omitempty,http_url"`
	EmailTo   string `validate:"omitempty,email"`
	AttachPDF bool
	Save      bool
}

var validate = validator.New()

func newReportCmd() *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report <resume-file> [job-file]",
		Short: "Run the full optimization pipeline and build a report",
		Long: `Audit a resume against a job description, then rewrite it with the audit
findings and draft a cover letter. The resume analysis, keyword extraction
and ATS check run concurrently, as do the rewrite and the cover letter.

The report is markdown by default. It can be written as JSON or PDF, and
emailed with --email-to when mail delivery is configured.`,
		Args: cobra.RangeArgs(1, 2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.Struct(opts); err != nil {
				return errors.NewValidationError(errors.ErrCodeInvalidInput, "invalid report options", err)
			}
			if (len(args) == 2) == (opts.JobURL != "") {
				return errors.NewValidationError(errors.ErrCodeInvalidInput,
					"give the job description as a file or with --job-url, not both", nil)
			}
			if opts.Format == export.FormatPDF && opts.Output == "" {
				return errors.NewValidationError(errors.ErrCodeInvalidInput,
					"PDF output needs an output file (-o)", nil)
			}
			return nil
		},
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, args, opts)
		}),
	}
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&opts.Format, "format", formatters.FormatMarkdown, "Report format: markdown, json or pdf")
	cmd.Flags().StringVar(&opts.JobURL, "job-url", "", "Fetch the job description from a URL")
	cmd.Flags().StringVar(&opts.EmailTo, "email-to", "", "Email the report summary to this address")
	cmd.Flags().BoolVar(&opts.AttachPDF, "attach-pdf", false, "Attach the report as a PDF to the email")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "Save each stage to your history")
	return cmd
}

func runReport(cmd *cobra.Command, args []string, opts reportOptions) error {
	ctx := cmd.Context()
	rt := getRuntimeFromContext(ctx)
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	// Fail before spending model calls when mail cannot be sent
	var mailer *report.Mailer
	if opts.EmailTo != "" {
		var err error
		if mailer, err = report.NewMailer(cfg.Mail, logger); err != nil {
			return err
		}
	}

	contents, err := rt.files().ValidateAndReadFiles(args...)
	if err != nil {
		return err
	}
	resume := contents[0]
	var job string
	if opts.JobURL != "" {
		if job, err = rt.fetcher().JobDescription(ctx, opts.JobURL); err != nil {
			return err
		}
	} else {
		job = contents[1]
	}

	gateway, err := rt.gatewayFor()
	if err != nil {
		return err
	}
	sess, err := rt.session(ctx)
	if err != nil {
		return err
	}

	rep, err := report.NewPipeline(cfg, gateway, sess, logger, rt.workspaceOptions()...).Run(ctx, resume, job)
	if err != nil {
		return fmt.Errorf("report failed: %w", err)
	}

	md, err := rep.Markdown()
	if err != nil {
		return err
	}

	if err := writeReport(ctx, rt, rep, md, opts); err != nil {
		return err
	}

	if opts.Save {
		if err := saveReport(ctx, rt, sess, rep, resume, job); err != nil {
			return err
		}
	}

	if mailer != nil {
		var attachments []report.Attachment
		attachments = append(attachments, report.Attachment{
			Name: "ats-report.md", ContentType: "text/markdown; charset=UTF-8", Data: []byte(md),
		})
		if opts.AttachPDF {
			pdf, err := rt.exporter().MarkdownPDF(ctx, "ATS Beaters Report", md)
			if err != nil {
				return err
			}
			attachments = append(attachments, report.Attachment{
				Name: "ats-report.pdf", ContentType: "application/pdf", Data: pdf,
			})
		}
		if err := mailer.SendReport(opts.EmailTo, rep, attachments...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report emailed to %s\n", opts.EmailTo)
	}
	return nil
}

func writeReport(ctx context.Context, rt *runtime, rep *report.Report, md string, opts reportOptions) error {
	var data []byte
	switch opts.Format {
	case formatters.FormatJSON:
		out, err := formatters.Format(rep, formatters.FormatJSON)
		if err != nil {
			return err
		}
		data = []byte(out)
	case export.FormatPDF:
		pdf, err := rt.exporter().MarkdownPDF(ctx, "ATS Beaters Report", md)
		if err != nil {
			return err
		}
		data = pdf
	default:
		data = []byte(md)
	}

	if opts.Output == "" {
		_, err := rt.stdout.Write(data)
		return err
	}
	files := rt.files()
	if err := files.ValidateOutputFile(opts.Output); err != nil {
		return err
	}
	if err := files.WriteFile(opts.Output, data); err != nil {
		return err
	}
	fmt.Fprintf(rt.stdout, "Report written to %s (ATS score %d%%)\n", opts.Output, rep.Score())
	return nil
}

// saveReport stores every stage as its own history entry
func saveReport(ctx context.Context, rt *runtime, sess *session.Session, rep *report.Report, resume, job string) error {
	stages := []struct {
		task   string
		input  string
		result results.Result
	}{
		{tasks.AnalyzeResume, resume, rep.Audit.Analysis},
		{tasks.ExtractKeywords, job, rep.Audit.Keywords},
		{tasks.ATSCheck, resume, rep.Audit.ATS},
		{tasks.FullRewrite, resume, rep.Rewrite},
		{tasks.CoverLetter, resume, rep.CoverLetter},
	}
	for _, s := range stages {
		entry, err := sess.SaveToHistory(ctx, s.task, s.input, s.result)
		if err != nil {
			return err
		}
		if entry == nil {
			rt.logger.Warn("Not logged in, report not saved")
			return nil
		}
		rt.obs.HistorySaved(ctx, s.task)
	}
	return nil
}
