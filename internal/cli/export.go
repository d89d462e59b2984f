package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"atsbeaters/internal/errors"
	"atsbeaters/internal/export"
	"atsbeaters/internal/tasks"
)

func newExportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <history-id>",
		Short: "Export a saved result as JSON, text, markdown or PDF",
		Long: `Export one history entry. The format comes from --format, or from the
extension of --output (.json, .txt, .md, .pdf). PDF output needs Chrome or
Chromium; set export.chromePath or CHROME_PATH if it is not on PATH.`,
		Args: cobra.ExactArgs(1),
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt := getRuntimeFromContext(ctx)

			f, err := exportFormat(format, output, getConfigFromContext(ctx).App.DefaultFormat)
			if err != nil {
				return err
			}
			if f == export.FormatPDF && output == "" {
				return errors.NewValidationError(errors.ErrCodeInvalidInput,
					"PDF export needs an output file (-o)", nil)
			}

			sess, err := rt.session(ctx)
			if err != nil {
				return err
			}
			entry, err := sess.Entry(ctx, args[0])
			if err != nil {
				return err
			}

			exp := rt.exporter()
			title := tasks.Label(entry.Type)
			if output == "" {
				data, err := exp.Render(ctx, title, entry, f)
				if err != nil {
					return err
				}
				_, err = rt.stdout.Write(data)
				return err
			}
			if err := exp.WriteFile(ctx, title, entry, f, output); err != nil {
				return err
			}
			fmt.Fprintf(rt.stdout, "Exported %s to %s\n", entry.ID, output)
			return nil
		}),
	}
	cmd.Flags().StringVar(&format, "format", "", "Export format: "+strings.Join(export.Formats, ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default: stdout)")
	_ = cmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(export.Formats, cobra.ShellCompDirectiveNoFileComp))
	return cmd
}

// exportFormat picks the explicit format, then the output extension, then fallback
func exportFormat(format, output, fallback string) (string, error) {
	if format == "" {
		if f, ok := export.FormatFromPath(output); ok {
			return f, nil
		}
		return fallback, nil
	}
	if !slices.Contains(export.Formats, format) {
		return "", errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("unsupported export format %q (expected one of %s)", format, strings.Join(export.Formats, ", ")), nil)
	}
	return format, nil
}
