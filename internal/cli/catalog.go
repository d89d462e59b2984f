package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"atsbeaters/internal/catalog"
	"atsbeaters/internal/common"
)

func newFAQCmd() *cobra.Command {
	var out common.CommandConfig

	cmd := &cobra.Command{
		Use:     "faq",
		Short:   "Frequently asked questions about ATS optimization",
		Args:    cobra.NoArgs,
		PreRunE: outputPreRun(&out),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := getRuntimeFromContext(cmd.Context())
			return rt.output().HandleOutput(catalog.FAQ(), out)
		},
	}
	addOutputFlags(cmd, &out)
	return cmd
}

func newSamplesCmd() *cobra.Command {
	var out common.CommandConfig
	var raw bool

	cmd := &cobra.Command{
		Use:   "samples [key]",
		Short: "List or print the sample resumes",
		Long: `Without a key, list the sample resumes. With a key, print one of them.
Use --raw to print only the resume text, for piping into a task:

  atsbeaters samples tech --raw | atsbeaters analyze-resume -`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: catalog.SampleKeys(),
		PreRunE:   outputPreRun(&out),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := getRuntimeFromContext(cmd.Context())
			if len(args) == 0 {
				for _, s := range catalog.Samples() {
					fmt.Fprintf(rt.stdout, "%-6s %s\n", s.Key, s.Title)
				}
				return nil
			}
			sample, err := catalog.LookupSample(args[0])
			if err != nil {
				return err
			}
			if raw {
				_, err := fmt.Fprintln(rt.stdout, sample.Resume)
				return err
			}
			return rt.output().HandleOutput(sample, out)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print only the resume text")
	addOutputFlags(cmd, &out)
	return cmd
}
