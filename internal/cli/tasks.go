package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"atsbeaters/internal/catalog"
	"atsbeaters/internal/common"
	"atsbeaters/internal/errors"
	"atsbeaters/internal/session"
	"atsbeaters/internal/tasks"
	"atsbeaters/internal/workspace"
)

// jobInput is the input name that --job-url can fill
const jobInput = "job"

type taskOptions struct {
	common.CommandConfig
	save   bool
	jobURL string
	sample string
}

// newTaskCommands builds one subcommand per text task, in menu order
func newTaskCommands() []*cobra.Command {
	defs := tasks.All()
	cmds := make([]*cobra.Command, 0, len(defs))
	for _, def := range defs {
		cmds = append(cmds, newTaskCmd(def))
	}
	return cmds
}

func newTaskCmd(def tasks.Definition) *cobra.Command {
	var opts taskOptions

	cmd := &cobra.Command{
		Use:   def.ID + " " + taskUsage(def),
		Short: def.Title + ": " + def.Label,
		Long: fmt.Sprintf(`%s (%s)

Inputs are read from files; use "-" to read one input from standard input.
%s`, def.Title, def.Action, inputHelp(def)),
		Args:    cobra.MaximumNArgs(len(def.Inputs)),
		PreRunE: outputPreRun(&opts.CommandConfig),
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			return runTaskCmd(cmd, def, args, opts)
		}),
	}

	addOutputFlags(cmd, &opts.CommandConfig)
	cmd.Flags().BoolVar(&opts.save, "save", false, "Save the result to your history")
	cmd.Flags().StringVar(&opts.sample, "sample", "", "Use a sample resume as the first input ("+strings.Join(catalog.SampleKeys(), ", ")+")")
	if jobIndex(def) >= 0 {
		cmd.Flags().StringVar(&opts.jobURL, "job-url", "", "Fetch the job description from a URL")
	}
	return cmd
}

func runTaskCmd(cmd *cobra.Command, def tasks.Definition, args []string, opts taskOptions) error {
	ctx := cmd.Context()
	rt := getRuntimeFromContext(ctx)
	logger := getLoggerFromContext(ctx)
	cfg := getConfigFromContext(ctx)

	inputs, err := collectInputs(ctx, rt, def, args, opts)
	if err != nil {
		return err
	}

	gateway, err := rt.gatewayFor()
	if err != nil {
		return err
	}
	sess, err := rt.session(ctx)
	if err != nil {
		return err
	}

	ws := workspace.New(def, cfg, gateway, sess, rt.workspaceOptions()...)
	_, err = common.RunTask(ctx, logger, rt.output(), common.TaskRun{
		Workspace: ws,
		Inputs:    inputs,
		Output:    opts.CommandConfig,
		Session:   sess,
		Save:      opts.save,
		OnSaved: func(ctx context.Context, entry *session.HistoryEntry) {
			rt.obs.HistorySaved(ctx, entry.Type)
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved to history as %s\n", entry.ID)
		},
	})
	if err != nil {
		return fmt.Errorf("%s failed: %w", def.ID, err)
	}
	return nil
}

// collectInputs maps positional files, --sample and --job-url onto the
// task's inputs in order.
func collectInputs(ctx context.Context, rt *runtime, def tasks.Definition, args []string, opts taskOptions) ([]string, error) {
	type source struct {
		index int
		path  string
	}
	inputs := make([]string, len(def.Inputs))
	var files []source

	next := 0
	for i, in := range def.Inputs {
		switch {
		case i == 0 && opts.sample != "":
			sample, err := catalog.LookupSample(opts.sample)
			if err != nil {
				return nil, err
			}
			inputs[i] = sample.Resume
		case in.Name == jobInput && opts.jobURL != "":
			text, err := rt.fetcher().JobDescription(ctx, opts.jobURL)
			if err != nil {
				return nil, err
			}
			inputs[i] = text
		case next < len(args):
			files = append(files, source{i, args[next]})
			next++
		case in.Optional:
		default:
			return nil, errors.NewValidationError(errors.ErrCodeInvalidInput,
				fmt.Sprintf("missing input: %s", in.Label), nil).
				WithContext("task", def.ID)
		}
	}
	if next < len(args) {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("too many inputs: %s takes %s", def.ID, taskUsage(def)), nil)
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	contents, err := rt.files().ValidateAndReadFiles(paths...)
	if err != nil {
		return nil, err
	}
	for i, f := range files {
		inputs[f.index] = contents[i]
	}
	return inputs, nil
}

func jobIndex(def tasks.Definition) int {
	for i, in := range def.Inputs {
		if in.Name == jobInput {
			return i
		}
	}
	return -1
}

func taskUsage(def tasks.Definition) string {
	parts := make([]string, len(def.Inputs))
	for i, in := range def.Inputs {
		if in.Optional {
			parts[i] = "[" + in.Name + "-file]"
		} else {
			parts[i] = "<" + in.Name + "-file>"
		}
	}
	return strings.Join(parts, " ")
}

func inputHelp(def tasks.Definition) string {
	var b strings.Builder
	b.WriteString("\nInputs:\n")
	for _, in := range def.Inputs {
		fmt.Fprintf(&b, "  %-12s %s", in.Name, in.Label)
		if in.Optional {
			b.WriteString(" (optional)")
		}
		b.WriteString("\n")
	}
	return b.String()
}
