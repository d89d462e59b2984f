package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"atsbeaters/internal/ai"
	"atsbeaters/internal/common"
	"atsbeaters/internal/config"
	"atsbeaters/internal/errors"
	"atsbeaters/internal/export"
	"atsbeaters/internal/observability"
	"atsbeaters/internal/session"
	"atsbeaters/internal/workspace"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}
type runtimeKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}
var runtimeKey = runtimeKeyType{}

// Option configures Execute
type Option func(*runtime)

// WithObservability records command spans and metrics through obs
func WithObservability(obs *observability.ObservabilityManager) Option {
	return func(rt *runtime) { rt.obs = obs }
}

// WithVault enables API key rotation in long-running commands
func WithVault(client config.SecretReader) Option {
	return func(rt *runtime) { rt.vault = client }
}

// WithGateway replaces the Gemini gateway
func WithGateway(g ai.Gateway) Option {
	return func(rt *runtime) { rt.gateway = g }
}

// WithStore replaces the configured session store
func WithStore(s session.Store) Option {
	return func(rt *runtime) { rt.store = s }
}

// WithExportOptions configures the exporter used by export and report
func WithExportOptions(opts ...export.Option) Option {
	return func(rt *runtime) { rt.exportOpts = append(rt.exportOpts, opts...) }
}

// WithIO replaces stdin and stdout
func WithIO(in io.Reader, out io.Writer) Option {
	return func(rt *runtime) {
		rt.stdin = in
		rt.stdout = out
	}
}

// WithArgs sets the command line instead of os.Args
func WithArgs(args ...string) Option {
	return func(rt *runtime) { rt.args = args }
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "atsbeaters",
		Short: "AI resume optimization for applicant tracking systems",
		Long: `ATS Beaters audits and rewrites resumes so they parse cleanly in applicant
tracking systems. It scores resumes, extracts job keywords, rewrites content,
drafts cover letters and edits headshots using Gemini models.

Results can be saved to your history and exported as JSON, text, markdown or PDF.`,
		SilenceUsage: true,
	}

	root.AddCommand(newTaskCommands()...)
	root.AddCommand(
		newPhotoCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newUpgradeCmd(),
		newPricingCmd(),
		newHistoryCmd(),
		newFAQCmd(),
		newSamplesCmd(),
		newExportCmd(),
		newReportCmd(),
		newWatchCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line
func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger, opts ...Option) error {
	rt := &runtime{cfg: cfg, logger: logger, stdin: os.Stdin, stdout: os.Stdout}
	for _, opt := range opts {
		opt(rt)
	}
	defer rt.close()

	// Attach the config and logger to the context, making them available to all subcommands
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	ctx = context.WithValue(ctx, runtimeKey, rt)

	root := newRootCmd()
	root.SetOut(rt.stdout)
	root.SetIn(rt.stdin)
	if rt.args != nil {
		root.SetArgs(rt.args)
	}
	return root.ExecuteContext(ctx)
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context") // Should not happen if properly initialized
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context") // Should not happen if properly initialized
}

func getRuntimeFromContext(ctx context.Context) *runtime {
	if rt, ok := ctx.Value(runtimeKey).(*runtime); ok {
		return rt
	}
	panic("runtime not found in context")
}

// traced wraps a RunE in a command span
func traced(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		rt := getRuntimeFromContext(cmd.Context())
		ctx, span := rt.obs.StartCommand(cmd.Context(), cmd.Name())
		defer func() { observability.EndCommand(span, err) }()
		cmd.SetContext(ctx)
		return run(cmd, args)
	}
}

// addOutputFlags registers -o/--output and --format on cmd
func addOutputFlags(cmd *cobra.Command, cc *common.CommandConfig) {
	cmd.Flags().StringVarP(&cc.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&cc.OutputFormat, "format", "", "Output format: json, text, or markdown")

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return cfg.App.SupportedFormats, cobra.ShellCompDirectiveNoFileComp
	})
}

// resolveFormat applies the default format and validates it
func resolveFormat(cmd *cobra.Command, cc *common.CommandConfig) error {
	cfg := getConfigFromContext(cmd.Context())
	if cc.OutputFormat == "" {
		cc.OutputFormat = cfg.App.DefaultFormat
	}
	return common.ValidateOutputFormat(cc.OutputFormat, cfg.App.SupportedFormats)
}

func outputPreRun(cc *common.CommandConfig) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return resolveFormat(cmd, cc)
	}
}

// workspaceOptions wires the usage gate and task runs into telemetry and
// applies the malformed response policy from config
func (rt *runtime) workspaceOptions() []workspace.Option {
	var opts []workspace.Option
	if rt.obs != nil {
		opts = append(opts, workspace.WithObserver(rt.obs))
	}
	if rt.cfg != nil && rt.cfg.AI.RecoverMalformed {
		opts = append(opts, workspace.WithMalformedFallback(rt.logger))
	}
	return opts
}
